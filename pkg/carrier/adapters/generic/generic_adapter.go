// Package generic implements the declarative carrier adapter. Carriers are
// described by YAML definitions (see Definition) and registered at startup;
// their API responses are mapped field by field without carrier code.
package generic

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/carrier/registry"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// Adapter is a carrier adapter driven by a Definition.
type Adapter struct {
	*base.BaseAdapter
	def *Definition
}

// New creates an adapter for def. def must have been validated.
func New(def *Definition, deps base.Deps, opts ...base.Option) *Adapter {
	desc := base.ApplyOptions(def.descriptor(), opts)
	a := &Adapter{
		BaseAdapter: base.NewBaseAdapter(desc, def.Auth, def.Endpoints, deps),
		def:         def,
	}
	a.HealthPath = def.HealthPath
	a.Bind(a)
	return a
}

// FetchViaAPI fetches dataType and maps each item under Root through Fields.
func (a *Adapter) FetchViaAPI(ctx context.Context, creds models.Credentials, dataType core.DataType, params core.Params) ([]models.RawRecord, error) {
	var payload interface{}
	if err := a.GetJSON(ctx, creds, dataType, params, &payload); err != nil {
		return nil, err
	}

	records, err := a.transformData(payload)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug("mapped generic carrier payload",
		zap.String("data_type", string(dataType)),
		zap.Int("records", len(records)))
	return records, nil
}

func (a *Adapter) transformData(payload interface{}) ([]models.RawRecord, error) {
	items, err := base.Items(payload, a.def.Root)
	if err != nil {
		return nil, err
	}

	records := make([]models.RawRecord, 0, len(items))
	for _, item := range items {
		rec := base.MapFields(item, a.def.Fields)
		if status, ok := rec[models.FieldStatus]; ok && len(a.def.StatusMap) > 0 {
			code := strings.TrimSpace(base.Str(status))
			if mapped, ok := a.def.StatusMap[code]; ok {
				rec[models.FieldStatus] = mapped
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Register adds def to r under its carrier id.
func Register(r *registry.Registry, def *Definition) error {
	return r.Register(def.CarrierID, func(deps base.Deps) (core.Adapter, error) {
		return New(def, deps), nil
	})
}

// RegisterFiles loads each definition file and registers it with r.
func RegisterFiles(r *registry.Registry, paths []string) error {
	for _, path := range paths {
		def, err := LoadDefinition(path)
		if err != nil {
			return err
		}
		if err := Register(r, def); err != nil {
			return err
		}
	}
	return nil
}
