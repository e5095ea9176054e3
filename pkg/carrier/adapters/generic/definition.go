package generic

import (
	"github.com/go-playground/validator/v10"

	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// Definition declares a carrier that needs no bespoke code: where its API
// lives, how to authenticate, and where each canonical field sits in the
// response.
//
//	carrier_id: oocl
//	base_url: https://api.oocl.com
//	supported_types: [api, manual]
//	auth: {type: bearer}
//	endpoints:
//	  tracking: /track/{containerNumber}
//	root: data.shipments
//	fields:
//	  containerNumber: cntrNo
//	  status: lastEvent.description
type Definition struct {
	CarrierID      string                  `yaml:"carrier_id" validate:"required"`
	Name           string                  `yaml:"name"`
	BaseURL        string                  `yaml:"base_url" validate:"required,url"`
	SupportedTypes []models.TransportType  `yaml:"supported_types" validate:"required,min=1,dive,oneof=api manual"`
	RateLimit      clients.RateLimitPolicy `yaml:"rate_limit"`
	Auth           base.AuthConfig         `yaml:"auth"`
	HealthPath     string                  `yaml:"health_path"`
	// Endpoints maps data types to URL templates relative to BaseURL
	Endpoints map[core.DataType]string `yaml:"endpoints"`
	// Root is the dotted path to the record array in a response; empty means the body itself
	Root string `yaml:"root"`
	// Fields maps canonical field names to dotted source paths within one record
	Fields map[string]string `yaml:"fields" validate:"required,min=1"`
	// StatusMap translates provider status codes before standardization
	StatusMap map[string]string `yaml:"status_map"`
}

var validate = validator.New()

// Validate checks the definition is complete enough to build an adapter.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid carrier definition "+d.CarrierID)
	}
	for _, field := range []string{models.FieldContainerNumber, models.FieldStatus} {
		if d.Fields[field] == "" {
			return errors.Newf(errors.ErrorTypeConfig, "carrier definition %s does not map %s", d.CarrierID, field)
		}
	}
	for dataType := range d.Endpoints {
		if !dataType.Valid() {
			return errors.Newf(errors.ErrorTypeConfig, "carrier definition %s has unknown data type %q", d.CarrierID, dataType)
		}
	}
	if d.descriptor().Supports(models.TransportAPI) && len(d.Endpoints) == 0 {
		return errors.Newf(errors.ErrorTypeConfig, "carrier definition %s declares api without endpoints", d.CarrierID)
	}
	return nil
}

func (d *Definition) descriptor() core.Descriptor {
	name := d.Name
	if name == "" {
		name = d.CarrierID
	}
	return core.Descriptor{
		CarrierID:      d.CarrierID,
		Name:           name,
		BaseURL:        d.BaseURL,
		SupportedTypes: d.SupportedTypes,
		RateLimit:      d.RateLimit,
	}
}

// LoadDefinition reads and validates a carrier definition file. ${VAR}
// references are expanded from the environment, so secrets stay out of files.
func LoadDefinition(path string) (*Definition, error) {
	var def Definition
	if err := config.LoadYAML(path, &def); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load carrier definition")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
