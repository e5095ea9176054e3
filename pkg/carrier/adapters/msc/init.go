package msc

import (
	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/carrier/registry"
)

func init() {
	registry.MustRegister(CarrierID, func(deps base.Deps) (core.Adapter, error) {
		return New(deps), nil
	})
}
