package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/internal/pipeline"
	"github.com/ajitpratap0/freightsync/pkg/carrier/adapters/generic"
	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/carrier/registry"
	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/dedupstore"
	"github.com/ajitpratap0/freightsync/pkg/engine"
	"github.com/ajitpratap0/freightsync/pkg/logger"
	"github.com/ajitpratap0/freightsync/pkg/monitor"
	"github.com/ajitpratap0/freightsync/pkg/observability"
	"github.com/ajitpratap0/freightsync/pkg/sink"
	"github.com/ajitpratap0/freightsync/pkg/store"
	"github.com/ajitpratap0/freightsync/pkg/vault"
)

// app is a fully wired engine and the resources it owns.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	engine   *engine.Engine
	monitor  *monitor.Monitor
	adapters map[string]core.Adapter

	closers []func()
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildAdapters registers generic carrier definitions and instantiates every
// registered adapter.
func buildAdapters(cfg *config.Config, log *zap.Logger) (map[string]core.Adapter, *clients.HTTPClient, error) {
	if err := generic.RegisterFiles(registry.GetRegistry(), cfg.Carriers.Definitions); err != nil {
		return nil, nil, err
	}
	httpCfg := clients.DefaultHTTPConfig()
	httpCfg.RequestTimeout = cfg.Engine.RequestTimeout
	client := clients.NewHTTPClient(httpCfg, log)

	adapters, err := registry.Build(base.Deps{
		Client: client,
		Tokens: clients.NewTokenManager(client, log),
		Logger: log,
	})
	if err != nil {
		return nil, nil, err
	}
	return adapters, client, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.Get().With(zap.String("component", "freightsync-cli"))
	a := &app{cfg: cfg, log: log}

	shutdownTracing, err := observability.InitTracing(cfg.Tracing,
		observability.WithVersion(version), observability.WithEnvironment(cfg.App.Env))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = shutdownTracing(context.Background()) })

	adapters, client, err := buildAdapters(cfg, logger.Get())
	if err != nil {
		a.close()
		return nil, err
	}
	a.adapters = adapters

	stores, err := store.Open(ctx, cfg.Store)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, stores.Close)

	dedup, err := dedupstore.New(ctx, cfg.Dedup, cfg.Pipeline.DedupTTL)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = dedup.Close() })

	publisher, err := sink.New(cfg.Sink, client, logger.Get())
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = publisher.Close() })

	v, err := vault.New(cfg.Vault, stores.Audit)
	if err != nil {
		a.close()
		return nil, err
	}

	conns := store.NewMutator(stores.Connections)
	a.monitor = monitor.New(cfg.Monitor, adapters, v, conns, stores.Alerts, monitor.WithPublisher(publisher))
	if err := a.monitor.Load(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.engine = engine.New(cfg.Engine, adapters, v, conns,
		pipeline.New(cfg.Pipeline, dedup),
		engine.WithMonitor(a.monitor),
		engine.WithPublisher(publisher))
	if err := a.engine.Restore(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = logger.Sync()
}
