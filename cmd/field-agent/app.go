package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BearBump/FieldSync/config"
	"github.com/BearBump/FieldSync/internal/broker/kafka"
	"github.com/BearBump/FieldSync/internal/cache"
	"github.com/BearBump/FieldSync/internal/cache/kvcache"
	"github.com/BearBump/FieldSync/internal/cache/rediscache"
	"github.com/BearBump/FieldSync/internal/coordinator"
	"github.com/BearBump/FieldSync/internal/enrichment"
	"github.com/BearBump/FieldSync/internal/geofence"
	"github.com/BearBump/FieldSync/internal/integrations/travel"
	travelfake "github.com/BearBump/FieldSync/internal/integrations/travel/fake"
	"github.com/BearBump/FieldSync/internal/integrations/travel/osrm"
	"github.com/BearBump/FieldSync/internal/integrations/weather"
	weatherfake "github.com/BearBump/FieldSync/internal/integrations/weather/fake"
	"github.com/BearBump/FieldSync/internal/integrations/weather/openweather"
	"github.com/BearBump/FieldSync/internal/models"
	"github.com/BearBump/FieldSync/internal/netwatch"
	"github.com/BearBump/FieldSync/internal/opqueue"
	"github.com/BearBump/FieldSync/internal/remote"
	remotefake "github.com/BearBump/FieldSync/internal/remote/fake"
	"github.com/BearBump/FieldSync/internal/storage/kvstore"
)

type agentFactories struct {
	newStore    func(cfg *config.Config) (*kvstore.Store, error)
	newCache    func(cfg *config.Config, store *kvstore.Store) cache.BytesCache
	newRemote   func(cfg *config.Config) remote.Client
	newObserver func(cfg *config.Config) (netwatch.Observer, func(ctx context.Context) error)
	newWeather  func(cfg *config.Config) weather.Provider
	newTravel   func(cfg *config.Config) travel.Provider
}

func defaultAgentFactories() agentFactories {
	return agentFactories{
		newStore: func(cfg *config.Config) (*kvstore.Store, error) {
			return kvstore.New(cfg.Agent.StorePath)
		},
		newCache: func(cfg *config.Config, store *kvstore.Store) cache.BytesCache {
			if cfg.Redis.Host != "" {
				return rediscache.New(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
			}
			// Без redis кэшируем обогащение в том же sqlite.
			return kvcache.New(store)
		},
		newRemote: func(cfg *config.Config) remote.Client {
			if cfg.Remote.BaseURL == "" {
				// Демо-режим: in-memory бэкенд.
				return remotefake.New()
			}
			return remote.New(cfg.Remote.BaseURL, remote.StaticToken(cfg.Remote.Token),
				cfg.RemoteTimeout(), float64(cfg.Remote.RatePerSecond))
		},
		newObserver: func(cfg *config.Config) (netwatch.Observer, func(ctx context.Context) error) {
			if cfg.Network.Mode == "probe" && cfg.Network.ProbeURL != "" {
				p := netwatch.NewProbe(cfg.Network.ProbeURL, cfg.ProbeInterval())
				return p, p.Run
			}
			// Manual-режим: переходы сообщает оболочка через POST /network.
			return netwatch.NewManual(netwatch.State{Connected: true, Reachable: true}), nil
		},
		newWeather: func(cfg *config.Config) weather.Provider {
			if cfg.Enrichment.WeatherProvider == "openweather" {
				return openweather.New(cfg.Enrichment.WeatherBaseURL, cfg.Enrichment.WeatherAPIKey)
			}
			return weatherfake.New()
		},
		newTravel: func(cfg *config.Config) travel.Provider {
			if cfg.Enrichment.TravelProvider == "osrm" {
				return osrm.New(cfg.Enrichment.TravelBaseURL)
			}
			return travelfake.New()
		},
	}
}

// app is the assembled agent: every subsystem wired, nothing running yet.
type app struct {
	cfg *config.Config

	store       *kvstore.Store
	observer    netwatch.Observer
	observerRun func(ctx context.Context) error
	client      remote.Client
	queue       *opqueue.Queue
	enricher    *enrichment.Service
	coord       *coordinator.Coordinator
	source      *geofence.ShellSource
	engine      *geofence.Engine
}

func buildApp(ctx context.Context, cfg *config.Config, f agentFactories) (*app, error) {
	store, err := f.newStore(cfg)
	if err != nil {
		return nil, err
	}

	observer, observerRun := f.newObserver(cfg)
	client := f.newRemote(cfg)

	queue, err := opqueue.New(ctx, store, client, observer)
	if err != nil {
		store.Close()
		return nil, err
	}
	observer.OnChange(func(s netwatch.State) {
		if s.Online() {
			queue.Trigger()
		}
	})

	if cfg.Kafka.Host != "" {
		topic := cfg.Kafka.OperationAppliedTopic
		if topic == "" {
			topic = "fieldsync.operation.applied"
		}
		producer := kafka.NewProducer([]string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)})
		queue.SetAppliedHook(func(op models.QueuedOperation) {
			if err := producer.PublishApplied(ctx, topic, op); err != nil {
				slog.Warn("publish applied operation", "op_id", op.ID, "error", err.Error())
			}
		})
	}

	enricher := enrichment.New(f.newCache(cfg, store), cfg.EnrichmentTTL(), f.newWeather(cfg), f.newTravel(cfg))
	coord := coordinator.New(ctx, observer, client, queue, enricher, store, cfg.SyncInterval())

	source := geofence.NewShellSource()
	planner := geofence.NewCadencePlanner(geofence.CadenceConfig{
		FarDistanceMeters:  cfg.Geofence.FarDistanceMeters,
		NearDistanceMeters: cfg.Geofence.NearDistanceMeters,
		FarInterval:        secondsOrZero(cfg.Geofence.LowIntervalSeconds),
		MidInterval:        secondsOrZero(cfg.Geofence.BalancedIntervalSeconds),
		NearInterval:       secondsOrZero(cfg.Geofence.HighIntervalSeconds),
	})
	engine := geofence.New(source, queue, planner)

	return &app{
		cfg:         cfg,
		store:       store,
		observer:    observer,
		observerRun: observerRun,
		client:      client,
		queue:       queue,
		enricher:    enricher,
		coord:       coord,
		source:      source,
		engine:      engine,
	}, nil
}

// RunAgent builds the agent and runs its loops plus the HTTP surface until
// ctx is cancelled.
func RunAgent(ctx context.Context, cfg *config.Config, f agentFactories, onListen func(addr string)) error {
	a, err := buildApp(ctx, cfg, f)
	if err != nil {
		return err
	}
	defer a.store.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.queue.Run(gctx, cfg.QueueSafetyFlush()) })
	g.Go(func() error { return a.coord.Run(gctx) })
	if a.observerRun != nil {
		g.Go(func() error { return a.observerRun(gctx) })
	}
	g.Go(func() error {
		return runHTTPServer(gctx, cfg.Agent.HTTPAddr, a, onListen)
	})

	// Стартовый цикл: если сеть уже есть, сразу дренируем и тянем свежие данные.
	a.coord.Sync()

	return g.Wait()
}

func secondsOrZero(s int) time.Duration {
	return time.Duration(s) * time.Second
}
