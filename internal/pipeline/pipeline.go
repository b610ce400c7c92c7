// Package pipeline assembles the monitoring stack: datastore, provider
// client, image cache, scheduler and the optional status API.
package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/satwatch/satwatch-go/internal/api"
	"github.com/satwatch/satwatch-go/internal/conf"
	"github.com/satwatch/satwatch-go/internal/datastore"
	"github.com/satwatch/satwatch-go/internal/errors"
	"github.com/satwatch/satwatch-go/internal/imagecache"
	"github.com/satwatch/satwatch-go/internal/logging"
	"github.com/satwatch/satwatch-go/internal/monitor"
	"github.com/satwatch/satwatch-go/internal/observability"
	"github.com/satwatch/satwatch-go/internal/provider"
)

// Pipeline holds the assembled components. Close releases the datastore.
type Pipeline struct {
	Settings  *conf.Settings
	Store     datastore.Interface
	Metrics   *observability.Metrics
	Client    *provider.Client
	Cache     *imagecache.Cache
	Scheduler *monitor.Scheduler
	logger    *slog.Logger
}

// Build wires the full pipeline from settings and opens the datastore.
func Build(settings *conf.Settings) (*Pipeline, error) {
	store := datastore.New(settings)
	if store == nil {
		return nil, errors.Newf("no database backend enabled").
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}

	observed, err := observability.NewMetrics()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	client := provider.NewClient(&settings.Provider, observed.Provider)

	cache, err := imagecache.New(settings, store, observed.ImageCache)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Pipeline{
		Settings:  settings,
		Store:     store,
		Metrics:   observed,
		Client:    client,
		Cache:     cache,
		Scheduler: monitor.New(settings, store, client, client, cache, observed.Monitor),
		logger:    logging.ForService("pipeline"),
	}, nil
}

// Close releases the pipeline's resources.
func (p *Pipeline) Close() error {
	return p.Store.Close()
}

// RunDaemon runs the scheduler, and the status API when enabled, until the
// context is cancelled.
func (p *Pipeline) RunDaemon(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := p.Scheduler.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if p.Settings.API.Enabled {
		server := api.New(p.Settings, p.Store, p.Cache, p.Scheduler.Status(), p.Metrics)
		group.Go(func() error {
			return server.Start(groupCtx)
		})
	}

	return group.Wait()
}

// RunSweep executes a single sweep and returns an error when any zone failed,
// so one-shot invocations exit nonzero on trouble.
func (p *Pipeline) RunSweep(ctx context.Context, kind string) error {
	summary := p.Scheduler.RunCycle(ctx, kind)
	if summary.AuthFailed {
		return errors.Newf("sweep aborted: provider rejected credentials").
			Component("pipeline").
			Category(errors.CategoryAuth).
			Build()
	}
	if summary.Failed > 0 {
		return errors.Newf("sweep finished with %d of %d zones failed", summary.Failed, summary.Zones).
			Component("pipeline").
			Category(errors.CategoryGeneric).
			Build()
	}
	p.logger.Info("Sweep complete",
		"kind", summary.Kind,
		"zones", summary.Zones,
		"succeeded", summary.Succeeded,
		"skipped", summary.Skipped)
	return nil
}
