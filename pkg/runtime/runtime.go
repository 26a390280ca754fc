// Package runtime assembles the file server, its cache, the admin API and
// the metrics endpoint from a loaded configuration and runs them together.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/api"
	"github.com/marmos91/dittoserve/pkg/bufcache"
	"github.com/marmos91/dittoserve/pkg/config"
	"github.com/marmos91/dittoserve/pkg/executor"
	"github.com/marmos91/dittoserve/pkg/fileserve"
	"github.com/marmos91/dittoserve/pkg/httpd"
	"github.com/marmos91/dittoserve/pkg/metrics"
	"github.com/marmos91/dittoserve/pkg/metrics/prometheus"
)

// metricsLogInterval is how often connection counts are logged at INFO
// when metrics are enabled.
const metricsLogInterval = time.Minute

// Runtime owns every long-lived component of a running server.
type Runtime struct {
	cfg *config.Config

	cache   *bufcache.Cache
	workers *executor.Workers
	files   *fileserve.Server
	http    *httpd.Server
	api     *api.Server
	metrics *metrics.Server

	serveOnce sync.Once
}

// New builds the components described by cfg. Listeners for the admin API
// and metrics are bound here so port conflicts surface before Serve.
func New(cfg *config.Config) (*Runtime, error) {
	r := &Runtime{cfg: cfg}

	var logInterval time.Duration
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		srv, err := metrics.NewServer(net.JoinHostPort("", strconv.Itoa(cfg.Metrics.Port)))
		if err != nil {
			return nil, err
		}
		if err := srv.Listen(); err != nil {
			return nil, err
		}
		r.metrics = srv
		logInterval = metricsLogInterval
	}

	if cfg.Cache.Enabled {
		r.cache = bufcache.New(bufcache.Config{
			SliceSize:      int(cfg.Cache.SliceSize),
			MaxSize:        uint64(cfg.Cache.MaxSize),
			ReservationTTL: cfg.Cache.ReservationTTL,
			Metrics:        prometheus.NewCacheMetrics(uint64(cfg.Cache.MaxSize)),
		})
		logger.Info("File cache enabled",
			logger.KeyCapacity, cfg.Cache.MaxSize.String(),
			"slice_size", cfg.Cache.SliceSize.String(),
			"max_file_size", cfg.Cache.MaxFileSize.String())
	} else {
		logger.Info("File cache disabled")
	}

	r.workers = executor.NewWorkers(cfg.Workers.Size, cfg.Workers.QueueSize)
	r.files = fileserve.New(fileserve.Config{
		Cache:       r.cache,
		MaxFileSize: int64(cfg.Cache.MaxFileSize),
		Metrics:     prometheus.NewServeMetrics(),
	})

	httpSrv, err := httpd.New(httpd.Config{
		BindAddress:        cfg.Server.BindAddress,
		Port:               cfg.Server.Port,
		Root:               cfg.Server.Root,
		MaxConnections:     cfg.Server.MaxConnections,
		IdleTimeout:        cfg.Server.IdleTimeout,
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		WriteBufferSize:    int(cfg.Server.WriteBufferSize),
		KeepAlive:          cfg.Server.KeepAlive,
		ShutdownTimeout:    cfg.ShutdownTimeout,
		MetricsLogInterval: logInterval,
	}, r.files, r.workers, prometheus.NewHTTPMetrics())
	if err != nil {
		r.release()
		return nil, err
	}
	r.http = httpSrv

	if cfg.API.Enabled {
		deps := api.Deps{
			Resolve: httpSrv.Resolve,
			Ready:   httpSrv.Ready(),
		}
		// A nil *bufcache.Cache must stay a nil interface.
		if r.cache != nil {
			deps.Cache = r.cache
		}
		apiSrv, err := api.NewServer(api.Config{
			Addr:         cfg.API.Addr(),
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
			IdleTimeout:  cfg.API.IdleTimeout,
		}, deps)
		if err != nil {
			r.release()
			return nil, err
		}
		r.api = apiSrv
	}

	return r, nil
}

// Serve runs every component until ctx is cancelled or one of them fails,
// then shuts all of them down. It returns nil after a clean shutdown.
// Serve may only be called once.
func (r *Runtime) Serve(ctx context.Context) error {
	err := errors.New("runtime already served")
	r.serveOnce.Do(func() {
		err = r.serve(ctx)
	})
	return err
}

func (r *Runtime) serve(ctx context.Context) error {
	defer r.release()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.http.Serve(gctx)
	})

	if r.cache != nil && r.cfg.Cache.Watch {
		g.Go(func() error {
			select {
			case <-r.http.Ready():
			case <-gctx.Done():
				return nil
			}
			w, err := fileserve.Watch(r.http.Root(), r.cache)
			if err != nil {
				// Entries are not invalidated without a watcher.
				logger.Warn("File watcher unavailable", logger.Err(err))
				return nil
			}
			<-gctx.Done()
			return w.Close()
		})
	}

	if r.api != nil {
		g.Go(func() error {
			return r.api.Start(gctx)
		})
	}

	if r.metrics != nil {
		g.Go(r.metrics.Start)
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return r.metrics.Stop(stopCtx)
		})
	}

	logger.Info("dittoserve running")
	if err := g.Wait(); err != nil {
		logger.Error("dittoserve stopped with error", logger.Err(err))
		return fmt.Errorf("runtime: %w", err)
	}
	logger.Info("dittoserve stopped")
	return nil
}

// release frees what New allocated, including a metrics listener that was
// bound but never served. Workers stop after the HTTP server has
// drained, so no transfer is left waiting on a load.
func (r *Runtime) release() {
	if r.workers != nil {
		r.workers.Stop()
	}
	if r.cache != nil {
		if err := r.cache.Close(); err != nil && !errors.Is(err, bufcache.ErrClosed) {
			logger.Warn("Error closing cache", logger.Err(err))
		}
	}
	if r.metrics != nil {
		if err := r.metrics.Close(); err != nil {
			logger.Warn("Error closing metrics listener", logger.Err(err))
		}
	}
}

// HTTPAddr returns the file server address. It blocks until the server has
// tried to bind and returns "" if binding failed.
func (r *Runtime) HTTPAddr() string { return r.http.Addr() }

// HTTPReady is closed once the file server accepts connections.
func (r *Runtime) HTTPReady() <-chan struct{} { return r.http.Ready() }

// APIAddr returns the admin API address, or "" if the API is disabled.
func (r *Runtime) APIAddr() string {
	if r.api == nil {
		return ""
	}
	return r.api.Addr()
}

// MetricsAddr returns the metrics endpoint address, or "" if disabled.
func (r *Runtime) MetricsAddr() string {
	if r.metrics == nil {
		return ""
	}
	return r.metrics.Addr()
}

// Cache returns the file cache, or nil when caching is disabled.
func (r *Runtime) Cache() *bufcache.Cache { return r.cache }
