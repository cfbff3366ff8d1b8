// prometheus.go - /metrics exposition and the store-backed gauges
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// scrapeTimeout bounds each store read made while collecting gauges.
const scrapeTimeout = 2 * time.Second

// registerCollectors adds build info and the gauges that are read from the
// store at scrape time.
func (s *Server) registerCollectors() error {
	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "library_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": s.build.Version, "commit": s.build.Commit},
	})
	info.Set(1)

	gauge := func(name, help string, read func(ctx context.Context) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
			defer cancel()
			return read(ctx)
		})
	}

	collectors := []prometheus.Collector{
		info,
		gauge("library_lessons", "Lessons in the catalog", func(ctx context.Context) float64 {
			lessons, _ := s.catalog.Stats(ctx)
			return float64(lessons)
		}),
		gauge("library_lesson_downloads", "Sum of per-lesson download counters", func(ctx context.Context) float64 {
			_, downloads := s.catalog.Stats(ctx)
			return float64(downloads)
		}),
		gauge("library_pending_requests", "Registration requests awaiting approval", func(ctx context.Context) float64 {
			return float64(len(s.workflow.Pending(ctx)))
		}),
		gauge("library_active_teacher", "1 if a teacher is active", func(ctx context.Context) float64 {
			if _, ok := s.creds.Active(ctx); ok {
				return 1
			}
			return 0
		}),
	}
	for _, c := range collectors {
		if err := s.metrics.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// metricsHandler serves /metrics. Compression is left to the gzip middleware.
func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{
		ErrorHandling:      promhttp.ContinueOnError,
		DisableCompression: true,
	})
}
