package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exposes metrics via HTTP and drives the collector loop.
type Exporter struct {
	addr      string
	collector *Collector
	server    *http.Server
	stop      chan struct{}
}

// NewExporter creates a metrics exporter sampling source.
func NewExporter(addr string, source Source) *Exporter {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Exporter{
		addr:      addr,
		collector: NewCollector(source),
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		stop: make(chan struct{}),
	}
}

// Start serves until Stop. It blocks; run it on its own goroutine.
func (e *Exporter) Start() error {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		e.collector.Collect()
		for {
			select {
			case <-e.stop:
				return
			case <-ticker.C:
				e.collector.Collect()
			}
		}
	}()

	if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the exporter and the collector loop.
func (e *Exporter) Stop() error {
	close(e.stop)
	return e.server.Close()
}
