package metrics

import (
	"runtime"
	"time"
)

// Stats is one sample of hub state for the collector.
type Stats struct {
	Version   uint64
	BestInner float64
	HasInner  bool
	BestOuter float64
	HasOuter  bool
	AbsGap    float64
	RelGap    float64
	HasGap    bool
	Spokes    int
}

// Source supplies hub state samples. Implemented by the hub board.
type Source interface {
	Stats() Stats
}

// Collector samples a source into the gauges on a fixed interval.
type Collector struct {
	source    Source
	startTime time.Time
}

// NewCollector creates a collector over source. A nil source skips the hub
// gauges and only collects process-level metrics.
func NewCollector(source Source) *Collector {
	return &Collector{
		source:    source,
		startTime: time.Now(),
	}
}

// Collect takes one sample.
func (c *Collector) Collect() {
	c.collectMemory()
	c.collectUptime()
	c.collectSource()
}

func (c *Collector) collectMemory() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}

func (c *Collector) collectUptime() {
	Uptime.Set(time.Since(c.startTime).Seconds())
}

func (c *Collector) collectSource() {
	if c.source == nil {
		return
	}
	s := c.source.Stats()

	IterateVersion.Set(float64(s.Version))
	SpokesJoined.Set(float64(s.Spokes))
	if s.HasInner {
		BestBound.WithLabelValues("inner").Set(s.BestInner)
	}
	if s.HasOuter {
		BestBound.WithLabelValues("outer").Set(s.BestOuter)
	}
	if s.HasGap {
		BoundGap.WithLabelValues("abs").Set(s.AbsGap)
		BoundGap.WithLabelValues("rel").Set(s.RelGap)
	}
}
