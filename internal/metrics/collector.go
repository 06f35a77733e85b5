package metrics

import (
	"os"
	"time"

	"gallery-index/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current index statistics
type Stats struct {
	TotalGalleries int
	TotalImages    int
	TotalFTSRows   int
	Populated      bool
	OpenConns      int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	dbPath        string
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector. dbPath may be empty, in which
// case database file sizes are not reported.
func NewCollector(provider StatsProvider, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPath:        dbPath,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectFileSizes()

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	IndexGalleriesTotal.Set(float64(stats.TotalGalleries))
	IndexImagesTotal.Set(float64(stats.TotalImages))
	IndexFTSRowsTotal.Set(float64(stats.TotalFTSRows))
	DBConnectionsOpen.Set(float64(stats.OpenConns))
	if stats.Populated {
		IndexPopulated.Set(1)
	} else {
		IndexPopulated.Set(0)
	}

	if stats.TotalFTSRows != stats.TotalImages {
		logging.Warn("FTS shadow index out of step: images=%d, fts=%d", stats.TotalImages, stats.TotalFTSRows)
	}

	logging.Debug("Metrics collected: galleries=%d, images=%d, fts=%d, populated=%v",
		stats.TotalGalleries, stats.TotalImages, stats.TotalFTSRows, stats.Populated)
}

func (c *Collector) collectFileSizes() {
	if c.dbPath == "" {
		return
	}

	for label, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
		info, err := os.Stat(c.dbPath + suffix)
		if err != nil {
			DBSizeBytes.WithLabelValues(label).Set(0)
			continue
		}
		DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
	}
}
