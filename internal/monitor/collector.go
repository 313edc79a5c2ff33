package monitor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

// Collector samples current health metrics for one target.
type Collector interface {
	Collect(ctx context.Context, target models.Target) (*models.MetricSample, error)
}

// SimulatedCollector fabricates plausible metric readings. It stands in
// for real fleet telemetry in demos and tests; distributions are chosen
// so threshold crossings occur often enough to exercise the incident
// pipeline.
type SimulatedCollector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedCollector seeds the generator from the clock.
func NewSimulatedCollector() *SimulatedCollector {
	return &SimulatedCollector{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (c *SimulatedCollector) Collect(_ context.Context, target models.Target) (*models.MetricSample, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &models.MetricSample{
		TargetID:          target.ID,
		Timestamp:         time.Now().UTC(),
		CPUPercent:        c.rng.Float64() * 100,
		MemoryPercent:     40 + c.rng.Float64()*30,
		ActiveConnections: c.rng.Intn(100),
		MaxConnections:    150,
		SlowQueriesCount:  c.rng.Intn(5),
		DiskUsagePercent:  60 + c.rng.Float64()*10,
		QueriesPerSecond:  500 + c.rng.Float64()*1000,
		AvgQueryTimeMs:    20 + c.rng.Float64()*50,
	}, nil
}
