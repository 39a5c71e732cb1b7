// Package metrics keeps a small embedded time-series store for operational
// gauges and counters. Values survive restarts inside the workdir.
package metrics

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/nakabonne/tstorage"
)

var (
	mu      sync.Mutex
	storage tstorage.Storage
)

// InitMetrics opens the embedded metric store under workdir.
func InitMetrics(workdir string) error {
	mu.Lock()
	defer mu.Unlock()
	s, err := tstorage.NewStorage(
		tstorage.WithDataPath(filepath.Join(workdir, "metrics")),
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(30*24*time.Hour),
	)
	if err != nil {
		return err
	}
	storage = s
	return nil
}

// SetGauge records the current value of a named gauge.
func SetGauge(name string, value int64) {
	insert(name, nil, value)
}

// AddCounter records a counter increment sample for a named metric with
// optional labels such as the carrier line.
func AddCounter(name string, labels map[string]string, value int64) {
	var ls []tstorage.Label
	for k, v := range labels {
		ls = append(ls, tstorage.Label{Name: k, Value: v})
	}
	insertLabeled(name, ls, value)
}

func insert(name string, labels []tstorage.Label, value int64) {
	insertLabeled(name, labels, value)
}

func insertLabeled(name string, labels []tstorage.Label, value int64) {
	mu.Lock()
	s := storage
	mu.Unlock()
	if s == nil {
		return
	}
	_ = s.InsertRows([]tstorage.Row{
		{
			Metric: name,
			Labels: labels,
			DataPoint: tstorage.DataPoint{
				Timestamp: time.Now().Unix(),
				Value:     float64(value),
			},
		},
	})
}

// Select returns the datapoints of a metric between start and end unix
// seconds. Returns nil when the store is closed or the metric is unknown.
func Select(name string, labels map[string]string, start, end int64) []*tstorage.DataPoint {
	mu.Lock()
	s := storage
	mu.Unlock()
	if s == nil {
		return nil
	}
	var ls []tstorage.Label
	for k, v := range labels {
		ls = append(ls, tstorage.Label{Name: k, Value: v})
	}
	points, err := s.Select(name, ls, start, end)
	if err != nil {
		return nil
	}
	return points
}

// Close flushes and closes the metric store.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if storage == nil {
		return nil
	}
	err := storage.Close()
	storage = nil
	return err
}
