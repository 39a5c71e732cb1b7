package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/talkincode/toughdns/config"
)

// Thresholds is the hard-filter bundle resolved for one line.
type Thresholds struct {
	LatencyMs       float64
	MaxLossRate     float64 // percent
	MinSuccessRate  float64
	StabilityMs     float64
	HTTPTTFBMs      float64
	HTTPTotalMs     float64
	HTTPSuccessRate float64
}

// ThresholdsFor resolves the evaluation thresholds for a line from config.
func ThresholdsFor(line Line, ev config.EvalConfig) Thresholds {
	return Thresholds{
		LatencyMs:       ev.LatencyThresholdMs.For(string(line)),
		MaxLossRate:     ev.MaxLossRate,
		MinSuccessRate:  ev.MinSuccessRate,
		StabilityMs:     ev.StabilityThresholdMs,
		HTTPTTFBMs:      ev.HTTP.TTFBMs,
		HTTPTotalMs:     ev.HTTP.TotalTimeMs,
		HTTPSuccessRate: ev.HTTP.SuccessRate,
	}
}

// Summarize folds a round's closed sample set into one RoundAggregate per
// (ip, line) pair. Samples for other rounds must not be mixed in; the caller
// owns round boundaries. The result order is deterministic.
func Summarize(samples []Sample) []RoundAggregate {
	type key struct {
		ip   string
		line Line
	}
	buckets := make(map[key][]Sample)
	for _, s := range samples {
		k := key{s.IP, s.Line}
		buckets[k] = append(buckets[k], s)
	}

	keys := make([]key, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].line != keys[j].line {
			return keys[i].line < keys[j].line
		}
		return keys[i].ip < keys[j].ip
	})

	out := make([]RoundAggregate, 0, len(keys))
	for _, k := range keys {
		out = append(out, summarizeOne(k.ip, k.line, buckets[k]))
	}
	return out
}

func summarizeOne(ip string, line Line, samples []Sample) RoundAggregate {
	agg := RoundAggregate{IP: ip, Line: line}

	var latencies []float64
	var pingOK int
	var ttfbs, totals []float64
	var httpOK int

	for _, s := range samples {
		switch s.Kind {
		case MetricPing:
			agg.SampleCount++
			if s.Loss || !s.Success || s.LatencyMs < 0 {
				continue
			}
			pingOK++
			latencies = append(latencies, s.LatencyMs)
		case MetricHTTP:
			agg.HTTPSamples++
			if !s.Success {
				continue
			}
			httpOK++
			if s.TTFBMs >= 0 {
				ttfbs = append(ttfbs, s.TTFBMs)
			}
			if s.TotalMs >= 0 {
				totals = append(totals, s.TotalMs)
			}
		}
	}

	if agg.SampleCount > 0 {
		agg.SuccessRate = float64(pingOK) / float64(agg.SampleCount)
		agg.LossRate = float64(agg.SampleCount-pingOK) / float64(agg.SampleCount)
	}
	agg.MeanLatencyMs = meanOr(latencies, -1)
	agg.StabilityMs = stddevOr(latencies, 0)

	if agg.HTTPSamples > 0 {
		agg.HTTPSuccessRate = float64(httpOK) / float64(agg.HTTPSamples)
	}
	agg.HTTPMeanTTFBMs = meanOr(ttfbs, -1)
	agg.HTTPMeanTotalMs = meanOr(totals, -1)

	return agg
}

func meanOr(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	m, err := stats.Mean(values)
	if err != nil {
		return fallback
	}
	return m
}

func stddevOr(values []float64, fallback float64) float64 {
	if len(values) < 2 {
		return fallback
	}
	sd, err := stats.StandardDeviationSample(values)
	if err != nil {
		return fallback
	}
	return sd
}

// Aggregate applies the line's hard filters and weight table to one
// RoundAggregate, producing the round's IPQuality record. An aggregate with
// zero ping samples fails the hard filter with an insufficient-data reason
// instead of receiving a fabricated score.
func Aggregate(agg RoundAggregate, th Thresholds, weights config.Weights, round time.Time) IPQuality {
	q := IPQuality{
		IP:            agg.IP,
		Line:          agg.Line,
		MeanLatencyMs: agg.MeanLatencyMs,
		Round:         round,
	}

	if agg.SampleCount == 0 {
		q.RejectReason = "insufficient_data"
		return q
	}
	if agg.LossRate*100 > th.MaxLossRate {
		q.RejectReason = fmt.Sprintf("loss_rate %.1f%% exceeds %.1f%%", agg.LossRate*100, th.MaxLossRate)
		return q
	}
	if agg.SuccessRate < th.MinSuccessRate {
		q.RejectReason = fmt.Sprintf("success_rate %.2f below %.2f", agg.SuccessRate, th.MinSuccessRate)
		return q
	}
	if agg.MeanLatencyMs < 0 || agg.MeanLatencyMs > th.LatencyMs {
		q.RejectReason = fmt.Sprintf("mean latency %.1fms exceeds %.1fms", agg.MeanLatencyMs, th.LatencyMs)
		return q
	}
	if agg.HTTPSamples > 0 && agg.HTTPSuccessRate < th.HTTPSuccessRate {
		q.RejectReason = fmt.Sprintf("http success_rate %.2f below %.2f", agg.HTTPSuccessRate, th.HTTPSuccessRate)
		return q
	}

	// Weights are arbitrary non-negative coefficients; the composite is
	// normalized by their sum so it stays in [0,1].
	wsum := weights.Sum()
	if wsum <= 0 {
		q.RejectReason = "zero weight table"
		return q
	}

	composite := weights.Ping.Latency*SubScore(agg.MeanLatencyMs, th.LatencyMs) +
		weights.Ping.Loss*SubScore(agg.LossRate*100, th.MaxLossRate) +
		weights.Ping.Stability*SubScore(agg.StabilityMs, th.StabilityMs) +
		weights.HTTP.TTFB*SubScore(agg.HTTPMeanTTFBMs, th.HTTPTTFBMs) +
		weights.HTTP.TotalTime*SubScore(agg.HTTPMeanTotalMs, th.HTTPTotalMs)

	q.CompositeScore = Clamp01(composite / wsum)
	q.HardFilterPassed = true
	return q
}

// AggregateAll scores every aggregate against its line's thresholds.
func AggregateAll(aggs []RoundAggregate, ev config.EvalConfig, round time.Time) []IPQuality {
	out := make([]IPQuality, 0, len(aggs))
	for _, agg := range aggs {
		out = append(out, Aggregate(agg, ThresholdsFor(agg.Line, ev), ev.Weights, round))
	}
	return out
}
