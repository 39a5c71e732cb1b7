// Package engine implements the quality evaluation core: it turns raw
// per-IP measurement samples into bounded composite scores that the
// selector and reconciler act on. Everything in this package is pure
// computation; no I/O happens here.
package engine

import "time"

// Line identifies a carrier-specific DNS resolution path.
type Line string

const (
	LineTelecom  Line = "TELECOM"
	LineUnicom   Line = "UNICOM"
	LineMobile   Line = "MOBILE"
	LineOverseas Line = "OVERSEAS"
	LineDefault  Line = "DEFAULT"
)

// Lines lists every line in evaluation order.
var Lines = []Line{LineTelecom, LineUnicom, LineMobile, LineOverseas, LineDefault}

// MetricKind distinguishes ping samples from HTTP timing samples.
type MetricKind string

const (
	MetricPing MetricKind = "ping"
	MetricHTTP MetricKind = "http"
)

// Sample is one immutable measurement attempt for an IP on a line.
type Sample struct {
	IP        string
	Line      Line
	Kind      MetricKind
	Timestamp time.Time
	// LatencyMs is negative when the attempt timed out.
	LatencyMs float64
	// Loss marks a lost ping attempt. Lost attempts count toward loss rate.
	Loss bool
	// HTTP timing fields, only meaningful when Kind == MetricHTTP.
	TTFBMs   float64
	TotalMs  float64
	Resolver string
	Success  bool
}

// RoundAggregate summarizes all samples of one (ip, line) pair in a round.
type RoundAggregate struct {
	IP   string
	Line Line

	MeanLatencyMs float64
	LossRate      float64 // failed / attempted, in [0,1]
	SuccessRate   float64
	StabilityMs   float64 // stddev of successful ping latencies

	HTTPMeanTTFBMs  float64
	HTTPMeanTotalMs float64
	HTTPSuccessRate float64
	HTTPSamples     int

	SampleCount int // ping attempts
}

// IPQuality is the scored outcome of one (ip, line) pair for one round.
// Never mutated after creation.
type IPQuality struct {
	IP               string
	Line             Line
	CompositeScore   float64 // in [0,1]
	HardFilterPassed bool
	RejectReason     string
	MeanLatencyMs    float64
	Round            time.Time
}

// BlendedScore combines a round's composite score with the rolling
// historical average for the same (ip, line) pair.
type BlendedScore struct {
	IP    string
	Line  Line
	Value float64
}
