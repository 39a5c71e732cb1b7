package probe

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/toughdns/config"
	"github.com/talkincode/toughdns/internal/engine"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HTTPSource fetches the configured test URL directly from each candidate IP
// (SNI pinned to the URL host) and records TTFB and total load time.
type HTTPSource struct {
	cfg      config.ProbeConfig
	resolver string
	lines    []engine.Line
}

// NewHTTPSource builds an HTTP timing source. resolver names the vantage the
// samples are attributed to (e.g. "DIRECT", "ALIYUN"); lines lists the
// carrier lines this vantage stands in for.
func NewHTTPSource(cfg config.ProbeConfig, resolver string, lines []engine.Line) *HTTPSource {
	if len(lines) == 0 {
		lines = []engine.Line{engine.LineDefault}
	}
	return &HTTPSource{cfg: cfg, resolver: resolver, lines: lines}
}

// Collect runs one timed request per candidate with bounded parallelism.
// Failed requests still yield samples (Success = false) so the aggregator
// can account for HTTP success rate.
func (s *HTTPSource) Collect(ctx context.Context, ips []string) ([]engine.Sample, error) {
	target, err := url.Parse(s.cfg.HTTPTestURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse http_test_url")
	}

	workers := s.cfg.MaxWorkers
	if workers <= 0 {
		workers = 50
	}

	var mu sync.Mutex
	var samples []engine.Sample

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, ip := range ips {
		ip := ip
		g.Go(func() error {
			got := s.fetchOne(gctx, target, ip)
			mu.Lock()
			samples = append(samples, got...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return samples, err
	}
	return samples, ctx.Err()
}

func (s *HTTPSource) fetchOne(ctx context.Context, target *url.URL, ip string) []engine.Sample {
	timeout := time.Duration(s.cfg.HTTPTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ttfb, total, err := timedGet(ctx, target, ip, timeout)
	now := time.Now()
	if err != nil {
		zap.L().Debug("http probe failed",
			zap.String("ip", ip), zap.String("resolver", s.resolver), zap.Error(err))
	}

	out := make([]engine.Sample, 0, len(s.lines))
	for _, line := range s.lines {
		sample := engine.Sample{
			IP:        ip,
			Line:      line,
			Kind:      engine.MetricHTTP,
			Timestamp: now,
			Resolver:  s.resolver,
			TTFBMs:    -1,
			TotalMs:   -1,
			LatencyMs: -1,
		}
		if err == nil {
			sample.Success = true
			sample.TTFBMs = float64(ttfb.Microseconds()) / 1000.0
			sample.TotalMs = float64(total.Microseconds()) / 1000.0
		}
		out = append(out, sample)
	}
	return out
}

// timedGet requests the target through a specific IP and returns time to
// first response byte and total body time.
func timedGet(ctx context.Context, target *url.URL, ip string, timeout time.Duration) (ttfb, total time.Duration, err error) {
	port := target.Port()
	if port == "" {
		if target.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
		},
		TLSClientConfig:   &tls.Config{ServerName: target.Hostname()},
		DisableKeepAlives: true,
	}
	client := &http.Client{Transport: transport, Timeout: timeout}
	defer transport.CloseIdleConnections()

	var start time.Time
	var firstByte time.Time
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() { firstByte = time.Now() },
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, 0, err
	}

	start = time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return 0, 0, err
	}
	total = time.Since(start)
	if firstByte.IsZero() {
		ttfb = total
	} else {
		ttfb = firstByte.Sub(start)
	}

	if resp.StatusCode >= 400 {
		return ttfb, total, errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return ttfb, total, nil
}

// MultiSource fans several sources into one closed sample set.
type MultiSource []Source

func (m MultiSource) Collect(ctx context.Context, ips []string) ([]engine.Sample, error) {
	var all []engine.Sample
	for _, src := range m {
		samples, err := src.Collect(ctx, ips)
		all = append(all, samples...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}
