package probe

import (
	"context"
	"sync"
	"time"

	pinglib "github.com/go-ping/ping"
	"github.com/panjf2000/ants/v2"
	"github.com/talkincode/toughdns/config"
	"github.com/talkincode/toughdns/internal/engine"
	"go.uber.org/zap"
)

// Source yields a finite, closed sequence of samples for one round.
// Scoring never starts until every Source has returned.
type Source interface {
	Collect(ctx context.Context, ips []string) ([]engine.Sample, error)
}

// PingSource probes candidates with ICMP from the local vantage point and
// attributes each result to the lines this vantage represents.
type PingSource struct {
	cfg   config.ProbeConfig
	lines []engine.Line
}

func NewPingSource(cfg config.ProbeConfig, lines []engine.Line) *PingSource {
	if len(lines) == 0 {
		lines = []engine.Line{engine.LineDefault}
	}
	return &PingSource{cfg: cfg, lines: lines}
}

// Collect pings every candidate with a bounded worker pool and returns one
// ping Sample per attempt per line. Timed-out attempts carry Loss = true and
// a negative latency.
func (s *PingSource) Collect(ctx context.Context, ips []string) ([]engine.Sample, error) {
	workers := s.cfg.MaxWorkers
	if workers <= 0 {
		workers = 50
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var mu sync.Mutex
	var samples []engine.Sample
	var wg sync.WaitGroup

	for _, ip := range ips {
		if ctx.Err() != nil {
			break
		}
		ip := ip
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			got := s.pingOne(ip)
			mu.Lock()
			samples = append(samples, got...)
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			zap.L().Warn("ping submit failed", zap.String("ip", ip), zap.Error(submitErr))
		}
	}
	wg.Wait()

	return samples, ctx.Err()
}

func (s *PingSource) pingOne(ip string) []engine.Sample {
	count := s.cfg.PingCount
	if count <= 0 {
		count = 4
	}
	timeout := time.Duration(s.cfg.PingTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	now := time.Now()

	pinger, err := pinglib.NewPinger(ip)
	if err != nil {
		zap.L().Debug("pinger init failed", zap.String("ip", ip), zap.Error(err))
		return s.lossSamples(ip, count, now)
	}
	pinger.Count = count
	pinger.Timeout = timeout * time.Duration(count)
	// Unprivileged UDP mode so the process can run without raw sockets.
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		zap.L().Debug("ping run failed", zap.String("ip", ip), zap.Error(err))
		return s.lossSamples(ip, count, now)
	}

	st := pinger.Statistics()
	var out []engine.Sample
	for _, line := range s.lines {
		for _, rtt := range st.Rtts {
			out = append(out, engine.Sample{
				IP:        ip,
				Line:      line,
				Kind:      engine.MetricPing,
				Timestamp: now,
				LatencyMs: float64(rtt.Microseconds()) / 1000.0,
				Success:   true,
			})
		}
		for i := st.PacketsRecv; i < st.PacketsSent; i++ {
			out = append(out, engine.Sample{
				IP:        ip,
				Line:      line,
				Kind:      engine.MetricPing,
				Timestamp: now,
				LatencyMs: -1,
				Loss:      true,
			})
		}
	}
	return out
}

func (s *PingSource) lossSamples(ip string, count int, ts time.Time) []engine.Sample {
	var out []engine.Sample
	for _, line := range s.lines {
		for i := 0; i < count; i++ {
			out = append(out, engine.Sample{
				IP:        ip,
				Line:      line,
				Kind:      engine.MetricPing,
				Timestamp: ts,
				LatencyMs: -1,
				Loss:      true,
			})
		}
	}
	return out
}
