package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/toughdns/config"
	"github.com/talkincode/toughdns/internal/dnssync"
	"github.com/talkincode/toughdns/internal/domain"
	"github.com/talkincode/toughdns/internal/engine"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubSource struct {
	samples []engine.Sample
}

func (s stubSource) Collect(_ context.Context, _ []string) ([]engine.Sample, error) {
	return s.samples, nil
}

// stubProvider keeps live records in memory so repeated rounds observe the
// state previous rounds published.
type stubProvider struct {
	records map[engine.Line][]dnssync.PublishedRecord
	created map[engine.Line][]string
	deleted map[engine.Line][]string
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		records: make(map[engine.Line][]dnssync.PublishedRecord),
		created: make(map[engine.Line][]string),
		deleted: make(map[engine.Line][]string),
	}
}

func (p *stubProvider) ListRecords(_ context.Context, line engine.Line) ([]dnssync.PublishedRecord, error) {
	return p.records[line], nil
}

func (p *stubProvider) CreateRecord(_ context.Context, line engine.Line, ip string, ttl int) error {
	p.created[line] = append(p.created[line], ip)
	p.records[line] = append(p.records[line], dnssync.PublishedRecord{IP: ip, Line: line, TTL: ttl})
	return nil
}

func (p *stubProvider) DeleteRecord(_ context.Context, line engine.Line, ip string) error {
	p.deleted[line] = append(p.deleted[line], ip)
	kept := p.records[line][:0]
	for _, r := range p.records[line] {
		if r.IP != ip {
			kept = append(kept, r)
		}
	}
	p.records[line] = kept
	return nil
}

func (p *stubProvider) ops() int {
	n := 0
	for _, ips := range p.created {
		n += len(ips)
	}
	for _, ips := range p.deleted {
		n += len(ips)
	}
	return n
}

func testApplication(t *testing.T) *Application {
	t.Helper()
	cfg := config.DefaultAppConfig()
	cfg.Probe.Ranges = []config.IPRange{{Cidr: "104.27.0.0/24", End: 8}}

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(domain.Tables...))

	a := NewApplication(cfg)
	a.OverrideDB(db)
	return a
}

func ping(ip string, line engine.Line, latency float64) engine.Sample {
	return engine.Sample{
		IP: ip, Line: line, Kind: engine.MetricPing,
		LatencyMs: latency, Success: true,
	}
}

func TestRunRoundNow(t *testing.T) {
	a := testApplication(t)

	p := newStubProvider()
	p.records[engine.LineTelecom] = []dnssync.PublishedRecord{
		{IP: "1.0.0.9", Line: engine.LineTelecom, TTL: 600},
	}
	a.OverrideProvider(p)

	// One good candidate, one that misses the latency threshold, and the
	// stale published IP with no data this round.
	a.OverrideSource(stubSource{samples: []engine.Sample{
		ping("1.0.0.1", engine.LineTelecom, 20),
		ping("1.0.0.1", engine.LineTelecom, 22),
		ping("1.0.0.2", engine.LineTelecom, 500),
		ping("1.0.0.2", engine.LineTelecom, 510),
	}})

	report, err := a.RunRoundNow(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 8, report.Candidates)
	assert.Equal(t, 4, report.Samples)
	require.Len(t, report.Qualities, 2)
	require.Len(t, report.Lines, len(engine.Lines))

	var telecom LineOutcome
	for _, lo := range report.Lines {
		if lo.Line == engine.LineTelecom {
			telecom = lo
		} else {
			// Lines without qualified candidates are left untouched.
			assert.Equal(t, "no qualified candidates", lo.Skipped)
		}
	}
	assert.Equal(t, []string{"1.0.0.1"}, telecom.Desired)
	assert.Equal(t, 1, telecom.Added)
	assert.Equal(t, 1, telecom.Removed)
	assert.Empty(t, telecom.Failures)

	assert.Equal(t, []string{"1.0.0.1"}, p.created[engine.LineTelecom])
	assert.Equal(t, []string{"1.0.0.9"}, p.deleted[engine.LineTelecom])
	// The skipped lines never saw a DNS write.
	assert.Empty(t, p.created[engine.LineUnicom])
	assert.Empty(t, p.deleted[engine.LineDefault])

	assert.Equal(t, report, a.LastRound())

	// Per-line round rows and the telecom published snapshot are persisted.
	var results []domain.DnsRoundResult
	require.NoError(t, a.DB().Find(&results).Error)
	assert.Len(t, results, len(engine.Lines))

	var state domain.DnsPublishedState
	require.NoError(t, a.DB().Where("line = ?", "TELECOM").Take(&state).Error)
	assert.Equal(t, `["1.0.0.1"]`, state.Ips)
}

func TestRunRoundNowRecordsHistory(t *testing.T) {
	a := testApplication(t)
	a.OverrideProvider(newStubProvider())
	a.OverrideSource(stubSource{samples: []engine.Sample{
		ping("1.0.0.1", engine.LineTelecom, 20),
		ping("1.0.0.2", engine.LineTelecom, 500),
	}})

	_, err := a.RunRoundNow(context.Background())
	require.NoError(t, err)

	var rows []domain.DnsIPHistory
	require.NoError(t, a.DB().Order("ip").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Passed)
	// The failing pair is recorded too, feeding the bad-ip judgement.
	assert.False(t, rows[1].Passed)
	assert.Zero(t, rows[1].Score)
}

func TestRunRoundNowIdempotent(t *testing.T) {
	a := testApplication(t)
	p := newStubProvider()
	a.OverrideProvider(p)
	a.OverrideSource(stubSource{samples: []engine.Sample{
		ping("1.0.0.1", engine.LineTelecom, 20),
		ping("1.0.0.2", engine.LineTelecom, 30),
		ping("1.0.0.3", engine.LineUnicom, 25),
	}})

	first, err := a.RunRoundNow(context.Background())
	require.NoError(t, err)
	opsAfterFirst := p.ops()
	require.Greater(t, opsAfterFirst, 0)

	// Unchanged measurements against the state the first round published:
	// the second round touches nothing.
	second, err := a.RunRoundNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, opsAfterFirst, p.ops())

	for i, lo := range second.Lines {
		assert.Zero(t, lo.Added)
		assert.Zero(t, lo.Removed)
		assert.Equal(t, first.Lines[i].Desired, lo.Desired)
		if len(lo.Desired) > 0 {
			assert.Equal(t, len(lo.Desired), lo.Unchanged)
		}
	}
}

func TestRoundProbeConfigFromSettings(t *testing.T) {
	a := testApplication(t)
	assert.Equal(t, a.Config().Probe.MaxWorkers, a.roundProbeConfig().MaxWorkers)

	require.NoError(t, a.DB().Create(&domain.SysConfig{
		ID: 1, Type: "scheduler", Name: "max_workers", Value: "7",
	}).Error)
	assert.Equal(t, 7, a.roundProbeConfig().MaxWorkers)
}

func TestRunRoundNowCancelledContext(t *testing.T) {
	a := testApplication(t)
	p := newStubProvider()
	a.OverrideProvider(p)
	a.OverrideSource(stubSource{samples: []engine.Sample{
		ping("1.0.0.1", engine.LineTelecom, 20),
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.RunRoundNow(ctx)
	require.Error(t, err)
	// Cancellation between phases never leaves a half-written line.
	assert.Empty(t, p.created)
	assert.Empty(t, p.deleted)
}
