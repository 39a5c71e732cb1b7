package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/toughdns/config"
	"github.com/talkincode/toughdns/internal/domain"
	"github.com/talkincode/toughdns/internal/engine"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testRecorder(t *testing.T) *Recorder {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.DnsIPHistory{}))
	return NewRecorder(db, config.HistoryConfig{
		MaxHistoryDays:   30,
		HistoryWeight:    0.3,
		MinTestsForBadIP: 5,
		BadIPThreshold:   0.8,
	})
}

func quality(ip string, line engine.Line, score float64, passed bool, round time.Time) engine.IPQuality {
	return engine.IPQuality{
		IP: ip, Line: line, CompositeScore: score,
		HardFilterPassed: passed, Round: round,
	}
}

func TestRecordIdempotentPerDay(t *testing.T) {
	r := testRecorder(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)

	require.NoError(t, r.Record(ctx, quality("1.0.0.1", engine.LineTelecom, 0.5, true, day)))
	// A rerun the same day replaces the row instead of stacking a duplicate.
	require.NoError(t, r.Record(ctx, quality("1.0.0.1", engine.LineTelecom, 0.9, false, day.Add(2*time.Hour))))

	var rows []domain.DnsIPHistory
	require.NoError(t, r.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-08-20", rows[0].Day)
	assert.Equal(t, 0.9, rows[0].Score)
	assert.False(t, rows[0].Passed)

	// Same ip on a different line is an independent row.
	require.NoError(t, r.Record(ctx, quality("1.0.0.1", engine.LineUnicom, 0.7, true, day)))
	require.NoError(t, r.db.Find(&rows).Error)
	assert.Len(t, rows, 2)
}

func TestPruneWindow(t *testing.T) {
	r := testRecorder(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.Record(ctx, quality("1.0.0.1", engine.LineTelecom, 0.5, true, now)))
	require.NoError(t, r.Record(ctx, quality("1.0.0.1", engine.LineTelecom, 0.5, true, now.AddDate(0, 0, -29))))
	require.NoError(t, r.Record(ctx, quality("1.0.0.1", engine.LineTelecom, 0.5, true, now.AddDate(0, 0, -31))))
	require.NoError(t, r.Record(ctx, quality("1.0.0.1", engine.LineTelecom, 0.5, true, now.AddDate(0, 0, -60))))

	require.NoError(t, r.Prune(ctx, now))

	var days []string
	require.NoError(t, r.db.Model(&domain.DnsIPHistory{}).Order("day").Pluck("day", &days).Error)
	assert.Equal(t, []string{"2026-07-31", "2026-08-29"}, days)
}

func TestBlendWithHistory(t *testing.T) {
	r := testRecorder(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.Record(ctx, quality("1.0.0.1", engine.LineTelecom, 0.6, true, now.AddDate(0, 0, -2))))
	require.NoError(t, r.Record(ctx, quality("1.0.0.1", engine.LineTelecom, 0.8, true, now.AddDate(0, 0, -1))))

	b := r.Blend(ctx, "1.0.0.1", engine.LineTelecom, 0.9, now)
	// 0.7 * 0.9 current + 0.3 * 0.7 historical average.
	assert.InDelta(t, 0.84, b.Value, 1e-9)
	assert.Equal(t, "1.0.0.1", b.IP)
	assert.Equal(t, engine.LineTelecom, b.Line)
}

func TestBlendWithoutHistoryDegradesToCurrent(t *testing.T) {
	r := testRecorder(t)
	b := r.Blend(context.Background(), "1.0.0.1", engine.LineTelecom, 0.9, time.Now())
	assert.Equal(t, 0.9, b.Value)
}

func TestBlendIgnoresEntriesOutsideWindow(t *testing.T) {
	r := testRecorder(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	// Entry old enough to fall outside the 30-day window even if a prune
	// has not run yet.
	require.NoError(t, r.Record(ctx, quality("1.0.0.1", engine.LineTelecom, 0.1, false, now.AddDate(0, 0, -45))))

	b := r.Blend(ctx, "1.0.0.1", engine.LineTelecom, 0.9, now)
	assert.Equal(t, 0.9, b.Value)
}

func TestIsBad(t *testing.T) {
	r := testRecorder(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	// 6 entries, all failing: count and rate both over the limits.
	for i := 1; i <= 6; i++ {
		require.NoError(t, r.Record(ctx, quality("1.0.0.1", engine.LineTelecom, 0.1, false, now.AddDate(0, 0, -i))))
	}
	assert.True(t, r.IsBad(ctx, "1.0.0.1", engine.LineTelecom, now))

	// 4 failures out of 4: rate is 100% but below the minimum test count.
	for i := 1; i <= 4; i++ {
		require.NoError(t, r.Record(ctx, quality("1.0.0.2", engine.LineTelecom, 0.1, false, now.AddDate(0, 0, -i))))
	}
	assert.False(t, r.IsBad(ctx, "1.0.0.2", engine.LineTelecom, now))

	// 5 failures out of 10: enough tests but only a 50% fail rate.
	for i := 1; i <= 10; i++ {
		require.NoError(t, r.Record(ctx, quality("1.0.0.3", engine.LineTelecom, 0.5, i > 5, now.AddDate(0, 0, -i))))
	}
	assert.False(t, r.IsBad(ctx, "1.0.0.3", engine.LineTelecom, now))

	// No history at all is never bad.
	assert.False(t, r.IsBad(ctx, "1.0.0.9", engine.LineTelecom, now))
}

func TestIsBadScopedToLine(t *testing.T) {
	r := testRecorder(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 6; i++ {
		require.NoError(t, r.Record(ctx, quality("1.0.0.1", engine.LineTelecom, 0.1, false, now.AddDate(0, 0, -i))))
	}
	assert.True(t, r.IsBad(ctx, "1.0.0.1", engine.LineTelecom, now))
	assert.False(t, r.IsBad(ctx, "1.0.0.1", engine.LineUnicom, now))
}
