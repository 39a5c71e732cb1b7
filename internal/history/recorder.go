// Package history maintains the rolling per-(ip, line) quality store and the
// bad-IP judgement derived from it.
package history

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/toughdns/config"
	"github.com/talkincode/toughdns/internal/domain"
	"github.com/talkincode/toughdns/internal/engine"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrHistoryUnavailable marks a rolling-store read/write failure. The
// affected (ip, line) pair degrades to current-score-only blending; the
// round is never aborted for it.
var ErrHistoryUnavailable = errors.New("history store unavailable")

const dayLayout = "2006-01-02"

// Recorder owns all access to the rolling history store. Concurrent rounds
// are not supported; callers serialize rounds externally.
type Recorder struct {
	db  *gorm.DB
	cfg config.HistoryConfig
}

func NewRecorder(db *gorm.DB, cfg config.HistoryConfig) *Recorder {
	return &Recorder{db: db, cfg: cfg}
}

// Record appends today's entry for the quality record's (ip, line) pair.
// Re-recording within the same day replaces the existing row, so reruns of
// a round are idempotent per day.
func (r *Recorder) Record(ctx context.Context, q engine.IPQuality) error {
	entry := domain.DnsIPHistory{
		IP:     q.IP,
		Line:   string(q.Line),
		Day:    q.Round.Format(dayLayout),
		Score:  q.CompositeScore,
		Passed: q.HardFilterPassed,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ip"}, {Name: "line"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "passed", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return errors.Wrapf(ErrHistoryUnavailable, "record %s/%s: %v", q.IP, q.Line, err)
	}
	return nil
}

// Prune removes entries older than the configured window. Called once per
// round before blending.
func (r *Recorder) Prune(ctx context.Context, now time.Time) error {
	cutoff := r.cutoff(now)
	err := r.db.WithContext(ctx).
		Where("day < ?", cutoff).
		Delete(&domain.DnsIPHistory{}).Error
	if err != nil {
		return errors.Wrapf(ErrHistoryUnavailable, "prune before %s: %v", cutoff, err)
	}
	return nil
}

// Blend combines the current round's composite score with the rolling
// average of retained history. With no usable history (none recorded yet, or
// the store read failed) the blended score degrades to the current score.
func (r *Recorder) Blend(ctx context.Context, ip string, line engine.Line, current float64, now time.Time) engine.BlendedScore {
	blended := engine.BlendedScore{IP: ip, Line: line, Value: current}

	var row struct {
		Avg   float64
		Total int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.DnsIPHistory{}).
		Select("AVG(score) AS avg, COUNT(*) AS total").
		Where("ip = ? AND line = ? AND day >= ?", ip, string(line), r.cutoff(now)).
		Scan(&row).Error
	if err != nil {
		zap.L().Warn("history read failed, blending with current score only",
			zap.String("ip", ip), zap.String("line", string(line)), zap.Error(err))
		return blended
	}
	if row.Total == 0 {
		return blended
	}

	hw := r.cfg.HistoryWeight
	blended.Value = engine.Clamp01((1-hw)*current + hw*row.Avg)
	return blended
}

// IsBad reports whether the pair has accumulated enough failing samples in
// the retained window to be evicted regardless of its current score.
// A store read failure returns false; an unreadable history never blocks
// an otherwise qualified candidate.
func (r *Recorder) IsBad(ctx context.Context, ip string, line engine.Line, now time.Time) bool {
	var row struct {
		Failed int64
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.DnsIPHistory{}).
		Select("SUM(CASE WHEN passed THEN 0 ELSE 1 END) AS failed, COUNT(*) AS total").
		Where("ip = ? AND line = ? AND day >= ?", ip, string(line), r.cutoff(now)).
		Scan(&row).Error
	if err != nil {
		zap.L().Warn("history read failed, skipping bad-ip check",
			zap.String("ip", ip), zap.String("line", string(line)), zap.Error(err))
		return false
	}
	if row.Total == 0 || row.Failed < int64(r.cfg.MinTestsForBadIP) {
		return false
	}
	return float64(row.Failed)/float64(row.Total) >= r.cfg.BadIPThreshold
}

func (r *Recorder) cutoff(now time.Time) string {
	return now.AddDate(0, 0, -r.cfg.MaxHistoryDays).Format(dayLayout)
}
