package app

import (
	"context"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/talkincode/toughdns/config"
	"github.com/talkincode/toughdns/internal/dnssync"
	"github.com/talkincode/toughdns/internal/domain"
	"github.com/talkincode/toughdns/internal/engine"
	"github.com/talkincode/toughdns/internal/probe"
	"github.com/talkincode/toughdns/internal/selector"
	"github.com/talkincode/toughdns/pkg/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LineOutcome is the per-line result of one evaluation round.
type LineOutcome struct {
	Line      engine.Line          `json:"line"`
	Desired   []string             `json:"desired"`
	Scores    []selector.Candidate `json:"scores"`
	Added     int                  `json:"added"`
	Removed   int                  `json:"removed"`
	Unchanged int                  `json:"unchanged"`
	Failures  []string             `json:"failures,omitempty"`
	// Skipped carries the reason DNS was left untouched for this line.
	Skipped string `json:"skipped,omitempty"`
}

// RoundReport is the full outcome of one evaluation round.
type RoundReport struct {
	RoundTs    time.Time          `json:"round_ts"`
	Duration   time.Duration      `json:"duration"`
	Candidates int                `json:"candidates"`
	Samples    int                `json:"samples"`
	Qualities  []engine.IPQuality `json:"qualities"`
	Lines      []LineOutcome      `json:"lines"`
}

func engineLines() []engine.Line {
	return engine.Lines
}

// roundProbeConfig layers the runtime-tunable settings over the static probe
// configuration for one round.
func (a *Application) roundProbeConfig() config.ProbeConfig {
	pc := a.appConfig.Probe
	if a.configManager != nil {
		if w := a.configManager.GetInt("scheduler", "max_workers"); w > 0 {
			pc.MaxWorkers = w
		}
	}
	return pc
}

// RunRoundNow executes one complete evaluation round: probe, score, blend,
// select, reconcile. Rounds are serialized; overlapping invocations wait.
// All (ip, line) pairs are scored before any selection, and every line's
// desired set exists before any DNS write is issued.
func (a *Application) RunRoundNow(ctx context.Context) (*RoundReport, error) {
	a.roundMu.Lock()
	defer a.roundMu.Unlock()

	started := time.Now()
	cfg := a.appConfig
	probeCfg := a.roundProbeConfig()

	pool, err := probe.BuildPool(probeCfg)
	if err != nil {
		return nil, errors.Wrap(err, "build candidate pool")
	}
	zap.L().Info("round started", zap.Int("candidates", len(pool)))

	src := a.source
	if src == nil {
		src = a.buildSource(probeCfg)
	}
	samples, err := src.Collect(ctx, pool)
	if err != nil {
		return nil, errors.Wrap(err, "collect samples")
	}

	report := &RoundReport{
		RoundTs:    started,
		Candidates: len(pool),
		Samples:    len(samples),
	}

	// Scoring phase: every (ip, line) pair is scored before any selection.
	aggs := engine.Summarize(samples)
	report.Qualities = engine.AggregateAll(aggs, cfg.Evaluation, started)

	if err := a.recorder.Prune(ctx, started); err != nil {
		zap.L().Warn("history prune failed", zap.Error(err))
	}
	for _, q := range report.Qualities {
		if err := a.recorder.Record(ctx, q); err != nil {
			zap.L().Warn("history record failed",
				zap.String("ip", q.IP), zap.String("line", string(q.Line)), zap.Error(err))
		}
	}

	candidates := a.blendCandidates(ctx, report.Qualities, started)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Read phase: current DNS state per line, before any decision.
	published := make(map[engine.Line][]dnssync.PublishedRecord)
	listErr := make(map[engine.Line]error)
	for _, line := range engineLines() {
		recs, err := a.provider.ListRecords(ctx, line)
		if err != nil {
			listErr[line] = err
			zap.L().Error("list records failed", zap.String("line", string(line)), zap.Error(err))
			continue
		}
		published[line] = recs
	}

	// Selection phase: every line's desired set exists before any write.
	desired := make(map[engine.Line][]selector.Candidate)
	for _, line := range engineLines() {
		if listErr[line] != nil {
			continue
		}
		incumbents := make([]string, 0, len(published[line]))
		for _, rec := range published[line] {
			incumbents = append(incumbents, rec.IP)
		}
		desired[line] = selector.Select(line, candidates[line], incumbents,
			cfg.Selection.MaxRecordsPerLine.For(string(line)), cfg.Selection.StabilityMargin)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Reconcile phase: lines fail independently, none falls back to empty.
	reconciler := dnssync.NewReconciler(a.provider, cfg.DNS.TTL)
	for _, line := range engineLines() {
		outcome := a.reconcileLine(ctx, reconciler, line, desired[line], published[line], listErr[line])
		report.Lines = append(report.Lines, outcome)
	}

	report.Duration = time.Since(started)
	a.setLastRound(report)
	a.saveRoundResults(report)
	a.exportRoundMetrics(report)

	zap.L().Info("round finished",
		zap.Int("candidates", report.Candidates),
		zap.Int("samples", report.Samples),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// blendCandidates folds history into the round scores and groups the
// resulting candidates per line.
func (a *Application) blendCandidates(ctx context.Context, qualities []engine.IPQuality, now time.Time) map[engine.Line][]selector.Candidate {
	out := make(map[engine.Line][]selector.Candidate)
	for _, q := range qualities {
		cand := selector.Candidate{
			IP:               q.IP,
			MeanLatencyMs:    q.MeanLatencyMs,
			HardFilterPassed: q.HardFilterPassed,
		}
		if q.HardFilterPassed {
			cand.Score = a.recorder.Blend(ctx, q.IP, q.Line, q.CompositeScore, now).Value
			cand.Bad = a.recorder.IsBad(ctx, q.IP, q.Line, now)
		}
		out[q.Line] = append(out[q.Line], cand)
	}
	return out
}

func (a *Application) reconcileLine(ctx context.Context, reconciler *dnssync.Reconciler,
	line engine.Line, kept []selector.Candidate, published []dnssync.PublishedRecord, listErr error) LineOutcome {

	out := LineOutcome{Line: line, Scores: kept}
	for _, c := range kept {
		out.Desired = append(out.Desired, c.IP)
	}

	switch {
	case listErr != nil:
		out.Skipped = "dns state unavailable: " + listErr.Error()
		return out
	case len(out.Desired) == 0:
		// Never publish an empty set; leave the line untouched.
		out.Skipped = "no qualified candidates"
		zap.L().Warn("line skipped, no qualified candidates", zap.String("line", string(line)))
		return out
	}

	rec := reconciler.Reconcile(ctx, line, out.Desired, published)
	out.Added = rec.Added
	out.Removed = rec.Removed
	out.Unchanged = rec.Unchanged
	for _, f := range rec.Failures {
		out.Failures = append(out.Failures, f.Err.Error())
	}

	a.savePublishedState(line, published, rec)
	return out
}

// savePublishedState folds the reconcile outcome into the per-line snapshot
// of what the system believes is now live.
func (a *Application) savePublishedState(line engine.Line, published []dnssync.PublishedRecord, rec dnssync.Outcome) {
	live := make(map[string]bool, len(published))
	for _, r := range published {
		live[r.IP] = true
	}
	for _, ip := range rec.Diff.Remove {
		if !rec.Failed("delete", ip) {
			delete(live, ip)
		}
	}
	for _, ip := range rec.Diff.Update {
		if rec.Failed("delete", ip) || rec.Failed("create", ip) {
			delete(live, ip)
		}
	}
	for _, ip := range rec.Diff.Add {
		if !rec.Failed("create", ip) {
			live[ip] = true
		}
	}

	ips := make([]string, 0, len(live))
	for ip := range live {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	data, err := json.MarshalToString(ips)
	if err != nil {
		zap.L().Error("marshal published state failed", zap.Error(err))
		return
	}
	state := domain.DnsPublishedState{Line: string(line), Ips: data, UpdatedAt: time.Now()}
	err = a.gormDB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "line"}},
		DoUpdates: clause.AssignmentColumns([]string{"ips", "updated_at"}),
	}).Create(&state).Error
	if err != nil {
		zap.L().Error("save published state failed", zap.String("line", string(line)), zap.Error(err))
	}
}

func (a *Application) saveRoundResults(report *RoundReport) {
	for _, lo := range report.Lines {
		ips, _ := json.MarshalToString(lo.Desired)
		scores, _ := json.MarshalToString(lo.Scores)
		row := domain.DnsRoundResult{
			RoundTs:   report.RoundTs,
			Line:      string(lo.Line),
			Ips:       ips,
			Scores:    scores,
			Added:     lo.Added,
			Removed:   lo.Removed,
			Unchanged: lo.Unchanged,
			Failures:  len(lo.Failures),
		}
		if err := a.gormDB.Create(&row).Error; err != nil {
			zap.L().Error("save round result failed",
				zap.String("line", string(lo.Line)), zap.Error(err))
		}
	}
}

func (a *Application) exportRoundMetrics(report *RoundReport) {
	metrics.SetGauge("round_duration_ms", report.Duration.Milliseconds())
	metrics.SetGauge("round_candidates", int64(report.Candidates))
	metrics.SetGauge("round_samples", int64(report.Samples))
	for _, lo := range report.Lines {
		labels := map[string]string{"line": string(lo.Line)}
		metrics.AddCounter("records_added", labels, int64(lo.Added))
		metrics.AddCounter("records_removed", labels, int64(lo.Removed))
		metrics.AddCounter("reconcile_failures", labels, int64(len(lo.Failures)))
	}
}
