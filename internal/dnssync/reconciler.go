package dnssync

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/talkincode/toughdns/internal/engine"
	"go.uber.org/zap"
)

// Diff is the minimal operation set to converge one line. Update holds IPs
// whose record exists but carries a stale TTL; they are republished as a
// delete followed by a create.
type Diff struct {
	Add       []string
	Update    []string
	Remove    []string
	Unchanged []string
}

// Empty reports whether the line is already converged.
func (d Diff) Empty() bool {
	return len(d.Add) == 0 && len(d.Update) == 0 && len(d.Remove) == 0
}

// OpFailure records one rejected provider operation.
type OpFailure struct {
	Op  string // "create" | "delete"
	IP  string
	Err error
}

// Outcome summarizes one line's reconciliation for reporting/alerting.
type Outcome struct {
	Line      engine.Line
	Diff      Diff
	Added     int
	Removed   int
	Unchanged int
	Failures  []OpFailure
}

// Failed reports whether op on ip was rejected by the provider.
func (o Outcome) Failed(op, ip string) bool {
	for _, f := range o.Failures {
		if f.Op == op && f.IP == ip {
			return true
		}
	}
	return false
}

// ComputeDiff diffs the desired IP list against the published records for a
// line. A record is unchanged only when both IP and TTL already match.
// Re-running against a converged state yields an empty diff.
func ComputeDiff(desired []string, published []PublishedRecord, ttl int) Diff {
	var d Diff
	want := make(map[string]bool, len(desired))
	for _, ip := range desired {
		want[ip] = true
	}

	have := make(map[string]int, len(published))
	for _, rec := range published {
		have[rec.IP] = rec.TTL
	}

	for _, ip := range desired {
		recTTL, ok := have[ip]
		switch {
		case !ok:
			d.Add = append(d.Add, ip)
		case recTTL != ttl:
			d.Update = append(d.Update, ip)
		default:
			d.Unchanged = append(d.Unchanged, ip)
		}
	}
	for _, rec := range published {
		if !want[rec.IP] {
			d.Remove = append(d.Remove, rec.IP)
		}
	}
	sort.Strings(d.Remove)
	return d
}

// Reconciler applies diffs through the provider, one line at a time.
type Reconciler struct {
	provider Provider
	ttl      int
}

func NewReconciler(provider Provider, ttl int) *Reconciler {
	return &Reconciler{provider: provider, ttl: ttl}
}

// Reconcile converges a single line onto the desired IP list. A rejected
// operation is recorded and the remaining operations are still attempted;
// nothing is rolled back and no other line is touched.
func (r *Reconciler) Reconcile(ctx context.Context, line engine.Line, desired []string, published []PublishedRecord) Outcome {
	diff := ComputeDiff(desired, published, r.ttl)
	out := Outcome{Line: line, Diff: diff, Unchanged: len(diff.Unchanged)}

	if diff.Empty() {
		zap.L().Debug("line already converged", zap.String("line", string(line)))
		return out
	}

	for _, ip := range diff.Remove {
		if err := r.provider.DeleteRecord(ctx, line, ip); err != nil {
			out.Failures = append(out.Failures, OpFailure{Op: "delete", IP: ip,
				Err: errors.Wrapf(ErrProviderOperationFailed, "delete %s on %s: %v", ip, line, err)})
			continue
		}
		out.Removed++
	}

	for _, ip := range diff.Update {
		if err := r.provider.DeleteRecord(ctx, line, ip); err != nil {
			out.Failures = append(out.Failures, OpFailure{Op: "delete", IP: ip,
				Err: errors.Wrapf(ErrProviderOperationFailed, "delete %s on %s: %v", ip, line, err)})
			continue
		}
		out.Removed++
		if err := r.provider.CreateRecord(ctx, line, ip, r.ttl); err != nil {
			out.Failures = append(out.Failures, OpFailure{Op: "create", IP: ip,
				Err: errors.Wrapf(ErrProviderOperationFailed, "create %s on %s: %v", ip, line, err)})
			continue
		}
		out.Added++
	}

	for _, ip := range diff.Add {
		if err := r.provider.CreateRecord(ctx, line, ip, r.ttl); err != nil {
			out.Failures = append(out.Failures, OpFailure{Op: "create", IP: ip,
				Err: errors.Wrapf(ErrProviderOperationFailed, "create %s on %s: %v", ip, line, err)})
			continue
		}
		out.Added++
	}

	zap.L().Info("line reconciled",
		zap.String("line", string(line)),
		zap.Int("added", out.Added),
		zap.Int("removed", out.Removed),
		zap.Int("unchanged", out.Unchanged),
		zap.Int("failures", len(out.Failures)))
	return out
}
