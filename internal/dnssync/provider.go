// Package dnssync converges published DNS records onto the per-line desired
// sets produced by the selector, through a pluggable provider client.
package dnssync

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/talkincode/toughdns/config"
	"github.com/talkincode/toughdns/internal/engine"
)

// ErrProviderOperationFailed marks a single failed create/delete call.
// Remaining operations for the line are still attempted.
var ErrProviderOperationFailed = errors.New("dns provider operation failed")

// PublishedRecord is one live DNS record for a line as reported by the
// provider.
type PublishedRecord struct {
	IP   string
	Line engine.Line
	TTL  int
}

// Provider is the external DNS provider client. Each call may fail
// independently; the reconciler decides what to request and tolerates
// reported failure, it does not retry.
type Provider interface {
	ListRecords(ctx context.Context, line engine.Line) ([]PublishedRecord, error)
	CreateRecord(ctx context.Context, line engine.Line, ip string, ttl int) error
	DeleteRecord(ctx context.Context, line engine.Line, ip string) error
}

// NewProvider constructs the provider client named by dns.provider. Unknown
// provider names fail here, at startup, not on the first round.
func NewProvider(cfg config.DNSConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "dnspod":
		return NewDNSPodProvider(cfg), nil
	default:
		return nil, errors.Errorf("unsupported dns provider %q", cfg.Provider)
	}
}

// RecordLines maps canonical line names onto the record line labels DNS
// providers in this region expect.
var RecordLines = map[engine.Line]string{
	engine.LineTelecom:  "电信",
	engine.LineUnicom:   "联通",
	engine.LineMobile:   "移动",
	engine.LineOverseas: "境外",
	engine.LineDefault:  "默认",
}
