// Package probe supplies the evaluation engine with a closed set of
// measurement samples per round: candidate pool expansion, ICMP probing and
// HTTP timing collection from the local vantage point. Carrier-side
// measurement networks plug in through the Source interface.
package probe

import (
	"math/rand"
	"strings"

	"github.com/c-robinson/iplib"
	"github.com/pkg/errors"
	"github.com/talkincode/toughdns/config"
)

// BuildPool expands the configured address ranges into the round's candidate
// IP list, honoring the skip list and the configured sampling size/rate.
// The returned order is shuffled so repeated partial rounds do not always
// probe the same prefix first.
func BuildPool(cfg config.ProbeConfig) ([]string, error) {
	skip := make(map[string]bool, len(cfg.SkipIps))
	for _, ip := range cfg.SkipIps {
		skip[ip] = true
	}

	var pool []string
	for _, r := range cfg.Ranges {
		ips, err := expandRange(r)
		if err != nil {
			return nil, err
		}
		for _, ip := range ips {
			if !skip[ip] {
				pool = append(pool, ip)
			}
		}
	}

	if len(pool) == 0 {
		return nil, errors.New("address ranges produced no candidate IPs")
	}

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	size := cfg.SampleSize
	if size == 0 && cfg.SampleRate > 0 {
		size = int(float64(len(pool)) * cfg.SampleRate)
		if size < 1 {
			size = 1
		}
	}
	if size > 0 && size < len(pool) {
		pool = pool[:size]
	}
	return pool, nil
}

func expandRange(r config.IPRange) ([]string, error) {
	cidr := r.Cidr
	if !strings.Contains(cidr, "/") {
		// Bare prefixes like "104.27.0" mean the enclosing /24.
		parts := strings.Split(cidr, ".")
		switch len(parts) {
		case 3:
			cidr = cidr + ".0/24"
		case 2:
			cidr = cidr + ".0.0/16"
		default:
			return nil, errors.Errorf("unsupported address range %q", r.Cidr)
		}
	}

	n := iplib.Net4FromStr(cidr)
	if n.IP() == nil {
		return nil, errors.Errorf("invalid address range %q", r.Cidr)
	}

	addrs := n.Enumerate(0, 0)
	start, end := r.Start, r.End
	if end <= 0 || end > len(addrs) {
		end = len(addrs)
	}
	if start < 0 {
		start = 0
	}
	if start >= end {
		return nil, errors.Errorf("address range %q start/end window is empty", r.Cidr)
	}

	out := make([]string, 0, end-start)
	for _, ip := range addrs[start:end] {
		out = append(out, ip.String())
	}
	return out, nil
}
