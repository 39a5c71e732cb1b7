package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/toughdns/config"
)

func TestBuildPoolExpandsCIDR(t *testing.T) {
	pool, err := BuildPool(config.ProbeConfig{
		Ranges: []config.IPRange{{Cidr: "104.27.0.0/24"}},
	})
	require.NoError(t, err)
	assert.Len(t, pool, 254)
	assert.Contains(t, pool, "104.27.0.1")
	assert.Contains(t, pool, "104.27.0.254")
}

func TestBuildPoolBarePrefix(t *testing.T) {
	// Three octets mean the enclosing /24.
	pool, err := BuildPool(config.ProbeConfig{
		Ranges: []config.IPRange{{Cidr: "104.27.1"}},
	})
	require.NoError(t, err)
	assert.Len(t, pool, 254)
	assert.Contains(t, pool, "104.27.1.100")
}

func TestBuildPoolStartEndWindow(t *testing.T) {
	pool, err := BuildPool(config.ProbeConfig{
		Ranges: []config.IPRange{{Cidr: "104.27.0.0/24", Start: 0, End: 10}},
	})
	require.NoError(t, err)
	assert.Len(t, pool, 10)
	for _, ip := range pool {
		assert.NotContains(t, ip, "104.27.0.200")
	}
}

func TestBuildPoolSkipList(t *testing.T) {
	pool, err := BuildPool(config.ProbeConfig{
		Ranges:  []config.IPRange{{Cidr: "104.27.0.0/24"}},
		SkipIps: []string{"104.27.0.1", "104.27.0.2"},
	})
	require.NoError(t, err)
	assert.Len(t, pool, 252)
	assert.NotContains(t, pool, "104.27.0.1")
	assert.NotContains(t, pool, "104.27.0.2")
}

func TestBuildPoolSampleSize(t *testing.T) {
	pool, err := BuildPool(config.ProbeConfig{
		Ranges:     []config.IPRange{{Cidr: "104.27.0.0/24"}},
		SampleSize: 16,
	})
	require.NoError(t, err)
	assert.Len(t, pool, 16)
}

func TestBuildPoolSampleRate(t *testing.T) {
	pool, err := BuildPool(config.ProbeConfig{
		Ranges:     []config.IPRange{{Cidr: "104.27.0.0/24"}},
		SampleRate: 0.5,
	})
	require.NoError(t, err)
	assert.Len(t, pool, 127)

	// A tiny rate still probes at least one candidate.
	pool, err = BuildPool(config.ProbeConfig{
		Ranges:     []config.IPRange{{Cidr: "104.27.0.0/24"}},
		SampleRate: 0.0001,
	})
	require.NoError(t, err)
	assert.Len(t, pool, 1)
}

func TestBuildPoolMergesRanges(t *testing.T) {
	pool, err := BuildPool(config.ProbeConfig{
		Ranges: []config.IPRange{
			{Cidr: "104.27.0.0/24"},
			{Cidr: "172.64.32.0/24"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, pool, 508)
}

func TestBuildPoolErrors(t *testing.T) {
	_, err := BuildPool(config.ProbeConfig{})
	assert.Error(t, err)

	_, err = BuildPool(config.ProbeConfig{
		Ranges: []config.IPRange{{Cidr: "not-an-address"}},
	})
	assert.Error(t, err)

	_, err = BuildPool(config.ProbeConfig{
		Ranges: []config.IPRange{{Cidr: "104.27.0.0/24", Start: 20, End: 10}},
	})
	assert.Error(t, err)
}
