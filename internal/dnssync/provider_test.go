package dnssync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/toughdns/config"
)

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.DNSConfig{Provider: "dnspod"})
	require.NoError(t, err)
	assert.IsType(t, &DNSPodProvider{}, p)

	// Case-insensitive, and an unset knob falls back to dnspod.
	_, err = NewProvider(config.DNSConfig{Provider: "DNSPod"})
	assert.NoError(t, err)
	_, err = NewProvider(config.DNSConfig{})
	assert.NoError(t, err)

	_, err = NewProvider(config.DNSConfig{Provider: "route53"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route53")
}
