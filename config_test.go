package radiostream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sdrkit/radiostream/rtp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultDataPort, cfg.Port)
	assert.Equal(t, rtp.DefaultWindowSize, cfg.WindowSize)
	assert.Equal(t, rtp.DefaultResequenceTimeout, cfg.ResequenceTimeout)
	assert.Equal(t, DefaultMaxPacketGap, cfg.MaxPacketGap)
	assert.Equal(t, DefaultResyncThreshold, cfg.ResyncThreshold)
	assert.Equal(t, DefaultPollTimeout, cfg.PollTimeout)
	assert.False(t, cfg.PassAllPackets)
}

func TestConfigPollTimeoutClamped(t *testing.T) {
	cfg := Config{PollTimeout: time.Second}.withDefaults()
	assert.Equal(t, MaxPollTimeout, cfg.PollTimeout, "poll timeout is capped so stop stays responsive")

	cfg = Config{}.withDefaults()
	assert.Equal(t, DefaultPollTimeout, cfg.PollTimeout)
}

func TestConfigValidate(t *testing.T) {
	valid := Config{
		MulticastAddress: "239.1.2.3",
		Port:             5004,
		SamplesPerPacket: 240,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty address", func(c *Config) { c.MulticastAddress = "" }},
		{"not an address", func(c *Config) { c.MulticastAddress = "radiod.local" }},
		{"unicast address", func(c *Config) { c.MulticastAddress = "10.0.0.1" }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"negative port", func(c *Config) { c.Port = -1 }},
		{"no samples per packet", func(c *Config) { c.SamplesPerPacket = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
