package radiostream

import (
	"fmt"
	"net"
	"time"

	"github.com/sdrkit/radiostream/rtp"
)

// Defaults for the stream and recorder configuration.
const (
	// DefaultMaxPacketGap is the largest arrival-side sequence jump
	// tolerated before it counts as a sequence error.
	DefaultMaxPacketGap = 10
	// DefaultResyncThreshold is the number of strictly consecutive
	// packets required to leave Resync.
	DefaultResyncThreshold = 5
	// DefaultPollTimeout bounds each socket read so stop requests are
	// observed promptly.
	DefaultPollTimeout = 100 * time.Millisecond
	// MaxPollTimeout is the upper bound on the poll timeout; larger
	// values would delay shutdown observability.
	MaxPollTimeout = 200 * time.Millisecond
	// DefaultDataPort is the port radiod-style daemons send channel
	// data to.
	DefaultDataPort = 5004
)

// Config configures a channel Stream.
type Config struct {
	// MulticastAddress is the IPv4 multicast group carrying the
	// channel's RTP data.
	MulticastAddress string
	// Port is the UDP port of the data stream. Defaults to
	// DefaultDataPort.
	Port int
	// Interface optionally names the network interface used for the
	// multicast join; empty lets the OS choose.
	Interface string

	// SSRC identifies the channel on the shared multicast group.
	// Packets with any other SSRC are dropped silently.
	SSRC uint32
	// SamplesPerPacket is the per-packet sample count, derived from the
	// channel's payload size and encoding.
	SamplesPerPacket int

	// WindowSize is the resequencer window in packets (power of two).
	// Defaults to rtp.DefaultWindowSize.
	WindowSize int
	// ResequenceTimeout bounds how long the resequencer waits for
	// missing packets. Defaults to rtp.DefaultResequenceTimeout.
	ResequenceTimeout time.Duration

	// MaxPacketGap is the arrival-side gap tolerance in packets.
	// Defaults to DefaultMaxPacketGap.
	MaxPacketGap int
	// ResyncThreshold is the consecutive-packet count that ends a
	// Resync. Defaults to DefaultResyncThreshold.
	ResyncThreshold int
	// PassAllPackets disables the gap-triggered Resync logic and
	// delivers every validated packet; for applications that run their
	// own external resequencer. Metrics still update.
	PassAllPackets bool

	// PollTimeout is the socket read deadline per loop iteration.
	// Defaults to DefaultPollTimeout, capped at MaxPollTimeout.
	PollTimeout time.Duration
}

// DefaultConfig returns a Config with all tunables at their defaults.
// MulticastAddress, SSRC and SamplesPerPacket must still be set by the
// caller.
func DefaultConfig() Config {
	return Config{
		Port:              DefaultDataPort,
		WindowSize:        rtp.DefaultWindowSize,
		ResequenceTimeout: rtp.DefaultResequenceTimeout,
		MaxPacketGap:      DefaultMaxPacketGap,
		ResyncThreshold:   DefaultResyncThreshold,
		PollTimeout:       DefaultPollTimeout,
	}
}

// withDefaults fills zero values and clamps the poll timeout.
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultDataPort
	}
	if c.WindowSize == 0 {
		c.WindowSize = rtp.DefaultWindowSize
	}
	if c.ResequenceTimeout == 0 {
		c.ResequenceTimeout = rtp.DefaultResequenceTimeout
	}
	if c.MaxPacketGap == 0 {
		c.MaxPacketGap = DefaultMaxPacketGap
	}
	if c.ResyncThreshold == 0 {
		c.ResyncThreshold = DefaultResyncThreshold
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.PollTimeout > MaxPollTimeout {
		c.PollTimeout = MaxPollTimeout
	}
	return c
}

// Validate checks the fields the defaults cannot supply.
func (c Config) Validate() error {
	ip := net.ParseIP(c.MulticastAddress)
	if ip == nil {
		return fmt.Errorf("invalid multicast address %q", c.MulticastAddress)
	}
	if !ip.IsMulticast() {
		return fmt.Errorf("address %q is not a multicast group", c.MulticastAddress)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SamplesPerPacket <= 0 {
		return fmt.Errorf("samples per packet must be positive, got %d", c.SamplesPerPacket)
	}
	return nil
}
