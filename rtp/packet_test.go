package rtp

import (
	"testing"

	pionrtp "github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshalPacket(t *testing.T, seq uint16, ts, ssrc uint32, payload []byte) []byte {
	t.Helper()
	pkt := &pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        2,
			PayloadType:    97,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	data, err := pkt.Marshal()
	require.NoError(t, err)
	return data
}

func TestParsePacketRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	data := marshalPacket(t, 1234, 567890, 0xDEADBEEF, payload)

	pkt := ParsePacket(data)
	require.NotNil(t, pkt)
	assert.Equal(t, uint16(1234), pkt.SequenceNumber)
	assert.Equal(t, uint32(567890), pkt.Timestamp)
	assert.Equal(t, uint32(0xDEADBEEF), pkt.SSRC)
	assert.Equal(t, uint8(97), pkt.PayloadType)
	assert.Equal(t, payload, pkt.Payload)
}

func TestParsePacketRejectsShortData(t *testing.T) {
	assert.Nil(t, ParsePacket(nil))
	assert.Nil(t, ParsePacket([]byte{}))
	assert.Nil(t, ParsePacket(make([]byte, 11)))
}

func TestParsePacketRejectsWrongVersion(t *testing.T) {
	data := marshalPacket(t, 1, 2, 3, []byte{0xAA})
	// Rewrite the version bits to 1.
	data[0] = (data[0] &^ 0xC0) | 0x40
	assert.Nil(t, ParsePacket(data))
}

func TestParsePacketRejectsGarbage(t *testing.T) {
	// Version 2 but claims 15 CSRCs in a 12 byte packet.
	data := make([]byte, 12)
	data[0] = 0x8F
	assert.Nil(t, ParsePacket(data))
}

func TestParsePacketSkipsCSRCAndExtension(t *testing.T) {
	payload := []byte{0x55, 0x66}
	pkt := &pionrtp.Packet{
		Header: pionrtp.Header{
			Version:          2,
			SequenceNumber:   10,
			Timestamp:        20,
			SSRC:             30,
			CSRC:             []uint32{111, 222},
			Extension:        true,
			ExtensionProfile: 0xBEDE,
		},
		Payload: payload,
	}
	require.NoError(t, pkt.Header.SetExtension(1, []byte{0x01}))
	data, err := pkt.Marshal()
	require.NoError(t, err)

	parsed := ParsePacket(data)
	require.NotNil(t, parsed)
	assert.Equal(t, payload, parsed.Payload)
	assert.Equal(t, uint16(10), parsed.SequenceNumber)
}

func TestSequenceDelta(t *testing.T) {
	tests := []struct {
		name string
		a, b uint16
		want int
	}{
		{"equal", 100, 100, 0},
		{"ahead", 105, 100, 5},
		{"behind", 100, 105, -5},
		{"wrap forward", 2, 65534, 4},
		{"wrap backward", 65534, 2, -4},
		{"max positive", 32767, 0, 32767},
		{"ambiguous folds negative", 32768, 0, -32768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SequenceDelta(tt.a, tt.b))
		})
	}
}

func TestTimestampDelta(t *testing.T) {
	tests := []struct {
		name string
		a, b uint32
		want int64
	}{
		{"equal", 1000, 1000, 0},
		{"ahead", 49000, 1000, 48000},
		{"behind", 1000, 49000, -48000},
		{"wrap forward", 512, 0xFFFFFF00, 768},
		{"wrap backward", 0xFFFFFF00, 512, -768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimestampDelta(tt.a, tt.b))
		})
	}
}
