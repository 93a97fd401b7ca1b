package control

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// ChannelStatus is the decoded view of one status broadcast for a
// single channel. Fields the packet did not carry keep their zero
// value; the Has* flags disambiguate for fields where zero is a
// legitimate reading.
type ChannelStatus struct {
	// CommandTag echoes the tag of the command this status answers,
	// or 0 for unsolicited broadcasts.
	CommandTag uint32

	// GPSTimeNS is the daemon's GPS-disciplined clock in nanoseconds
	// since the GPS epoch, when present.
	GPSTimeNS  int64
	HasGPSTime bool

	SSRC       uint32
	Frequency  float64
	Preset     string
	SampleRate int
	Encoding   Encoding

	AGCEnable bool
	Gain      float32
	RFGain    float32
	RFAtten   float32
	RFAGC     bool

	LowEdge       float32
	HighEdge      float32
	NoiseDensity  float32
	BasebandPower float32
	HasPower      bool

	// SNR is derived from baseband power, noise density and the
	// filter edges. HasSNR reports whether all inputs were present
	// and the derived ratio was positive.
	SNR    float64
	HasSNR bool

	// Destination is the channel's data multicast address as
	// host:port, when the packet carried it.
	Destination string
}

// DecodeStatus decodes one status datagram. It returns an error when
// the packet is not a status packet or its TLV body is malformed.
// Unknown field types are skipped.
func DecodeStatus(buf []byte) (*ChannelStatus, error) {
	if len(buf) == 0 || buf[0] != PacketStatus {
		return nil, fmt.Errorf("not a status packet")
	}

	fields, err := parseTLV(buf[1:])
	if err != nil {
		return nil, fmt.Errorf("malformed status packet: %w", err)
	}

	st := &ChannelStatus{}
	var haveEdges, haveNoise bool

	for _, f := range fields {
		switch f.Type {
		case TypeCommandTag:
			st.CommandTag = uint32(decodeUint(f.Value))
		case TypeGPSTime:
			st.GPSTimeNS = decodeInt(f.Value)
			st.HasGPSTime = true
		case TypeOutputSSRC:
			st.SSRC = uint32(decodeUint(f.Value))
		case TypeRadioFrequency:
			st.Frequency = decodeFloat64(f.Value)
		case TypePreset:
			st.Preset = decodeString(f.Value)
		case TypeOutputSamprate:
			st.SampleRate = int(decodeInt(f.Value))
		case TypeOutputEncoding:
			st.Encoding = Encoding(decodeInt(f.Value))
		case TypeAGCEnable:
			st.AGCEnable = decodeBool(f.Value)
		case TypeGain:
			st.Gain = decodeFloat32(f.Value)
		case TypeRFGain:
			st.RFGain = decodeFloat32(f.Value)
		case TypeRFAtten:
			st.RFAtten = decodeFloat32(f.Value)
		case TypeRFAGC:
			st.RFAGC = decodeBool(f.Value)
		case TypeLowEdge:
			st.LowEdge = decodeFloat32(f.Value)
			haveEdges = true
		case TypeHighEdge:
			st.HighEdge = decodeFloat32(f.Value)
		case TypeNoiseDensity:
			st.NoiseDensity = decodeFloat32(f.Value)
			haveNoise = true
		case TypeBasebandPower:
			st.BasebandPower = decodeFloat32(f.Value)
			st.HasPower = true
		case TypeOutputDataDestSocket:
			addr, err := decodeSocket(f.Value)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "DecodeStatus",
					"error":    err,
				}).Debug("Skipping undecodable destination socket")
				continue
			}
			st.Destination = addr
		}
	}

	if st.HasPower && haveEdges && haveNoise {
		st.SNR, st.HasSNR = deriveSNR(
			float64(st.BasebandPower),
			float64(st.NoiseDensity),
			float64(st.LowEdge),
			float64(st.HighEdge),
		)
	}

	return st, nil
}

// deriveSNR computes the signal-to-noise ratio in dB from the channel's
// baseband power, noise density and filter bandwidth. Both power terms
// are dB figures; the noise floor over the passband is noise density
// plus 10*log10(bandwidth). The ratio is formed in linear units because
// baseband power includes the noise.
func deriveSNR(basebandPowerDB, noiseDensityDB, lowEdge, highEdge float64) (float64, bool) {
	bandwidth := math.Abs(highEdge - lowEdge)
	if bandwidth <= 0 {
		return 0, false
	}
	noisePowerDB := noiseDensityDB + 10*math.Log10(bandwidth)
	noisePower := math.Pow(10, noisePowerDB/10)
	signalPlusNoise := math.Pow(10, basebandPowerDB/10)
	snrLinear := signalPlusNoise/noisePower - 1
	if snrLinear <= 0 {
		return 0, false
	}
	return 10 * math.Log10(snrLinear), true
}
