// Package control speaks the TLV command/status protocol of
// radiod-style SDR daemons. It creates and tunes channels, decodes the
// periodic status multicast into typed channel status, and carries the
// GPS timing information callers need to build timing references for
// the reception pipeline.
package control

// Packet type bytes: the first byte of every control-plane datagram.
const (
	// PacketStatus marks a status broadcast from the daemon.
	PacketStatus = 0
	// PacketCommand marks a command sent to the daemon.
	PacketCommand = 1
)

// ControlPort is the daemon's status/control multicast port.
const ControlPort = 5006

// StatusType identifies a TLV field in the daemon's status/control
// protocol. The values mirror the daemon's status.h and must match it
// exactly.
type StatusType byte

const (
	TypeEOL                       StatusType = 0
	TypeCommandTag                StatusType = 1
	TypeCommands                  StatusType = 2
	TypeGPSTime                   StatusType = 3
	TypeDescription               StatusType = 4
	TypeInputDataSourceSocket     StatusType = 5
	TypeInputDataDestSocket       StatusType = 6
	TypeInputMetadataSourceSocket StatusType = 7
	TypeInputMetadataDestSocket   StatusType = 8
	TypeInputSSRC                 StatusType = 9
	TypeInputSamprate             StatusType = 10
	TypeInputMetadataPackets      StatusType = 11
	TypeInputDataPackets          StatusType = 12
	TypeInputSamples              StatusType = 13
	TypeInputDrops                StatusType = 14
	TypeInputDupes                StatusType = 15
	TypeOutputDataSourceSocket    StatusType = 16
	TypeOutputDataDestSocket      StatusType = 17
	TypeOutputSSRC                StatusType = 18
	TypeOutputTTL                 StatusType = 19
	TypeOutputSamprate            StatusType = 20
	TypeOutputMetadataPackets     StatusType = 21
	TypeOutputDataPackets         StatusType = 22
	TypeADLevel                   StatusType = 23
	TypeCalibrate                 StatusType = 24
	TypeLNAGain                   StatusType = 25
	TypeMixerGain                 StatusType = 26
	TypeIFGain                    StatusType = 27
	TypeDCIOffset                 StatusType = 28
	TypeDCQOffset                 StatusType = 29
	TypeIQImbalance               StatusType = 30
	TypeIQPhase                   StatusType = 31
	TypeDirectConversion          StatusType = 32
	TypeRadioFrequency            StatusType = 33
	TypeFirstLOFrequency          StatusType = 34
	TypeSecondLOFrequency         StatusType = 35
	TypeShiftFrequency            StatusType = 36
	TypeDopplerFrequency          StatusType = 37
	TypeDopplerFrequencyRate      StatusType = 38
	TypeLowEdge                   StatusType = 39
	TypeHighEdge                  StatusType = 40
	TypeKaiserBeta                StatusType = 41
	TypeFilterBlocksize           StatusType = 42
	TypeFilterFIRLength           StatusType = 43
	TypeNoiseBandwidth            StatusType = 44
	TypeIFPower                   StatusType = 45
	TypeBasebandPower             StatusType = 46
	TypeNoiseDensity              StatusType = 47
	TypeDemodType                 StatusType = 48
	TypeOutputChannels            StatusType = 49
	TypeIndependentSideband       StatusType = 50
	TypePLLEnable                 StatusType = 51
	TypePLLLock                   StatusType = 52
	TypePLLSquare                 StatusType = 53
	TypePLLPhase                  StatusType = 54
	TypeEnvelope                  StatusType = 55
	TypeFMFlat                    StatusType = 56
	TypeDemodSNR                  StatusType = 57
	TypeFreqOffset                StatusType = 58
	TypePeakDeviation             StatusType = 59
	TypePLTone                    StatusType = 60
	TypeAGCEnable                 StatusType = 61
	TypeHeadroom                  StatusType = 62
	TypeAGCHangtime               StatusType = 63
	TypeAGCRecoveryRate           StatusType = 64
	TypeAGCAttackRate             StatusType = 65
	TypeGain                      StatusType = 66
	TypeOutputLevel               StatusType = 67
	TypeOutputSamples             StatusType = 68
	TypeOpusSourceSocket          StatusType = 69
	TypeOpusDestSocket            StatusType = 70
	TypeOpusSSRC                  StatusType = 71
	TypeOpusTTL                   StatusType = 72
	TypeOpusBitrate               StatusType = 73
	TypeOpusPackets               StatusType = 74
	TypeRFGain                    StatusType = 77
	TypeRFAtten                   StatusType = 78
	TypeRFAGC                     StatusType = 79
	TypeOutputEncoding            StatusType = 84
	TypePreset                    StatusType = 85
)

// Encoding identifies the sample encoding of a channel's data stream.
type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingS16BE
	EncodingS16LE
	EncodingF32LE
	EncodingOpus
	EncodingF16LE
)

// String returns the string representation of Encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingNone:
		return "none"
	case EncodingS16BE:
		return "s16be"
	case EncodingS16LE:
		return "s16le"
	case EncodingF32LE:
		return "f32le"
	case EncodingOpus:
		return "opus"
	case EncodingF16LE:
		return "f16le"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the wire size of one (possibly complex)
// sample frame for PCM encodings, or 0 for variable-rate encodings.
func (e Encoding) BytesPerSample(channels int) int {
	if channels <= 0 {
		channels = 1
	}
	switch e {
	case EncodingS16BE, EncodingS16LE:
		return 2 * channels
	case EncodingF32LE:
		return 4 * channels
	case EncodingF16LE:
		return 2 * channels
	default:
		return 0
	}
}
