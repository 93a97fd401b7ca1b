package control

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// Sentinel errors returned by RadiodControl.
var (
	// ErrNotConnected indicates the control socket has been closed.
	ErrNotConnected = errors.New("not connected to radio daemon")
	// ErrTuneTimeout indicates no matching status response arrived in time.
	ErrTuneTimeout = errors.New("no status response received")
)

// commandResendInterval is how often Tune repeats its command until the
// daemon answers.
const commandResendInterval = 100 * time.Millisecond

// RadiodControl sends TLV commands to a radio daemon's control socket
// and decodes status responses. One instance talks to one daemon; it
// is not safe for concurrent use.
type RadiodControl struct {
	statusAddress string
	mcastAddr     string
	conn          *net.UDPConn
	dest          *net.UDPAddr
}

// NewRadiodControl resolves statusAddress (a literal IP or an mDNS name
// like "hf.local") and opens a socket for sending commands to the
// daemon's control port.
func NewRadiodControl(ctx context.Context, statusAddress string) (*RadiodControl, error) {
	mcastAddr, err := Resolve(ctx, statusAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", statusAddress, err)
	}

	dest := &net.UDPAddr{IP: net.ParseIP(mcastAddr), Port: ControlPort}
	conn, err := net.DialUDP("udp4", nil, dest)
	if err != nil {
		return nil, fmt.Errorf("failed to open control socket: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewRadiodControl",
		"address":  mcastAddr,
		"port":     ControlPort,
	}).Info("Connected to radio daemon")

	return &RadiodControl{
		statusAddress: statusAddress,
		mcastAddr:     mcastAddr,
		conn:          conn,
		dest:          dest,
	}, nil
}

// StatusAddress returns the resolved status multicast address.
func (rc *RadiodControl) StatusAddress() string {
	return rc.mcastAddr
}

// Close releases the control socket. The instance is unusable afterwards.
func (rc *RadiodControl) Close() error {
	if rc.conn == nil {
		return nil
	}
	err := rc.conn.Close()
	rc.conn = nil
	return err
}

// newCommandTag returns a random nonzero tag for matching a command to
// its status response.
func newCommandTag() uint32 {
	return uint32(rand.Int31n(1<<31-1) + 1)
}

// sendCommand transmits one command packet.
func (rc *RadiodControl) sendCommand(buf []byte) error {
	if rc.conn == nil {
		return ErrNotConnected
	}
	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		logrus.WithFields(logrus.Fields{
			"function": "sendCommand",
			"bytes":    len(buf),
			"data":     fmt.Sprintf("%x", buf),
		}).Trace("Sending command")
	}
	if _, err := rc.conn.Write(buf); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

// command starts a command packet and returns the buffer.
func command() []byte {
	return []byte{PacketCommand}
}

// finish appends the SSRC, a fresh command tag and the end-of-list
// marker, completing a command packet.
func finish(buf []byte, ssrc uint32) []byte {
	buf = encodeInt(buf, TypeOutputSSRC, int64(ssrc))
	buf = encodeInt(buf, TypeCommandTag, int64(newCommandTag()))
	return encodeEOL(buf)
}

// SetFrequency sets the radio frequency of a channel in Hz.
func (rc *RadiodControl) SetFrequency(ssrc uint32, frequencyHz float64) error {
	buf := command()
	buf = encodeFloat64(buf, TypeRadioFrequency, frequencyHz)
	logrus.WithFields(logrus.Fields{
		"function":  "SetFrequency",
		"ssrc":      ssrc,
		"frequency": frequencyHz,
	}).Info("Setting frequency")
	return rc.sendCommand(finish(buf, ssrc))
}

// SetPreset sets the demodulator preset of a channel, e.g. "iq", "usb".
func (rc *RadiodControl) SetPreset(ssrc uint32, preset string) error {
	buf := command()
	buf = encodeString(buf, TypePreset, preset)
	logrus.WithFields(logrus.Fields{
		"function": "SetPreset",
		"ssrc":     ssrc,
		"preset":   preset,
	}).Info("Setting preset")
	return rc.sendCommand(finish(buf, ssrc))
}

// SetSampleRate sets the output sample rate of a channel in Hz.
func (rc *RadiodControl) SetSampleRate(ssrc uint32, sampleRate int) error {
	buf := command()
	buf = encodeInt(buf, TypeOutputSamprate, int64(sampleRate))
	logrus.WithFields(logrus.Fields{
		"function":   "SetSampleRate",
		"ssrc":       ssrc,
		"sampleRate": sampleRate,
	}).Info("Setting sample rate")
	return rc.sendCommand(finish(buf, ssrc))
}

// SetGain sets manual gain in dB for a channel.
func (rc *RadiodControl) SetGain(ssrc uint32, gainDB float64) error {
	buf := command()
	buf = encodeFloat64(buf, TypeGain, gainDB)
	logrus.WithFields(logrus.Fields{
		"function": "SetGain",
		"ssrc":     ssrc,
		"gainDB":   gainDB,
	}).Info("Setting gain")
	return rc.sendCommand(finish(buf, ssrc))
}

// SetShiftFrequency sets the post-detection frequency shift in Hz.
func (rc *RadiodControl) SetShiftFrequency(ssrc uint32, shiftHz float64) error {
	buf := command()
	buf = encodeFloat64(buf, TypeShiftFrequency, shiftHz)
	logrus.WithFields(logrus.Fields{
		"function": "SetShiftFrequency",
		"ssrc":     ssrc,
		"shiftHz":  shiftHz,
	}).Info("Setting frequency shift")
	return rc.sendCommand(finish(buf, ssrc))
}

// SetOutputLevel sets the output level of a channel.
func (rc *RadiodControl) SetOutputLevel(ssrc uint32, level float32) error {
	buf := command()
	buf = encodeFloat32(buf, TypeOutputLevel, level)
	logrus.WithFields(logrus.Fields{
		"function": "SetOutputLevel",
		"ssrc":     ssrc,
		"level":    level,
	}).Info("Setting output level")
	return rc.sendCommand(finish(buf, ssrc))
}

// AGCSettings carries optional AGC parameters; nil fields are omitted
// from the command.
type AGCSettings struct {
	Hangtime     *float32
	Headroom     *float32
	RecoveryRate *float32
	AttackRate   *float32
}

// SetAGC enables or disables automatic gain control, optionally setting
// its parameters in the same packet.
func (rc *RadiodControl) SetAGC(ssrc uint32, enable bool, settings *AGCSettings) error {
	buf := command()
	if enable {
		buf = encodeInt(buf, TypeAGCEnable, 1)
	} else {
		buf = encodeInt(buf, TypeAGCEnable, 0)
	}
	if settings != nil {
		if settings.Hangtime != nil {
			buf = encodeFloat32(buf, TypeAGCHangtime, *settings.Hangtime)
		}
		if settings.Headroom != nil {
			buf = encodeFloat32(buf, TypeHeadroom, *settings.Headroom)
		}
		if settings.RecoveryRate != nil {
			buf = encodeFloat32(buf, TypeAGCRecoveryRate, *settings.RecoveryRate)
		}
		if settings.AttackRate != nil {
			buf = encodeFloat32(buf, TypeAGCAttackRate, *settings.AttackRate)
		}
	}
	logrus.WithFields(logrus.Fields{
		"function": "SetAGC",
		"ssrc":     ssrc,
		"enable":   enable,
	}).Info("Setting AGC")
	return rc.sendCommand(finish(buf, ssrc))
}

// SetFilter configures the channel filter. NaN values are omitted.
func (rc *RadiodControl) SetFilter(ssrc uint32, lowEdge, highEdge, kaiserBeta float64) error {
	buf := command()
	if !isNaN(lowEdge) {
		buf = encodeFloat64(buf, TypeLowEdge, lowEdge)
	}
	if !isNaN(highEdge) {
		buf = encodeFloat64(buf, TypeHighEdge, highEdge)
	}
	if !isNaN(kaiserBeta) {
		buf = encodeFloat32(buf, TypeKaiserBeta, float32(kaiserBeta))
	}
	logrus.WithFields(logrus.Fields{
		"function": "SetFilter",
		"ssrc":     ssrc,
		"lowEdge":  lowEdge,
		"highEdge": highEdge,
	}).Info("Setting filter")
	return rc.sendCommand(finish(buf, ssrc))
}

func isNaN(f float64) bool { return f != f }

// ChannelConfig describes a channel to create with CreateChannel.
type ChannelConfig struct {
	SSRC        uint32
	FrequencyHz float64
	Preset      string  // demodulator preset, default "iq"
	SampleRate  int     // output sample rate in Hz, 0 to omit
	AGCEnable   bool
	GainDB      float64
}

// CreateChannel creates and configures a channel in a single command
// packet. The daemon instantiates a channel the first time it sees a
// command for a new SSRC, using the parameters of that packet, so all
// settings must travel together.
func (rc *RadiodControl) CreateChannel(cfg ChannelConfig) error {
	preset := cfg.Preset
	if preset == "" {
		preset = "iq"
	}

	buf := command()
	buf = encodeString(buf, TypePreset, preset)
	buf = encodeFloat64(buf, TypeRadioFrequency, cfg.FrequencyHz)
	if cfg.SampleRate > 0 {
		buf = encodeInt(buf, TypeOutputSamprate, int64(cfg.SampleRate))
	}
	if cfg.AGCEnable {
		buf = encodeInt(buf, TypeAGCEnable, 1)
	} else {
		buf = encodeInt(buf, TypeAGCEnable, 0)
	}
	buf = encodeFloat64(buf, TypeGain, cfg.GainDB)

	logrus.WithFields(logrus.Fields{
		"function":  "CreateChannel",
		"ssrc":      cfg.SSRC,
		"frequency": cfg.FrequencyHz,
		"preset":    preset,
	}).Info("Creating channel")
	return rc.sendCommand(finish(buf, cfg.SSRC))
}

// TuneRequest lists the optional parameters of a Tune call; nil fields
// are omitted from the command packet.
type TuneRequest struct {
	FrequencyHz *float64
	Preset      *string
	SampleRate  *int
	LowEdge     *float32
	HighEdge    *float32
	// GainDB sets manual gain and disables AGC.
	GainDB    *float32
	AGCEnable *bool
	RFGainDB  *float32
	RFAttenDB *float32
	Encoding  *Encoding
}

// Tune applies the requested settings to a channel and waits for the
// daemon's status response. The command is resent every 100ms until a
// status packet matching both the SSRC and the command tag arrives, or
// ctx expires. Callers who want a bounded wait should pass a context
// with a deadline.
func (rc *RadiodControl) Tune(ctx context.Context, ssrc uint32, req TuneRequest) (*ChannelStatus, error) {
	if rc.conn == nil {
		return nil, ErrNotConnected
	}

	tag := newCommandTag()
	buf := command()
	buf = encodeInt(buf, TypeCommandTag, int64(tag))
	buf = encodeInt(buf, TypeOutputSSRC, int64(ssrc))
	if req.Preset != nil {
		buf = encodeString(buf, TypePreset, *req.Preset)
	}
	if req.SampleRate != nil {
		buf = encodeInt(buf, TypeOutputSamprate, int64(*req.SampleRate))
	}
	if req.LowEdge != nil {
		buf = encodeFloat32(buf, TypeLowEdge, *req.LowEdge)
	}
	if req.HighEdge != nil {
		buf = encodeFloat32(buf, TypeHighEdge, *req.HighEdge)
	}
	if req.FrequencyHz != nil {
		buf = encodeFloat64(buf, TypeRadioFrequency, *req.FrequencyHz)
	}
	if req.GainDB != nil {
		buf = encodeFloat32(buf, TypeGain, *req.GainDB)
		buf = encodeInt(buf, TypeAGCEnable, 0)
	} else if req.AGCEnable != nil {
		if *req.AGCEnable {
			buf = encodeInt(buf, TypeAGCEnable, 1)
		} else {
			buf = encodeInt(buf, TypeAGCEnable, 0)
		}
	}
	if req.Encoding != nil {
		buf = encodeInt(buf, TypeOutputEncoding, int64(*req.Encoding))
	}
	if req.RFGainDB != nil {
		buf = encodeFloat32(buf, TypeRFGain, *req.RFGainDB)
	}
	if req.RFAttenDB != nil {
		buf = encodeFloat32(buf, TypeRFAtten, *req.RFAttenDB)
	}
	buf = encodeEOL(buf)

	listener, err := rc.openStatusListener()
	if err != nil {
		return nil, err
	}
	defer listener.close()

	recvBuf := make([]byte, 8192)
	var lastSend time.Time

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w for SSRC %d: %v", ErrTuneTimeout, ssrc, err)
		}

		if time.Since(lastSend) >= commandResendInterval {
			if err := rc.sendCommand(buf); err != nil {
				return nil, err
			}
			lastSend = time.Now()
		}

		listener.conn.SetReadDeadline(time.Now().Add(commandResendInterval))
		n, _, err := listener.conn.ReadFrom(recvBuf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return nil, fmt.Errorf("status read failed: %w", err)
		}

		st, err := DecodeStatus(recvBuf[:n])
		if err != nil {
			continue
		}
		if st.SSRC == ssrc && st.CommandTag == tag {
			logrus.WithFields(logrus.Fields{
				"function": "Tune",
				"ssrc":     ssrc,
				"tag":      tag,
			}).Info("Received matching status response")
			return st, nil
		}
	}
}

// statusListener is a short-lived membership in the status multicast
// group, used while waiting for a command response.
type statusListener struct {
	conn  net.PacketConn
	pconn *ipv4.PacketConn
	group net.IP
}

func (rc *RadiodControl) openStatusListener() (*statusListener, error) {
	group := net.ParseIP(rc.mcastAddr)
	if group == nil {
		return nil, fmt.Errorf("invalid multicast address %q", rc.mcastAddr)
	}

	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", ControlPort))
	if err != nil {
		return nil, fmt.Errorf("failed to bind status port: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.JoinGroup(nil, &net.UDPAddr{IP: group}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to join status group %s: %w", group, err)
	}
	pconn.SetMulticastLoopback(true)

	return &statusListener{conn: conn, pconn: pconn, group: group}, nil
}

func (l *statusListener) close() {
	l.pconn.LeaveGroup(nil, &net.UDPAddr{IP: l.group})
	l.conn.Close()
}
