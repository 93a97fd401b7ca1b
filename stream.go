package radiostream

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"

	"github.com/sdrkit/radiostream/rtp"
)

// maxDatagramSize is the receive buffer size; radiod-style daemons
// send at most 8 KiB datagrams.
const maxDatagramSize = 8192

// Stream owns the multicast socket for one channel and runs the
// receive pipeline: parse -> validate -> resequence -> callback.
//
// One goroutine owns the socket and drives every callback; multiple
// Streams are fully independent. Metrics and quality are exposed as
// snapshots and are safe to read from any goroutine.
type Stream struct {
	cfg       Config
	callbacks Callbacks

	recorder *Recorder
	reseq    *rtp.Resequencer
	metrics  *RecordingMetrics

	mu      sync.Mutex
	timing  rtp.TimingReference
	running bool
	err     error

	conn  net.PacketConn
	pconn *ipv4.PacketConn
	group net.IP

	stopCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup
}

// NewStream creates a stream for one channel. The returned stream is
// Idle; Start opens the socket and arms it.
func NewStream(cfg Config, callbacks Callbacks) (*Stream, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stream config: %w", err)
	}

	metrics := NewRecordingMetrics()
	reseq, err := rtp.NewResequencer(rtp.ResequencerConfig{
		WindowSize:        cfg.WindowSize,
		SamplesPerPacket:  cfg.SamplesPerPacket,
		ResequenceTimeout: cfg.ResequenceTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid resequencer config: %w", err)
	}

	s := &Stream{
		cfg:       cfg,
		callbacks: callbacks,
		metrics:   metrics,
		reseq:     reseq,
		group:     net.ParseIP(cfg.MulticastAddress).To4(),
	}

	s.recorder = NewRecorder(RecorderConfig{
		SSRC:             cfg.SSRC,
		SamplesPerPacket: cfg.SamplesPerPacket,
		MaxPacketGap:     cfg.MaxPacketGap,
		ResyncThreshold:  cfg.ResyncThreshold,
		PassAllPackets:   cfg.PassAllPackets,
	}, metrics, callbacks)
	// A Resync discards the reorder window: buffered pre-gap packets
	// must not survive into the recovered stream.
	s.recorder.onResync = s.reseq.Reset

	logrus.WithFields(logrus.Fields{
		"function": "NewStream",
		"group":    cfg.MulticastAddress,
		"port":     cfg.Port,
		"ssrc":     cfg.SSRC,
	}).Info("Stream created")

	return s, nil
}

// Start opens the socket, joins the multicast group, arms the recorder
// and launches the receive loop.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrStreamRunning
	}

	conn, pconn, err := s.openSocket()
	if err != nil {
		return err
	}

	if err := s.recorder.Start(); err != nil {
		pconn.LeaveGroup(nil, &net.UDPAddr{IP: s.group})
		conn.Close()
		return err
	}

	s.conn = conn
	s.pconn = pconn
	s.err = nil
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.wg.Add(1)
	go s.receiveLoop()

	logrus.WithFields(logrus.Fields{
		"function": "Stream.Start",
		"group":    s.cfg.MulticastAddress,
		"port":     s.cfg.Port,
		"ssrc":     s.cfg.SSRC,
	}).Info("Stream started")

	return nil
}

// StartRecording begins delivering packets to OnPacket.
func (s *Stream) StartRecording() error {
	return s.recorder.StartRecording()
}

// StopRecording stops delivery but keeps receiving (Armed).
func (s *Stream) StopRecording() error {
	return s.recorder.StopRecording()
}

// Stop shuts the stream down. It is observed within one poll interval;
// when Stop returns the receive loop has fully exited, no further
// callback will fire, and the recorder is Idle.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrStreamNotRunning
	}
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()

	// The loop is gone; wind the recorder back to Idle.
	switch s.recorder.State() {
	case StateRecording, StateResync:
		s.recorder.StopRecording()
	}
	if s.recorder.State() == StateArmed {
		s.recorder.Stop()
	}

	logrus.WithFields(logrus.Fields{
		"function": "Stream.Stop",
		"ssrc":     s.cfg.SSRC,
	}).Info("Stream stopped")

	return nil
}

// State returns the recorder lifecycle state.
func (s *Stream) State() RecorderState {
	return s.recorder.State()
}

// Metrics returns a snapshot of the recording metrics.
func (s *Stream) Metrics() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// Quality returns a snapshot of the reception quality counters and
// drains the per-batch gap events.
func (s *Stream) Quality() rtp.StreamQuality {
	return s.reseq.Quality()
}

// SetTimingReference installs the channel's current timing reference.
// Callers must refresh it whenever the channel is retuned.
func (s *Stream) SetTimingReference(ref rtp.TimingReference) {
	s.mu.Lock()
	s.timing = ref
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":     "Stream.SetTimingReference",
		"ssrc":         ref.SSRC,
		"sample_rate":  ref.SampleRate,
		"gps_time_ns":  ref.GPSTimeNS,
		"rtp_timesnap": ref.RTPTimesnap,
	}).Debug("Timing reference updated")
}

// Done is closed when the receive loop has exited, whether by Stop or
// by a fatal socket error.
func (s *Stream) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doneCh == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.doneCh
}

// Err returns the fatal error that ended the receive loop, or nil
// after a clean Stop.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// openSocket binds the data port and joins the multicast group.
func (s *Stream) openSocket() (net.PacketConn, *ipv4.PacketConn, error) {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to bind data port %d: %w", s.cfg.Port, err)
	}

	pconn := ipv4.NewPacketConn(conn)

	var iface *net.Interface
	if s.cfg.Interface != "" {
		iface, err = net.InterfaceByName(s.cfg.Interface)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("unknown interface %q: %w", s.cfg.Interface, err)
		}
	}

	if err := pconn.JoinGroup(iface, &net.UDPAddr{IP: s.group}); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to join multicast group %s: %w", s.cfg.MulticastAddress, err)
	}

	// Loopback on so a daemon on the same host is heard.
	if err := pconn.SetMulticastLoopback(true); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Stream.openSocket",
			"error":    err.Error(),
		}).Debug("Could not enable multicast loopback")
	}

	logrus.WithFields(logrus.Fields{
		"function": "Stream.openSocket",
		"group":    s.cfg.MulticastAddress,
		"port":     s.cfg.Port,
	}).Debug("Joined multicast group")

	return conn, pconn, nil
}

func (s *Stream) teardownLocked() {
	if s.pconn != nil {
		s.pconn.LeaveGroup(nil, &net.UDPAddr{IP: s.group})
		s.pconn = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.running = false
}

// receiveLoop is the single owner of the socket. Each iteration reads
// one datagram under the poll timeout and drives it through the
// pipeline synchronously.
func (s *Stream) receiveLoop() {
	defer s.wg.Done()
	defer close(s.doneCh)

	buf := make([]byte, maxDatagramSize)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PollTimeout))
		n, _, err := s.conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				// Socket closed under us during shutdown.
				return
			default:
			}
			// Socket failure is fatal to the stream; retry belongs to
			// the control plane, not here.
			logrus.WithFields(logrus.Fields{
				"function": "Stream.receiveLoop",
				"ssrc":     s.cfg.SSRC,
				"error":    err.Error(),
			}).Error("Socket failure, stopping stream")
			s.mu.Lock()
			s.err = fmt.Errorf("socket failure: %w", err)
			s.mu.Unlock()
			return
		}

		s.handleDatagram(buf[:n], time.Now())
	}
}

// handleDatagram drives one datagram through parse, validation,
// resequencing and delivery.
func (s *Stream) handleDatagram(data []byte, now time.Time) {
	pkt := rtp.ParsePacket(data)
	if pkt == nil {
		s.metrics.malformedPackets.Inc()
		s.metrics.packetsDropped.Inc()
		return
	}

	// Different stream sharing the group: expected, silent.
	if pkt.SSRC != s.cfg.SSRC {
		return
	}

	s.metrics.packetsReceived.Inc()
	s.metrics.bytesReceived.Add(uint64(len(data)))

	if !s.recorder.ValidatePacket(pkt.SSRC, pkt.SequenceNumber, pkt.Timestamp) {
		s.metrics.packetsDropped.Inc()
		return
	}

	for _, d := range s.reseq.Add(pkt, now) {
		s.emit(d)
	}
}

// emit attaches the wallclock and invokes OnPacket for one delivery.
func (s *Stream) emit(d rtp.Delivery) {
	cb := s.callbacks.OnPacket
	if cb == nil {
		return
	}

	s.mu.Lock()
	ref := s.timing
	s.mu.Unlock()

	wallclock, ok := ref.Wallclock(d.Timestamp)

	cb(DeliveredPacket{
		SSRC:           s.cfg.SSRC,
		Sequence:       d.Sequence,
		Timestamp:      d.Timestamp,
		PayloadType:    d.PayloadType,
		Marker:         d.Marker,
		Payload:        d.Payload,
		Filled:         d.Filled,
		Resequenced:    d.Resequenced,
		Wallclock:      wallclock,
		WallclockValid: ok,
	})
}
