// Package radiostream receives live RTP multicast channels from a
// radiod-style software-defined-radio daemon and turns them into
// continuous, quality-annotated sample streams for recording and
// analysis applications.
//
// Many logical channels share one multicast group, each identified by
// its RTP synchronization source (SSRC). Packets may arrive late, out
// of order, duplicated, or not at all; the pipeline restores order
// inside a bounded window, zero-fills irrecoverable loss so the sample
// cadence never breaks, and annotates every gap. A periodically
// published timing reference (GPS time paired with an RTP timestamp)
// maps packet timestamps to absolute wall-clock time.
//
// The per-channel pipeline is single-threaded: one goroutine owns the
// socket and drives parsing, validation, resequencing and callbacks
// for each datagram, so callbacks fire in strictly increasing
// delivered-sequence order. Independent channels run as independent
// Streams, optionally under one StreamGroup.
//
// Basic usage:
//
//	cfg := radiostream.DefaultConfig()
//	cfg.MulticastAddress = "239.41.204.101"
//	cfg.SSRC = 10000000
//	cfg.SamplesPerPacket = 320
//
//	stream, err := radiostream.NewStream(cfg, radiostream.Callbacks{
//	    OnPacket: func(pkt radiostream.DeliveredPacket) {
//	        // consume ordered, gap-annotated payload
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := stream.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	stream.StartRecording()
//	defer stream.Stop()
//
// The control and discovery subpackages speak the daemon's TLV status
// protocol to create, tune and locate channels; they supply the SSRC,
// destination address and timing reference this package consumes.
package radiostream
