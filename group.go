package radiostream

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// StreamGroup runs several independent channel streams together. Each
// stream keeps its own socket, pipeline and callbacks; the group only
// handles collective startup, shutdown and error propagation.
type StreamGroup struct {
	mu      sync.Mutex
	streams map[uint32]*Stream
}

// NewStreamGroup creates an empty group.
func NewStreamGroup() *StreamGroup {
	return &StreamGroup{
		streams: make(map[uint32]*Stream),
	}
}

// Add creates a stream from cfg and registers it under its SSRC.
func (g *StreamGroup) Add(cfg Config, callbacks Callbacks) (*Stream, error) {
	s, err := NewStream(cfg, callbacks)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.streams[cfg.SSRC]; exists {
		return nil, fmt.Errorf("stream for SSRC %d already registered", cfg.SSRC)
	}
	g.streams[cfg.SSRC] = s
	return s, nil
}

// Stream returns the registered stream for an SSRC, or nil.
func (g *StreamGroup) Stream(ssrc uint32) *Stream {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.streams[ssrc]
}

// Run starts every registered stream and blocks until the context is
// cancelled or any stream fails fatally. All streams are stopped
// before Run returns; the first fatal stream error wins.
func (g *StreamGroup) Run(ctx context.Context) error {
	g.mu.Lock()
	streams := make([]*Stream, 0, len(g.streams))
	for _, s := range g.streams {
		streams = append(streams, s)
	}
	g.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "StreamGroup.Run",
		"streams":  len(streams),
	}).Info("Starting stream group")

	started := make([]*Stream, 0, len(streams))
	for _, s := range streams {
		if err := s.Start(); err != nil {
			for _, prev := range started {
				prev.Stop()
			}
			return fmt.Errorf("failed to start stream for SSRC %d: %w", s.cfg.SSRC, err)
		}
		started = append(started, s)
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, s := range started {
		s := s
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				s.Stop()
				return nil
			case <-s.Done():
				// Loop exited on its own: fatal socket error. Cancels
				// the errgroup context so siblings shut down too.
				s.Stop()
				if err := s.Err(); err != nil {
					return fmt.Errorf("stream for SSRC %d: %w", s.cfg.SSRC, err)
				}
				return nil
			}
		})
	}

	err := eg.Wait()

	logrus.WithFields(logrus.Fields{
		"function": "StreamGroup.Run",
	}).Info("Stream group stopped")

	return err
}
