package radiostream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamGroupAddAndLookup(t *testing.T) {
	g := NewStreamGroup()

	cfg := testConfig()
	s, err := g.Add(cfg, Callbacks{})
	require.NoError(t, err)
	assert.Same(t, s, g.Stream(cfg.SSRC))
	assert.Nil(t, g.Stream(cfg.SSRC+1))
}

func TestStreamGroupRejectsDuplicateSSRC(t *testing.T) {
	g := NewStreamGroup()

	_, err := g.Add(testConfig(), Callbacks{})
	require.NoError(t, err)
	_, err = g.Add(testConfig(), Callbacks{})
	assert.Error(t, err)
}

func TestStreamGroupRejectsInvalidConfig(t *testing.T) {
	g := NewStreamGroup()
	cfg := testConfig()
	cfg.MulticastAddress = "not-multicast"
	_, err := g.Add(cfg, Callbacks{})
	assert.Error(t, err)
}

func TestStreamGroupRunUntilCancelled(t *testing.T) {
	g := NewStreamGroup()

	cfg := testConfig()
	cfg.PollTimeout = 20 * time.Millisecond
	s1, err := g.Add(cfg, Callbacks{})
	require.NoError(t, err)

	cfg2 := cfg
	cfg2.SSRC = cfg.SSRC + 1
	cfg2.MulticastAddress = "239.128.10.8"
	s2, err := g.Add(cfg2, Callbacks{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- g.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Skipf("multicast unavailable in this environment: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("group did not stop after cancel")
	}

	assert.Equal(t, StateIdle, s1.State())
	assert.Equal(t, StateIdle, s2.State())
}
