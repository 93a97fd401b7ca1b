// Package discovery finds active channels by listening to a radio
// daemon's status multicast stream for a short window and folding the
// decoded status packets into a per-SSRC channel table.
package discovery

import (
	"context"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"

	"github.com/sdrkit/radiostream/control"
)

// DefaultListenDuration is how long DiscoverChannels listens for status
// broadcasts when the caller passes zero.
const DefaultListenDuration = 2 * time.Second

// ChannelInfo summarizes one active channel seen on the status stream.
type ChannelInfo struct {
	SSRC       uint32
	Preset     string
	SampleRate int
	Frequency  float64
	Encoding   control.Encoding

	// SNR is in dB; HasSNR is false when the status packets did not
	// carry enough information to derive it.
	SNR    float64
	HasSNR bool

	MulticastAddress string
	Port             int
}

// DiscoverChannels listens to the daemon's status multicast at
// statusAddress (an IP or mDNS name) for listenDuration and returns the
// channels seen, keyed by SSRC. Later status packets for the same SSRC
// overwrite earlier ones. A zero listenDuration uses
// DefaultListenDuration.
func DiscoverChannels(ctx context.Context, statusAddress string, listenDuration time.Duration) (map[uint32]ChannelInfo, error) {
	if listenDuration <= 0 {
		listenDuration = DefaultListenDuration
	}

	mcastAddr, err := control.Resolve(ctx, statusAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", statusAddress, err)
	}

	group := net.ParseIP(mcastAddr)
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", control.ControlPort))
	if err != nil {
		return nil, fmt.Errorf("failed to bind status port: %w", err)
	}
	defer conn.Close()

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.JoinGroup(nil, &net.UDPAddr{IP: group}); err != nil {
		return nil, fmt.Errorf("failed to join status group %s: %w", group, err)
	}
	defer pconn.LeaveGroup(nil, &net.UDPAddr{IP: group})
	pconn.SetMulticastLoopback(true)

	logrus.WithFields(logrus.Fields{
		"function": "DiscoverChannels",
		"address":  mcastAddr,
		"duration": listenDuration,
	}).Info("Listening for channel status broadcasts")

	channels := make(map[uint32]ChannelInfo)
	buf := make([]byte, 8192)
	deadline := time.Now().Add(listenDuration)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return channels, err
		}

		wait := time.Until(deadline)
		if wait > 500*time.Millisecond {
			wait = 500 * time.Millisecond
		}
		conn.SetReadDeadline(time.Now().Add(wait))

		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return channels, fmt.Errorf("status read failed: %w", err)
		}

		st, err := control.DecodeStatus(buf[:n])
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "DiscoverChannels",
				"error":    err,
			}).Debug("Skipping undecodable packet")
			continue
		}
		if st.SSRC == 0 {
			continue
		}

		info := channelFromStatus(st)
		if _, seen := channels[st.SSRC]; !seen {
			logrus.WithFields(logrus.Fields{
				"function":   "DiscoverChannels",
				"ssrc":       st.SSRC,
				"frequency":  info.Frequency,
				"sampleRate": info.SampleRate,
				"preset":     info.Preset,
			}).Debug("Discovered channel")
		}
		channels[st.SSRC] = info
	}

	logrus.WithFields(logrus.Fields{
		"function": "DiscoverChannels",
		"channels": len(channels),
	}).Info("Discovery complete")
	return channels, nil
}

func channelFromStatus(st *control.ChannelStatus) ChannelInfo {
	info := ChannelInfo{
		SSRC:       st.SSRC,
		Preset:     st.Preset,
		SampleRate: st.SampleRate,
		Frequency:  st.Frequency,
		Encoding:   st.Encoding,
		SNR:        st.SNR,
		HasSNR:     st.HasSNR,
	}
	if st.Destination != "" {
		if host, portStr, err := net.SplitHostPort(st.Destination); err == nil {
			info.MulticastAddress = host
			if port, err := strconv.Atoi(portStr); err == nil {
				info.Port = port
			}
		}
	}
	return info
}

// FindChannelsByFrequencies discovers channels and matches each target
// frequency to the closest channel within tolerance. Targets with no
// channel in range are absent from the result. A zero tolerance means
// 1 kHz.
func FindChannelsByFrequencies(ctx context.Context, statusAddress string, frequencies []float64, tolerance float64) (map[float64]ChannelInfo, error) {
	if tolerance <= 0 {
		tolerance = 1000.0
	}

	all, err := DiscoverChannels(ctx, statusAddress, 0)
	if err != nil {
		return nil, err
	}

	matched := make(map[float64]ChannelInfo)
	for _, target := range frequencies {
		var best ChannelInfo
		bestDiff := math.Inf(1)
		for _, ch := range all {
			diff := math.Abs(ch.Frequency - target)
			if diff < tolerance && diff < bestDiff {
				best = ch
				bestDiff = diff
			}
		}
		if !math.IsInf(bestDiff, 1) {
			matched[target] = best
			logrus.WithFields(logrus.Fields{
				"function": "FindChannelsByFrequencies",
				"target":   target,
				"ssrc":     best.SSRC,
				"diffHz":   bestDiff,
			}).Info("Matched frequency to channel")
		} else {
			logrus.WithFields(logrus.Fields{
				"function": "FindChannelsByFrequencies",
				"target":   target,
			}).Warn("No channel found for frequency")
		}
	}
	return matched, nil
}
