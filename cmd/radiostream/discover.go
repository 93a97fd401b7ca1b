package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdrkit/radiostream/discovery"
)

var errMissingRadio = errors.New("radio address is needed after -r")

func addDiscoverCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List active channels on the daemon's status stream",
		RunE:  doDiscover,
	}
	cmd.Flags().DurationP("duration", "d", 2*time.Second, "how long to listen for status broadcasts")
	root.AddCommand(cmd)
}

func doDiscover(cmd *cobra.Command, args []string) error {
	addr, err := radioAddress(cmd)
	if err != nil {
		return err
	}
	duration, err := cmd.Flags().GetDuration("duration")
	if err != nil {
		return err
	}

	channels, err := discovery.DiscoverChannels(context.Background(), addr, duration)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		fmt.Println("no channels found")
		return nil
	}

	ssrcs := make([]uint32, 0, len(channels))
	for ssrc := range channels {
		ssrcs = append(ssrcs, ssrc)
	}
	sort.Slice(ssrcs, func(i, j int) bool { return ssrcs[i] < ssrcs[j] })

	fmt.Printf("%10s %8s %9s %14s %7s %s\n", "SSRC", "preset", "samprate", "freq, Hz", "SNR", "output channel")
	for _, ssrc := range ssrcs {
		ch := channels[ssrc]
		snr := "-inf"
		if ch.HasSNR {
			snr = fmt.Sprintf("%.1f", ch.SNR)
		}
		fmt.Printf("%10d %8s %9d %14.0f %7s %s:%d\n",
			ch.SSRC, ch.Preset, ch.SampleRate, ch.Frequency, snr,
			ch.MulticastAddress, ch.Port)
	}
	return nil
}
