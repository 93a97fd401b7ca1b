package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdrkit/radiostream"
	"github.com/sdrkit/radiostream/discovery"
)

func addRecordCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a channel's RTP stream to a raw file",
		Long: "Record joins a channel's data multicast group, reorders and " +
			"gap-fills the RTP stream, and writes the raw payload bytes to a file. " +
			"When --address is not given the channel is located via the daemon's " +
			"status stream.",
		RunE: doRecord,
	}
	cmd.Flags().Uint32P("ssrc", "s", 0, "(mandatory) SSRC of the channel")
	cmd.Flags().StringP("output", "o", "", "(mandatory) output file for raw payload bytes")
	cmd.Flags().StringP("address", "a", "", "data multicast address (discovered when omitted)")
	cmd.Flags().IntP("port", "p", radiostream.DefaultDataPort, "data multicast port")
	cmd.Flags().Int("samples-per-packet", 240, "payload samples carried by each RTP packet")
	cmd.Flags().DurationP("duration", "d", 0, "stop after this long (0 = until interrupted)")
	cmd.Flags().Bool("pass-all", false, "deliver every packet, bypassing gap-driven resync")
	cmd.Flags().String("iface", "", "network interface to join the multicast group on")
	root.AddCommand(cmd)
}

func doRecord(cmd *cobra.Command, args []string) error {
	ssrc, err := cmd.Flags().GetUint32("ssrc")
	if err != nil || ssrc == 0 {
		return fmt.Errorf("a nonzero SSRC is needed after -s")
	}
	output := cmd.Flag("output").Value.String()
	if output == "" {
		return fmt.Errorf("an output file is needed after -o")
	}

	cfg := radiostream.DefaultConfig()
	cfg.SSRC = ssrc
	cfg.MulticastAddress = cmd.Flag("address").Value.String()
	cfg.Port, _ = cmd.Flags().GetInt("port")
	cfg.SamplesPerPacket, _ = cmd.Flags().GetInt("samples-per-packet")
	cfg.PassAllPackets, _ = cmd.Flags().GetBool("pass-all")
	cfg.Interface = cmd.Flag("iface").Value.String()

	if cfg.MulticastAddress == "" {
		addr, err := radioAddress(cmd)
		if err != nil {
			return fmt.Errorf("either --address or --radio is required: %w", err)
		}
		channels, err := discovery.DiscoverChannels(context.Background(), addr, 0)
		if err != nil {
			return err
		}
		ch, ok := channels[ssrc]
		if !ok {
			return fmt.Errorf("channel %d not found on %s", ssrc, addr)
		}
		if ch.MulticastAddress == "" {
			return fmt.Errorf("channel %d has no data destination in its status", ssrc)
		}
		cfg.MulticastAddress = ch.MulticastAddress
		if ch.Port != 0 {
			cfg.Port = ch.Port
		}
		fmt.Printf("channel %d: %.0f Hz, %d Hz sample rate, data on %s:%d\n",
			ssrc, ch.Frequency, ch.SampleRate, cfg.MulticastAddress, cfg.Port)
	}

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	var writeErr error
	stream, err := radiostream.NewStream(cfg, radiostream.Callbacks{
		OnPacket: func(pkt radiostream.DeliveredPacket) {
			if writeErr == nil {
				_, writeErr = out.Write(pkt.Payload)
			}
		},
	})
	if err != nil {
		return err
	}

	if err := stream.Start(); err != nil {
		return err
	}
	if err := stream.StartRecording(); err != nil {
		stream.Stop()
		return err
	}
	fmt.Printf("recording SSRC %d from %s:%d to %s\n", ssrc, cfg.MulticastAddress, cfg.Port, output)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	duration, _ := cmd.Flags().GetDuration("duration")
	var timerCh <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		timerCh = timer.C
	}

	stats := time.NewTicker(time.Second)
	defer stats.Stop()

wait:
	for {
		select {
		case <-sig:
			fmt.Println("interrupted")
			break wait
		case <-timerCh:
			break wait
		case <-stream.Done():
			break wait
		case <-stats.C:
			m := stream.Metrics()
			q := stream.Quality()
			fmt.Printf("%d packets, %d bytes, %d lost, %.2f%% complete\n",
				m.PacketsReceived, m.BytesReceived, q.PacketsLost, q.CompletenessPct)
		}
	}

	if err := stream.Stop(); err != nil {
		return err
	}
	if runErr := stream.Err(); runErr != nil {
		return runErr
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write output: %w", writeErr)
	}

	q := stream.Quality()
	m := stream.Metrics()
	fmt.Printf("packets received:    %d\n", m.PacketsReceived)
	fmt.Printf("bytes received:      %d\n", m.BytesReceived)
	fmt.Printf("packets lost:        %d\n", q.PacketsLost)
	fmt.Printf("packets resequenced: %d\n", q.PacketsResequenced)
	fmt.Printf("gap events:          %d\n", q.TotalGapEvents)
	fmt.Printf("completeness:        %.2f%%\n", q.CompletenessPct)
	return nil
}
