package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdrkit/radiostream/control"
)

func addTuneCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Tune a channel and print its status",
		RunE:  doTune,
	}
	cmd.Flags().Uint32P("ssrc", "s", 0, "(mandatory) SSRC of the channel")
	cmd.Flags().Float64P("frequency", "f", 0, "radio frequency in Hz")
	cmd.Flags().StringP("preset", "p", "", "demodulator preset, e.g. iq, usb, lsb")
	cmd.Flags().Int("samprate", 0, "output sample rate in Hz")
	cmd.Flags().Float32("gain", 0, "manual gain in dB (disables AGC)")
	cmd.Flags().Bool("agc", false, "enable automatic gain control")
	cmd.Flags().DurationP("timeout", "t", 5*time.Second, "how long to wait for a status response")
	root.AddCommand(cmd)
}

func doTune(cmd *cobra.Command, args []string) error {
	addr, err := radioAddress(cmd)
	if err != nil {
		return err
	}
	ssrc, err := cmd.Flags().GetUint32("ssrc")
	if err != nil || ssrc == 0 {
		return fmt.Errorf("a nonzero SSRC is needed after -s")
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rc, err := control.NewRadiodControl(ctx, addr)
	if err != nil {
		return err
	}
	defer rc.Close()

	var req control.TuneRequest
	if cmd.Flags().Changed("frequency") {
		f, _ := cmd.Flags().GetFloat64("frequency")
		req.FrequencyHz = &f
	}
	if cmd.Flags().Changed("preset") {
		p := cmd.Flag("preset").Value.String()
		req.Preset = &p
	}
	if cmd.Flags().Changed("samprate") {
		sr, _ := cmd.Flags().GetInt("samprate")
		req.SampleRate = &sr
	}
	if cmd.Flags().Changed("gain") {
		g, _ := cmd.Flags().GetFloat32("gain")
		req.GainDB = &g
	}
	if cmd.Flags().Changed("agc") {
		a, _ := cmd.Flags().GetBool("agc")
		req.AGCEnable = &a
	}

	st, err := rc.Tune(ctx, ssrc, req)
	if err != nil {
		return err
	}

	fmt.Printf("ssrc:        %d\n", st.SSRC)
	fmt.Printf("frequency:   %.0f Hz\n", st.Frequency)
	fmt.Printf("preset:      %s\n", st.Preset)
	fmt.Printf("sample rate: %d Hz\n", st.SampleRate)
	fmt.Printf("encoding:    %s\n", st.Encoding)
	fmt.Printf("agc:         %v\n", st.AGCEnable)
	fmt.Printf("gain:        %.1f dB\n", st.Gain)
	if st.HasSNR {
		fmt.Printf("snr:         %.1f dB\n", st.SNR)
	}
	if st.Destination != "" {
		fmt.Printf("destination: %s\n", st.Destination)
	}
	return nil
}
