// Command radiostream tunes, discovers and records channels from a
// radiod-style SDR daemon.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "radiostream",
		Short: "Receive and record multicast channels from an SDR daemon",
	}

	root.PersistentFlags().StringP("radio", "r", "", "(mandatory) status address of the radio daemon, e.g. hf.local or 239.1.2.3")
	root.PersistentFlags().StringP("log-level", "l", "warn", "log level: trace, debug, info, warn, error")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(cmd.Flag("log-level").Value.String())
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		return nil
	}

	addDiscoverCommand(root)
	addTuneCommand(root)
	addRecordCommand(root)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func radioAddress(cmd *cobra.Command) (string, error) {
	addr := cmd.Flag("radio").Value.String()
	if addr == "" {
		return "", errMissingRadio
	}
	return addr, nil
}
