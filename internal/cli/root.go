// Package cli implements the eventcam command tree.
package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/eventcam/internal/config"
)

var (
	tuningFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "eventcam",
	Short: "Event camera acquisition and streaming",
	Long: `eventcam drives USB event cameras: configuration, live acquisition,
network streaming of event packet containers, and offline capture replay.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&tuningFile, "tuning", "", "acquisition tuning file (.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	viper.BindPFlag("tuning", rootCmd.PersistentFlags().Lookup("tuning"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.SetEnvPrefix("EVENTCAM")
	viper.AutomaticEnv()

	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(statsCmd)
}

// loadAcquisition resolves the effective tuning: defaults, then the tuning
// file if one is given by flag or environment.
func loadAcquisition() (config.Acquisition, error) {
	acq := config.DefaultAcquisition()
	path := viper.GetString("tuning")
	if path == "" {
		acq.Debug = viper.GetBool("verbose")
		return acq, nil
	}
	t, err := config.LoadTuning(path)
	if err != nil {
		return acq, err
	}
	acq, err = acq.WithTuning(t)
	if err != nil {
		return acq, err
	}
	if viper.GetBool("verbose") {
		acq.Debug = true
	}
	return acq, nil
}

// parseUSBID parses a hex USB vendor or product id like "152a".
func parseUSBID(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid USB id %q: %w", s, err)
	}
	return uint16(v), nil
}
