package main

import (
	"encoding/hex"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"avaneesh/prox1-go/pkg/prox1"
)

var (
	// Global flags
	configFile string
	logLevel   string
	frameDebug bool

	cfg *prox1.Config
)

var rootCmd = &cobra.Command{
	Use:   "prox1ctl",
	Short: "Proximity-1 frame and I/O sublayer tool",
	Long: `prox1ctl builds and parses Proximity-1 transfer frames and moves SDUs
over a UDP, TCP, QUIC or serial link.

Configuration is read from the file given with --config and may be
overridden with PROX1_ environment variables, e.g. PROX1_LINK_SPACECRAFT_ID.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&frameDebug, "frame-debug", false, "hex dump every frame sent and received")

	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(configCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := prox1.LoadConfig(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if frameDebug {
		c.Log.FrameDebug = true
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if _, err := prox1.ConfigureLogging(c.Log); err != nil {
		return err
	}
	cfg = c
	return nil
}

// readPayload returns the SDU given on the command line: hex when asHex is
// set, the named file when file is set, otherwise the arguments joined by
// spaces.
func readPayload(args []string, asHex bool, file string) ([]byte, error) {
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		return data, errors.Wrapf(err, "read %s", file)
	case asHex:
		data, err := hex.DecodeString(strings.Join(args, ""))
		return data, errors.Wrap(err, "decode hex payload")
	default:
		return []byte(strings.Join(args, " ")), nil
	}
}
