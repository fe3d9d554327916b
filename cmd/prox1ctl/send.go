package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"avaneesh/prox1-go/pkg/prox1"
)

var (
	sendHex     bool
	sendFile    string
	sendCommand bool
	sendPort    int
	sendTimeout time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send [payload...]",
	Short: "Send one SDU over the configured channel",
	Long: `Open the configured physical channel, send one SDU and wait until every
frame has been written.

Examples:
  prox1ctl send -c prox1.yaml hello
  PROX1_CHANNEL_ADDRESS=10.0.0.2:4100 prox1ctl send --hex 0102`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readPayload(args, sendHex, sendFile)
		if err != nil {
			return err
		}

		physical, err := prox1.NewPhysicalChannel(cfg.Channel, nil)
		if err != nil {
			return err
		}

		m := prox1.NewManager()
		defer m.Shutdown()

		if _, err := m.AddChannel(cfg.Channel.Type, physical); err != nil {
			physical.Close()
			return err
		}
		s, err := m.AddSession(cfg.Channel.Type, cfg.SessionConfig(), prox1.HandlerFuncs{})
		if err != nil {
			return err
		}

		id, err := s.Send(data, sendOptions(s, sendCommand, sendPort))
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
		defer cancel()
		n, err := s.Flush(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "sent packet %d: %d bytes in %d frames\n", id, len(data), n)
		return nil
	},
}

func init() {
	sendCmd.Flags().BoolVar(&sendHex, "hex", false, "payload arguments are hex")
	sendCmd.Flags().StringVarP(&sendFile, "file", "f", "", "read payload from file")
	sendCmd.Flags().BoolVar(&sendCommand, "command", false, "send as a protocol command")
	sendCmd.Flags().IntVarP(&sendPort, "port", "p", -1, "port id (default from config)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "time allowed for transmission")
}
