package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"avaneesh/prox1-go/pkg/prox1"
)

var (
	encodeHex     bool
	encodeFile    string
	encodeCommand bool
	encodePort    int
)

var encodeCmd = &cobra.Command{
	Use:   "encode [payload...]",
	Short: "Segment an SDU and print the resulting frames as hex",
	Long: `Segment an SDU with the configured link parameters and print one frame
per line in hex, in transmission order.

Examples:
  prox1ctl encode hello world
  prox1ctl encode --hex a5a5a5
  prox1ctl encode --file image.bin --port 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readPayload(args, encodeHex, encodeFile)
		if err != nil {
			return err
		}
		return encode(cmd.OutOrStdout(), data)
	},
}

func init() {
	encodeCmd.Flags().BoolVar(&encodeHex, "hex", false, "payload arguments are hex")
	encodeCmd.Flags().StringVarP(&encodeFile, "file", "f", "", "read payload from file")
	encodeCmd.Flags().BoolVar(&encodeCommand, "command", false, "encode as a protocol command")
	encodeCmd.Flags().IntVarP(&encodePort, "port", "p", -1, "port id (default from config)")
}

// hexWriter prints every frame it is given on its own line.
type hexWriter struct {
	out io.Writer
}

func (w hexWriter) Write(ctx context.Context, data []byte) error {
	_, err := fmt.Fprintln(w.out, hex.EncodeToString(data))
	return err
}

func encode(out io.Writer, data []byte) error {
	s, err := prox1.NewSession(cfg.SessionConfig(), hexWriter{out: out}, prox1.HandlerFuncs{}, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	opts := sendOptions(s, encodeCommand, encodePort)
	if _, err := s.Send(data, opts); err != nil {
		return err
	}
	_, err = s.Flush(context.Background())
	return err
}

func sendOptions(s *prox1.Session, command bool, port int) prox1.SendOptions {
	opts := s.DefaultSendOptions()
	opts.Command = command
	if port >= 0 {
		opts.Port = uint8(port)
	}
	return opts
}
