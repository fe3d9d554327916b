package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/gopacket"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"avaneesh/prox1-go/pkg/frame"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [hex-frame...]",
	Short: "Parse hex encoded frames and print their fields",
	Long: `Parse frames given as hex arguments, or one per line on stdin when no
arguments are given, and print the decoded header fields and payload.

Examples:
  prox1ctl decode 800110050068656c6c6f
  prox1ctl encode hello | prox1ctl decode`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) > 0 {
			for _, arg := range args {
				if err := decodeLine(out, arg); err != nil {
					return err
				}
			}
			return nil
		}

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := decodeLine(out, line); err != nil {
				return err
			}
		}
		return scanner.Err()
	},
}

func decodeLine(out io.Writer, line string) error {
	data, err := hex.DecodeString(line)
	if err != nil {
		return errors.Wrapf(err, "decode hex %q", line)
	}

	packet := gopacket.NewPacket(data, frame.LayerTypeProx1, gopacket.Default)
	if el := packet.ErrorLayer(); el != nil {
		return errors.Wrapf(el.Error(), "parse frame %s", line)
	}
	l, ok := packet.Layer(frame.LayerTypeProx1).(*frame.Prox1)
	if !ok {
		return errors.Errorf("no frame in %s", line)
	}

	fmt.Fprintf(out, "%s", l.Header)
	if l.Fragmented {
		fmt.Fprintf(out, " Seg=%s PPID=%d", l.Seg.Flag, l.Seg.PseudoPacketID)
	}
	if app := packet.ApplicationLayer(); app != nil {
		fmt.Fprintf(out, " payload=%s", hex.EncodeToString(app.Payload()))
	}
	fmt.Fprintln(out)
	return nil
}
