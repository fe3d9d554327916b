package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"avaneesh/prox1-go/pkg/iolayer"
	"avaneesh/prox1-go/pkg/prox1"
)

var listenText bool

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print every SDU received on the configured channel",
	Long: `Open the configured physical channel and print each reassembled SDU
until interrupted. With reassembly.emit_bits set, SDUs are printed as bit
strings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		p := &printer{out: cmd.OutOrStdout(), text: listenText}
		s, err := m.AddSession(cfg.Channel.Type, cfg.SessionConfig(), p)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		st := s.Statistics()
		fmt.Fprintf(cmd.OutOrStdout(), "fragments=%d packets=%d discards=%d timeouts=%d overflows=%d\n",
			st.FragmentsRx, st.PacketsRx, st.Discards, st.Timeouts, st.Overflows)
		return nil
	},
}

func init() {
	listenCmd.Flags().BoolVar(&listenText, "text", false, "print SDUs as text instead of hex")
}

// printer writes received SDUs to out, one per line.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	text bool
}

func (p *printer) OnSDU(port uint8, sdu []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.text {
		fmt.Fprintf(p.out, "port=%d len=%d %s\n", port, len(sdu), sdu)
		return
	}
	fmt.Fprintf(p.out, "port=%d len=%d %s\n", port, len(sdu), hex.EncodeToString(sdu))
}

func (p *printer) OnBits(port uint8, bits iolayer.BitSequence) {
	buf := make([]byte, len(bits))
	for i, b := range bits {
		buf[i] = '0' + b
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "port=%d bits=%d %s\n", port, len(bits), buf)
}

