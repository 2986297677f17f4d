package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/sat-heartbeat/internal/reset"
	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

func pulseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pulse <peer>",
		Short: "Pulse the reset line of a peer once (bench and recovery use)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			peer, err := subsystem.Parse(args[0])
			if err != nil {
				return err
			}
			self := cfg.SelfID()
			if peer == self {
				return fmt.Errorf("%s cannot reset itself", self)
			}

			act, err := reset.NewGPIOActuator(
				cfg.Reset.Chip,
				self,
				cfg.Wiring(),
				time.Duration(cfg.Reset.PulseMs)*time.Millisecond,
				cfg.Reset.ActiveLow,
			)
			if err != nil {
				return fmt.Errorf("init reset lines: %w", err)
			}
			defer act.Close()

			return pulseOnce(act, subsystem.Relation{From: self, To: peer}, cmd.OutOrStdout())
		},
	}
}

func pulseOnce(act reset.Actuator, rel subsystem.Relation, w io.Writer) error {
	if err := act.Pulse(rel); err != nil {
		return fmt.Errorf("pulse %s: %w", rel, err)
	}
	fmt.Fprintf(w, "pulsed %s\n", rel)
	return nil
}
