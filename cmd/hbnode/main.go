// Command hbnode runs the heartbeat protocol for one satellite subsystem
// controller: it probes both peers over the bus, answers their probes, and
// pulses a peer's reset line after an hour of silence.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/sat-heartbeat/internal/config"
)

const defaultConfigPath = "/etc/hbnode/hbnode.yaml"

var (
	configPath string
	selfFlag   string
	logLevel   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hbnode",
		Short:         "Satellite subsystem heartbeat node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML config")
	root.PersistentFlags().StringVar(&selfFlag, "self", "", "Override the subsystem identity (OBC, EPS, PAY)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(runCmd())
	root.AddCommand(pulseCmd())
	root.AddCommand(configCmd())
	return root
}

func runCmd() *cobra.Command {
	var silent bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the heartbeat engine until SIGINT/SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return run(cfg, silent)
		},
	}
	cmd.Flags().BoolVar(&silent, "silent", false, "Open the bus but never ping or answer peers, so they reset this node")
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

// loadConfig runs Load -> flag overrides -> Validate -> Normalize.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, selfFlag, logLevel)

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

func applyOverrides(cfg *config.Config, self, level string) {
	if s := strings.TrimSpace(self); s != "" {
		cfg.Self = s
	}
	if l := strings.TrimSpace(level); l != "" {
		cfg.LogLevel = l
	}
}
