package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adekit/internal/ade"
	"adekit/internal/config"
	"adekit/internal/logger"
)

// app holds state shared by every subcommand once the root pre-run has loaded it.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	log        *zap.Logger
}

func main() {
	a := &app{}
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "adekit",
		Short:         "Parse documents and extract fields with the document extraction API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(a.configPath)
			if err != nil {
				return err
			}
			level := cfg.Log.Level
			if a.logLevel != "" {
				level = a.logLevel
			}
			log, err := logger.Init(level, cfg.Log.Format)
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			cmd.SetContext(logger.WithContext(cmd.Context(), log))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a config file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		a.parseCmd(),
		a.extractCmd(),
		a.jobCmd(),
		a.batchCmd(),
		a.tokenCmd(),
	)
	root.SetContext(context.Background())
	return root
}

func (a *app) client() (*ade.Client, error) {
	c, err := ade.NewClient(&a.cfg.Client)
	if err != nil {
		return nil, fmt.Errorf("init client: %w", err)
	}
	return c, nil
}
