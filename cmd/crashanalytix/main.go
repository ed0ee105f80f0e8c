package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mvahmadali/CrashAnalytix/internal/config"
	"github.com/mvahmadali/CrashAnalytix/internal/logger"
)

// runtime holds what every sub-command needs once flags are parsed.
type runtime struct {
	configPath string
	cfg        *config.Config
	log        zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:           "crashanalytix",
		Short:         "Accident detection and evidence service for traffic video",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.log = logger.New(cfg.Log.Level, cfg.Log.Format)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&rt.configPath, "config", "c", "", "path to config file (default: ./config.yaml if present)")

	rootCmd.AddCommand(
		serveCommand(rt),
		analyzeCommand(rt),
		collageCommand(rt),
	)
	return rootCmd
}
