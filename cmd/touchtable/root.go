package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is the application version
const Version = "0.1.0"

var (
	logLevel string
	logJSON  bool
)

var logger = log.WithField("component", "cli")

var rootCmd = &cobra.Command{
	Use:     "touchtable",
	Short:   "Camera touch table tracker and contour streamer",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {

		level, err := log.ParseLevel(logLevel)

		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}

		log.SetLevel(level)

		if logJSON {
			log.SetFormatter(&log.JSONFormatter{})
		} else {
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		}

		return nil
	},
}

// Execute runs the command line until it completes or SIGINT/SIGTERM arrives
func Execute() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log in JSON format")
}
