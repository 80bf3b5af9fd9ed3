package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/technosupport/sentinel/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "sentinel",
		Short:        "Motion-triggered clip capture, threat analysis and alerting",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $SENTINEL_CONFIG or <data_root>/config/sentinel.yaml)")

	load := func() (config.Config, error) { return config.Load(configPath) }
	root.AddCommand(
		newServeCmd(load),
		newCaptureCmd(load),
		newDecideCmd(load),
	)
	return root
}

type configLoader func() (config.Config, error)
