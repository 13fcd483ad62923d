package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"imgshelf/internal/config"
	"imgshelf/internal/format"
)

type rootOptions struct {
	logLevel string
	output   string
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "imgshelf",
		Short:         "imgshelf stores uploaded images and serves them back",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(opts.logLevel, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			if opts.output != "" {
				formatter, err := format.ForName(opts.output)
				if err != nil {
					return err
				}
				outputFormatter = formatter
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "", "structured output format (json or yaml)")

	cmd.AddCommand(
		newServeCmd(cfg),
		newMigrateCmd(cfg, opts),
		newListCmd(cfg, opts),
		newUploadCmd(cfg, opts),
		newHealthCmd(cfg, opts),
		newConfigCmd(cfg),
	)

	return cmd
}

func (o *rootOptions) structured() bool {
	return o != nil && o.output != ""
}
