package main

import (
	"github.com/spf13/cobra"

	"imgshelf/internal/api"
	"imgshelf/internal/config"
)

func newHealthCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report server and database status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				health, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}
				if opts.structured() {
					return writeStructured(health)
				}
				return writeHealth(health)
			})
		},
	}
}
