package main

import (
	"github.com/spf13/cobra"

	"imgshelf/internal/api"
	"imgshelf/internal/config"
)

func newListCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List uploaded images, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				images, err := client.ListImages(cmd.Context())
				if err != nil {
					return err
				}
				if opts.structured() {
					return writeStructured(images)
				}
				return writeImageList(images)
			})
		},
	}
}
