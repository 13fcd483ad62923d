package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"imgshelf/internal/api"
	"imgshelf/internal/config"
)

func newUploadCmd(cfg *config.Config, opts *rootOptions) *cobra.Command {
	var name string
	var contentType string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer file.Close()

			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(path))
			}

			return withClient(cfg, func(client *api.Client) error {
				image, err := client.UploadImage(cmd.Context(), api.UploadRequest{
					Filename:    filepath.Base(path),
					ContentType: contentType,
					Name:        name,
					Content:     file,
				})
				if err != nil {
					return err
				}
				if opts.structured() {
					return writeStructured(image)
				}
				return writeImageDetail(image)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to Untitled)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "media type (guessed from the extension when empty)")
	return cmd
}
