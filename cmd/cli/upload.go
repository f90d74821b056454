package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/smart-financial-parser/internal/gcsuploader"
)

func newUploadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file> <gs://bucket/object>",
		Short: "Upload a local table to GCS",
		Long: `Upload a local file to Cloud Storage. When the destination ends with "/",
the file name is appended to it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log := loadConfig(cmd, opts)
			filePath, dest := args[0], args[1]

			if !gcsuploader.IsURI(dest) {
				log.Fatal().Str("destination", dest).Msg("Destination must be a gs:// URI")
			}
			if strings.HasSuffix(dest, "/") {
				dest = gcsuploader.JoinURI(dest, filepath.Base(filePath))
			}

			ctx, cancel := commandContext(log, 5*time.Minute)
			defer cancel()

			client, err := gcsuploader.NewClient(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create storage client")
			}
			defer client.Close()

			log.Info().
				Str("file", filePath).
				Str("destination", dest).
				Msg("Uploading file to GCS")

			if err := client.UploadFile(ctx, dest, filePath); err != nil {
				client.Close()
				log.Fatal().Err(err).Msg("Upload failed")
			}

			fmt.Printf("Uploaded %s to %s\n", filePath, dest)
			return nil
		},
	}
}
