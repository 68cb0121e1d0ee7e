package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/r2d2/r2d2/internal/progress"
	"github.com/r2d2/r2d2/internal/upload"
)

func uploadCmd() *cobra.Command {
	var (
		key          string
		publicDomain string
		noAbort      bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file> [key]",
		Short: "Upload a file with a chunked multipart upload",
		Long: `Uploads a local file to the bucket in parts (R2_CHUNK_SIZE, default 50MiB).
The object key defaults to the file name. With a public domain configured the
public URL is printed, otherwise the key.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				key = args[1]
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if publicDomain != "" {
				cfg.PublicDomain = publicDomain
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			opts := cfg.UploadOptions()
			opts.AbortOnFailure = !noAbort

			uploader := upload.New(store, progress.Stderr(noProgress), opts)
			result, err := uploader.Upload(cmd.Context(), args[0], key)
			if err != nil {
				return err
			}

			fmt.Fprintln(os.Stdout, result.Location())
			return nil
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "Object key (default: file name)")
	cmd.Flags().StringVar(&publicDomain, "public-domain", "", "Public domain used to print the object URL")
	cmd.Flags().BoolVar(&noAbort, "no-abort", false, "Leave the multipart upload in place when a part fails")

	return cmd
}
