package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/r2d2/r2d2/internal/apperr"
	"github.com/r2d2/r2d2/internal/backend"
	"github.com/r2d2/r2d2/internal/cli/prompt"
	"github.com/r2d2/r2d2/internal/config"
	"github.com/r2d2/r2d2/internal/progress"
)

type wipeOptions struct {
	yes          bool
	contents     bool
	deleteBucket bool
}

func wipeCmd() *cobra.Command {
	var opts wipeOptions

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete all objects in a bucket and optionally the bucket itself",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runWipe(cmd.Context(), os.Stderr, progress.Stderr(noProgress), cfg, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Skip confirmation")
	cmd.Flags().BoolVar(&opts.contents, "contents", true, "Recursively delete every object in the bucket")
	cmd.Flags().BoolVar(&opts.deleteBucket, "delete-bucket", false, "Delete the bucket itself (needs R2_API_KEY)")

	return cmd
}

type bucketDeleter interface {
	DeleteBucket(ctx context.Context, bucket string) error
}

func runWipe(ctx context.Context, out io.Writer, bars *progress.Bars, cfg *config.Config, opts wipeOptions) error {
	bucket := cfg.Bucket
	if bucket == "" {
		return apperr.Configuration("No bucket configured to wipe!")
	}
	if !opts.contents && !opts.deleteBucket {
		return apperr.User("Nothing to do: pass --contents and/or --delete-bucket.")
	}

	if !opts.yes {
		ok, err := prompt.ConfirmDanger(fmt.Sprintf("Wipe bucket `%s`", bucket), bucket)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	var store backend.Store
	if opts.contents {
		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	var api bucketDeleter
	if opts.deleteBucket {
		client, err := apiClient(cfg)
		if err != nil {
			return err
		}
		api = client
	}

	return wipe(ctx, out, bars, bucket, store, api)
}

// wipe empties the bucket through store and deletes it through api; either
// may be nil. A spinner runs on bars while objects are removed.
func wipe(ctx context.Context, out io.Writer, bars *progress.Bars, bucket string, store backend.Operator, api bucketDeleter) error {
	if store != nil {
		p := bars.Spinner(fmt.Sprintf("emptying bucket `%s`", bucket))
		p.Tick()
		stop := p.Drive(progress.RedrawInterval)
		err := store.RemoveAll(ctx, "")
		stop()
		if err != nil {
			return apperr.Backend("Emptying bucket `{bucket}` failed.", err).With("bucket", bucket)
		}
		p.Finish()
		fmt.Fprintf(out, "Bucket `%s` emptied.\n", bucket)
	}

	if api != nil {
		if err := api.DeleteBucket(ctx, bucket); err != nil {
			return apperr.Backend("Deleting bucket `{bucket}` failed.", err).With("bucket", bucket)
		}
		fmt.Fprintf(out, "Bucket `%s` deleted.\n", bucket)
	}
	return nil
}
