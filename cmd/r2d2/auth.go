package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/r2d2/r2d2/internal/apperr"
	"github.com/r2d2/r2d2/internal/cloudflare"
)

func authCmd() *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Verify the Cloudflare API token",
		Long:  "Checks that R2_API_KEY is an active token. The token id is obfuscated unless --show is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := apiClient(cfg)
			if err != nil {
				return err
			}

			if show {
				fmt.Fprintf(os.Stderr, "account: %s\nbucket:  %s\nsource:  %s\n",
					cfg.AccountID, cfg.Bucket, sourceName(cfg))
			}
			return verifyToken(cmd.Context(), os.Stdout, client, show)
		},
	}

	cmd.Flags().BoolVar(&show, "show", false, "Show the configuration and the full token id")

	return cmd
}

type tokenVerifier interface {
	VerifyToken(ctx context.Context) (*cloudflare.TokenVerification, error)
}

func verifyToken(ctx context.Context, out io.Writer, client tokenVerifier, show bool) error {
	verification, err := client.VerifyToken(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindConfiguration, "Could not verify the API token.", err)
	}

	id := verification.ID
	if !show {
		id = obfuscate(id)
	}

	if !verification.OK() {
		fmt.Fprintf(out, "Authorization failed: %s (status: %s)\n", id, verification.Status)
		return apperr.Configuration("Authorization failed.")
	}

	fmt.Fprintf(out, "Authorization ok: %s\n", id)
	return nil
}

// obfuscate keeps the first and last four characters of ids longer than eight
func obfuscate(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:4] + "..." + id[len(id)-4:]
}
