package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/r2d2/r2d2/internal/progress"
	"github.com/r2d2/r2d2/internal/repository"
)

func initCmd() *cobra.Command {
	var saveConfig string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new backup repository in the bucket",
		Long:  "Creates an encrypted repository (key and config objects) in the configured bucket.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			be, closeBackend, err := repoBackend(cmd.Context(), cfg, progress.Stderr(noProgress))
			if err != nil {
				return err
			}
			defer closeBackend()

			password, err := newPassword()
			if err != nil {
				return err
			}

			repo, err := repository.Init(be, password, repository.DefaultOptions())
			if err != nil {
				return err
			}
			defer repo.Close()

			fmt.Printf("Initialized repository %s at %s\n", repo.Config().ID.Short(), repo.Location())
			fmt.Printf("Key:  %s\n", repo.KeyID().Short())

			if saveConfig != "" {
				if err := cfg.Save(saveConfig); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Configuration saved to %s\n", saveConfig)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&saveConfig, "save-config", "", "Write the effective configuration to this yaml file")

	return cmd
}
