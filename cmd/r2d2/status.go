package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/r2d2/r2d2/internal/cli/output"
	"github.com/r2d2/r2d2/internal/progress"
	"github.com/r2d2/r2d2/internal/repository"
	"github.com/r2d2/r2d2/pkg/models"
)

func statusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show repository status",
		Long:  "Displays the repository config and per-type file counts and sizes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			bars := progress.Stderr(noProgress)
			repo, closeRepo, err := openRepository(cmd.Context(), cfg, bars)
			if err != nil {
				return err
			}
			defer closeRepo()

			return showStatus(os.Stdout, bars, repo, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

type repositoryStatus struct {
	Location  string                   `json:"location"`
	ID        models.ID                `json:"id"`
	Version   int                      `json:"version"`
	KeyID     models.ID                `json:"key_id"`
	Files     []models.RepositoryStats `json:"files"`
	TotalSize int64                    `json:"total_size"`
}

// showStatus prints the status on w. Progress goes to bars so w stays
// machine-readable with --json.
func showStatus(w io.Writer, bars *progress.Bars, repo *repository.Repository, jsonOutput bool) error {
	stats, err := repo.Stats(bars)
	if err != nil {
		return err
	}

	status := repositoryStatus{
		Location: repo.Location(),
		ID:       repo.Config().ID,
		Version:  repo.Config().Version,
		KeyID:    repo.KeyID(),
		Files:    stats,
	}
	for _, s := range stats {
		status.TotalSize += s.TotalSize
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	if err := output.SimpleTable(w, [][2]string{
		{"Location", status.Location},
		{"Repository", status.ID.Hex()},
		{"Version", strconv.Itoa(status.Version)},
		{"Key", status.KeyID.Short()},
		{"Total Size", output.HumanBytes(status.TotalSize)},
	}); err != nil {
		return err
	}
	fmt.Fprintln(w)

	table := output.NewTableData("Type", "Count", "Size")
	for _, s := range stats {
		table.AddRow(s.TypeName, strconv.Itoa(s.Count), output.HumanBytes(s.TotalSize))
	}
	return output.PrintTable(w, table)
}
