package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/r2d2/r2d2/internal/cli/output"
	"github.com/r2d2/r2d2/internal/logging"
	"github.com/r2d2/r2d2/internal/progress"
	"github.com/r2d2/r2d2/pkg/models"
)

func snapshotsCmd() *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:     "snapshots",
		Aliases: []string{"list"},
		Short:   "List snapshots in the repository",
		Long:    "Lists snapshot ids and sizes. With --long each snapshot is opened to show its time, host and paths.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			repo, closeRepo, err := openRepository(cmd.Context(), cfg, progress.Stderr(noProgress))
			if err != nil {
				return err
			}
			defer closeRepo()

			snapshots, err := repo.Snapshots()
			if err != nil {
				return err
			}
			if !long {
				return listSnapshots(os.Stdout, nil, snapshots)
			}
			return listSnapshots(os.Stdout, repo, snapshots)
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "Show full snapshot ids and snapshot details")

	return cmd
}

type snapshotLoader interface {
	Snapshot(id models.ID) (*models.SnapshotSummary, error)
}

// listSnapshots prints the snapshot table. When loader is set every
// snapshot is opened and shown in detail.
func listSnapshots(w io.Writer, loader snapshotLoader, snapshots []models.IDWithSize) error {
	if len(snapshots) == 0 {
		fmt.Fprintln(w, "No snapshots found")
		return nil
	}

	var table *output.TableData
	if loader == nil {
		table = output.NewTableData("ID", "Size")
	} else {
		table = output.NewTableData("ID", "Time", "Host", "Paths", "Size")
	}

	for _, snap := range snapshots {
		size := output.HumanBytes(int64(snap.Size))
		if loader == nil {
			table.AddRow(snap.ID.Short(), size)
			continue
		}

		summary, err := loader.Snapshot(snap.ID)
		if err != nil {
			logging.Warn("could not read snapshot", logging.String("id", snap.ID.Short()), logging.Err(err))
			table.AddRow(snap.ID.Hex(), "-", "-", "-", size)
			continue
		}
		when := "-"
		if !summary.Time.IsZero() {
			when = summary.Time.Local().Format("2006-01-02 15:04:05")
		}
		table.AddRow(snap.ID.Hex(), when, summary.Hostname, strings.Join(summary.Paths, ", "), size)
	}
	if err := output.PrintTable(w, table); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nTotal: %d snapshots\n", len(snapshots))
	return nil
}
