package main

import (
	"context"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/r2d2/r2d2/internal/cli/output"
	"github.com/r2d2/r2d2/internal/cloudflare"
	"github.com/r2d2/r2d2/internal/logging"
)

// usageConcurrency bounds the parallel usage requests
const usageConcurrency = 8

func overviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Show storage usage of every bucket",
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

			table, err := gatherUsage(cmd.Context(), client)
			if err != nil {
				return err
			}
			return output.PrintTable(os.Stdout, table)
		},
	}
}

type usageSource interface {
	ListBuckets(ctx context.Context, opts cloudflare.ListOptions) ([]cloudflare.Bucket, error)
	BucketUsage(ctx context.Context, bucket string) (*cloudflare.Usage, error)
}

type bucketUsage struct {
	name string
	size int64
}

// gatherUsage lists the buckets and fetches their usage concurrently.
// Buckets whose usage cannot be fetched are left out.
func gatherUsage(ctx context.Context, src usageSource) (*output.TableData, error) {
	buckets, err := src.ListBuckets(ctx, cloudflare.ListOptions{})
	if err != nil {
		return nil, err
	}

	results := make([]*bucketUsage, len(buckets))

	var g errgroup.Group
	g.SetLimit(usageConcurrency)
	for i, bucket := range buckets {
		g.Go(func() error {
			usage, err := src.BucketUsage(ctx, bucket.Name)
			if err != nil {
				logging.Warn("skipping bucket without usage data",
					logging.String("bucket", bucket.Name),
					logging.Err(err))
				return nil
			}
			results[i] = &bucketUsage{name: bucket.Name, size: usage.Payload()}
			return nil
		})
	}
	_ = g.Wait()

	rows := make([]bucketUsage, 0, len(results))
	for _, r := range results {
		if r != nil {
			rows = append(rows, *r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	table := output.NewTableData("Bucket Name", "Raw Size", "Human Size")
	var total int64
	for _, r := range rows {
		total += r.size
		table.AddRow(r.name, strconv.FormatInt(r.size, 10), output.HumanBytes(r.size))
	}
	table.SetFooter(output.Bold("total"), strconv.FormatInt(total, 10), output.Bold(output.HumanBytes(total)))

	return table, nil
}
