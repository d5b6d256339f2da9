// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"errors"

	"github.com/dustin/go-humanize"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/docstore/database"
	"storj.io/docstore/pkg/process"
	"storj.io/docstore/shards"
)

func (c *cli) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the shard purge chore and the debug endpoint until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				chore := shards.NewChore(log.Named("chore"), db.Shards(), c.config.Database.Shards)

				group, ctx := errgroup.WithContext(ctx)
				group.Go(func() error {
					return chore.Run(ctx)
				})
				group.Go(func() error {
					return process.ServeDebug(ctx, log.Named("debug"), c.config.Debug, monkit.Default)
				})
				group.Go(func() error {
					<-ctx.Done()
					return chore.Close()
				})

				log.Info("running", zap.String("engine", c.config.Engine), zap.String("path", c.config.Path))
				err := group.Wait()
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func (c *cli) quotaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "quota <owner>",
		Short: "Print the storage used by an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				owner := args[0]
				used, err := db.Quota().CachedUsage(ctx, owner)
				if err != nil {
					return err
				}
				result := map[string]interface{}{
					"owner": owner,
					"used":  humanize.Bytes(uint64(used)),
					"bytes": used,
				}
				if limit := db.Quota().Limit(owner); limit > 0 {
					result["limit"] = humanize.Bytes(uint64(limit))
				}
				return c.print(result)
			})
		},
	}
}
