// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storj.io/docstore/database"
	"storj.io/docstore/pkg/objectid"
	"storj.io/docstore/shards"
)

func (c *cli) shardsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shards",
		Short: "Manage removable shards",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print every known shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				return c.printShards(db.Shards().All())
			})
		},
	}

	active := &cobra.Command{
		Use:   "active",
		Short: "Print the active shards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				infos, err := db.Shards().GetAllActive(ctx)
				if err != nil {
					return err
				}
				return c.printShards(infos)
			})
		},
	}

	id := &cobra.Command{
		Use:   "id [device-uuid]",
		Short: "Print the shard id of a device, a random device is used when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			device := uuid.NewString()
			if len(args) > 0 {
				device = args[0]
			}
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				shard, err := db.Shards().GetShardID(ctx, device)
				if err != nil {
					return err
				}
				return c.print(map[string]interface{}{
					"deviceId": device,
					"shardId":  uint32(shard),
					"idBase64": shard.Base64(),
				})
			})
		},
	}

	var info shards.Info
	var inactive bool
	put := &cobra.Command{
		Use:   "put <device-uuid>",
		Short: "Register or update the shard of a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info.DeviceID = args[0]
			info.Active = !inactive
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				shard, err := db.Shards().GetShardID(ctx, info.DeviceID)
				if err != nil {
					return err
				}
				info.ShardID = shard
				err = c.write(ctx, log, func(ctx context.Context) error {
					return db.Shards().Put(ctx, info)
				})
				if err != nil {
					return err
				}
				stored, _ := db.Shards().Get(shard)
				return c.print(stored)
			})
		},
	}
	put.Flags().StringVar(&info.MountPath, "mount", "", "path the device is mounted at")
	put.Flags().StringVar(&info.DeviceName, "name", "", "human readable device name")
	put.Flags().StringVar(&info.DeviceURI, "uri", "", "uri of the device")
	put.Flags().BoolVar(&info.Transient, "transient", false, "the device is expected to disappear")
	put.Flags().BoolVar(&inactive, "inactive", false, "mark the shard as not mounted")

	remove := &cobra.Command{
		Use:   "remove <base64-id>...",
		Short: "Remove shards together with their objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]objectid.ShardID, 0, len(args))
			for _, arg := range args {
				id, err := objectid.ParseShard(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				return db.Shards().RemoveShardObjects(ctx, ids...)
			})
		},
	}

	var days int
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Remove inactive shards that have not been seen for a while",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				return db.Shards().PurgeShardObjects(ctx, days)
			})
		},
	}
	purge.Flags().IntVar(&days, "days", 30, "purge shards not seen for this many days")

	cmd.AddCommand(list, active, id, put, remove, purge)
	return cmd
}

func (c *cli) printShards(infos []shards.Info) error {
	for _, info := range infos {
		if err := c.print(info); err != nil {
			return err
		}
	}
	return nil
}
