// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storj.io/docstore/database"
	"storj.io/docstore/pkg/document"
	"storj.io/docstore/pkg/process"
	"storj.io/docstore/pkg/query"
)

func (c *cli) recordCommands() []*cobra.Command {
	var shard string
	put := &cobra.Command{
		Use:   "put <json|->",
		Short: "Store an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := c.readObject(args[0])
			if err != nil {
				return err
			}
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				var stored document.Object
				err := c.write(ctx, log, func(ctx context.Context) (err error) {
					stored, err = db.Put(ctx, obj, database.PutOptions{Shard: shard})
					return err
				})
				if err != nil {
					return err
				}
				return c.print(stored)
			})
		},
	}
	put.Flags().StringVar(&shard, "shard", "", "base64 id of the shard new objects are stored on")

	merge := &cobra.Command{
		Use:   "merge <json|->",
		Short: "Merge a patch into an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := c.readObject(args[0])
			if err != nil {
				return err
			}
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				var stored document.Object
				err := c.write(ctx, log, func(ctx context.Context) (err error) {
					stored, err = db.Merge(ctx, patch)
					return err
				})
				if err != nil {
					return err
				}
				return c.print(stored)
			})
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Print an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				obj, err := db.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return c.print(obj)
			})
		},
	}

	var purge bool
	del := &cobra.Command{
		Use:   "del <id>",
		Short: "Delete an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				var found bool
				var rev int64
				err := c.write(ctx, log, func(ctx context.Context) (err error) {
					found, rev, err = db.Del(ctx, args[0], database.DelOptions{Purge: purge})
					return err
				})
				if err != nil {
					return err
				}
				return c.print(map[string]interface{}{"found": found, "rev": rev})
			})
		},
	}
	del.Flags().BoolVar(&purge, "purge", false, "remove the object instead of leaving a tombstone")

	var (
		where   []string
		orderBy string
		desc    bool
		limit   int
		deleted bool
		direct  bool
	)
	find := &cobra.Command{
		Use:   "find <kind>",
		Short: "Print the objects of a kind matching every --where",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := query.Query{
				Kind:            args[0],
				OrderBy:         orderBy,
				Desc:            desc,
				Limit:           limit,
				IncludeDeleted:  deleted,
				ExcludeSubKinds: direct,
			}
			for _, expr := range where {
				w, err := parseWhere(expr)
				if err != nil {
					return err
				}
				q.Where = append(q.Where, w)
			}

			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				objs, watermark, err := db.Find(ctx, q)
				if err != nil {
					return err
				}
				for _, obj := range objs {
					if err := c.print(obj); err != nil {
						return err
					}
				}
				log.Debug("find", zap.Int("results", len(objs)), zap.Int64("watermark", watermark))
				return nil
			})
		},
	}
	find.Flags().StringArrayVar(&where, "where", nil, "predicate such as tag==red or score>=3, values are JSON or plain strings")
	find.Flags().StringVar(&orderBy, "order", "", "property to sort by")
	find.Flags().BoolVar(&desc, "desc", false, "sort in descending order")
	find.Flags().IntVar(&limit, "limit", 0, "maximum number of results, 0 for all")
	find.Flags().BoolVar(&deleted, "deleted", false, "include tombstones")
	find.Flags().BoolVar(&direct, "exclude-subkinds", false, "do not return objects of kinds extending the kind")

	purgeDeleted := &cobra.Command{
		Use:   "purge-deleted <rev>",
		Short: "Remove tombstones with a revision up to rev",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			through, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return process.Error.New("invalid revision %q", args[0])
			}
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				var count int
				err := c.write(ctx, log, func(ctx context.Context) (err error) {
					count, err = db.PurgeDeleted(ctx, through)
					return err
				})
				if err != nil {
					return err
				}
				return c.print(map[string]interface{}{"purged": count})
			})
		},
	}

	return []*cobra.Command{put, merge, get, del, find, purgeDeleted}
}

var operators = []query.Op{query.Eq, query.Ne, query.Le, query.Ge, query.Lt, query.Gt}

// parseWhere parses prop<op>value. A single = is accepted for equality.
func parseWhere(expr string) (query.Where, error) {
	for _, op := range operators {
		if prop, value, ok := strings.Cut(expr, string(op)); ok {
			return query.Where{Prop: strings.TrimSpace(prop), Op: op, Value: parseValue(value)}, nil
		}
	}
	if prop, value, ok := strings.Cut(expr, "="); ok {
		return query.Where{Prop: strings.TrimSpace(prop), Op: query.Eq, Value: parseValue(value)}, nil
	}
	return query.Where{}, process.Error.New("invalid predicate %q", expr)
}

func parseValue(s string) interface{} {
	s = strings.TrimSpace(s)
	var v interface{}
	if err := output.UnmarshalFromString(s, &v); err != nil {
		return s
	}
	return v
}
