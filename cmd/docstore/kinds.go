// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storj.io/docstore/database"
	"storj.io/docstore/pkg/kinds"
	"storj.io/docstore/pkg/process"
)

func (c *cli) kindCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kind",
		Short: "Manage kind definitions",
	}

	put := &cobra.Command{
		Use:   "put <json|->",
		Short: "Create or replace a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.readInput(args[0])
			if err != nil {
				return err
			}
			var kind kinds.Kind
			if err := output.Unmarshal(data, &kind); err != nil {
				return process.Error.Wrap(err)
			}
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				if err := db.PutKind(ctx, kind); err != nil {
					return err
				}
				stored, err := db.GetKind(ctx, kind.Name)
				if err != nil {
					return err
				}
				return c.print(stored)
			})
		},
	}

	get := &cobra.Command{
		Use:   "get <name>",
		Short: "Print a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				kind, err := db.GetKind(ctx, args[0])
				if err != nil {
					return err
				}
				return c.print(kind)
			})
		},
	}

	del := &cobra.Command{
		Use:   "del <name>",
		Short: "Delete a kind together with its objects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				return db.DelKind(ctx, args[0])
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print every kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDB(cmd, func(ctx context.Context, log *zap.Logger, db *database.DB) error {
				for _, kind := range db.Kinds(ctx) {
					if err := c.print(kind); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.AddCommand(put, get, del, list)
	return cmd
}
