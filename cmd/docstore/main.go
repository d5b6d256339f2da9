// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Command docstore manipulates a document store from the command line.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/docstore/database"
	"storj.io/docstore/pkg/document"
	"storj.io/docstore/pkg/process"
	"storj.io/docstore/pkg/retry"
	"storj.io/docstore/pkg/rules"
	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/private/kvstore/boltdb"
	"storj.io/docstore/private/kvstore/sqlitekv"
	"storj.io/docstore/private/kvstore/storelogger"
	"storj.io/docstore/private/kvstore/teststore"
)

// Config is the configuration of every docstore command.
type Config struct {
	Engine     string `help:"storage engine: bolt, sqlite or memory" default:"bolt"`
	Path       string `help:"path of the database file" default:"docstore.db"`
	TraceStore bool   `help:"log every storage operation at debug level" default:"false"`
	Caller     string `help:"run as this caller instead of as admin" default:""`
	Domain     string `help:"domain of the caller" default:""`

	Log      process.LogConfig
	Debug    process.DebugConfig
	Retry    retry.Config
	Database database.Config
}

var output = jsoniter.Config{
	SortMapKeys:            true,
	EscapeHTML:             false,
	ValidateJsonRawMessage: true,
}.Froze()

// cli holds the state shared by the commands of one invocation.
type cli struct {
	config Config
	out    io.Writer
	in     io.Reader
}

func main() {
	process.Exec(newRoot(os.Stdin, os.Stdout))
}

func newRoot(in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{in: in, out: out}

	root := &cobra.Command{
		Use:           "docstore",
		Short:         "Schema aware JSON document store",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.SetIn(in)
	process.Bind(root.PersistentFlags(), &c.config)

	root.AddCommand(c.recordCommands()...)
	root.AddCommand(c.kindCommand(), c.shardsCommand(), c.runCommand(), c.quotaCommand())
	return root
}

// withDB opens the store, runs fn and closes the store again.
func (c *cli) withDB(cmd *cobra.Command, fn func(ctx context.Context, log *zap.Logger, db *database.DB) error) (err error) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	log, err := process.NewLogger(c.config.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, err := c.openStore(log)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, store.Close()) }()

	db, err := database.Open(ctx, log, store, c.config.Database)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if c.config.Caller != "" {
		ctx = database.WithCaller(ctx, rules.Caller{ID: c.config.Caller, Domain: c.config.Domain})
	}
	return fn(ctx, log, db)
}

func (c *cli) openStore(log *zap.Logger) (store kvstore.Store, err error) {
	switch c.config.Engine {
	case "bolt":
		store, err = boltdb.New(log.Named("bolt"), c.config.Path, "docstore")
	case "sqlite":
		store, err = sqlitekv.New(log.Named("sqlite"), c.config.Path)
	case "memory":
		store = teststore.New()
	default:
		return nil, process.Error.New("unknown engine %q", c.config.Engine)
	}
	if err != nil {
		return nil, err
	}
	if c.config.TraceStore {
		store = storelogger.New(log.Named("store"), store)
	}
	return store, nil
}

// write runs a modifying operation, repeating it on conflicts.
func (c *cli) write(ctx context.Context, log *zap.Logger, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, log, c.config.Retry, fn)
}

// readInput returns arg, or stdin when arg is "-".
func (c *cli) readInput(arg string) ([]byte, error) {
	if arg != "-" {
		return []byte(arg), nil
	}
	data, err := io.ReadAll(c.in)
	return data, process.Error.Wrap(err)
}

// readObject parses a JSON object given as argument or on stdin.
func (c *cli) readObject(arg string) (document.Object, error) {
	data, err := c.readInput(arg)
	if err != nil {
		return nil, err
	}
	return document.Parse(data)
}

func (c *cli) print(v interface{}) error {
	data, err := output.Marshal(v)
	if err != nil {
		return process.Error.Wrap(err)
	}
	data = append(data, '\n')
	_, err = c.out.Write(data)
	return process.Error.Wrap(err)
}
