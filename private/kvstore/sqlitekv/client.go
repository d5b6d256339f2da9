// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"net/url"

	"github.com/mattn/go-sqlite3"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/docstore/private/kvstore"
)

var mon = monkit.Package()

// Error is the default sqlitekv errs class.
var Error = errs.Class("sqlitekv")

const schema = `CREATE TABLE IF NOT EXISTS kv (
	k BLOB NOT NULL PRIMARY KEY,
	v BLOB NOT NULL
) WITHOUT ROWID`

// Client is the entrypoint into a sqlite data store.
//
// Writes go through a single connection that starts transactions with
// BEGIN IMMEDIATE, so writers serialize inside sqlite instead of failing
// half way. Reads use a separate pool and see the last committed state.
type Client struct {
	log    *zap.Logger
	Path   string
	writer *sql.DB
	reader *sql.DB
}

// New opens or creates the sqlite database at path.
func New(log *zap.Logger, path string) (*Client, error) {
	writer, err := sql.Open("sqlite3", dsn(path, url.Values{
		"_txlock":       {"immediate"},
		"_journal_mode": {"WAL"},
		"_busy_timeout": {"5000"},
	}))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	writer.SetMaxOpenConns(1)

	if _, err := writer.Exec(schema); err != nil {
		return nil, errs.Combine(convertError(err), writer.Close())
	}

	reader, err := sql.Open("sqlite3", dsn(path, url.Values{
		"mode":          {"ro"},
		"_busy_timeout": {"5000"},
	}))
	if err != nil {
		return nil, errs.Combine(Error.Wrap(err), writer.Close())
	}

	log.Debug("opened sqlite store", zap.String("path", path))

	return &Client{
		log:    log,
		Path:   path,
		writer: writer,
		reader: reader,
	}, nil
}

func dsn(path string, params url.Values) string {
	return "file:" + path + "?" + params.Encode()
}

// Close closes the client.
func (client *Client) Close() error {
	return Error.Wrap(errs.Combine(client.reader.Close(), client.writer.Close()))
}

// Begin starts a sqlite transaction.
func (client *Client) Begin(ctx context.Context, writable bool) (_ kvstore.Txn, err error) {
	defer mon.Task()(&ctx)(&err)

	db := client.reader
	if writable {
		db = client.writer
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, convertError(err)
	}
	return &txn{tx: tx, writable: writable}, nil
}

type txn struct {
	tx       *sql.Tx
	writable bool
	done     bool
}

func (tx *txn) Writable() bool { return tx.writable }

func (tx *txn) check(write bool) error {
	if tx.done {
		return kvstore.ErrTxDone.New("")
	}
	if write && !tx.writable {
		return kvstore.ErrReadOnly.New("")
	}
	return nil
}

// Get looks up the provided key and returns its value (or an error).
func (tx *txn) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := tx.check(false); err != nil {
		return nil, err
	}
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}

	var value []byte
	err = tx.tx.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, []byte(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kvstore.ErrKeyNotFound.New("%q", key)
	}
	if err != nil {
		return nil, convertError(err)
	}
	return value, nil
}

// Put sets the value for the provided key.
func (tx *txn) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := tx.check(true); err != nil {
		return err
	}
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}
	if value == nil {
		value = kvstore.Value{}
	}

	_, err = tx.tx.ExecContext(ctx, `
		INSERT INTO kv (k, v) VALUES (?, ?)
		ON CONFLICT (k) DO UPDATE SET v = excluded.v
	`, []byte(key), []byte(value))
	return convertError(err)
}

// Delete deletes the given key and its associated value.
func (tx *txn) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := tx.check(true); err != nil {
		return err
	}
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	result, err := tx.tx.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, []byte(key))
	if err != nil {
		return convertError(err)
	}
	numRows, err := result.RowsAffected()
	if err != nil {
		return convertError(err)
	}
	if numRows == 0 {
		return kvstore.ErrKeyNotFound.New("%q", key)
	}
	return nil
}

// Iterate iterates over items based on opts.
//
// The matching rows are read before fn is called so that fn may issue
// further statements on the same transaction.
func (tx *txn) Iterate(ctx context.Context, opts kvstore.IterateOptions, fn func(context.Context, kvstore.Iterator) error) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := tx.check(false); err != nil {
		return err
	}

	items, err := tx.load(ctx, opts)
	if err != nil {
		return err
	}

	next := 0
	return fn(ctx, kvstore.IteratorFunc(func(ctx context.Context, item *kvstore.Item) bool {
		if next >= len(items) {
			return false
		}
		item.Key = append(item.Key[:0], items[next].Key...)
		item.Value = append(item.Value[:0], items[next].Value...)
		next++
		return true
	}))
}

func (tx *txn) load(ctx context.Context, opts kvstore.IterateOptions) (items kvstore.Items, err error) {
	query := `SELECT k, v FROM kv WHERE k >= ?`
	args := []interface{}{[]byte(opts.Prefix)}

	if len(opts.Prefix) > 0 {
		if end := kvstore.AfterPrefix(opts.Prefix); end != nil {
			query += ` AND k < ?`
			args = append(args, []byte(end))
		}
	}

	if opts.First != nil {
		if opts.Reverse {
			query += ` AND k <= ?`
		} else {
			query += ` AND k >= ?`
		}
		args = append(args, []byte(opts.First))
	}

	if opts.Reverse {
		query += ` ORDER BY k DESC`
	} else {
		query += ` ORDER BY k ASC`
	}

	rows, err := tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, convertError(err)
	}
	defer func() { err = errs.Combine(err, convertError(rows.Close())) }()

	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, convertError(err)
		}
		items = append(items, kvstore.Item{Key: key, Value: value})
	}
	return items, convertError(rows.Err())
}

// Commit commits the sqlite transaction.
func (tx *txn) Commit(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	if tx.done {
		return kvstore.ErrTxDone.New("")
	}
	tx.done = true
	return convertError(tx.tx.Commit())
}

// Rollback discards the sqlite transaction.
func (tx *txn) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	return convertError(tx.tx.Rollback())
}

// convertError maps sqlite failures onto the kvstore error classes.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrTxDone) {
		return kvstore.ErrTxDone.Wrap(err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return kvstore.ErrConflict.Wrap(err)
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return kvstore.ErrCorrupted.Wrap(err)
		case sqlite3.ErrReadonly:
			return kvstore.ErrReadOnly.Wrap(err)
		}
	}
	return Error.Wrap(err)
}
