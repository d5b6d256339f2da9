// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package storelogger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"storj.io/docstore/internal/testcontext"
	"storj.io/docstore/private/kvstore"
	"storj.io/docstore/private/kvstore/teststore"
	"storj.io/docstore/private/kvstore/testsuite"
)

func TestSuite(t *testing.T) {
	store := teststore.New()
	logged := New(zap.NewNop(), store)
	testsuite.RunTests(t, logged)
}

func TestLogsOperations(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	core, logs := observer.New(zapcore.DebugLevel)
	logged := New(zap.New(core), teststore.New())

	require.NoError(t, kvstore.Update(ctx, logged, func(tx kvstore.Txn) error {
		return tx.Put(ctx, kvstore.Key("k"), kvstore.Value("v"))
	}))

	var messages []string
	for _, entry := range logs.All() {
		messages = append(messages, entry.Message)
	}
	require.Equal(t, []string{"Begin", "Put", "Commit"}, messages)
}
