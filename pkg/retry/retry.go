// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

// Package retry repeats operations that failed with a retryable store error.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/docstore/pkg/docerr"
)

var mon = monkit.Package()

// Config contains configurable values for retrying.
type Config struct {
	MaxRetries      int           `help:"how many times a conflicting operation is repeated" default:"5"`
	InitialInterval time.Duration `help:"delay before the first retry" default:"10ms"`
	MaxInterval     time.Duration `help:"upper bound of the delay between retries" default:"1s"`
}

// Do calls fn until it succeeds, fails with an error that is not retryable
// or fails config.MaxRetries+1 times. In the last case the final error is
// wrapped in docerr.MaxRetriesExceeded.
func Do(ctx context.Context, log *zap.Logger, config Config, fn func(ctx context.Context) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	policy := backoff.NewExponentialBackOff()
	if config.InitialInterval > 0 {
		policy.InitialInterval = config.InitialInterval
	}
	if config.MaxInterval > 0 {
		policy.MaxInterval = config.MaxInterval
	}
	policy.MaxElapsedTime = 0

	attempt := 0
	var last error
	err = backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !docerr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		last = err
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(config.MaxRetries, 0))), ctx),
		func(err error, wait time.Duration) {
			mon.Counter("retries").Inc(1)
			log.Debug("retrying", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		})

	switch {
	case err == nil:
		return nil
	case docerr.MaxRetriesExceeded.Has(err):
		return err
	case docerr.IsRetryable(err):
		log.Warn("giving up", zap.Int("attempts", attempt), zap.Error(last))
		return docerr.MaxRetriesExceeded.Wrap(err)
	default:
		return err
	}
}
