// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package live

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// keyPrefix namespaces usage keys inside the redis database.
const keyPrefix = "docstore:usage:"

type redisCache struct {
	log *zap.Logger
	db  *redis.Client
}

// newRedisCache connects to a redis://host:port?db=N[&password=P] address.
func newRedisCache(ctx context.Context, log *zap.Logger, address string) (*redisCache, error) {
	redisurl, err := url.Parse(address)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if redisurl.Scheme != "redis" {
		return nil, Error.New("not a redis:// formatted address")
	}

	q := redisurl.Query()
	db := 0
	if s := q.Get("db"); s != "" {
		db, err = strconv.Atoi(s)
		if err != nil {
			return nil, Error.New("invalid db %q", s)
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisurl.Host,
		Password: q.Get("password"),
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %v", err), client.Close())
	}

	log.Debug("connected to redis", zap.String("address", redisurl.Host), zap.Int("db", db))
	return &redisCache{log: log, db: client}, nil
}

func (cache *redisCache) GetUsage(ctx context.Context, owner string) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	total, err := cache.db.Get(ctx, keyPrefix+owner).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return total, Error.Wrap(err)
}

func (cache *redisCache) AddUsage(ctx context.Context, owner string, delta int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(cache.db.IncrBy(ctx, keyPrefix+owner, delta).Err())
}

func (cache *redisCache) SetUsage(ctx context.Context, owner string, total int64) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(cache.db.Set(ctx, keyPrefix+owner, total, 0).Err())
}

func (cache *redisCache) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := cache.db.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, Error.Wrap(iter.Err())
}

func (cache *redisCache) GetAllTotals(ctx context.Context) (_ map[string]int64, err error) {
	defer mon.Task()(&ctx)(&err)

	keys, err := cache.keys(ctx)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int64, len(keys))
	for _, key := range keys {
		total, err := cache.db.Get(ctx, key).Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, Error.New("could not get total for %q: %v", key, err)
		}
		totals[strings.TrimPrefix(key, keyPrefix)] = total
	}
	return totals, nil
}

func (cache *redisCache) ResetTotals(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	cache.log.Info("Resetting live usage data")

	keys, err := cache.keys(ctx)
	if err != nil || len(keys) == 0 {
		return err
	}
	return Error.Wrap(cache.db.Del(ctx, keys...).Err())
}

func (cache *redisCache) Close() error {
	return Error.Wrap(cache.db.Close())
}
