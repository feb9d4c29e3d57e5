package conn

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
)

// RedisOption defines connection options for Redis.
type RedisOption struct {
	Addr     string `json:"addr"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// NewRedis opens a client and verifies it with a ping.
func NewRedis(ctx context.Context, option RedisOption) (*redis.Client, error) {
	if option.Addr == "" {
		return nil, errors.New("redis addr is empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     option.Addr,
		Password: option.Password,
		DB:       option.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis %s", option.Addr)
	}
	return rdb, nil
}
