package sink

import (
	"context"
	"net"
	"time"

	"github.com/cbsinteractive/conversion-client/job"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

// KeyPrefix namespaces every key the redis sink writes
const KeyPrefix = "convert:"

type Options struct {
	Addr     string
	DB       int
	Password string

	// TTL expires saved files; zero keeps them
	TTL time.Duration
}

// Redis saves files as hashes with "content_type" and "data" fields, so
// other tools can pick up converted files without touching the disk.
type Redis struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewRedis(opt *Options) (*Redis, error) {
	if opt == nil {
		opt = &Options{}
	}
	addr := opt.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "6379")
	}
	return &Redis{
		rc: redis.NewClient(&redis.Options{
			Addr:     addr,
			DB:       opt.DB,
			Password: opt.Password,
		}),
		ttl: opt.TTL,
	}, nil
}

// Key is the redis key a file name is stored under
func Key(name string) string {
	return KeyPrefix + name
}

func (r *Redis) Save(ctx context.Context, name string, p job.Payload) error {
	key := Key(name)
	pipe := r.rc.WithContext(ctx).TxPipeline()
	pipe.Del(key)
	pipe.HMSet(key, map[string]interface{}{
		"content_type": p.ContentType,
		"data":         p.Data,
	})
	if r.ttl > 0 {
		pipe.Expire(key, r.ttl)
	}
	if _, err := pipe.Exec(); err != nil {
		return errors.Wrapf(err, "saving %s to redis", name)
	}
	return nil
}

// Addr is the address the client connects to
func (r *Redis) Addr() string {
	return r.rc.Options().Addr
}

func (r *Redis) Close() error {
	return r.rc.Close()
}
