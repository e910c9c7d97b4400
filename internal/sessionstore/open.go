package sessionstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scottscharl/scottystack/internal/logutil"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverNone   = "none"
)

// Drivers lists the accepted values of Options.Driver.
var Drivers = []string{DriverFile, DriverSQLite, DriverRedis, DriverNone}

type Options struct {
	Driver        string
	Path          string // file and sqlite
	RedisAddr     string
	RedisPassword string
	RedisKey      string
}

// Open builds a Store for opts.Driver. The "none" driver keeps the session
// in memory only, so nothing survives a restart.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = logutil.Discard()
	}
	log := logutil.WithFields(logger, "component", "sessionstore", "driver", opts.Driver)

	var b Backend
	switch opts.Driver {
	case DriverFile, "":
		path := opts.Path
		if path == "" {
			path = DefaultFilePath()
		}
		b = NewFile(path)

	case DriverSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite session store needs a path")
		}
		sb, err := OpenSQLite(opts.Path, log)
		if err != nil {
			return nil, err
		}
		if n, err := sb.DeleteExpired(ctx, time.Now()); err != nil {
			log.Warn("failed to prune expired sessions", "err", err)
		} else if n > 0 {
			log.Debug("pruned expired sessions", "count", n)
		}
		b = sb

	case DriverRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, logutil.LogAndWrapErr(log, "failed to reach redis", err, "addr", opts.RedisAddr)
		}
		b = NewRedis(rdb, opts.RedisKey)

	case DriverNone:
		b = NewMemory()

	default:
		return nil, fmt.Errorf("unknown session store driver %q", opts.Driver)
	}

	return New(b, WithLogger(log)), nil
}
