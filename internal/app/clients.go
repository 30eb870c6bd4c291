package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/marketlake/internal/clients/marketplace"
	httpH "github.com/yungbote/marketlake/internal/http/handlers"
	redisx "github.com/yungbote/marketlake/internal/clients/redis"
	"github.com/yungbote/marketlake/internal/objectstore"
	"github.com/yungbote/marketlake/internal/platform/gcp"
	"github.com/yungbote/marketlake/internal/platform/logger"
	"github.com/yungbote/marketlake/internal/temporalx"
)

// Clients are the external systems a process talks to. Redis and Temporal
// are optional and nil when unconfigured.
type Clients struct {
	Objects     objectstore.Store
	Marketplace marketplace.Client
	Redis       *goredis.Client
	Temporal    temporalsdkclient.Client

	bucket *gcp.BucketStore
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Lake storage
	if cfg.Storage.IsGCSMode() {
		bucket, err := gcp.NewBucketStore(log, cfg.Storage)
		if err != nil {
			return Clients{}, fmt.Errorf("init bucket store: %w", err)
		}
		c.bucket = bucket
		c.Objects = bucket
	} else {
		fs, err := objectstore.NewFilesystem(cfg.Storage.LocalRoot)
		if err != nil {
			return Clients{}, fmt.Errorf("init filesystem store: %w", err)
		}
		log.Info("Object storage initialized", "mode", cfg.Storage.Mode, "root", cfg.Storage.LocalRoot)
		c.Objects = fs
	}

	// Marketplace
	market, err := marketplace.New(log, cfg.Marketplace)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init marketplace client: %w", err)
	}
	c.Marketplace = market

	// Redis
	rdb, err := redisx.NewClient(log, cfg.Redis)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	c.Redis = rdb

	// Temporal
	tc, err := temporalx.NewClient(log, cfg.Temporal)
	if err != nil {
		c.Close()
		return Clients{}, fmt.Errorf("init temporal: %w", err)
	}
	c.Temporal = tc

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.bucket != nil {
		_ = c.bucket.Close()
	}
}

// readinessChecks registers a probe for every optional client that is wired.
func readinessChecks(c Clients) *httpH.HealthHandler {
	h := httpH.NewHealthHandler()
	if c.Redis != nil {
		h.WithCheck("redis", func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() })
	}
	if c.Temporal != nil {
		h.WithCheck("temporal", func(ctx context.Context) error {
			_, err := c.Temporal.CheckHealth(ctx, &temporalsdkclient.CheckHealthRequest{})
			return err
		})
	}
	return h
}
