package postgres

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/rostersync/internal/metrics"
)

const roleCacheSize = 64

// roleLoadTimeout bounds a shared role query. The query runs detached from
// the caller that started it, since other records may be waiting on it.
const roleLoadTimeout = 5 * time.Second

type roleLoader func(ctx context.Context, name string) (*int64, error)

// roleEntry wraps the lookup result so a missing role is cached too.
type roleEntry struct {
	id *int64
}

// roleCache memoizes role id lookups. Every inserted person needs the default
// role, so without it each Case 1 record would cost an extra round trip.
type roleCache struct {
	load  roleLoader
	lru   *expirable.LRU[string, roleEntry]
	group singleflight.Group
}

func newRoleCache(load roleLoader, ttl time.Duration) *roleCache {
	return &roleCache{
		load: load,
		lru:  expirable.NewLRU[string, roleEntry](roleCacheSize, nil, ttl),
	}
}

func (c *roleCache) get(ctx context.Context, name string) (*int64, error) {
	if e, ok := c.lru.Get(name); ok {
		metrics.RoleCacheLookups.WithLabelValues("hit").Inc()
		return e.id, nil
	}
	metrics.RoleCacheLookups.WithLabelValues("miss").Inc()

	ch := c.group.DoChan(name, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), roleLoadTimeout)
		defer cancel()

		id, err := c.load(loadCtx, name)
		if err != nil {
			return nil, err
		}
		c.lru.Add(name, roleEntry{id: id})
		return id, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*int64), nil
	}
}
