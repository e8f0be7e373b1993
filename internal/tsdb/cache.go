package tsdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/clustermon/clustermon/internal/model"
)

// cache is the optional read-through cache in front of Latest(): a
// dashboard polling /node/metrics every second would otherwise re-run
// the full per-family fan-out on every refresh.
type cache struct {
	client *redis.Client
	ttl    time.Duration
}

func newCache(addr string, ttl time.Duration) *cache {
	return &cache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

func (c *cache) Close() error { return c.client.Close() }

func cacheKey(hostIP string) string { return "clustermon:latest:" + hostIP }

// getLatest returns a cached NodeResourceSample. A cache miss or a Redis
// error (network, serialization) is treated identically: fall through to
// the backing store, since the cache is a pure latency optimization.
func (c *cache) getLatest(ctx context.Context, hostIP string) (model.NodeResourceSample, bool) {
	data, err := c.client.Get(ctx, cacheKey(hostIP)).Bytes()
	if err != nil {
		return model.NodeResourceSample{}, false
	}
	var sample model.NodeResourceSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return model.NodeResourceSample{}, false
	}
	return sample, true
}

func (c *cache) putLatest(ctx context.Context, hostIP string, sample model.NodeResourceSample) {
	data, err := json.Marshal(sample)
	if err != nil {
		return
	}
	c.client.Set(ctx, cacheKey(hostIP), data, c.ttl)
}
