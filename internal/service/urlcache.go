// urlcache.go — кэш подписанных URL на чтение.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/mediadeck/internal/blobstore"
)

// Prometheus-метрики кэша.
var (
	urlCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "md_url_cache_hits_total",
		Help: "Общее количество попаданий в кэш подписанных URL.",
	})
	urlCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "md_url_cache_misses_total",
		Help: "Общее количество промахов кэша подписанных URL.",
	})
)

// URLCache выдаёт подписанные URL на чтение, кэшируя их по ключу объекта.
// TTL кэша должен быть меньше TTL подписи, иначе клиент получит
// просроченный URL.
type URLCache struct {
	store   blobstore.Store
	urlTTL  time.Duration
	entries *expirable.LRU[string, string]
}

// NewURLCache создаёт кэш на maxSize ключей.
func NewURLCache(store blobstore.Store, maxSize int, cacheTTL, urlTTL time.Duration) *URLCache {
	return &URLCache{
		store:   store,
		urlTTL:  urlTTL,
		entries: expirable.NewLRU[string, string](maxSize, nil, cacheTTL),
	}
}

// Get возвращает URL из кэша или подписывает новый.
func (c *URLCache) Get(ctx context.Context, key string) (string, error) {
	if u, ok := c.entries.Get(key); ok {
		urlCacheHitsTotal.Inc()
		return u, nil
	}
	urlCacheMissesTotal.Inc()

	u, err := c.store.PresignGet(ctx, key, c.urlTTL)
	if err != nil {
		return "", err
	}
	c.entries.Add(key, u)
	return u, nil
}

// Invalidate удаляет URL объекта из кэша (объект удалён или заменён).
func (c *URLCache) Invalidate(key string) {
	c.entries.Remove(key)
}
