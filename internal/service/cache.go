// cache.go — LRU-кэш составных отчётов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_cache_hits_total",
		Help: "Общее количество попаданий в кэш отчётов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_cache_misses_total",
		Help: "Общее количество промахов кэша отчётов.",
	})
	cacheStaleSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rm_cache_stale_skips_total",
		Help: "Снимки отчётов, не сохранённые в кэш из-за параллельной мутации.",
	})
)

// ReportCache — кэш составных отчётов (заголовок + фото + автор) по id.
// Каждая мутация отчёта удаляет его из кэша и сдвигает поколение:
// снимок, прочитанный до инвалидации, в кэш уже не попадёт.
type ReportCache struct {
	mu    sync.Mutex
	gen   uint64
	cache *expirable.LRU[int64, *model.Report]
}

// NewReportCache создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewReportCache(maxSize int, ttl time.Duration) *ReportCache {
	return &ReportCache{cache: expirable.NewLRU[int64, *model.Report](maxSize, nil, ttl)}
}

// Get возвращает отчёт из кэша. Обновляет метрики hit/miss.
func (c *ReportCache) Get(id int64) (*model.Report, bool) {
	val, ok := c.cache.Get(id)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Generation возвращает текущее поколение кэша. Берётся до чтения из БД
// и передаётся в Set.
func (c *ReportCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Set кладёт отчёт в кэш, если с момента gen не было инвалидаций.
// Возвращает false, если снимок устарел и не сохранён.
func (c *ReportCache) Set(r *model.Report, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		cacheStaleSkipsTotal.Inc()
		return false
	}
	c.cache.Add(r.ID, r)
	return true
}

// Invalidate удаляет отчёт из кэша и сдвигает поколение.
func (c *ReportCache) Invalidate(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cache.Remove(id)
}

// Len возвращает количество записей в кэше.
func (c *ReportCache) Len() int {
	return c.cache.Len()
}
