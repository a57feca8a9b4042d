// cache.go — LRU-кэш свойств схем с TTL.
// Свойства схемы не меняются после завершения загрузки; записи вытесняются
// по размеру и TTL, а загрузка сбрасывает запись своей схемы по окончании.
// Чтение, начатое до сброса, не может положить в кэш свой (возможно неполный)
// результат: запись идёт только при неизменном поколении кэша.
package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/schema-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_schema_cache_hits_total",
		Help: "Общее количество попаданий в кэш свойств схем.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sm_schema_cache_misses_total",
		Help: "Общее количество промахов кэша свойств схем.",
	})
)

// CacheService — кэш свойств схем по schema_id.
type CacheService struct {
	cache *expirable.LRU[string, []*model.SchemaProperty]

	mu         sync.Mutex
	generation uint64
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	return &CacheService{
		cache: expirable.NewLRU[string, []*model.SchemaProperty](maxSize, nil, ttl),
	}
}

// Get возвращает свойства схемы из кэша.
func (c *CacheService) Get(schemaID string) ([]*model.SchemaProperty, bool) {
	val, ok := c.cache.Get(schemaID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет свойства схемы в кэш.
func (c *CacheService) Set(schemaID string, props []*model.SchemaProperty) {
	c.cache.Add(schemaID, props)
}

// Generation возвращает текущее поколение кэша.
// Снимается до чтения из хранилища и передаётся в SetIfCurrent.
func (c *CacheService) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetIfCurrent добавляет свойства, только если с момента снятия gen
// не было ни одного Invalidate. Возвращает true, если запись добавлена.
func (c *CacheService) SetIfCurrent(schemaID string, props []*model.SchemaProperty, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.cache.Add(schemaID, props)
	return true
}

// Len возвращает количество записей в кэше.
func (c *CacheService) Len() int {
	return c.cache.Len()
}

// Invalidate удаляет свойства схемы из кэша и сдвигает поколение.
// Вызывается по завершении загрузки: чтения, начатые до этого момента,
// в кэш уже не попадут.
func (c *CacheService) Invalidate(schemaID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache.Remove(schemaID)
}
