// cache.go — кэш записей о файлах перед FileRecordStore.GetByID.
// Построен на hashicorp/golang-lru/v2/expirable: LRU-вытеснение и TTL.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/filevault/internal/domain/model"
)

var (
	recordCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_record_cache_lookups_total",
		Help: "Обращения к кэшу записей о файлах по результату (hit, miss).",
	}, []string{"result"})
	recordCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_record_cache_evictions_total",
		Help: "Записи, вытесненные из кэша по размеру, TTL или инвалидации.",
	})
)

// RecordCache — кэш записей о файлах по id.
// Хранит копии: вызывающий может свободно менять полученную запись.
type RecordCache struct {
	lru *expirable.LRU[string, *model.FileRecord]
}

// NewRecordCache создаёт кэш на size записей; ttl = 0 — без истечения.
func NewRecordCache(size int, ttl time.Duration) *RecordCache {
	onEvict := func(string, *model.FileRecord) { recordCacheEvictions.Inc() }
	return &RecordCache{lru: expirable.NewLRU[string, *model.FileRecord](size, onEvict, ttl)}
}

// Lookup возвращает копию записи, если она есть в кэше.
func (c *RecordCache) Lookup(id string) (*model.FileRecord, bool) {
	rec, ok := c.lru.Get(id)
	if !ok {
		recordCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	recordCacheLookups.WithLabelValues("hit").Inc()
	return rec.Clone(), true
}

// Put кладёт в кэш копию записи, заменяя прежнюю.
func (c *RecordCache) Put(rec *model.FileRecord) {
	c.lru.Add(rec.ID, rec.Clone())
}

// Invalidate убирает запись из кэша.
func (c *RecordCache) Invalidate(id string) {
	c.lru.Remove(id)
}

// Len — число записей в кэше.
func (c *RecordCache) Len() int {
	return c.lru.Len()
}
