// Package cache 进程内的泛型 LRU 缓存，用于缓存不可变的元数据派生结果
// （例如已解析的属性路径），不用于缓存实体数据。
package cache

import (
	"fmt"
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Cache 在 simplelru 之上增加统计、加载与容量驱逐回调，并发安全。
//
//	paths := cache.New[string, *path.ExpressionPath](cache.Config{
//	    Name:    "expression_path",
//	    MaxSize: 1024,
//	})
//	ep, err := paths.GetOrLoad("customer.name", func() (*path.ExpressionPath, error) {
//	    return path.Resolve(customer, "customer.name")
//	})
type Cache[K comparable, V any] struct {
	config Config

	mu     sync.Mutex
	lru    *simplelru.LRU[K, V]
	adding bool
	stats  Stats
}

// Config 缓存配置
type Config struct {
	// Name 用于 String 输出
	Name string

	// MaxSize 最大条目数，0 表示不限
	MaxSize int

	// OnEvict 因容量被驱逐时回调，持锁调用，不得访问同一缓存
	OnEvict func(key, value any)
}

// Stats 缓存统计信息
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// New 创建缓存
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	size := config.MaxSize
	if size <= 0 {
		size = math.MaxInt
	}
	c := &Cache[K, V]{config: config}
	// size 恒为正，NewLRU 不会失败
	c.lru, _ = simplelru.NewLRU[K, V](size, c.evicted)
	return c
}

// evicted simplelru 在 Remove/Purge 时也会回调，这里只统计 Add 引起的容量驱逐
func (c *Cache[K, V]) evicted(key K, value V) {
	if !c.adding {
		return
	}
	c.stats.Evictions++
	if c.config.OnEvict != nil {
		c.config.OnEvict(key, value)
	}
}

// Get 获取缓存值，命中时条目移到最近使用位置
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *Cache[K, V]) getLocked(key K) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
	return v, ok
}

// Set 设置缓存值，超出容量时驱逐最久未使用的条目
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *Cache[K, V]) setLocked(key K, value V) {
	c.adding = true
	c.lru.Add(key, value)
	c.adding = false
}

// GetOrLoad 未命中时调用 load 并缓存结果；load 返回错误时不缓存。
//
// load 持锁执行，同一缓存上的并发加载串行化。
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.getLocked(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		var zero V
		return zero, err
	}
	c.setLocked(key, v)
	return v, nil
}

// Delete 删除条目，返回是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Clear 清空缓存，不触发驱逐回调
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats 统计信息副本
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.lru.Len()
	return s
}

// HitRate 命中率
func (c *Cache[K, V]) HitRate() float64 {
	s := c.Stats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (c *Cache[K, V]) String() string {
	s := c.Stats()
	return fmt.Sprintf("Cache[%s]: size=%d/%d hits=%d misses=%d hit_rate=%.2f%% evictions=%d",
		c.config.Name, s.Size, c.config.MaxSize, s.Hits, s.Misses, c.HitRate()*100, s.Evictions)
}
