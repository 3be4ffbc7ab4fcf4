package path

import (
	"ormcore/cache"
	"ormcore/data/orm"
)

type cacheKey struct {
	model *orm.ModelMeta
	path  string
}

// Cache 已解析路径的缓存，按 (模型, 路径) 索引，并发安全。
// 解析失败不缓存。
type Cache struct {
	paths *cache.Cache[cacheKey, *ExpressionPath]
}

// NewCache 创建容量为 size 的路径缓存，size <= 0 时不限容量
func NewCache(size int) *Cache {
	return &Cache{
		paths: cache.New[cacheKey, *ExpressionPath](cache.Config{
			Name:    "expression_path",
			MaxSize: size,
		}),
	}
}

// Resolve 命中缓存时直接返回，否则解析并缓存
func (c *Cache) Resolve(root *orm.ModelMeta, dotPath string) (*ExpressionPath, error) {
	return c.paths.GetOrLoad(cacheKey{model: root, path: dotPath}, func() (*ExpressionPath, error) {
		return Resolve(root, dotPath)
	})
}

// Stats 命中、未命中与驱逐统计
func (c *Cache) Stats() cache.Stats {
	return c.paths.Stats()
}
