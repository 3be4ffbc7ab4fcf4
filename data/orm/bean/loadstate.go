package bean

import "ormcore/data/orm"

// LoadState 记录实例上哪些属性已从存储读取或被显式赋值。
//
// 以模型声明下标为位的位图实现；条目集合始终是模型声明属性的子集。
// 所有操作幂等且不会失败。
type LoadState struct {
	model *orm.ModelMeta
	owner IBean
	bits  []uint64
}

// NewLoadState 为 owner 创建空的加载状态，owner 可为 nil
func NewLoadState(model *orm.ModelMeta, owner IBean) *LoadState {
	n := len(model.Properties())
	return &LoadState{
		model: model,
		owner: owner,
		bits:  make([]uint64, (n+63)/64),
	}
}

// Owner 所描述的实例
func (s *LoadState) Owner() IBean { return s.owner }

// IsLoaded 属性是否已加载；未声明的属性返回 false
func (s *LoadState) IsLoaded(name string) bool {
	p, ok := s.model.Property(name)
	if !ok {
		return false
	}
	return s.IsLoadedIndex(p.Index())
}

// MarkLoaded 标记属性已加载；未声明的属性忽略
func (s *LoadState) MarkLoaded(name string) {
	if p, ok := s.model.Property(name); ok {
		s.MarkLoadedIndex(p.Index())
	}
}

func (s *LoadState) IsLoadedIndex(i int) bool {
	if i < 0 || i/64 >= len(s.bits) {
		return false
	}
	return s.bits[i/64]&(1<<(uint(i)%64)) != 0
}

func (s *LoadState) MarkLoadedIndex(i int) {
	if i < 0 || i >= len(s.model.Properties()) {
		return
	}
	s.bits[i/64] |= 1 << (uint(i) % 64)
}

// UnmarkLoadedIndex 清除标记，写入失败后恢复实例时使用
func (s *LoadState) UnmarkLoadedIndex(i int) {
	if i < 0 || i/64 >= len(s.bits) {
		return
	}
	s.bits[i/64] &^= 1 << (uint(i) % 64)
}

// LoadedProperties 按声明顺序返回已加载的属性名
func (s *LoadState) LoadedProperties() []string {
	var out []string
	for _, p := range s.model.Properties() {
		if s.IsLoadedIndex(p.Index()) {
			out = append(out, p.Name)
		}
	}
	return out
}

// Reset 清空全部标记
func (s *LoadState) Reset() {
	for i := range s.bits {
		s.bits[i] = 0
	}
}

// Clone 复制位图，owner 置为 nil
func (s *LoadState) Clone() *LoadState {
	return &LoadState{model: s.model, bits: append([]uint64(nil), s.bits...)}
}
