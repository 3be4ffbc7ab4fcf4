package orm

import (
	"fmt"
	"math/bits"
	"strings"
)

// Capability 执行器可选支持的能力。
// 缺少能力时由 Server 返回包装 ErrUnsupported 的错误，不做降级。
type Capability uint16

const (
	CapabilityBasicCRUD Capability = 1 << iota
	CapabilityAssociationWrite
	CapabilityTransaction
	CapabilityOptimisticLock
	// CapabilitySnapshot 可按主键读取已持久化的行，用于游离实体的比较
	CapabilitySnapshot
	// CapabilityReturning 插入时可通过 RETURNING 取回主键
	CapabilityReturning
)

var capabilityNames = map[Capability]string{
	CapabilityBasicCRUD:        "basic_crud",
	CapabilityAssociationWrite: "association_write",
	CapabilityTransaction:      "transaction",
	CapabilityOptimisticLock:   "optimistic_lock",
	CapabilitySnapshot:         "snapshot",
	CapabilityReturning:        "returning",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("capability(%d)", uint16(c))
}

// Capabilities 能力位集合
type Capabilities uint16

// NewCapabilities 构造能力集合
func NewCapabilities(caps ...Capability) Capabilities {
	var set Capabilities
	for _, c := range caps {
		set |= Capabilities(c)
	}
	return set
}

// Supports 是否支持 c
func (s Capabilities) Supports(c Capability) bool {
	return c != 0 && s&Capabilities(c) == Capabilities(c)
}

// With 返回追加 c 后的集合
func (s Capabilities) With(c Capability) Capabilities {
	return s | Capabilities(c)
}

// Require 缺少任一能力时返回 ErrUnsupported，错误信息列出缺少的能力
func (s Capabilities) Require(caps ...Capability) error {
	var missing []string
	for _, c := range caps {
		if !s.Supports(c) {
			missing = append(missing, c.String())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupported, strings.Join(missing, ", "))
}

func (s Capabilities) String() string {
	names := make([]string, 0, bits.OnesCount16(uint16(s)))
	for c := Capability(1); c != 0 && c <= CapabilityReturning; c <<= 1 {
		if s.Supports(c) {
			names = append(names, c.String())
		}
	}
	return "[" + strings.Join(names, " ") + "]"
}
