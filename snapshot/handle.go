package snapshot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

var (
	// ErrStaleHandle handle 由更早的快照签发,对应的 DOM 节点可能已被替换
	ErrStaleHandle = errors.New("stale handle")
	// ErrUnknownHandle handle 从未被签发
	ErrUnknownHandle = errors.New("unknown handle")
)

// HandleKind 节点种类,保证元素和文本节点的 handle 不会冲突
type HandleKind string

const (
	KindElement HandleKind = "element"
	KindText    HandleKind = "text"
)

// Handle 快照内节点的不透明标识,格式 kind:counter
type Handle struct {
	Kind HandleKind
	Seq  uint64
}

func (h Handle) String() string {
	return string(h.Kind) + ":" + strconv.FormatUint(h.Seq, 10)
}

func (h Handle) IsZero() bool {
	return h.Seq == 0
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(b []byte) error {
	parsed, err := ParseHandle(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandle 解析 "element:12" / "text:3"
func ParseHandle(s string) (Handle, error) {
	kind, num, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Handle{}, fmt.Errorf("invalid handle %q", s)
	}
	k := HandleKind(kind)
	if k != KindElement && k != KindText {
		return Handle{}, fmt.Errorf("invalid handle kind %q", kind)
	}
	seq, err := strconv.ParseUint(num, 10, 64)
	if err != nil || seq == 0 {
		return Handle{}, fmt.Errorf("invalid handle counter %q", num)
	}
	return Handle{Kind: k, Seq: seq}, nil
}

// HandleAllocator 单调递增的 handle 计数器,元素与文本共用一个序列
type HandleAllocator struct {
	seq atomic.Uint64
}

func (a *HandleAllocator) Next(kind HandleKind) Handle {
	return Handle{Kind: kind, Seq: a.seq.Add(1)}
}

// Mark 返回下一个将被签发的序号
func (a *HandleAllocator) Mark() uint64 {
	return a.seq.Load() + 1
}

// processAllocator 未显式指定时使用,保证 handle 在进程内唯一
var processAllocator HandleAllocator
