package exit

import (
	"fmt"
	"sort"
	"sync"
)

// Book 是在管持仓登记簿。tick 循环是唯一写入方（开仓登记、OnTick 推进），
// 运维接口通过 Snapshot 拿值拷贝，互不阻塞。
type Book struct {
	mu        sync.RWMutex
	positions map[string]*Position
}

func NewBook() *Book {
	return &Book{positions: make(map[string]*Position)}
}

// Add 登记新持仓，ID 重复视为调用方错误。
func (b *Book) Add(pos *Position) error {
	if pos == nil || pos.ID == "" {
		return fmt.Errorf("持仓缺少 ID，拒绝登记")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.positions[pos.ID]; ok {
		return fmt.Errorf("持仓 %s 已登记", pos.ID)
	}
	b.positions[pos.ID] = pos
	return nil
}

func (b *Book) Get(id string) (*Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos, ok := b.positions[id]
	return pos, ok
}

// Remove 注销持仓（平仓归档后调用）。
func (b *Book) Remove(id string) {
	b.mu.Lock()
	delete(b.positions, id)
	b.mu.Unlock()
}

// Open 返回全部未平仓持仓，按开仓时间（同刻按 ID）排序，tick 循环顺序遍历。
func (b *Book) Open() []*Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Position, 0, len(b.positions))
	for _, pos := range b.positions {
		if !pos.Closed() {
			out = append(out, pos)
		}
	}
	sortPositions(out)
	return out
}

// OpenByToken 返回某标的的未平仓持仓。
func (b *Book) OpenByToken(token int64) []*Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Position, 0, 2)
	for _, pos := range b.positions {
		if !pos.Closed() && pos.Instrument.Token == token {
			out = append(out, pos)
		}
	}
	sortPositions(out)
	return out
}

// Snapshot 返回全部持仓的值拷贝（含已平仓），供运维接口序列化。
func (b *Book) Snapshot() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

func sortPositions(positions []*Position) {
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].EntryTime.Equal(positions[j].EntryTime) {
			return positions[i].ID < positions[j].ID
		}
		return positions[i].EntryTime.Before(positions[j].EntryTime)
	})
}
