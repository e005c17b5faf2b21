package localstore

import (
	"context"
	"sync"
)

// Memory is an in-process store. Use View to open views of it.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	broker *Broker
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte), broker: NewBroker()}
}

// View opens a new view of the store.
func (m *Memory) View() *MemoryView {
	return &MemoryView{mem: m, id: m.broker.newView()}
}

type MemoryView struct {
	mem *Memory
	id  uint64
}

func (v *MemoryView) Get(_ context.Context, key string) ([]byte, bool, error) {
	v.mem.mu.RLock()
	defer v.mem.mu.RUnlock()
	val, ok := v.mem.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), val...), true, nil
}

func (v *MemoryView) Set(_ context.Context, key string, value []byte) error {
	val := append([]byte(nil), value...)
	v.mem.mu.Lock()
	v.mem.data[key] = val
	v.mem.mu.Unlock()

	v.mem.broker.publish(v.id, Change{Key: key, Value: val})
	return nil
}

func (v *MemoryView) Subscribe(key string, fn func(Change)) Subscription {
	return v.mem.broker.subscribe(v.id, key, fn)
}
