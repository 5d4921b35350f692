package repository

import (
	"context"
	"sync"
)

type roomSlot struct {
	ch   chan struct{}
	refs int
}

// MemoryRoomLocker serializes review mutations within one process. Slots are
// dropped once nobody holds or waits for them.
type MemoryRoomLocker struct {
	mu    sync.Mutex
	slots map[string]*roomSlot
}

func NewMemoryRoomLocker() *MemoryRoomLocker {
	return &MemoryRoomLocker{slots: make(map[string]*roomSlot)}
}

func (l *MemoryRoomLocker) Lock(ctx context.Context, roomID string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[roomID]
	if !ok {
		slot = &roomSlot{ch: make(chan struct{}, 1)}
		l.slots[roomID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(roomID, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.drop(roomID, slot)
		})
	}, nil
}

func (l *MemoryRoomLocker) drop(roomID string, slot *roomSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, roomID)
	}
}

func (l *MemoryRoomLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
