package testfixtures

import (
	"context"
	"sync"
)

// Event - событие, прошедшее через RecordingBus. Room пустой для Emit.
type Event struct {
	Room         string
	ConnectionID string
	Type         string
	Payload      any
}

// RecordingBus запоминает все события и членство в комнатах.
type RecordingBus struct {
	mu     sync.Mutex
	events []Event
	rooms  map[string]map[string]struct{}
}

func NewRecordingBus() *RecordingBus {
	return &RecordingBus{rooms: make(map[string]map[string]struct{})}
}

func (b *RecordingBus) Join(connectionID, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.rooms[room]; !ok {
		b.rooms[room] = make(map[string]struct{})
	}
	b.rooms[room][connectionID] = struct{}{}
}

func (b *RecordingBus) Leave(connectionID, room string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.rooms[room], connectionID)
}

func (b *RecordingBus) Publish(ctx context.Context, room, eventType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, Event{Room: room, Type: eventType, Payload: payload})
}

func (b *RecordingBus) Emit(ctx context.Context, connectionID, eventType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, Event{ConnectionID: connectionID, Type: eventType, Payload: payload})
}

// InRoom сообщает, подписано ли устройство на комнату.
func (b *RecordingBus) InRoom(connectionID, room string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.rooms[room][connectionID]

	return ok
}

func (b *RecordingBus) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Event(nil), b.events...)
}

// OfType возвращает события заданных типов в порядке публикации.
func (b *RecordingBus) OfType(types ...string) []Event {
	var result []Event
	for _, e := range b.Events() {
		for _, t := range types {
			if e.Type == t {
				result = append(result, e)
				break
			}
		}
	}

	return result
}

// Published - события типа, опубликованные в комнату.
func (b *RecordingBus) Published(room, eventType string) []Event {
	var result []Event
	for _, e := range b.OfType(eventType) {
		if e.Room == room {
			result = append(result, e)
		}
	}

	return result
}

// EmittedTo - события типа, отправленные одному устройству.
func (b *RecordingBus) EmittedTo(connectionID, eventType string) []Event {
	var result []Event
	for _, e := range b.OfType(eventType) {
		if e.ConnectionID == connectionID {
			result = append(result, e)
		}
	}

	return result
}

func (b *RecordingBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = nil
}
