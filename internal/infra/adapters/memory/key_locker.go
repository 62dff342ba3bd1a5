package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrLockTimeout = errors.New("lock acquisition timeout")

// KeyLocker сериализует операции по ключу (канал, пара пользователь-воркспейс).
type KeyLocker[K comparable] struct {
	timeout time.Duration

	locks map[K]*keyLock
	mu    sync.Mutex
}

type keyLock struct {
	// ch с буфером 1 работает как мьютекс, который можно ждать через select
	ch   chan struct{}
	refs int
}

func NewKeyLocker[K comparable](timeout time.Duration) *KeyLocker[K] {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &KeyLocker[K]{
		timeout: timeout,
		locks:   make(map[K]*keyLock),
	}
}

// Lock захватывает ключ и возвращает функцию освобождения.
func (l *KeyLocker[K]) Lock(ctx context.Context, key K) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case lock.ch <- struct{}{}:
		var once sync.Once

		return func() {
			once.Do(func() {
				<-lock.ch
				l.release(key, lock)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, lock)
		return nil, ctx.Err()
	case <-timer.C:
		l.release(key, lock)
		return nil, ErrLockTimeout
	}
}

func (l *KeyLocker[K]) release(key K, lock *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}
