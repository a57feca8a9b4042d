// Пакет lock — блокировки семейства схем (name, app) на время загрузки.
// Local — в пределах процесса, Redis — между репликами.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotAcquired — блокировку не удалось получить до истечения контекста.
var ErrNotAcquired = errors.New("блокировка не получена")

// Locker — захват именованной блокировки.
// Возвращаемая функция освобождает блокировку; повторный вызов безопасен.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// FamilyKey формирует ключ блокировки семейства схем.
// Имя схемы сравнивается без учёта регистра, как и в реестре.
func FamilyKey(schemaName, appName string) string {
	return "schema-family:" + strings.ToLower(schemaName) + "/" + appName
}

// Local — блокировки на каналах, по одной на ключ.
// Запись удаляется, когда ключ больше никому не нужен.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal создаёт блокировщик в пределах процесса.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Lock ожидает освобождения ключа или отмены контекста.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, s)
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
		})
	}, nil
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// size — количество занятых или ожидаемых ключей (для тестов).
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
