// Package storage предоставляет долговременное хранилище снапшотов
// состояния (корзина, маркер незавершённой покупки) по строковому ключу.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound возвращается, если по ключу нет снапшота.
var ErrNotFound = errors.New("snapshot not found")

// Store описывает контракт хранилища снапшотов. Значения непрозрачны
// для хранилища, интерпретацией занимаются владельцы ключей.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set записывает снапшот. Нулевой ttl означает хранение без срока.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Keys возвращает все ключи с указанным префиксом.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}
