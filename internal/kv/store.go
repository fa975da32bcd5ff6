package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound — ключ или поле отсутствует в хранилище.
var ErrNotFound = errors.New("kv: not found")

// Store — подмножество операций key-value хранилища, используемое Docpipe.
//
// Значения — сериализованные записи (текст). Операции над одним ключом
// атомарны на стороне хранилища; межключевых транзакций нет.
type Store interface {
	// HSet записывает поле hash-ключа.
	HSet(ctx context.Context, key, field, value string) error

	// HGet возвращает поле hash-ключа. ErrNotFound, если поле отсутствует.
	HGet(ctx context.Context, key, field string) (string, error)

	// HGetAll возвращает все поля hash-ключа. Пустая карта для отсутствующего ключа.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// SAdd добавляет элемент в set-ключ.
	SAdd(ctx context.Context, key, member string) error

	// SMembers возвращает все элементы set-ключа.
	SMembers(ctx context.Context, key string) ([]string, error)

	// ZAdd добавляет элемент в sorted set со score.
	ZAdd(ctx context.Context, key string, score float64, member string) error

	// ZRangeByScore возвращает элементы sorted set со score в [min, max].
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)

	// ZRem удаляет элементы из sorted set.
	ZRem(ctx context.Context, key string, members ...string) error

	// Del удаляет ключи, возвращает количество удалённых.
	Del(ctx context.Context, keys ...string) (int, error)

	// Exists проверяет существование ключа.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire устанавливает TTL ключа.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
