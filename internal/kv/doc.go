// Package kv предоставляет минимальный key-value интерфейс для
// Pipeline Status Store и планировщика отложенных задач.
//
// Используемое подмножество операций: hash (HSet/HGet/HGetAll),
// set (SAdd/SMembers), sorted set (ZAdd/ZRangeByScore/ZRem),
// TTL (Expire) и удаление ключей.
//
// Реализации:
//   - Redis — production-хранилище (go-redis/v9)
//   - Memory — in-memory реализация для тестов и локального режима
package kv
