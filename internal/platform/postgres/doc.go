// Package postgres provides the PostgreSQL implementation of task.Store together
// with connection setup, transaction helpers and embedded goose migrations.
package postgres
