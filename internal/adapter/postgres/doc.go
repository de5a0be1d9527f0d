// Package postgres implements the user and message stores on PostgreSQL
// via pgx. Migrations are inline and idempotent; they run once at startup.
package postgres
