// Package persistence holds types shared across the storage backends in
// internal/persistence/databases and the job/session stores.
package persistence
