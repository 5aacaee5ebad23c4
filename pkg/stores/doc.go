// Package stores provides the run-history persistence layer. It includes
// SQLite-based storage with WAL mode, connection pooling, and CRUD
// operations for apply runs, operation records, and history events.
package stores
