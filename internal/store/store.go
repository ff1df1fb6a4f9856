// Package store is a write-through cached view over the relational
// identity/page tables. Reads prefer the in-memory mirror and fall back
// to the database; writes always hit the database first and only then
// touch the cache, so a failed write can never leave a cached state the
// database does not have.
package store

import (
	"database/sql"

	"github.com/google/uuid"
)

// Store owns the in-memory mirror of users and pages. The database
// remains the durable owner of record.
type Store struct {
	db    *sql.DB
	users *cache[uuid.UUID, *User]
	pages *cache[string, *Page]
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:    db,
		users: newCache[uuid.UUID, *User](),
		pages: newCache[string, *Page](),
	}
}

// InvalidateUsers flushes every cached identity. Page mutations call
// this because a page change can alter the meaning of any cached
// identity's grant set; a full flush is the simplest correct response
// to a low-frequency event.
func (s *Store) InvalidateUsers() {
	s.users.Clear()
}
