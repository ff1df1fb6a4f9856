package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pagegate.org/internal/apperr"
	"pagegate.org/internal/obs"
)

const selectPageColumns = `select id, url, title, description, private_page from pages`

// Pages lists the full catalog and refreshes the page cache.
func (s *Store) Pages(ctx context.Context) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, selectPageColumns+` order by id`)
	if err != nil {
		return nil, fmt.Errorf("select pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.URL, &p.Title, &p.Description, &p.Private); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		s.pages.Put(p.ID, &p)
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// PageByID is a cache-through lookup with the same read-degradation
// contract as user lookups.
func (s *Store) PageByID(ctx context.Context, id string) (*Page, error) {
	if p, ok := s.pages.Get(id); ok {
		return p, nil
	}
	var p Page
	err := s.db.QueryRowContext(ctx, selectPageColumns+` where id = $1`, id).
		Scan(&p.ID, &p.URL, &p.Title, &p.Description, &p.Private)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			obs.Warn("page read degraded to not-found", map[string]any{"page": id, "error": err.Error()})
		}
		return nil, apperr.NotFound(fmt.Sprintf("could not select page by id: %s", id), "could not find page", err)
	}
	s.pages.Put(p.ID, &p)
	return &p, nil
}

// InsertPage writes the row, caches it, and flushes all cached
// identities, whose grant sets now have one more page to join.
func (s *Store) InsertPage(ctx context.Context, p *Page) error {
	_, err := s.db.ExecContext(ctx,
		`insert into pages (id, url, title, description, private_page) values ($1,$2,$3,$4,$5)`,
		p.ID, p.URL, p.Title, p.Description, p.Private,
	)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	s.pages.Put(p.ID, p)
	s.InvalidateUsers()
	return nil
}

// UpdatePage rewrites the row, then the cache entry, then flushes users.
func (s *Store) UpdatePage(ctx context.Context, p *Page) error {
	_, err := s.db.ExecContext(ctx,
		`update pages set url = $1, title = $2, description = $3, private_page = $4 where id = $5`,
		p.URL, p.Title, p.Description, p.Private, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	s.pages.Put(p.ID, p)
	s.InvalidateUsers()
	return nil
}

// DeletePage removes the row (grant rows cascade) and evicts caches.
func (s *Store) DeletePage(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `delete from pages where id = $1`, id); err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	s.pages.Delete(id)
	s.InvalidateUsers()
	return nil
}
