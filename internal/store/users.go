package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"pagegate.org/internal/apperr"
	"pagegate.org/internal/obs"
)

const selectUserColumns = `select id, mail, password, salt, admin, active, created_at, last_login from users`

// UserByID is a cache-through lookup. Relational failures degrade to
// not-found: a broken read must not take the page-serving path down.
func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if u, ok := s.users.Get(id); ok {
		return u, nil
	}
	return s.loadUser(ctx, s.db.QueryRowContext(ctx, selectUserColumns+` where id = $1`, id))
}

// UserByMail scans cached identities first; mail is not a cache key by
// construction. Lookup is case-sensitive.
func (s *Store) UserByMail(ctx context.Context, mail string) (*User, error) {
	if u, ok := s.users.Find(func(u *User) bool { return u.Mail == mail }); ok {
		return u, nil
	}
	return s.loadUser(ctx, s.db.QueryRowContext(ctx, selectUserColumns+` where mail = $1`, mail))
}

func (s *Store) loadUser(ctx context.Context, row *sql.Row) (*User, error) {
	var (
		u         User
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Mail, &u.PasswordHash, &u.Salt, &u.Admin, &u.Active, &u.CreatedAt, &lastLogin); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			obs.Warn("user read degraded to not-found", map[string]any{"error": err.Error()})
		}
		return nil, apperr.NotFound("could not select user", "could not find user", err)
	}
	u.LastLogin = lastLogin.Time
	grants, err := s.GrantsForUser(ctx, u.ID)
	if err != nil {
		obs.Warn("grant read degraded to not-found", map[string]any{"user": u.ID.String(), "error": err.Error()})
		return nil, apperr.NotFound("could not join grants for user", "could not find user", err)
	}
	u.Pages = grants
	s.users.Put(u.ID, &u)
	return &u, nil
}

// Users lists every identity and refreshes the cache along the way.
func (s *Store) Users(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, selectUserColumns+` order by created_at`)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var (
			u         User
			lastLogin sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Mail, &u.PasswordHash, &u.Salt, &u.Admin, &u.Active, &u.CreatedAt, &lastLogin); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.LastLogin = lastLogin.Time
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	for _, u := range users {
		grants, err := s.GrantsForUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		u.Pages = grants
		s.users.Put(u.ID, u)
	}
	return users, nil
}

// InsertUser writes the identity and its initial grants, then loads the
// fresh row into the cache.
func (s *Store) InsertUser(ctx context.Context, u *User, allowPages []string) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users (id, mail, password, salt, admin, active) values ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Mail, u.PasswordHash, u.Salt, u.Admin, u.Active,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if err := s.insertGrants(ctx, u.ID, allowPages); err != nil {
		return err
	}
	s.refreshUser(ctx, u.ID)
	return nil
}

// UpdateUser rewrites password/admin/active and applies grant changes,
// store first, cache second.
func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, passwordHash string, admin, active bool, allow, revoke []string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set password = $1, admin = $2, active = $3 where id = $4`,
		passwordHash, admin, active, id,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return s.UpsertGrants(ctx, id, allow, revoke)
}

// UpsertGrants applies grant inserts and deletes, then evicts and
// reloads the identity so the next read re-joins fresh grant rows.
func (s *Store) UpsertGrants(ctx context.Context, id uuid.UUID, allow, revoke []string) error {
	if err := s.insertGrants(ctx, id, allow); err != nil {
		return err
	}
	if err := s.deleteGrants(ctx, id, revoke); err != nil {
		return err
	}
	s.refreshUser(ctx, id)
	return nil
}

// SetActive flips the activation flag.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := s.db.ExecContext(ctx, `update users set active = $1 where id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	s.refreshUser(ctx, id)
	return nil
}

// TouchLastLogin bumps last_login on a successful login.
func (s *Store) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `update users set last_login = now() where id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	s.refreshUser(ctx, id)
	return nil
}

// DeleteUser removes the identity row and its cache entry.
func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.users.Delete(id)
	return nil
}

// CountAdmins counts committed active admins. Never served from cache:
// the last-admin invariant must reflect committed state only.
func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from users where admin = true and active = true`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return count, nil
}

// GrantsForUser joins the page catalog against the user's grant rows;
// a non-null user_id in the join marks an existing grant.
func (s *Store) GrantsForUser(ctx context.Context, id uuid.UUID) ([]PageGrant, error) {
	rows, err := s.db.QueryContext(ctx,
		`select p.id, p.url, p.title, p.description, p.private_page, up.user_id
		 from pages as p
		 left join user_page as up on up.page_id = p.id and up.user_id = $1
		 order by p.id`, id)
	if err != nil {
		return nil, fmt.Errorf("select grants: %w", err)
	}
	defer rows.Close()

	var grants []PageGrant
	for rows.Next() {
		var (
			g      PageGrant
			rawUID sql.Null[uuid.UUID]
		)
		if err := rows.Scan(&g.PageID, &g.URL, &g.Title, &g.Description, &g.Private, &rawUID); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.HasAccess = rawUID.Valid
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// EnsureDefaultAdmin self-seeds exactly one admin identity on a fresh
// install. A no-op when the configured mail already exists.
func (s *Store) EnsureDefaultAdmin(ctx context.Context, mail, password string) error {
	if _, err := s.UserByMail(ctx, mail); err == nil {
		return nil
	}
	if password == "" {
		obs.Warn("default admin absent but no default password configured, skipping seed",
			map[string]any{"mail": mail})
		return nil
	}
	salt, err := GenerateSalt()
	if err != nil {
		return err
	}
	admin := &User{
		ID:           uuid.New(),
		Mail:         mail,
		PasswordHash: HashPassword(password, salt),
		Salt:         salt,
		Admin:        true,
		Active:       true,
	}
	if err := s.InsertUser(ctx, admin, nil); err != nil {
		return fmt.Errorf("seed default admin: %w", err)
	}
	obs.Info("seeded default admin", map[string]any{"mail": mail})
	return nil
}

func (s *Store) insertGrants(ctx context.Context, id uuid.UUID, pageIDs []string) error {
	for _, pageID := range pageIDs {
		_, err := s.db.ExecContext(ctx,
			`insert into user_page (user_id, page_id) values ($1, $2) on conflict do nothing`,
			id, pageID)
		if err != nil {
			return fmt.Errorf("insert grant %s: %w", pageID, err)
		}
	}
	return nil
}

func (s *Store) deleteGrants(ctx context.Context, id uuid.UUID, pageIDs []string) error {
	for _, pageID := range pageIDs {
		_, err := s.db.ExecContext(ctx,
			`delete from user_page where user_id = $1 and page_id = $2`, id, pageID)
		if err != nil {
			return fmt.Errorf("delete grant %s: %w", pageID, err)
		}
	}
	return nil
}

// refreshUser evicts the cache entry and reloads it from the committed
// state. The reload is best-effort: the write already succeeded, and
// the next read will load on miss anyway.
func (s *Store) refreshUser(ctx context.Context, id uuid.UUID) {
	s.users.Delete(id)
	if _, err := s.UserByID(ctx, id); err != nil {
		obs.Warn("cache refresh after write failed", map[string]any{"user": id.String(), "error": err.Error()})
	}
}
