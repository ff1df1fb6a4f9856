package store

import (
	"time"

	"github.com/google/uuid"

	"pagegate.org/internal/token"
)

// User is an identity row joined with its page grants.
type User struct {
	ID           uuid.UUID   `json:"id"`
	Mail         string      `json:"mail"`
	PasswordHash string      `json:"-"`
	Salt         string      `json:"-"`
	Admin        bool        `json:"admin"`
	Active       bool        `json:"active"`
	CreatedAt    time.Time   `json:"created_at"`
	LastLogin    time.Time   `json:"last_login,omitzero"`
	Pages        []PageGrant `json:"pages"`
}

// PrivatePageIDs returns the ids of private pages this user has an
// explicit grant for, in stable page order.
func (u *User) PrivatePageIDs() []string {
	var ids []string
	for _, g := range u.Pages {
		if g.Private && g.HasAccess {
			ids = append(ids, g.PageID)
		}
	}
	return ids
}

// Snapshot copies the token-relevant slice of the identity.
func (u *User) Snapshot() token.Snapshot {
	return token.Snapshot{
		UserID:         u.ID.String(),
		Mail:           u.Mail,
		Admin:          u.Admin,
		Active:         u.Active,
		PrivatePageIDs: u.PrivatePageIDs(),
	}
}

// Page is a gated web page. Public pages require no token.
type Page struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Private     bool   `json:"private_page"`
}

// PageGrant is one row of the page catalog as seen by a single user:
// the page fields plus whether a grant row exists for that user.
type PageGrant struct {
	PageID      string `json:"page_id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Private     bool   `json:"private_page"`
	HasAccess   bool   `json:"has_access"`
}
