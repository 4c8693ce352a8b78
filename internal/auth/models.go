package auth

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity row. Magic-code fields are only ever non-null between
// a request-code and a successful verify.
type User struct {
	ID                 uuid.UUID  `db:"id"`
	Email              string     `db:"email"`
	MagicCodeHash      *string    `db:"magic_code_hash"`
	MagicCodeExpiresAt *time.Time `db:"magic_code_expires_at"`
	FullName           *string    `db:"full_name"`
	PhoneE164          *string    `db:"phone_e164"`
	Country            *string    `db:"country"`
	IsActive           bool       `db:"is_active"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// ProfileComplete reports whether the user has finished onboarding.
func (u *User) ProfileComplete() bool {
	return u.FullName != nil && u.PhoneE164 != nil
}
