package auth

import (
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Identity is the profile of the signed in operator as reported by the
// remote API.
type Identity struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	Role           Role      `json:"role"`
	OrganizationID *string   `json:"organization_id"`
	EmailVerified  bool      `json:"email_verified"`
	CreatedAt      time.Time `json:"created_at"`
}

// IdentityPatch carries a partial identity update. Nil fields are left
// untouched; a non nil OrganizationID pointing at "" clears the organization.
type IdentityPatch struct {
	Email          *string
	DisplayName    *string
	Role           *Role
	OrganizationID *string
	EmailVerified  *bool
}

// Validate checks the fields the session relies on
func (i Identity) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.ID, validation.Required),
		validation.Field(&i.Email, validation.Required, is.Email),
		validation.Field(&i.Role, validation.Required, validation.By(validRole)),
	)
}

// Clone returns a deep copy
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	out := *i
	if i.OrganizationID != nil {
		org := *i.OrganizationID
		out.OrganizationID = &org
	}
	return &out
}

// HomeArea returns the landing path for the identity's role.
func (i *Identity) HomeArea() (string, bool) {
	if i == nil {
		return "", false
	}
	return i.Role.HomeArea()
}

// Merge returns a copy of the identity with the patch applied.
func (i *Identity) Merge(patch IdentityPatch) *Identity {
	out := i.Clone()
	if out == nil {
		return nil
	}

	if patch.Email != nil {
		out.Email = *patch.Email
	}
	if patch.DisplayName != nil {
		out.DisplayName = *patch.DisplayName
	}
	if patch.Role != nil {
		out.Role = *patch.Role
	}
	if patch.OrganizationID != nil {
		if *patch.OrganizationID == "" {
			out.OrganizationID = nil
		} else {
			org := *patch.OrganizationID
			out.OrganizationID = &org
		}
	}
	if patch.EmailVerified != nil {
		out.EmailVerified = *patch.EmailVerified
	}
	return out
}

func validRole(value any) error {
	var role Role
	switch v := value.(type) {
	case Role:
		role = v
	case string:
		role = Role(v)
	default:
		return errors.New("must be a role")
	}
	if !role.IsValid() {
		return errors.New("unknown role")
	}
	return nil
}
