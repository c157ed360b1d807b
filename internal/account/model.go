package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role determines how an account moves through verification. Immutable
// after signup.
type Role string

const (
	RoleVolunteer         Role = "volunteer"
	RoleOrganizationAdmin Role = "organization_admin"
	RolePlatformAdmin     Role = "platform_admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleVolunteer, RoleOrganizationAdmin, RolePlatformAdmin:
		return true
	}
	return false
}

// Status is the administrative account state. Suspension blocks login
// regardless of verification state.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusDeleted:
		return true
	}
	return false
}

// VerificationStatus is the account-level review outcome for
// organization accounts. Volunteers and platform admins are approved at
// creation.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// InitialVerificationStatus returns the status an account starts with.
// Only organizations go through review.
func InitialVerificationStatus(role Role) VerificationStatus {
	if role == RoleOrganizationAdmin {
		return VerificationPending
	}
	return VerificationApproved
}

// DocumentKind names the credentials an organization can submit. A kind
// that was never uploaded is absent from the document map.
type DocumentKind string

const (
	DocRegistrationCertificate DocumentKind = "registrationCertificate"
	DocTaxExemptionCertificate DocumentKind = "taxExemptionCertificate"
	DocOrganizationalLicense   DocumentKind = "organizationalLicense"
)

func (k DocumentKind) Valid() bool {
	switch k {
	case DocRegistrationCertificate, DocTaxExemptionCertificate, DocOrganizationalLicense:
		return true
	}
	return false
}

// DocumentStatus tracks a single submitted document through review.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentApproved DocumentStatus = "approved"
	DocumentRejected DocumentStatus = "rejected"
)

// Document is one reviewable credential. RejectionReason is set only
// while Status is rejected.
type Document struct {
	Status          DocumentStatus `json:"status"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}

// Rejection is an audit entry recorded each time a document is
// rejected. Entries survive resubmission.
type Rejection struct {
	Kind       DocumentKind `json:"kind"`
	Reason     string       `json:"reason"`
	RejectedAt time.Time    `json:"rejected_at"`
}

// Account is the single mutable record of this subsystem. Email is
// stored lower-cased. A code field and its expiry are always set or
// cleared together.
type Account struct {
	bun.BaseModel `bun:"table:accounts"`

	ID           uuid.UUID `bun:"id,pk,type:uuid,default:gen_random_uuid()" json:"id"`
	Email        string    `bun:"email,notnull,unique" json:"email"`
	Name         string    `bun:"name,notnull" json:"name"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`
	Role         Role      `bun:"role,notnull" json:"role"`
	Status       Status    `bun:"account_status,notnull" json:"account_status"`

	VerificationStatus VerificationStatus `bun:"verification_status,notnull" json:"verification_status"`
	IsNGOVerified      bool               `bun:"is_ngo_verified,notnull" json:"is_ngo_verified"`
	RejectionReason    string             `bun:"rejection_reason,nullzero" json:"rejection_reason,omitempty"`

	OrganizationName string                     `bun:"organization_name,nullzero" json:"organization_name,omitempty"`
	Documents        map[DocumentKind]*Document `bun:"documents,type:jsonb,nullzero" json:"documents,omitempty"`
	RejectionHistory []Rejection                `bun:"rejection_history,type:jsonb,nullzero" json:"-"`

	IsEmailVerified            bool       `bun:"is_email_verified,notnull" json:"is_email_verified"`
	EmailVerificationCode      *string    `bun:"email_verification_code,nullzero" json:"-"`
	EmailVerificationExpiresAt *time.Time `bun:"email_verification_expires_at,nullzero" json:"-"`
	EmailVerificationAttempts  int        `bun:"email_verification_attempts,notnull" json:"-"`

	PasswordResetCode      *string    `bun:"password_reset_code,nullzero" json:"-"`
	PasswordResetExpiresAt *time.Time `bun:"password_reset_expires_at,nullzero" json:"-"`

	LastActiveAt *time.Time `bun:"last_active_at,nullzero" json:"last_active_at,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	// Version backs the optimistic save check; every successful Save
	// increments it.
	Version int64 `bun:"version,notnull,default:1" json:"-"`
}

// SetEmailVerificationCode sets the code and its expiry together.
func (a *Account) SetEmailVerificationCode(code string, expiresAt time.Time) {
	a.EmailVerificationCode = &code
	a.EmailVerificationExpiresAt = &expiresAt
}

// ClearEmailVerificationCode clears the code and its expiry together.
func (a *Account) ClearEmailVerificationCode() {
	a.EmailVerificationCode = nil
	a.EmailVerificationExpiresAt = nil
}

// SetPasswordResetCode sets the reset code and its expiry together.
func (a *Account) SetPasswordResetCode(code string, expiresAt time.Time) {
	a.PasswordResetCode = &code
	a.PasswordResetExpiresAt = &expiresAt
}

// ClearPasswordResetCode clears the reset code and its expiry together.
func (a *Account) ClearPasswordResetCode() {
	a.PasswordResetCode = nil
	a.PasswordResetExpiresAt = nil
}

// RejectedDocuments returns the documents currently in rejected state.
func (a *Account) RejectedDocuments() map[DocumentKind]*Document {
	rejected := make(map[DocumentKind]*Document)
	for kind, doc := range a.Documents {
		if doc != nil && doc.Status == DocumentRejected {
			rejected[kind] = doc
		}
	}
	return rejected
}

// HasRejectedDocuments reports whether any submitted document is
// rejected.
func (a *Account) HasRejectedDocuments() bool {
	return len(a.RejectedDocuments()) > 0
}

// Clone returns a deep copy so callers can mutate without sharing state
// with a store.
func (a *Account) Clone() *Account {
	dup := *a
	if a.Documents != nil {
		dup.Documents = make(map[DocumentKind]*Document, len(a.Documents))
		for kind, doc := range a.Documents {
			d := *doc
			dup.Documents[kind] = &d
		}
	}
	if a.RejectionHistory != nil {
		dup.RejectionHistory = append([]Rejection(nil), a.RejectionHistory...)
	}
	dup.EmailVerificationCode = cloneString(a.EmailVerificationCode)
	dup.EmailVerificationExpiresAt = cloneTime(a.EmailVerificationExpiresAt)
	dup.PasswordResetCode = cloneString(a.PasswordResetCode)
	dup.PasswordResetExpiresAt = cloneTime(a.PasswordResetExpiresAt)
	dup.LastActiveAt = cloneTime(a.LastActiveAt)
	return &dup
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
