package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/careconnect/identity/internal/account"
	"github.com/careconnect/identity/internal/clock"
	"github.com/careconnect/identity/internal/logging"
	"github.com/careconnect/identity/internal/otp"
)

var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrAccountSuspended     = errors.New("account has been suspended")
	ErrPendingApproval      = errors.New("registration is pending approval")
	ErrRegistrationRejected = errors.New("registration has been rejected")
	ErrNameRequired         = errors.New("name is required")
	ErrEmailRequired        = errors.New("email is required")
	ErrInvalidEmailFormat   = errors.New("invalid email format")
	ErrInvalidRole          = errors.New("invalid role")
	ErrPasswordTooShort     = errors.New("password must be at least 6 characters")
	ErrWrongPassword        = errors.New("current password is incorrect")
	ErrInvalidResetCode     = errors.New("invalid or expired verification code")
	ErrDeliveryFailed       = errors.New("failed to send password reset email")
	ErrInvalidAccountStatus = errors.New("invalid account status")
	ErrInvalidDocumentKind  = errors.New("invalid document kind")
)

const minPasswordLen = 6

// Sender delivers an email with a subject and body.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// CodeIssuer sends an email verification code to a newly registered
// account and reports the remaining attempt budget.
type CodeIssuer interface {
	IssueCode(ctx context.Context, email string) (int, error)
}

// Service composes account state into authentication decisions and owns
// the password reset flow.
type Service struct {
	store      account.Store
	codeIssuer CodeIssuer
	sender     Sender
	issuer     TokenIssuer
	clock      clock.Clock
	logger     *logging.Logger
	resetTTL   time.Duration
}

func NewService(
	store account.Store,
	codeIssuer CodeIssuer,
	sender Sender,
	issuer TokenIssuer,
	clk clock.Clock,
	logger *logging.Logger,
	resetTTL time.Duration,
) *Service {
	return &Service{
		store:      store,
		codeIssuer: codeIssuer,
		sender:     sender,
		issuer:     issuer,
		clock:      clk,
		logger:     logger,
		resetTTL:   resetTTL,
	}
}

// SignupInput is the plain data the signup operation consumes. For
// organization accounts, Documents lists the kinds that were uploaded.
type SignupInput struct {
	Name             string
	Email            string
	Password         string
	Role             account.Role
	OrganizationName string
	Documents        []account.DocumentKind
}

// SignupResult carries the created account and, unless approval is
// still pending, a session token.
type SignupResult struct {
	Account          *account.Account
	Token            string
	RequiresApproval bool
}

// Signup creates an account with a role-dependent initial verification
// status. Volunteers get a verification code issued immediately;
// organizations skip email verification and enter document review.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, ErrNameRequired
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, ErrEmailRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmailFormat
	}
	if len(in.Password) < minPasswordLen {
		return nil, ErrPasswordTooShort
	}
	role := in.Role
	if role == "" {
		role = account.RoleVolunteer
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	passwordHash, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	a := &account.Account{
		ID:                 uuid.New(),
		Email:              email,
		Name:               strings.TrimSpace(in.Name),
		PasswordHash:       passwordHash,
		Role:               role,
		Status:             account.StatusActive,
		VerificationStatus: account.InitialVerificationStatus(role),
	}

	switch role {
	case account.RoleOrganizationAdmin:
		// Identity is validated through the document pipeline instead
		// of an email code.
		a.IsEmailVerified = true
		a.IsNGOVerified = false
		a.OrganizationName = strings.TrimSpace(in.OrganizationName)
		if a.OrganizationName == "" {
			a.OrganizationName = a.Name
		}
		if len(in.Documents) > 0 {
			a.Documents = make(map[account.DocumentKind]*account.Document, len(in.Documents))
			for _, kind := range in.Documents {
				if !kind.Valid() {
					return nil, ErrInvalidDocumentKind
				}
				a.Documents[kind] = &account.Document{Status: account.DocumentPending}
			}
		}
	case account.RolePlatformAdmin:
		a.IsEmailVerified = true
	}

	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}

	if role == account.RoleVolunteer {
		if _, err := s.codeIssuer.IssueCode(ctx, a.Email); err != nil {
			// Signup stands; the user can request a code later.
			s.logger.Warn("failed to issue verification code at signup", "email", a.Email, "error", err.Error())
		}
	}

	if role == account.RoleOrganizationAdmin && a.VerificationStatus == account.VerificationPending {
		return &SignupResult{Account: a, RequiresApproval: true}, nil
	}

	token, err := s.issuer.Mint(a.ID, a.Email, a.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}

	return &SignupResult{Account: a, Token: token}, nil
}

// LoginResult is an allow outcome. ResubmissionRequired flags the
// rejected-but-resubmittable branch; RejectedDocuments then lists
// exactly which kinds were rejected and why.
type LoginResult struct {
	Account              *account.Account
	Token                string
	ResubmissionRequired bool
	RejectedDocuments    map[account.DocumentKind]*account.Document
}

// Login runs the gate in fixed order: credentials, suspension, then
// role-dependent verification state. Unknown email and wrong password
// are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	a, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if !verifyPassword(a.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if a.Status == account.StatusSuspended {
		return nil, ErrAccountSuspended
	}

	result := &LoginResult{Account: a}

	if a.Role == account.RoleOrganizationAdmin {
		switch a.VerificationStatus {
		case account.VerificationApproved:
			// fall through to allow
		case account.VerificationRejected:
			rejected := a.RejectedDocuments()
			if len(rejected) == 0 {
				return nil, ErrRegistrationRejected
			}
			result.ResubmissionRequired = true
			result.RejectedDocuments = rejected
		default:
			return nil, ErrPendingApproval
		}
	}

	a, err = s.touchLastActive(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	result.Account = a

	token, err := s.issuer.Mint(a.ID, a.Email, a.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to mint token: %w", err)
	}
	result.Token = token

	return result, nil
}

// RequestPasswordReset issues a reset code. The response is identical
// whether or not the email exists, to prevent account enumeration. If
// delivery fails the code is revoked before the error is surfaced: a
// live code the user cannot have received is pure liability.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	a, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		// Only the not-found path mimics success; real failures surface.
		if errors.Is(err, account.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get account: %w", err)
	}

	code, err := otp.GenerateCode()
	if err != nil {
		return fmt.Errorf("failed to generate reset code: %w", err)
	}

	expiresAt := s.clock.Now().Add(s.resetTTL)
	a, err = s.updateByID(ctx, a.ID, func(a *account.Account) error {
		a.SetPasswordResetCode(code, expiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}

	subject := "Password Reset Code - CareConnect"
	body := fmt.Sprintf("Hello, your password reset code is: %s. This code expires in %d minutes. If you didn't request this reset, please ignore this email.",
		code, int(s.resetTTL.Minutes()))
	if err := s.sender.Send(ctx, a.Email, subject, body); err != nil {
		s.logger.Warn("failed to send password reset email", "email", a.Email, "error", err.Error())
		if _, rollbackErr := s.updateByID(ctx, a.ID, func(a *account.Account) error {
			a.ClearPasswordResetCode()
			return nil
		}); rollbackErr != nil {
			s.logger.Error("failed to revoke undelivered reset code", "email", a.Email, "error", rollbackErr.Error())
		}
		return ErrDeliveryFailed
	}

	return nil
}

// ResetPassword consumes a live reset code. The lookup predicate
// enforces expiry and a successful consume clears the code, so codes
// are single-use by construction.
func (s *Service) ResetPassword(ctx context.Context, code, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return ErrPasswordTooShort
	}

	passwordHash, err := hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	for i := 0; i < 3; i++ {
		a, err := s.store.FindByResetCode(ctx, code, s.clock.Now())
		if err != nil {
			if errors.Is(err, account.ErrNotFound) {
				return ErrInvalidResetCode
			}
			return fmt.Errorf("failed to look up reset code: %w", err)
		}

		a.PasswordHash = passwordHash
		a.ClearPasswordResetCode()

		err = s.store.Save(ctx, a)
		if errors.Is(err, account.ErrVersionConflict) {
			// Re-run the lookup; if a concurrent consume won, the next
			// iteration fails with ErrInvalidResetCode.
			continue
		}
		return err
	}
	return account.ErrVersionConflict
}

// ChangePassword replaces the password of an authenticated account
// after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return ErrPasswordTooShort
	}

	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !verifyPassword(a.PasswordHash, currentPassword) {
		return ErrWrongPassword
	}

	passwordHash, err := hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = s.updateByID(ctx, id, func(a *account.Account) error {
		a.PasswordHash = passwordHash
		return nil
	})
	return err
}

// SetAccountStatus is the administrative suspend/reactivate switch the
// login gate consults.
func (s *Service) SetAccountStatus(ctx context.Context, id uuid.UUID, status account.Status) (*account.Account, error) {
	if !status.Valid() {
		return nil, ErrInvalidAccountStatus
	}
	return s.updateByID(ctx, id, func(a *account.Account) error {
		a.Status = status
		return nil
	})
}

func (s *Service) touchLastActive(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return s.updateByID(ctx, id, func(a *account.Account) error {
		now := s.clock.Now()
		a.LastActiveAt = &now
		return nil
	})
}

func (s *Service) updateByID(ctx context.Context, id uuid.UUID, fn func(*account.Account) error) (*account.Account, error) {
	for i := 0; i < 3; i++ {
		a, err := s.store.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(a); err != nil {
			return nil, err
		}
		err = s.store.Save(ctx, a)
		if errors.Is(err, account.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, account.ErrVersionConflict
}
