package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/careconnect/identity/internal/account"
	"github.com/careconnect/identity/internal/clock"
	"github.com/careconnect/identity/internal/logging"
	"github.com/careconnect/identity/internal/otp"
)

var (
	ErrAlreadyVerified   = errors.New("email already verified")
	ErrAttemptsExhausted = errors.New("maximum verification attempts exceeded")
	ErrResendTooSoon     = errors.New("a code was sent recently, please wait before requesting another")
	ErrCodeExpired       = errors.New("verification code has expired")
	ErrInvalidCode       = errors.New("invalid verification code")
	ErrNotOrganization   = errors.New("account is not an organization")
	ErrNoDocuments       = errors.New("at least one document is required")
	ErrDocumentNotFound  = errors.New("document was never submitted")
	ErrReasonRequired    = errors.New("rejection reason is required")
	ErrInvalidStatus     = errors.New("invalid verification status")
)

// InvalidCodeError carries the remaining attempt budget alongside the
// mismatch so callers can report it.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid verification code, %d attempts remaining", e.Remaining)
}

func (e *InvalidCodeError) Is(target error) bool { return target == ErrInvalidCode }

// Sender delivers an email with a subject and body; it succeeds or
// fails and knows nothing about accounts.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// saveRetries bounds the fetch-mutate-save loop used whenever two
// requests can race on the same account record.
const saveRetries = 3

// normalizeEmail lowers and trims an email. Accounts store emails
// lower-cased, so every email-keyed lookup must match that.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Service owns the verification state machine and the email-code flow.
type Service struct {
	store        account.Store
	sender       Sender
	clock        clock.Clock
	logger       *logging.Logger
	codeTTL      time.Duration
	resendWindow time.Duration
}

func NewService(store account.Store, sender Sender, clk clock.Clock, logger *logging.Logger, codeTTL, resendWindow time.Duration) *Service {
	return &Service{
		store:        store,
		sender:       sender,
		clock:        clk,
		logger:       logger,
		codeTTL:      codeTTL,
		resendWindow: resendWindow,
	}
}

// IssueCode generates a fresh code for an unverified volunteer account,
// stores it with its expiry, charges one attempt, and requests
// delivery. Delivery failure does not revoke the code: the user can
// still submit it, and a resend path exists.
func (s *Service) IssueCode(ctx context.Context, email string) (int, error) {
	return s.issue(ctx, email, false)
}

// ResendCode behaves like IssueCode with an extra throttle: a new code
// is refused while the previous one is younger than the resend window.
func (s *Service) ResendCode(ctx context.Context, email string) (int, error) {
	return s.issue(ctx, email, true)
}

func (s *Service) issue(ctx context.Context, email string, throttled bool) (int, error) {
	email = normalizeEmail(email)

	code, err := otp.GenerateCode()
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	a, err := s.update(ctx, email, func(a *account.Account) error {
		if a.IsEmailVerified {
			return ErrAlreadyVerified
		}
		if Exhausted(a.EmailVerificationAttempts) {
			return ErrAttemptsExhausted
		}
		if throttled && a.EmailVerificationExpiresAt != nil {
			// Codes live codeTTL; an expiry further out than
			// codeTTL-resendWindow means the last one was issued within
			// the window.
			if a.EmailVerificationExpiresAt.After(now.Add(s.codeTTL - s.resendWindow)) {
				return ErrResendTooSoon
			}
		}
		a.SetEmailVerificationCode(code, now.Add(s.codeTTL))
		a.EmailVerificationAttempts++
		return nil
	})
	if err != nil {
		return 0, err
	}

	subject := "Email Verification - CareConnect"
	body := fmt.Sprintf("Hello %s, your verification code is: %s. This code expires in %d minutes.",
		a.Name, code, int(s.codeTTL.Minutes()))
	if err := s.sender.Send(ctx, a.Email, subject, body); err != nil {
		// The issued code stays valid; the user can request a resend.
		s.logger.Warn("failed to send verification email", "email", a.Email, "error", err.Error())
	}

	return Remaining(a.EmailVerificationAttempts), nil
}

// VerifyCode checks a submitted code against the stored one. Expiry is
// checked before correctness, so a correct-but-stale code still fails.
// A mismatch consumes one attempt.
func (s *Service) VerifyCode(ctx context.Context, email, submitted string) error {
	email = normalizeEmail(email)

	for i := 0; i < saveRetries; i++ {
		a, err := s.store.FindByEmail(ctx, email)
		if err != nil {
			return err
		}

		if a.IsEmailVerified {
			return ErrAlreadyVerified
		}
		if a.EmailVerificationCode == nil || a.EmailVerificationExpiresAt == nil {
			return ErrCodeExpired
		}
		if s.clock.Now().After(*a.EmailVerificationExpiresAt) {
			return ErrCodeExpired
		}

		if *a.EmailVerificationCode != submitted {
			a.EmailVerificationAttempts++
			remaining := Remaining(a.EmailVerificationAttempts)
			if err := s.store.Save(ctx, a); err != nil {
				if errors.Is(err, account.ErrVersionConflict) {
					continue
				}
				return err
			}
			return &InvalidCodeError{Remaining: remaining}
		}

		a.IsEmailVerified = true
		a.ClearEmailVerificationCode()
		a.EmailVerificationAttempts = 0
		if err := s.store.Save(ctx, a); err != nil {
			if errors.Is(err, account.ErrVersionConflict) {
				continue
			}
			return err
		}
		return nil
	}
	return account.ErrVersionConflict
}

// ReviewDocument applies an admin decision to a single submitted
// document. It never touches the account-level status; partial approval
// must not silently make the account usable.
func (s *Service) ReviewDocument(ctx context.Context, id uuid.UUID, kind account.DocumentKind, approve bool, reason string) (*account.Account, error) {
	if !kind.Valid() {
		return nil, ErrDocumentNotFound
	}
	if !approve && reason == "" {
		return nil, ErrReasonRequired
	}

	a, err := s.updateByID(ctx, id, func(a *account.Account) error {
		if a.Role != account.RoleOrganizationAdmin {
			return ErrNotOrganization
		}
		doc, ok := a.Documents[kind]
		if !ok || doc == nil {
			return ErrDocumentNotFound
		}
		if approve {
			doc.Status = account.DocumentApproved
			doc.RejectionReason = ""
		} else {
			doc.Status = account.DocumentRejected
			doc.RejectionReason = reason
			a.RejectionHistory = append(a.RejectionHistory, account.Rejection{
				Kind:       kind,
				Reason:     reason,
				RejectedAt: s.clock.Now(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !approve {
		subject := "Document Review Update - CareConnect"
		body := fmt.Sprintf("Hello %s, your %s requires revision. Reason: %s. Please log in to resubmit the document.",
			a.OrganizationName, kind, reason)
		if err := s.sender.Send(ctx, a.Email, subject, body); err != nil {
			s.logger.Warn("failed to send document rejection email", "email", a.Email, "error", err.Error())
		}
	}

	return a, nil
}

// SetOverallStatus is the explicit administrative decision on the whole
// application. Approval of individual documents never flips this on its
// own.
func (s *Service) SetOverallStatus(ctx context.Context, id uuid.UUID, status account.VerificationStatus, reason string) (*account.Account, error) {
	if status != account.VerificationApproved && status != account.VerificationRejected {
		return nil, ErrInvalidStatus
	}
	if status == account.VerificationRejected && reason == "" {
		return nil, ErrReasonRequired
	}

	a, err := s.updateByID(ctx, id, func(a *account.Account) error {
		if a.Role != account.RoleOrganizationAdmin {
			return ErrNotOrganization
		}
		a.VerificationStatus = status
		if status == account.VerificationApproved {
			a.IsNGOVerified = true
			a.RejectionReason = ""
		} else {
			a.IsNGOVerified = false
			a.RejectionReason = reason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var subject, body string
	if status == account.VerificationApproved {
		subject = "NGO Registration Approved - CareConnect"
		body = fmt.Sprintf("Hello %s, your NGO registration has been approved. You can now log in and use the platform.", a.OrganizationName)
	} else {
		subject = "NGO Registration Status Update - CareConnect"
		body = fmt.Sprintf("Hello %s, your NGO registration was not approved. Reason: %s.", a.OrganizationName, reason)
	}
	if err := s.sender.Send(ctx, a.Email, subject, body); err != nil {
		s.logger.Warn("failed to send decision email", "email", a.Email, "error", err.Error())
	}

	return a, nil
}

// Resubmit replaces the given document kinds and restarts the review
// cycle: each replaced document returns to pending with its reason
// cleared, and the account-level status returns to pending. Documents
// not listed keep whatever status they had.
func (s *Service) Resubmit(ctx context.Context, email string, kinds []account.DocumentKind) (*account.Account, error) {
	if len(kinds) == 0 {
		return nil, ErrNoDocuments
	}
	for _, kind := range kinds {
		if !kind.Valid() {
			return nil, ErrDocumentNotFound
		}
	}

	return s.update(ctx, normalizeEmail(email), func(a *account.Account) error {
		if a.Role != account.RoleOrganizationAdmin {
			return ErrNotOrganization
		}
		if a.Documents == nil {
			a.Documents = make(map[account.DocumentKind]*account.Document)
		}
		for _, kind := range kinds {
			a.Documents[kind] = &account.Document{Status: account.DocumentPending}
		}
		a.VerificationStatus = account.VerificationPending
		a.IsNGOVerified = false
		a.RejectionReason = ""
		return nil
	})
}

// DocumentStatus returns the current document map and overall status
// for an organization.
func (s *Service) DocumentStatus(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Role != account.RoleOrganizationAdmin {
		return nil, ErrNotOrganization
	}
	return a, nil
}

func (s *Service) update(ctx context.Context, email string, fn func(*account.Account) error) (*account.Account, error) {
	for i := 0; i < saveRetries; i++ {
		a, err := s.store.FindByEmail(ctx, email)
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

func (s *Service) updateByID(ctx context.Context, id uuid.UUID, fn func(*account.Account) error) (*account.Account, error) {
	for i := 0; i < saveRetries; i++ {
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
