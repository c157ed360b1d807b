package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careconnect/identity/internal/account"
	"github.com/careconnect/identity/internal/clock"
	"github.com/careconnect/identity/internal/logging"
)

type sentEmail struct {
	to      string
	subject string
	body    string
}

type captureSender struct {
	sent []sentEmail
	fail bool
}

func (c *captureSender) Send(ctx context.Context, to, subject, body string) error {
	if c.fail {
		return errors.New("smtp unavailable")
	}
	c.sent = append(c.sent, sentEmail{to: to, subject: subject, body: body})
	return nil
}

type stubCodeIssuer struct {
	issued []string
	err    error
}

func (s *stubCodeIssuer) IssueCode(ctx context.Context, email string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.issued = append(s.issued, email)
	return 4, nil
}

type authFixture struct {
	svc        *Service
	store      *account.MemoryStore
	sender     *captureSender
	codeIssuer *stubCodeIssuer
	clk        *clock.Fake
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := account.NewMemoryStore()
	sender := &captureSender{}
	codeIssuer := &stubCodeIssuer{}
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	issuer, err := NewPasetoIssuer(testPasetoKey, time.Hour)
	require.NoError(t, err)

	svc := NewService(store, codeIssuer, sender, issuer, clk, logging.NewLogger(true), 15*time.Minute)
	return &authFixture{svc: svc, store: store, sender: sender, codeIssuer: codeIssuer, clk: clk}
}

func (f *authFixture) signupVolunteer(t *testing.T, email string) *account.Account {
	t.Helper()
	result, err := f.svc.Signup(context.Background(), SignupInput{
		Name:     "Vera Volunteer",
		Email:    email,
		Password: "secret123",
		Role:     account.RoleVolunteer,
	})
	require.NoError(t, err)
	return result.Account
}

func (f *authFixture) signupOrganization(t *testing.T, email string) *account.Account {
	t.Helper()
	result, err := f.svc.Signup(context.Background(), SignupInput{
		Name:             "Olga Admin",
		Email:            email,
		Password:         "secret123",
		Role:             account.RoleOrganizationAdmin,
		OrganizationName: "Helping Hands",
		Documents:        []account.DocumentKind{account.DocRegistrationCertificate},
	})
	require.NoError(t, err)
	return result.Account
}

func TestSignupVolunteer(t *testing.T) {
	f := newAuthFixture(t)

	result, err := f.svc.Signup(context.Background(), SignupInput{
		Name:     "Vera Volunteer",
		Email:    "  Vera@Example.COM ",
		Password: "secret123",
	})
	require.NoError(t, err)

	a := result.Account
	assert.Equal(t, "vera@example.com", a.Email)
	assert.Equal(t, account.RoleVolunteer, a.Role)
	assert.Equal(t, account.StatusActive, a.Status)
	assert.Equal(t, account.VerificationApproved, a.VerificationStatus)
	assert.False(t, a.IsEmailVerified)
	assert.False(t, result.RequiresApproval)
	assert.NotEmpty(t, result.Token)

	// A verification code goes out right away.
	assert.Equal(t, []string{"vera@example.com"}, f.codeIssuer.issued)
}

func TestSignupVolunteerSurvivesCodeIssueFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.codeIssuer.err = errors.New("store down")

	result, err := f.svc.Signup(context.Background(), SignupInput{
		Name:     "Vera Volunteer",
		Email:    "vera@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
}

func TestSignupOrganization(t *testing.T) {
	f := newAuthFixture(t)

	result, err := f.svc.Signup(context.Background(), SignupInput{
		Name:      "Olga Admin",
		Email:     "ngo@example.com",
		Password:  "secret123",
		Role:      account.RoleOrganizationAdmin,
		Documents: []account.DocumentKind{account.DocRegistrationCertificate, account.DocTaxExemptionCertificate},
	})
	require.NoError(t, err)

	a := result.Account
	assert.Equal(t, account.VerificationPending, a.VerificationStatus)
	assert.True(t, a.IsEmailVerified)
	assert.False(t, a.IsNGOVerified)
	// Organization name falls back to the signup name.
	assert.Equal(t, "Olga Admin", a.OrganizationName)

	require.Len(t, a.Documents, 2)
	assert.Equal(t, account.DocumentPending, a.Documents[account.DocRegistrationCertificate].Status)

	// No session until an admin approves the registration.
	assert.True(t, result.RequiresApproval)
	assert.Empty(t, result.Token)
	assert.Empty(t, f.codeIssuer.issued)
}

func TestSignupPlatformAdmin(t *testing.T) {
	f := newAuthFixture(t)

	result, err := f.svc.Signup(context.Background(), SignupInput{
		Name:     "Pat Admin",
		Email:    "admin@example.com",
		Password: "secret123",
		Role:     account.RolePlatformAdmin,
	})
	require.NoError(t, err)
	assert.True(t, result.Account.IsEmailVerified)
	assert.Equal(t, account.VerificationApproved, result.Account.VerificationStatus)
	assert.NotEmpty(t, result.Token)
	assert.Empty(t, f.codeIssuer.issued)
}

func TestSignupValidation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		input   SignupInput
		wantErr error
	}{
		{"missing name", SignupInput{Email: "a@b.com", Password: "secret123"}, ErrNameRequired},
		{"missing email", SignupInput{Name: "A", Password: "secret123"}, ErrEmailRequired},
		{"bad email", SignupInput{Name: "A", Email: "not-an-email", Password: "secret123"}, ErrInvalidEmailFormat},
		{"short password", SignupInput{Name: "A", Email: "a@b.com", Password: "short"}, ErrPasswordTooShort},
		{"unknown role", SignupInput{Name: "A", Email: "a@b.com", Password: "secret123", Role: "superuser"}, ErrInvalidRole},
		{
			"unknown document kind",
			SignupInput{Name: "A", Email: "a@b.com", Password: "secret123", Role: account.RoleOrganizationAdmin, Documents: []account.DocumentKind{"passportScan"}},
			ErrInvalidDocumentKind,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Signup(ctx, tc.input)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.signupVolunteer(t, "vera@example.com")

	_, err := f.svc.Signup(context.Background(), SignupInput{
		Name:     "Another",
		Email:    "vera@example.com",
		Password: "secret123",
	})
	assert.ErrorIs(t, err, account.ErrDuplicateEmail)
}

func TestLoginVolunteer(t *testing.T) {
	f := newAuthFixture(t)
	f.signupVolunteer(t, "vera@example.com")

	result, err := f.svc.Login(context.Background(), "Vera@Example.com", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.False(t, result.ResubmissionRequired)

	require.NotNil(t, result.Account.LastActiveAt)
	assert.Equal(t, f.clk.Now(), *result.Account.LastActiveAt)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newAuthFixture(t)
	f.signupVolunteer(t, "vera@example.com")
	ctx := context.Background()

	// Unknown email and wrong password fail identically.
	_, err := f.svc.Login(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "vera@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "vera@example.com", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginSuspendedAccount(t *testing.T) {
	f := newAuthFixture(t)
	a := f.signupVolunteer(t, "vera@example.com")

	_, err := f.svc.SetAccountStatus(context.Background(), a.ID, account.StatusSuspended)
	require.NoError(t, err)

	_, err = f.svc.Login(context.Background(), "vera@example.com", "secret123")
	assert.ErrorIs(t, err, ErrAccountSuspended)
}

func TestLoginOrganizationGate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	a := f.signupOrganization(t, "ngo@example.com")

	// Pending review blocks login.
	_, err := f.svc.Login(ctx, "ngo@example.com", "secret123")
	assert.ErrorIs(t, err, ErrPendingApproval)

	// Outright rejection with no rejected documents is final.
	stored, err := f.store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	stored.VerificationStatus = account.VerificationRejected
	require.NoError(t, f.store.Save(ctx, stored))

	_, err = f.svc.Login(ctx, "ngo@example.com", "secret123")
	assert.ErrorIs(t, err, ErrRegistrationRejected)

	// Rejection with rejected documents allows login but demands
	// resubmission.
	stored, err = f.store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	stored.Documents[account.DocRegistrationCertificate].Status = account.DocumentRejected
	stored.Documents[account.DocRegistrationCertificate].RejectionReason = "expired certificate"
	require.NoError(t, f.store.Save(ctx, stored))

	result, err := f.svc.Login(ctx, "ngo@example.com", "secret123")
	require.NoError(t, err)
	assert.True(t, result.ResubmissionRequired)
	require.Contains(t, result.RejectedDocuments, account.DocRegistrationCertificate)
	assert.Equal(t, "expired certificate", result.RejectedDocuments[account.DocRegistrationCertificate].RejectionReason)
	assert.NotEmpty(t, result.Token)

	// Approval clears the gate entirely.
	stored, err = f.store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	stored.VerificationStatus = account.VerificationApproved
	require.NoError(t, f.store.Save(ctx, stored))

	result, err = f.svc.Login(ctx, "ngo@example.com", "secret123")
	require.NoError(t, err)
	assert.False(t, result.ResubmissionRequired)
}

func TestRequestPasswordReset(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	a := f.signupVolunteer(t, "vera@example.com")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "vera@example.com"))

	stored, err := f.store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PasswordResetCode)
	require.NotNil(t, stored.PasswordResetExpiresAt)
	assert.Equal(t, f.clk.Now().Add(15*time.Minute), *stored.PasswordResetExpiresAt)

	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0].body, *stored.PasswordResetCode)
}

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	f := newAuthFixture(t)

	// Unknown emails succeed silently to block account enumeration.
	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "nobody@example.com"))
	assert.Empty(t, f.sender.sent)
}

type failingStore struct {
	account.Store
	findByEmailErr error
	saveErr        error
}

func (s *failingStore) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	if s.findByEmailErr != nil {
		return nil, s.findByEmailErr
	}
	return s.Store.FindByEmail(ctx, email)
}

func (s *failingStore) Save(ctx context.Context, a *account.Account) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Store.Save(ctx, a)
}

func TestRequestPasswordResetSurfacesInternalFailures(t *testing.T) {
	ctx := context.Background()
	memStore := account.NewMemoryStore()
	store := &failingStore{Store: memStore}
	sender := &captureSender{}
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	issuer, err := NewPasetoIssuer(testPasetoKey, time.Hour)
	require.NoError(t, err)
	svc := NewService(store, &stubCodeIssuer{}, sender, issuer, clk, logging.NewLogger(true), 15*time.Minute)

	a := &account.Account{
		Email:        "vera@example.com",
		Name:         "Vera Volunteer",
		PasswordHash: "hash",
		Role:         account.RoleVolunteer,
		Status:       account.StatusActive,
	}
	require.NoError(t, memStore.Create(ctx, a))

	// A store read failure is not an unknown email and must not be
	// reported as success.
	store.findByEmailErr = errors.New("connection refused")
	err = svc.RequestPasswordReset(ctx, "vera@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeliveryFailed)
	store.findByEmailErr = nil

	// Likewise a failure to persist the code.
	store.saveErr = errors.New("connection refused")
	err = svc.RequestPasswordReset(ctx, "vera@example.com")
	require.Error(t, err)
	assert.Empty(t, sender.sent)
}

func TestRequestPasswordResetDeliveryFailureRevokesCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	a := f.signupVolunteer(t, "vera@example.com")
	f.sender.fail = true

	err := f.svc.RequestPasswordReset(ctx, "vera@example.com")
	assert.ErrorIs(t, err, ErrDeliveryFailed)

	stored, err := f.store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.PasswordResetCode)
	assert.Nil(t, stored.PasswordResetExpiresAt)
}

func TestResetPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	a := f.signupVolunteer(t, "vera@example.com")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "vera@example.com"))
	stored, err := f.store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	code := *stored.PasswordResetCode

	require.NoError(t, f.svc.ResetPassword(ctx, code, "brand new pass"))

	// Old password is dead, new one works.
	_, err = f.svc.Login(ctx, "vera@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "vera@example.com", "brand new pass")
	assert.NoError(t, err)

	// The code is single-use.
	err = f.svc.ResetPassword(ctx, code, "another password")
	assert.ErrorIs(t, err, ErrInvalidResetCode)
}

func TestResetPasswordExpiredCode(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	a := f.signupVolunteer(t, "vera@example.com")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "vera@example.com"))
	stored, err := f.store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	code := *stored.PasswordResetCode

	f.clk.Advance(16 * time.Minute)

	err = f.svc.ResetPassword(ctx, code, "brand new pass")
	assert.ErrorIs(t, err, ErrInvalidResetCode)
}

func TestResetPasswordValidation(t *testing.T) {
	f := newAuthFixture(t)

	err := f.svc.ResetPassword(context.Background(), "123456", "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	err = f.svc.ResetPassword(context.Background(), "123456", "long enough")
	assert.ErrorIs(t, err, ErrInvalidResetCode)
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	a := f.signupVolunteer(t, "vera@example.com")

	err := f.svc.ChangePassword(ctx, a.ID, "wrong current", "brand new pass")
	assert.ErrorIs(t, err, ErrWrongPassword)

	err = f.svc.ChangePassword(ctx, a.ID, "secret123", "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	require.NoError(t, f.svc.ChangePassword(ctx, a.ID, "secret123", "brand new pass"))

	_, err = f.svc.Login(ctx, "vera@example.com", "brand new pass")
	assert.NoError(t, err)
}

func TestSetAccountStatus(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	a := f.signupVolunteer(t, "vera@example.com")

	_, err := f.svc.SetAccountStatus(ctx, a.ID, "banned")
	assert.ErrorIs(t, err, ErrInvalidAccountStatus)

	updated, err := f.svc.SetAccountStatus(ctx, a.ID, account.StatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, account.StatusSuspended, updated.Status)

	updated, err = f.svc.SetAccountStatus(ctx, a.ID, account.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, account.StatusActive, updated.Status)

	_, err = f.svc.Login(ctx, "vera@example.com", "secret123")
	assert.NoError(t, err)
}
