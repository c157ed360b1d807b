package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialVerificationStatus(t *testing.T) {
	assert.Equal(t, VerificationPending, InitialVerificationStatus(RoleOrganizationAdmin))
	assert.Equal(t, VerificationApproved, InitialVerificationStatus(RoleVolunteer))
	assert.Equal(t, VerificationApproved, InitialVerificationStatus(RolePlatformAdmin))
}

func TestCodeAndExpirySetTogether(t *testing.T) {
	a := &Account{}
	expiry := time.Now().Add(10 * time.Minute)

	a.SetEmailVerificationCode("123456", expiry)
	require.NotNil(t, a.EmailVerificationCode)
	require.NotNil(t, a.EmailVerificationExpiresAt)
	assert.Equal(t, "123456", *a.EmailVerificationCode)

	a.ClearEmailVerificationCode()
	assert.Nil(t, a.EmailVerificationCode)
	assert.Nil(t, a.EmailVerificationExpiresAt)

	a.SetPasswordResetCode("654321", expiry)
	require.NotNil(t, a.PasswordResetCode)
	require.NotNil(t, a.PasswordResetExpiresAt)

	a.ClearPasswordResetCode()
	assert.Nil(t, a.PasswordResetCode)
	assert.Nil(t, a.PasswordResetExpiresAt)
}

func TestRejectedDocuments(t *testing.T) {
	a := &Account{
		Documents: map[DocumentKind]*Document{
			DocRegistrationCertificate: {Status: DocumentApproved},
			DocTaxExemptionCertificate: {Status: DocumentRejected, RejectionReason: "illegible scan"},
			DocOrganizationalLicense:   {Status: DocumentPending},
		},
	}

	rejected := a.RejectedDocuments()
	require.Len(t, rejected, 1)
	require.Contains(t, rejected, DocTaxExemptionCertificate)
	assert.Equal(t, "illegible scan", rejected[DocTaxExemptionCertificate].RejectionReason)
	assert.True(t, a.HasRejectedDocuments())

	a.Documents[DocTaxExemptionCertificate].Status = DocumentApproved
	assert.False(t, a.HasRejectedDocuments())
}

func TestClone(t *testing.T) {
	code := "123456"
	expiry := time.Now().Add(10 * time.Minute)
	a := &Account{
		Email: "ngo@example.com",
		Role:  RoleOrganizationAdmin,
		Documents: map[DocumentKind]*Document{
			DocRegistrationCertificate: {Status: DocumentPending},
		},
		RejectionHistory:           []Rejection{{Kind: DocRegistrationCertificate, Reason: "expired"}},
		EmailVerificationCode:      &code,
		EmailVerificationExpiresAt: &expiry,
	}

	dup := a.Clone()

	dup.Documents[DocRegistrationCertificate].Status = DocumentApproved
	dup.RejectionHistory[0].Reason = "changed"
	*dup.EmailVerificationCode = "000000"

	assert.Equal(t, DocumentPending, a.Documents[DocRegistrationCertificate].Status)
	assert.Equal(t, "expired", a.RejectionHistory[0].Reason)
	assert.Equal(t, "123456", *a.EmailVerificationCode)
}
