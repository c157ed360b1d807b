package account

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccount(email string) *Account {
	return &Account{
		ID:                 uuid.New(),
		Email:              email,
		Name:               "Test User",
		PasswordHash:       "hash",
		Role:               RoleVolunteer,
		Status:             StatusActive,
		VerificationStatus: VerificationApproved,
	}
}

func TestMemoryStoreCreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a := newTestAccount("user@example.com")
	require.NoError(t, store.Create(ctx, a))
	assert.Equal(t, int64(1), a.Version)

	byEmail, err := store.FindByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, byEmail.ID)

	byID, err := store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", byID.Email)

	_, err = store.FindByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Create(ctx, newTestAccount("user@example.com")))
	err := store.Create(ctx, newTestAccount("user@example.com"))
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestMemoryStoreSaveVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a := newTestAccount("user@example.com")
	require.NoError(t, store.Create(ctx, a))

	first, err := store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	second, err := store.FindByID(ctx, a.ID)
	require.NoError(t, err)

	first.Name = "First Writer"
	require.NoError(t, store.Save(ctx, first))

	second.Name = "Second Writer"
	err = store.Save(ctx, second)
	assert.ErrorIs(t, err, ErrVersionConflict)

	current, err := store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "First Writer", current.Name)
	assert.Equal(t, int64(2), current.Version)
}

func TestMemoryStoreSaveUnknownAccount(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.Save(ctx, newTestAccount("ghost@example.com"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreFindByResetCode(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	a := newTestAccount("user@example.com")
	a.SetPasswordResetCode("123456", now.Add(15*time.Minute))
	require.NoError(t, store.Create(ctx, a))

	found, err := store.FindByResetCode(ctx, "123456", now)
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)

	// Wrong code.
	_, err = store.FindByResetCode(ctx, "000000", now)
	assert.ErrorIs(t, err, ErrNotFound)

	// Expired code.
	_, err = store.FindByResetCode(ctx, "123456", now.Add(16*time.Minute))
	assert.ErrorIs(t, err, ErrNotFound)

	// Cleared code.
	found.ClearPasswordResetCode()
	require.NoError(t, store.Save(ctx, found))
	_, err = store.FindByResetCode(ctx, "123456", now)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreReadsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a := newTestAccount("user@example.com")
	require.NoError(t, store.Create(ctx, a))

	read, err := store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	read.Name = "mutated locally"

	again, err := store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test User", again.Name)
}
