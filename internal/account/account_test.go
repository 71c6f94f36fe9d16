package account

import (
	"context"
	"testing"

	"github.com/dropDatabas3/hellogate/internal/security/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *Service {
	t.Helper()
	h, err := password.HashBcrypt("correct-horse", 4)
	require.NoError(t, err)
	return NewService(NewMemoryStore(
		Account{ID: "acc-1", Username: "Alice", PasswordHash: h, Mobile: "13800000000", Email: "Alice@Example.com"},
		Account{ID: "acc-2", Username: "bob", PasswordHash: h, Disabled: true},
	))
}

func TestAuthenticate(t *testing.T) {
	svc := seeded(t)
	ctx := context.Background()

	acc, err := svc.Authenticate(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acc.ID)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "bob", "correct-horse")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestFinders(t *testing.T) {
	svc := seeded(t)
	ctx := context.Background()

	acc, err := svc.FindByMobile(ctx, " 13800000000 ")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acc.ID)

	acc, err = svc.FindByEmail(ctx, "alice@example.COM")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acc.ID)

	_, err = svc.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.FindByMobile(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore(Account{ID: "x", Username: "u"})
	a, err := s.FindByID(context.Background(), "x")
	require.NoError(t, err)
	a.Username = "changed"

	b, _ := s.FindByID(context.Background(), "x")
	assert.Equal(t, "u", b.Username)
}
