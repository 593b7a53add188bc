package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"furniture-store/internal/auth"
	"furniture-store/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuthenticationService(t *testing.T, f *fixture) *AuthenticationService {
	t.Helper()
	svc, err := NewAuthenticationService(f.users, auth.NewTokenService("test-secret", time.Hour), bcrypt.MinCost)
	require.NoError(t, err)
	return svc
}

func registerRequest(email string) *model.RegisterRequest {
	return &model.RegisterRequest{
		Email:     email,
		Password:  "secret123",
		FirstName: "Carol",
		LastName:  "Jones",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	svc := newAuthenticationService(t, f)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registerRequest("  Carol@Example.com "))
	require.NoError(t, err)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "carol@example.com", registered.User.Email)
	assert.Equal(t, model.RoleCustomer, registered.User.Role)
	assert.True(t, registered.User.IsActive)

	loggedIn, err := svc.Login(ctx, "carol@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, loggedIn.User.ID)

	user, err := svc.ResolveToken(ctx, loggedIn.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, user.ID)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	svc := newAuthenticationService(t, f)

	_, err := svc.Register(context.Background(), registerRequest("ALICE@example.com"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	svc := newAuthenticationService(t, f)
	ctx := context.Background()

	badEmail := registerRequest("not-an-email")
	_, err := svc.Register(ctx, badEmail)
	assert.ErrorIs(t, err, ErrInvalidInput)

	shortPassword := registerRequest("dan@example.com")
	shortPassword.Password = "123"
	_, err = svc.Register(ctx, shortPassword)
	assert.ErrorIs(t, err, ErrInvalidInput)

	noName := registerRequest("dan@example.com")
	noName.FirstName = " "
	_, err = svc.Register(ctx, noName)
	assert.ErrorIs(t, err, ErrInvalidInput)

	unknownRole := registerRequest("dan@example.com")
	unknownRole.Role = "owner"
	_, err = svc.Register(ctx, unknownRole)
	assert.ErrorIs(t, err, ErrInvalidInput)

	longPassword := registerRequest("dan@example.com")
	longPassword.Password = strings.Repeat("p", 80)
	_, err = svc.Register(ctx, longPassword)
	assert.ErrorIs(t, err, ErrInvalidInput)

	elevated := registerRequest("dan@example.com")
	elevated.Role = model.RoleAdmin
	_, err = svc.Register(ctx, elevated)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	f := newFixture(t)
	svc := newAuthenticationService(t, f)
	ctx := context.Background()

	_, wrongPassword := svc.Login(ctx, "alice@example.com", "wrong-password")
	_, unknownEmail := svc.Login(ctx, "nobody@example.com", "secret123")

	require.ErrorIs(t, wrongPassword, ErrUnauthenticated)
	require.ErrorIs(t, unknownEmail, ErrUnauthenticated)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestDeactivatedUserIsLockedOut(t *testing.T) {
	f := newFixture(t)
	svc := newAuthenticationService(t, f)
	ctx := context.Background()

	session, err := svc.Login(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	_, err = f.users.DeactivateUser(ctx, f.admin, f.customer.ID)
	require.NoError(t, err)

	_, err = svc.ResolveToken(ctx, session.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Login(ctx, "alice@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolveTokenRejectsGarbageAndUnknownUsers(t *testing.T) {
	f := newFixture(t)
	svc := newAuthenticationService(t, f)
	ctx := context.Background()

	_, err := svc.ResolveToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	token, err := auth.NewTokenService("test-secret", time.Hour).Issue("ghost-user")
	require.NoError(t, err)
	_, err = svc.ResolveToken(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestDummyHashUsesConfiguredCost(t *testing.T) {
	f := newFixture(t)
	svc := newAuthenticationService(t, f)

	cost, err := bcrypt.Cost(svc.dummyHash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}
