package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/approval-service/internal/auth"
	"github.com/spec-kit/approval-service/internal/config"
	"github.com/spec-kit/approval-service/internal/domain"
	apperrors "github.com/spec-kit/approval-service/pkg/errorutil"
)

func newAuthFixture() (*AuthService, *memUserRepo) {
	users := newMemUserRepo()
	tokens := auth.NewTokenManager("test-secret", 30)
	svc := NewAuthService(config.AuthConfig{BcryptCost: 4}, users, tokens, nil)
	return svc, users
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthFixture()

	user, token, _, err := svc.RegisterUser(context.Background(), RegisterInput{
		Name:     "Riley",
		Email:    "riley@example.com",
		Password: "correct-horse",
		Role:     domain.RoleManager,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, domain.RoleManager, user.Role)
	assert.True(t, user.Active)

	t.Run("duplicate email conflicts", func(t *testing.T) {
		_, _, _, err := svc.RegisterUser(context.Background(), RegisterInput{
			Name: "Other", Email: "riley@example.com", Password: "whatever",
		})
		assert.True(t, apperrors.IsCode(err, "CONFLICT"))
	})

	t.Run("login succeeds with right password", func(t *testing.T) {
		loggedIn, token, _, err := svc.LoginUser(context.Background(), "riley@example.com", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, user.ID, loggedIn.ID)
		assert.NotEmpty(t, token)
	})

	t.Run("login fails with wrong password", func(t *testing.T) {
		_, _, _, err := svc.LoginUser(context.Background(), "riley@example.com", "wrong")
		assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
	})

	t.Run("login fails for unknown email", func(t *testing.T) {
		_, _, _, err := svc.LoginUser(context.Background(), "nobody@example.com", "whatever")
		assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
	})
}

func TestRegister_DefaultsAndValidation(t *testing.T) {
	svc, _ := newAuthFixture()

	user, _, _, err := svc.RegisterUser(context.Background(), RegisterInput{
		Name: "Plain", Email: "plain@example.com", Password: "password1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleEmployee, user.Role)

	_, _, _, err = svc.RegisterUser(context.Background(), RegisterInput{
		Name: "Bad", Email: "bad@example.com", Password: "password1", Role: domain.UserRole("WIZARD"),
	})
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestDeactivatedUserCannotLogin(t *testing.T) {
	svc, users := newAuthFixture()

	user, _, _, err := svc.RegisterUser(context.Background(), RegisterInput{
		Name: "Gone", Email: "gone@example.com", Password: "password1",
	})
	require.NoError(t, err)

	stored := users.byID[user.ID]
	stored.Active = false

	_, _, _, err = svc.LoginUser(context.Background(), "gone@example.com", "password1")
	assert.True(t, apperrors.IsCode(err, "UNAUTHORIZED"))
}
