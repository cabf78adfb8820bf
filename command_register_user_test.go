package auth_test

import (
	"context"
	"testing"

	auth "github.com/pantryhub/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureMailer struct {
	resetTokens   []string
	verifyTokens  []string
	welcomeTokens []string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, _, token string) error {
	m.resetTokens = append(m.resetTokens, token)
	return nil
}

func (m *captureMailer) SendEmailVerification(_ context.Context, _, token string) error {
	m.verifyTokens = append(m.verifyTokens, token)
	return nil
}

func (m *captureMailer) SendWelcome(_ context.Context, _, _, resetToken string) error {
	m.welcomeTokens = append(m.welcomeTokens, resetToken)
	return nil
}

func TestRegisterUser(t *testing.T) {
	repo := setupRepo(t)
	signer := auth.NewTokenSigner("test-signing-key")
	mailer := &captureMailer{}
	handler := auth.NewRegisterUserHandler(repo, signer, mailer, nil)
	ctx := context.Background()

	user, err := handler.Execute(ctx, auth.RegisterUserMessage{
		Username: "ada",
		Email:    "ada@example.com",
		FullName: "Ada Lovelace",
		Phone:    "(212) 555-0101",
		Password: "sup3r-secret-pw",
	})
	require.NoError(t, err)

	assert.Equal(t, "ada", user.Username)
	assert.Equal(t, "+12125550101", user.Phone)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsAdmin)
	assert.False(t, user.EmailVerified)
	assert.NotEqual(t, "sup3r-secret-pw", user.PasswordHash)

	// Registration mails a verification link good for the confirm flow.
	require.Len(t, mailer.verifyTokens, 1)
	confirm := auth.NewConfirmEmailVerificationHandler(repo, signer, nil)
	require.NoError(t, confirm.Execute(ctx, auth.ConfirmEmailVerificationMessage{
		Token: mailer.verifyTokens[0],
	}))

	got, err := repo.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)
}

func TestRegisterUserUsernameFromEmail(t *testing.T) {
	repo := setupRepo(t)
	handler := auth.NewRegisterUserHandler(repo, nil, nil, nil)

	user, err := handler.Execute(context.Background(), auth.RegisterUserMessage{
		Username: "grace",
		Email:    "grace.hopper@example.com",
		Password: "sup3r-secret-pw",
	})
	require.NoError(t, err)
	assert.Equal(t, "grace", user.Username)
}

func TestRegisterUserDuplicateIdentity(t *testing.T) {
	repo := setupRepo(t)
	seedUser(t, repo, userSeed{Username: "ada", Email: "ada@example.com", IsActive: true})

	handler := auth.NewRegisterUserHandler(repo, nil, nil, nil)
	ctx := context.Background()

	t.Run("username taken", func(t *testing.T) {
		_, err := handler.Execute(ctx, auth.RegisterUserMessage{
			Username: "ada",
			Email:    "other@example.com",
			Password: "sup3r-secret-pw",
		})
		assert.ErrorIs(t, err, auth.ErrDuplicateIdentity)
	})

	t.Run("email taken", func(t *testing.T) {
		_, err := handler.Execute(ctx, auth.RegisterUserMessage{
			Username: "someone",
			Email:    "ada@example.com",
			Password: "sup3r-secret-pw",
		})
		assert.ErrorIs(t, err, auth.ErrDuplicateIdentity)
	})
}

func TestRegisterUserValidation(t *testing.T) {
	repo := setupRepo(t)
	handler := auth.NewRegisterUserHandler(repo, nil, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		event auth.RegisterUserMessage
	}{
		{
			name: "short password",
			event: auth.RegisterUserMessage{
				Username: "ada",
				Email:    "ada@example.com",
				Password: "short",
			},
		},
		{
			name: "bad email",
			event: auth.RegisterUserMessage{
				Username: "ada",
				Email:    "not-an-email",
				Password: "sup3r-secret-pw",
			},
		},
		{
			name: "missing username",
			event: auth.RegisterUserMessage{
				Email:    "ada@example.com",
				Password: "sup3r-secret-pw",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.Execute(ctx, tt.event)
			assert.Error(t, err)
		})
	}
}
