package auth_test

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/pantryhub/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailVerificationFlow(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{
		Username: "ada",
		Email:    "ada@example.com",
		IsActive: true,
	})

	signer := auth.NewTokenSigner("test-signing-key")
	mailer := &captureMailer{}
	ctx := context.Background()

	request := auth.NewRequestEmailVerificationHandler(repo, signer, mailer, nil)
	require.NoError(t, request.Execute(ctx, auth.RequestEmailVerificationMessage{
		Email: "ada@example.com",
	}))
	require.Len(t, mailer.verifyTokens, 1)

	confirm := auth.NewConfirmEmailVerificationHandler(repo, signer, nil)
	require.NoError(t, confirm.Execute(ctx, auth.ConfirmEmailVerificationMessage{
		Token: mailer.verifyTokens[0],
	}))

	got, err := repo.Users().GetByID(ctx, user.ID.String())
	require.NoError(t, err)
	assert.True(t, got.EmailVerified)

	// The same link cannot verify twice.
	err = confirm.Execute(ctx, auth.ConfirmEmailVerificationMessage{
		Token: mailer.verifyTokens[0],
	})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryConflict, richErr.Category)
}

func TestEmailVerificationRequestIsSilent(t *testing.T) {
	repo := setupRepo(t)
	seedUser(t, repo, userSeed{
		Username: "ada",
		Email:    "ada@example.com",
		IsActive: true,
		Verified: true,
	})
	seedUser(t, repo, userSeed{
		Username: "sleepy",
		Email:    "sleepy@example.com",
		IsActive: false,
	})

	mailer := &captureMailer{}
	request := auth.NewRequestEmailVerificationHandler(repo, auth.NewTokenSigner("test-signing-key"), mailer, nil)
	ctx := context.Background()

	t.Run("unknown email", func(t *testing.T) {
		assert.NoError(t, request.Execute(ctx, auth.RequestEmailVerificationMessage{
			Email: "nobody@example.com",
		}))
	})

	t.Run("already verified", func(t *testing.T) {
		assert.NoError(t, request.Execute(ctx, auth.RequestEmailVerificationMessage{
			Email: "ada@example.com",
		}))
	})

	t.Run("deactivated account", func(t *testing.T) {
		assert.NoError(t, request.Execute(ctx, auth.RequestEmailVerificationMessage{
			Email: "sleepy@example.com",
		}))
	})

	assert.Empty(t, mailer.verifyTokens)
}

func TestEmailVerificationRejectsStaleToken(t *testing.T) {
	repo := setupRepo(t)
	user := seedUser(t, repo, userSeed{
		Username: "ada",
		Email:    "ada@example.com",
		Password: "old-password-1",
		IsActive: true,
	})

	signer := auth.NewTokenSigner("test-signing-key")
	ctx := context.Background()

	token, err := signer.SignEmailVerification(user)
	require.NoError(t, err)

	// A password rotation between send and click invalidates the link.
	change := auth.NewChangePasswordHandler(repo, nil)
	require.NoError(t, change.Execute(ctx, auth.ChangePasswordMessage{
		UserID:          user.ID,
		CurrentPassword: "old-password-1",
		NewPassword:     "new-password-2",
	}))

	confirm := auth.NewConfirmEmailVerificationHandler(repo, signer, nil)
	err = confirm.Execute(ctx, auth.ConfirmEmailVerificationMessage{
		Token: token,
	})
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}
