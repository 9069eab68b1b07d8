package account

import (
	"sync"
	"testing"
	"time"

	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/modules/account/token"
	"github.com/futureofwork/core/internal/modules/oauth"
	"github.com/futureofwork/core/internal/pkg/apperr"
	"github.com/futureofwork/core/internal/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRequiresVerifiedAccount(t *testing.T) {
	f := newFixture(t)
	f.register(t, "pat", "pat@example.com")

	_, err := f.svc.Login(f.ctx, &LoginDTO{Username: "pat", Password: testPassword}, Client{})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.svc.Login(f.ctx, &LoginDTO{Username: "nobody", Password: testPassword}, Client{})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = f.svc.Login(f.ctx, &LoginDTO{}, Client{})
	assert.True(t, apperr.IsValidation(err))
}

func TestLoginIssuesLinkedTokenPair(t *testing.T) {
	f := newFixture(t)
	u := f.active(t, "quinn", "quinn@example.com")

	res, err := f.svc.Login(f.ctx, &LoginDTO{Username: "Quinn", Password: testPassword}, Client{IP: "10.0.0.9", UA: "curl/8"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.User.ID)
	assert.NotNil(t, f.reload(t, u.ID).LastLogin)

	access, err := f.svc.signer.Parse(res.Access, jwt.TypeAccess)
	require.NoError(t, err)
	refresh, err := f.svc.signer.Parse(res.Refresh, jwt.TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, access.SessionID, refresh.SessionID)

	ok, err := f.svc.IsSessionActive(u.ID, access.SessionID)
	require.NoError(t, err)
	assert.True(t, ok)

	rows, err := f.svc.Sessions(u.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "10.0.0.9", rows[0].IP)

	_, err = f.svc.Login(f.ctx, &LoginDTO{Username: "quinn", Password: "wrong-password"}, Client{})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestRefreshRotates(t *testing.T) {
	f := newFixture(t)
	f.active(t, "rita", "rita@example.com")
	res, err := f.svc.Login(f.ctx, &LoginDTO{Username: "rita", Password: testPassword}, Client{})
	require.NoError(t, err)

	pair, err := f.svc.Refresh(f.ctx, &RefreshDTO{Refresh: res.Refresh}, Client{})
	require.NoError(t, err)
	assert.NotEqual(t, res.Refresh, pair.Refresh)

	_, err = f.svc.Refresh(f.ctx, &RefreshDTO{Refresh: res.Refresh}, Client{})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)

	_, err = f.svc.Refresh(f.ctx, &RefreshDTO{Refresh: res.Access}, Client{})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	u := f.active(t, "sam", "sam@example.com")
	other := f.active(t, "tess", "tess@example.com")

	res, err := f.svc.Login(f.ctx, &LoginDTO{Username: "sam", Password: testPassword}, Client{})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Logout(f.ctx, other.ID, &LogoutDTO{Refresh: res.Refresh}), apperr.ErrForbidden)
	assert.ErrorIs(t, f.svc.Logout(f.ctx, u.ID, &LogoutDTO{Refresh: "garbage"}), apperr.ErrInvalidToken)

	require.NoError(t, f.svc.Logout(f.ctx, u.ID, &LogoutDTO{Refresh: res.Refresh}))
	require.NoError(t, f.svc.Logout(f.ctx, u.ID, &LogoutDTO{Refresh: res.Refresh}))

	claims, err := f.svc.signer.Parse(res.Access, jwt.TypeAccess)
	require.NoError(t, err)
	ok, err := f.svc.IsSessionActive(u.ID, claims.SessionID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLogoutAll(t *testing.T) {
	f := newFixture(t)
	u := f.active(t, "uma", "uma@example.com")
	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(f.ctx, &LoginDTO{Username: "uma", Password: testPassword}, Client{})
		require.NoError(t, err)
	}
	n, err := f.svc.LogoutAll(f.ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	u := f.active(t, "vic", "vic@example.com")
	_, err := f.svc.Login(f.ctx, &LoginDTO{Username: "vic", Password: testPassword}, Client{})
	require.NoError(t, err)

	err = f.svc.ChangePassword(f.ctx, u.ID, &ChangePasswordDTO{OldPassword: "nope-nope-1", NewPassword1: "Another-pass-9", NewPassword2: "Another-pass-9"})
	assert.Equal(t, "old_password", fieldOf(t, err))

	err = f.svc.ChangePassword(f.ctx, u.ID, &ChangePasswordDTO{OldPassword: testPassword, NewPassword1: "Another-pass-9", NewPassword2: "Another-pass-8"})
	assert.Equal(t, "new_password2", fieldOf(t, err))

	err = f.svc.ChangePassword(f.ctx, u.ID, &ChangePasswordDTO{OldPassword: testPassword, NewPassword1: testPassword, NewPassword2: testPassword})
	assert.Equal(t, "new_password1", fieldOf(t, err))

	require.NoError(t, f.svc.ChangePassword(f.ctx, u.ID, &ChangePasswordDTO{OldPassword: testPassword, NewPassword1: "Another-pass-9", NewPassword2: "Another-pass-9"}))

	live, err := f.svc.Sessions(u.ID)
	require.NoError(t, err)
	assert.Empty(t, live)

	_, err = f.svc.Login(f.ctx, &LoginDTO{Username: "vic", Password: testPassword}, Client{})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.svc.Login(f.ctx, &LoginDTO{Username: "vic", Password: "Another-pass-9"}, Client{})
	assert.NoError(t, err)
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	u := f.active(t, "wes", "wes@example.com")

	require.NoError(t, f.svc.RequestPasswordReset(f.ctx, &EmailDTO{Email: "WES@example.com"}))
	require.NoError(t, f.svc.RequestPasswordReset(f.ctx, &EmailDTO{Email: "ghost@example.com"}))
	f.drain(t)
	msgs := f.mailer.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].HTML, "/reset-password/"+token.EncodeUID(u.ID)+"/")

	raw, err := f.svc.tokens.Make(token.PasswordReset, u)
	require.NoError(t, err)
	uid := token.EncodeUID(u.ID)

	err = f.svc.ConfirmPasswordReset(f.ctx, uid, raw, &PasswordResetConfirmDTO{Password1: "Fresh-pass-77", Password2: "Fresh-pass-78"})
	assert.Equal(t, "password2", fieldOf(t, err))

	require.NoError(t, f.svc.ConfirmPasswordReset(f.ctx, uid, raw, &PasswordResetConfirmDTO{Password1: "Fresh-pass-77", Password2: "Fresh-pass-77"}))
	_, err = f.svc.Login(f.ctx, &LoginDTO{Username: "wes", Password: "Fresh-pass-77"}, Client{})
	assert.NoError(t, err)

	// the hash changed, so the same link is spent
	err = f.svc.ConfirmPasswordReset(f.ctx, uid, raw, &PasswordResetConfirmDTO{Password1: "Other-pass-55", Password2: "Other-pass-55"})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestResetTokenRejectedAfterPasswordChange(t *testing.T) {
	f := newFixture(t)
	u := f.active(t, "xena", "xena@example.com")
	raw, err := f.svc.tokens.Make(token.PasswordReset, u)
	require.NoError(t, err)

	require.NoError(t, f.svc.ChangePassword(f.ctx, u.ID, &ChangePasswordDTO{OldPassword: testPassword, NewPassword1: "Changed-pass-1", NewPassword2: "Changed-pass-1"}))

	err = f.svc.ConfirmPasswordReset(f.ctx, token.EncodeUID(u.ID), raw, &PasswordResetConfirmDTO{Password1: "Other-pass-55", Password2: "Other-pass-55"})
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestResendVerificationIsRateLimited(t *testing.T) {
	f := newFixture(t)
	f.register(t, "yara", "yara@example.com")

	for i := 0; i < 5; i++ {
		require.NoError(t, f.svc.ResendVerification(f.ctx, &EmailDTO{Email: "yara@example.com"}), "attempt %d", i+1)
	}
	err := f.svc.ResendVerification(f.ctx, &EmailDTO{Email: "yara@example.com"})
	var rl *apperr.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, rl.RetryAfter, time.Hour)

	assert.NoError(t, f.svc.ResendVerification(f.ctx, &EmailDTO{Email: "unknown@example.com"}))

	f.active(t, "zed", "zed@example.com")
	assert.ErrorIs(t, f.svc.ResendVerification(f.ctx, &EmailDTO{Email: "zed@example.com"}), apperr.ErrAlreadyVerified)
}

func TestOAuthLogin(t *testing.T) {
	f := newFixture(t)
	id := oauth.Identity{Provider: oauth.ProviderGoogle, Subject: "g-1", Email: "New.Person@Gmail.com", Name: "New Person"}

	res, err := f.svc.OAuthLogin(f.ctx, id, Client{})
	require.NoError(t, err)
	u := f.reload(t, res.User.ID)
	assert.Equal(t, "new.person@gmail.com", u.Email)
	assert.Equal(t, "new.person", u.Username)
	assert.True(t, u.IsVerified)
	assert.True(t, u.IsActive)
	assert.False(t, u.HasUsablePassword())

	again, err := f.svc.OAuthLogin(f.ctx, id, Client{})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.User.ID)

	// an existing unverified account with the same email gets linked and verified
	pending := f.register(t, "linked", "linked@example.com")
	res, err = f.svc.OAuthLogin(f.ctx, oauth.Identity{Provider: oauth.ProviderGoogle, Subject: "g-2", Email: "linked@example.com"}, Client{})
	require.NoError(t, err)
	assert.Equal(t, pending.ID, res.User.ID)
	assert.True(t, f.reload(t, pending.ID).IsVerified)

	var links int64
	require.NoError(t, f.db.Model(&models.OAuthAccountModel{}).Count(&links).Error)
	assert.EqualValues(t, 2, links)
}

func TestOAuthUsernameCollision(t *testing.T) {
	f := newFixture(t)
	f.active(t, "jo_", "someone@example.com")

	res, err := f.svc.OAuthLogin(f.ctx, oauth.Identity{Provider: oauth.ProviderGoogle, Subject: "g-3", Email: "jo@gmail.com"}, Client{})
	require.NoError(t, err)
	u := f.reload(t, res.User.ID)
	assert.NotEqual(t, "jo_", u.Username)
	assert.Regexp(t, `^jo_-[0-9a-f]{4}$`, u.Username)
}

func TestUsernameFrom(t *testing.T) {
	assert.Equal(t, "a.b-c_d", usernameFrom("A.B-C_D"))
	assert.Equal(t, "x__", usernameFrom("x+++"))
	assert.Len(t, usernameFrom("abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"), 40)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	a := f.active(t, "amy", "amy@example.com")
	b := f.active(t, "ben", "ben@example.com")

	phone := "+14155550123"
	country := "us"
	p, err := f.svc.UpdateProfile(f.ctx, a.ID, &UpdateProfileDTO{PhoneNumber: &phone, Country: &country})
	require.NoError(t, err)
	assert.Equal(t, "US", p.Country)
	require.NotNil(t, p.PhoneNumber)

	_, err = f.svc.UpdateProfile(f.ctx, b.ID, &UpdateProfileDTO{PhoneNumber: &phone})
	assert.Equal(t, "phone_number", fieldOf(t, err))

	bad := "555-0123"
	_, err = f.svc.UpdateProfile(f.ctx, b.ID, &UpdateProfileDTO{PhoneNumber: &bad})
	assert.Equal(t, "phone_number", fieldOf(t, err))

	empty := ""
	p, err = f.svc.UpdateProfile(f.ctx, a.ID, &UpdateProfileDTO{PhoneNumber: &empty})
	require.NoError(t, err)
	assert.Nil(t, p.PhoneNumber)

	_, err = f.svc.UpdateProfile(f.ctx, b.ID, &UpdateProfileDTO{PhoneNumber: &phone})
	assert.NoError(t, err)
}

func TestUpdateProfileEmptyStringsClear(t *testing.T) {
	f := newFixture(t)
	u := f.active(t, "cleo", "cleo@example.com")

	avatar := "https://cdn.example.com/cleo.png"
	country := "fr"
	phone := "+33612345678"
	_, err := f.svc.UpdateProfile(f.ctx, u.ID, &UpdateProfileDTO{Avatar: &avatar, Country: &country, PhoneNumber: &phone})
	require.NoError(t, err)

	empty := "  "
	p, err := f.svc.UpdateProfile(f.ctx, u.ID, &UpdateProfileDTO{Avatar: &empty, Country: &empty, PhoneNumber: &empty})
	require.NoError(t, err)
	assert.Empty(t, p.Avatar)
	assert.Empty(t, p.Country)
	assert.Nil(t, p.PhoneNumber)

	bad := "not a url"
	_, err = f.svc.UpdateProfile(f.ctx, u.ID, &UpdateProfileDTO{Avatar: &bad})
	assert.Equal(t, "avatar", fieldOf(t, err))
}

func TestGetProfileBackfills(t *testing.T) {
	f := newFixture(t)
	u := f.active(t, "cal", "cal@example.com")
	require.NoError(t, f.db.Where("user_id = ?", u.ID).Delete(&models.ProfileModel{}).Error)

	p, err := f.svc.GetProfile(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)

	_, err = f.svc.GetProfile(f.ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentRefreshOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.active(t, "dee", "dee@example.com")
	res, err := f.svc.Login(f.ctx, &LoginDTO{Username: "dee", Password: testPassword}, Client{})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Refresh(f.ctx, &RefreshDTO{Refresh: res.Refresh}, Client{}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
