// Package token issues the single-purpose links sent by email. Each token
// embeds a fingerprint of the account field its purpose depends on, so it
// stops verifying as soon as that field changes:
//
//	activation      is_verified
//	password_reset  password hash
//	email_change    pending new email
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/pkg/apperr"
	jwtlib "github.com/golang-jwt/jwt/v5"
)

type Purpose string

const (
	Activation    Purpose = "activation"
	PasswordReset Purpose = "password_reset"
	EmailChange   Purpose = "email_change"
)

type claims struct {
	Purpose     Purpose `json:"pur"`
	Fingerprint string  `json:"fp"`
	jwtlib.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: now}
}

// TTL is how long issued tokens stay valid.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// boundField returns the account value a purpose is bound to.
func boundField(p Purpose, u *models.UserModel) string {
	switch p {
	case Activation:
		return strconv.FormatBool(u.IsVerified)
	case PasswordReset:
		return u.Password
	case EmailChange:
		return u.PendingEmail()
	}
	return ""
}

func (i *Issuer) fingerprint(p Purpose, u *models.UserModel) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(string(p)))
	mac.Write([]byte{0})
	mac.Write([]byte(u.ID))
	mac.Write([]byte{0})
	mac.Write([]byte(boundField(p, u)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Make returns a token for u that is valid for purpose p.
func (i *Issuer) Make(p Purpose, u *models.UserModel) (string, error) {
	now := i.now()
	c := claims{
		Purpose:     p,
		Fingerprint: i.fingerprint(p, u),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, c).SignedString(i.secret)
}

// Check verifies raw against the current state of u. Any failure is
// reported as apperr.ErrInvalidToken.
func (i *Issuer) Check(p Purpose, u *models.UserModel, raw string) error {
	var c claims
	_, err := jwtlib.ParseWithClaims(raw, &c, func(*jwtlib.Token) (interface{}, error) {
		return i.secret, nil
	}, jwtlib.WithTimeFunc(i.now), jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))
	if err != nil {
		return apperr.ErrInvalidToken
	}
	if c.Purpose != p || c.Subject != u.ID {
		return apperr.ErrInvalidToken
	}
	if !hmac.Equal([]byte(c.Fingerprint), []byte(i.fingerprint(p, u))) {
		return apperr.ErrInvalidToken
	}
	return nil
}

// EncodeUID encodes an account id for use in a link.
func EncodeUID(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// DecodeUID reverses EncodeUID.
func DecodeUID(uid string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil || len(b) == 0 {
		return "", apperr.ErrInvalidToken
	}
	return string(b), nil
}
