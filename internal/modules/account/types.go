package account

import (
	"time"

	"github.com/futureofwork/core/internal/models"
)

type RegisterDTO struct {
	Name      string `json:"name"      validate:"required,max=80"`
	Username  string `json:"username"  validate:"required,username"`
	Email     string `json:"email"     validate:"required,email,max=254"`
	Password1 string `json:"password1" validate:"required"`
	Password2 string `json:"password2" validate:"required"`
}

type LoginDTO struct {
	// Username accepts either a username or an email address.
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LogoutDTO struct {
	Refresh string `json:"refresh" validate:"required"`
}

type RefreshDTO struct {
	Refresh string `json:"refresh" validate:"required"`
}

type EmailDTO struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirmDTO struct {
	Password1 string `json:"password1" validate:"required"`
	Password2 string `json:"password2" validate:"required"`
}

type ChangePasswordDTO struct {
	OldPassword  string `json:"old_password"  validate:"required"`
	NewPassword1 string `json:"new_password1" validate:"required"`
	NewPassword2 string `json:"new_password2" validate:"required"`
}

type UpdateAccountDTO struct {
	Name     *string `json:"name"     validate:"omitempty,max=80"`
	Username *string `json:"username" validate:"omitempty,username"`
	Email    *string `json:"email"    validate:"omitempty,email,max=254"`
}

type DeactivateDTO struct {
	Confirm bool `json:"confirm"`
}

type GoogleLoginDTO struct {
	AccessToken string `json:"access_token" validate:"required"`
}

type UpdateProfileDTO struct {
	Bio         *string `json:"bio"          validate:"omitempty,max=2000"`
	Avatar      *string `json:"avatar"       validate:"omitempty,url,max=512"`
	Country     *string `json:"country"      validate:"omitempty,len=2,alpha"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,e164"`
	Gender      *string `json:"gender"       validate:"omitempty,oneof=male female other"`
}

// Client identifies where a session is being opened from.
type Client struct {
	IP string
	UA string
}

// TokenPair is a freshly minted access and refresh token.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type userSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type LoginResult struct {
	TokenPair
	User userSummary `json:"user"`
	// Reactivated is set when this login ended a deactivation.
	Reactivated bool `json:"-"`
}

type accountResponse struct {
	ID                       string     `json:"id"`
	Name                     string     `json:"name"`
	Username                 string     `json:"username"`
	Email                    string     `json:"email"`
	PendingEmail             string     `json:"pending_email,omitempty"`
	EmailVerificationPending bool       `json:"email_verification_pending"`
	Status                   string     `json:"status"`
	DateJoined               time.Time  `json:"date_joined"`
	LastLogin                *time.Time `json:"last_login"`
	AccountUpdatedAt         *time.Time `json:"account_updated_at"`
	CanUpdate                bool       `json:"can_update"`
}

func summarize(u *models.UserModel) userSummary {
	return userSummary{ID: u.ID, Name: u.Name, Email: u.Email, Username: u.Username}
}

// Task types for outbound email.
const (
	TaskActivationEmail = "email:activation"
	TaskPasswordReset   = "email:password_reset"
	TaskEmailChange     = "email:email_change"
)

// resendKeyPrefix namespaces the per-account resend counter in Redis.
const resendKeyPrefix = "resend_verification:"

type emailJob struct {
	UserID   string `json:"user_id"`
	NewEmail string `json:"new_email,omitempty"`
}
