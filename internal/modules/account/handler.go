package account

import (
	"github.com/futureofwork/core/internal/middleware"
	"github.com/futureofwork/core/internal/models"
	"github.com/futureofwork/core/internal/modules/oauth"
	"github.com/futureofwork/core/internal/pkg/apperr"
	"github.com/futureofwork/core/internal/pkg/clientip"
	"github.com/futureofwork/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

// Throttle returns the rate-limit middleware for a named scope.
type Throttle func(scope string) gin.HandlerFunc

type Handler struct {
	svc    *Service
	google oauth.Verifier
}

// NewHandler wires the HTTP surface. google may be nil to disable Google sign-in.
func NewHandler(svc *Service, google oauth.Verifier) *Handler {
	return &Handler{svc: svc, google: google}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc, throttle Throttle) {
	g := rg.Group("/auth")
	g.POST("/register", throttle("register"), h.register)
	g.POST("/login", throttle("login"), h.login)
	g.POST("/refresh", throttle("login"), h.refresh)
	g.POST("/verify-email/:uid/:token", throttle("verify_email"), h.verifyEmail)
	g.POST("/resend-verification", throttle("resend_verification"), h.resendVerification)
	g.POST("/password-reset", throttle("password_reset"), h.requestPasswordReset)
	g.POST("/password-reset/:uid/:token", throttle("password_reset"), h.confirmPasswordReset)
	if h.google != nil {
		g.POST("/google", throttle("login"), h.googleLogin)
	}

	a := g.Group("", authMW)
	a.POST("/logout", h.logout)
	a.POST("/logout-all", h.logoutAll)
	a.POST("/change-password", throttle("change_password"), h.changePassword)
	a.GET("/tokens", h.listTokens)

	me := rg.Group("/accounts/me", authMW)
	me.GET("", h.getAccount)
	me.PATCH("", throttle("account_update"), h.updateAccount)
	me.POST("/deactivate", throttle("account_deactivate"), h.deactivate)
	me.GET("/profile", h.getProfile)
	me.PATCH("/profile", h.updateProfile)

	admin := rg.Group("/accounts", authMW, adminMW)
	admin.POST("/:id/suspend", h.suspend)
	admin.POST("/:id/unsuspend", h.unsuspend)
}

func client(c *gin.Context) Client {
	return Client{IP: clientip.FromRequest(c.Request), UA: c.Request.UserAgent()}
}

// bind decodes the JSON body into dto. An empty body leaves dto zeroed so
// field validation reports what is missing.
func bind(c *gin.Context, dto interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dto); err != nil {
		response.BadRequest(c, "Malformed request body.")
		return false
	}
	return true
}

func toAccountResponse(u *models.UserModel, canUpdate bool) accountResponse {
	return accountResponse{
		ID:                       u.ID,
		Name:                     u.Name,
		Username:                 u.Username,
		Email:                    u.Email,
		PendingEmail:             u.PendingEmail(),
		EmailVerificationPending: u.EmailVerificationPending,
		Status:                   u.Status(),
		DateJoined:               u.DateJoined,
		LastLogin:                u.LastLogin,
		AccountUpdatedAt:         u.AccountUpdatedAt,
		CanUpdate:                canUpdate,
	}
}

type loginResponse struct {
	*LoginResult
	Message string `json:"message,omitempty"`
}

func loginReply(c *gin.Context, res *LoginResult) {
	out := loginResponse{LoginResult: res}
	if res.Reactivated {
		out.Message = "Welcome back. Your account has been reactivated."
	}
	response.OK(c, out)
}

func (h *Handler) register(c *gin.Context) {
	var dto RegisterDTO
	if !bind(c, &dto) {
		return
	}
	u, err := h.svc.Register(c.Request.Context(), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{
		"user":    summarize(u),
		"message": "Registration successful. Check your email to activate your account.",
	})
}

func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if !bind(c, &dto) {
		return
	}
	res, err := h.svc.Login(c.Request.Context(), &dto, client(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	loginReply(c, res)
}

func (h *Handler) googleLogin(c *gin.Context) {
	var dto GoogleLoginDTO
	if !bind(c, &dto) {
		return
	}
	if err := h.svc.check(&dto); err != nil {
		response.Error(c, err)
		return
	}
	id, err := h.google.Verify(c.Request.Context(), dto.AccessToken)
	if err != nil {
		response.Error(c, apperr.ErrInvalidToken)
		return
	}
	res, err := h.svc.OAuthLogin(c.Request.Context(), id, client(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	loginReply(c, res)
}

func (h *Handler) refresh(c *gin.Context) {
	var dto RefreshDTO
	if !bind(c, &dto) {
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), &dto, client(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, pair)
}

func (h *Handler) logout(c *gin.Context) {
	var dto LogoutDTO
	if !bind(c, &dto) {
		return
	}
	if err := h.svc.Logout(c.Request.Context(), middleware.CurrentUserID(c), &dto); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) logoutAll(c *gin.Context) {
	n, err := h.svc.LogoutAll(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"revoked": n})
}

func (h *Handler) listTokens(c *gin.Context) {
	rows, err := h.svc.Sessions(middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	current := middleware.CurrentSessionID(c)
	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"id":         r.ID,
			"ip":         r.IP,
			"ua":         r.UA,
			"created":    r.CreatedAt,
			"expires_at": r.ExpiresAt,
			"current":    r.ID == current,
		})
	}
	response.OK(c, out)
}

func (h *Handler) verifyEmail(c *gin.Context) {
	if err := h.svc.VerifyEmail(c.Request.Context(), c.Param("uid"), c.Param("token")); err != nil {
		response.Error(c, err)
		return
	}
	response.Detail(c, "Email verified successfully.")
}

func (h *Handler) resendVerification(c *gin.Context) {
	var dto EmailDTO
	if !bind(c, &dto) {
		return
	}
	if err := h.svc.ResendVerification(c.Request.Context(), &dto); err != nil {
		response.Error(c, err)
		return
	}
	response.Detail(c, "If the address belongs to an unverified account, a new activation email is on its way.")
}

func (h *Handler) requestPasswordReset(c *gin.Context) {
	var dto EmailDTO
	if !bind(c, &dto) {
		return
	}
	if err := h.svc.RequestPasswordReset(c.Request.Context(), &dto); err != nil {
		response.Error(c, err)
		return
	}
	response.Detail(c, "If the address belongs to an account, a reset link has been sent.")
}

func (h *Handler) confirmPasswordReset(c *gin.Context) {
	var dto PasswordResetConfirmDTO
	if !bind(c, &dto) {
		return
	}
	if err := h.svc.ConfirmPasswordReset(c.Request.Context(), c.Param("uid"), c.Param("token"), &dto); err != nil {
		response.Error(c, err)
		return
	}
	response.Detail(c, "Password has been reset.")
}

func (h *Handler) changePassword(c *gin.Context) {
	var dto ChangePasswordDTO
	if !bind(c, &dto) {
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), middleware.CurrentUserID(c), &dto); err != nil {
		response.Error(c, err)
		return
	}
	response.Detail(c, "Password changed. Sign in again on your other devices.")
}

func (h *Handler) getAccount(c *gin.Context) {
	u, err := h.svc.GetByID(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toAccountResponse(u, h.svc.CanUpdateAccount(u)))
}

func (h *Handler) updateAccount(c *gin.Context) {
	var dto UpdateAccountDTO
	if !bind(c, &dto) {
		return
	}
	u, err := h.svc.UpdateAccount(c.Request.Context(), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toAccountResponse(u, h.svc.CanUpdateAccount(u)))
}

func (h *Handler) deactivate(c *gin.Context) {
	var dto DeactivateDTO
	if !bind(c, &dto) {
		return
	}
	if err := h.svc.Deactivate(c.Request.Context(), middleware.CurrentUserID(c), &dto); err != nil {
		response.Error(c, err)
		return
	}
	response.Detail(c, "Account deactivated. Sign in within the grace period to restore it.")
}

func (h *Handler) getProfile(c *gin.Context) {
	p, err := h.svc.GetProfile(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var dto UpdateProfileDTO
	if !bind(c, &dto) {
		return
	}
	p, err := h.svc.UpdateProfile(c.Request.Context(), middleware.CurrentUserID(c), &dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, p)
}

func (h *Handler) suspend(c *gin.Context) {
	if err := h.svc.SetSuspended(c.Request.Context(), c.Param("id"), true); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) unsuspend(c *gin.Context) {
	if err := h.svc.SetSuspended(c.Request.Context(), c.Param("id"), false); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
