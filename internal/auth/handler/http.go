// Package handler exposes the auth service over HTTP.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"claims-portal/backend/internal/auth/service"
	"claims-portal/backend/internal/config"
)

// refreshCookie is the HttpOnly cookie carrying the refresh token. The SPA
// never reads it; the browser sends it back on /api/auth/refresh and sign-out.
const refreshCookie = "refresh_token"

// AuthHandler wires the auth service to gin routes.
type AuthHandler struct {
	svc          *service.AuthService
	cookieSecure bool
}

// NewAuthHandler returns an AuthHandler. cookieSecure should be true outside
// local development so the refresh cookie is only sent over TLS.
func NewAuthHandler(svc *service.AuthService, cookieSecure bool) *AuthHandler {
	return &AuthHandler{svc: svc, cookieSecure: cookieSecure}
}

// Register mounts the public auth routes on r and the signed-in-only routes on authed.
func (h *AuthHandler) Register(r gin.IRoutes, authed gin.IRoutes) {
	r.POST("/auth/signup", h.SignUp)
	r.POST("/auth/signin", h.SignIn)
	r.POST("/auth/refresh", h.Refresh)
	r.POST("/auth/signout", h.SignOut)
	r.POST("/auth/request-reset", h.RequestReset)
	r.POST("/auth/reset-password", h.ResetPassword)
	r.POST("/auth/magic-link", h.RequestMagicLink)
	r.POST("/auth/magic-link/verify", h.MagicLinkSignIn)
	authed.GET("/auth/session", h.Session)
	authed.POST("/auth/update-password", h.UpdatePassword)
}

type signUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	res, err := h.svc.SignUp(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyRegistered) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"userId": res.UserID, "role": res.Role})
}

type signInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	res, err := h.svc.SignIn(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		config.LogError(config.GetLogger(), "auth", "SignIn", "svc.SignIn", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign-in failed"})
		return
	}
	h.setRefreshCookie(c, res.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"accessToken": res.AccessToken,
		"expiresAt":   res.ExpiresAt,
		"userId":      res.UserID,
		"role":        res.Role,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	token := req.RefreshToken
	if token == "" {
		token, _ = c.Cookie(refreshCookie)
	}
	res, err := h.svc.Refresh(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRefreshTokenReuse):
			h.clearRefreshCookie(c)
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidRefreshToken):
			h.clearRefreshCookie(c)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		default:
			config.LogError(config.GetLogger(), "auth", "Refresh", "svc.Refresh", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		}
		return
	}
	h.setRefreshCookie(c, res.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"accessToken": res.AccessToken,
		"expiresAt":   res.ExpiresAt,
		"userId":      res.UserID,
		"role":        res.Role,
	})
}

func (h *AuthHandler) SignOut(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	token := req.RefreshToken
	if token == "" {
		token, _ = c.Cookie(refreshCookie)
	}
	if err := h.svc.SignOut(c.Request.Context(), token); err != nil {
		config.LogError(config.GetLogger(), "auth", "SignOut", "svc.SignOut", nil, err)
	}
	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Session reports the signed-in user. Mounted behind the auth middleware, so an
// unauthenticated poll never reaches here.
func (h *AuthHandler) Session(c *gin.Context) {
	info, err := h.svc.CurrentSession(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId": info.UserID,
		"email":  info.Email,
		"name":   info.Name,
		"role":   info.Role,
	})
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RequestReset emails a password-reset token. The response does not reveal
// whether the account exists.
func (h *AuthHandler) RequestReset(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.svc.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		config.LogError(config.GetLogger(), "auth", "RequestReset", "svc.RequestPasswordReset", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send reset email"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.svc.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidAuthToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type updatePasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// UpdatePassword changes the signed-in user's password. Mounted behind the auth
// middleware.
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.svc.UpdatePassword(c.Request.Context(), req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// RequestMagicLink emails a passwordless sign-in token. Like RequestReset, the
// response does not reveal whether the account exists.
func (h *AuthHandler) RequestMagicLink(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.svc.RequestMagicLink(c.Request.Context(), req.Email); err != nil {
		config.LogError(config.GetLogger(), "auth", "RequestMagicLink", "svc.RequestMagicLink", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send magic link"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type magicLinkVerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

// MagicLinkSignIn redeems a magic-link token and responds like a password sign-in.
func (h *AuthHandler) MagicLinkSignIn(c *gin.Context) {
	var req magicLinkVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	res, err := h.svc.SignInWithMagicLink(c.Request.Context(), req.Token, c.ClientIP())
	if err != nil {
		if errors.Is(err, service.ErrInvalidAuthToken) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		config.LogError(config.GetLogger(), "auth", "MagicLinkSignIn", "svc.SignInWithMagicLink", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign-in failed"})
		return
	}
	h.setRefreshCookie(c, res.RefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"accessToken": res.AccessToken,
		"expiresAt":   res.ExpiresAt,
		"userId":      res.UserID,
		"role":        res.Role,
	})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookie, token, 30*24*60*60, "/api/auth", "", h.cookieSecure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookie, "", -1, "/api/auth", "", h.cookieSecure, true)
}
