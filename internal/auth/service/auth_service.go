// Package service implements staff sign-up, sign-in, token refresh with
// rotation, sign-out, and the emailed password-reset and magic-link flows
// for the claims portal.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	authdomain "claims-portal/backend/internal/auth/domain"
	"claims-portal/backend/internal/notify"
	"claims-portal/backend/internal/security"
	"claims-portal/backend/internal/server/middleware"
	sessiondomain "claims-portal/backend/internal/session/domain"
	userdomain "claims-portal/backend/internal/user/domain"
)

// Sentinel errors for the auth service; the handler maps them to HTTP codes.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidRefreshToken    = errors.New("invalid or expired refresh token")
	ErrRefreshTokenReuse      = errors.New("refresh token reuse detected; all sessions revoked")
	ErrInvalidAuthToken       = errors.New("invalid or expired token")
)

// Lifetimes for emailed single-use tokens. A reset link survives a coffee break;
// a magic link is meant to be clicked right away.
const (
	resetTokenTTL = time.Hour
	magicLinkTTL  = 15 * time.Minute
)

// AuthResult holds the outcome of SignUp (UserID only) or SignIn/Refresh (tokens too).
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	Role         userdomain.Role
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// TokenRepo is the minimal auth token repository needed by the auth service.
type TokenRepo interface {
	Create(ctx context.Context, t *authdomain.Token) error
	GetByHash(ctx context.Context, tokenHash string) (*authdomain.Token, error)
	Consume(ctx context.Context, id string, at time.Time) (bool, error)
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	Revoke(ctx context.Context, id string) error
	RevokeAllByUser(ctx context.Context, userID string) error
	UpdateRefreshToken(ctx context.Context, sessionID, jti, refreshTokenHash string) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}

// AuthService implements password sign-up, sign-in, refresh, sign-out, and the
// emailed-token flows (password reset, magic link).
type AuthService struct {
	userRepo    UserRepo
	sessionRepo SessionRepo
	tokenRepo   TokenRepo
	links       notify.LinkSender // nil disables reset and magic-link dispatch
	hasher      *security.Hasher
	tokens      *security.TokenProvider
	refreshTTL  time.Duration
}

// NewAuthService returns an AuthService with the given dependencies. links may
// be nil; the reset and magic-link endpoints then refuse to issue tokens.
func NewAuthService(
	userRepo UserRepo,
	sessionRepo SessionRepo,
	tokenRepo TokenRepo,
	links notify.LinkSender,
	hasher *security.Hasher,
	tokens *security.TokenProvider,
	refreshTTL time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokenRepo:   tokenRepo,
		links:       links,
		hasher:      hasher,
		tokens:      tokens,
		refreshTTL:  refreshTTL,
	}
}

// SignUp creates a staff account. New accounts get the staff role; review and
// payment roles are assigned out of band (seed tooling or an existing admin).
func (s *AuthService) SignUp(ctx context.Context, email, password, name string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyRegistered
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, err
	}
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		Role:         userdomain.RoleStaff,
		PasswordHash: hashed,
		CreatedAt:    time.Now().UTC(),
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return &AuthResult{UserID: user.ID, Role: user.Role}, nil
}

// SignIn authenticates with email/password, creates a session, and returns tokens.
// The role rides in the access token so workflow permission checks need no user lookup.
func (s *AuthService) SignIn(ctx context.Context, email, password, ipAddress string) (*AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.startSession(ctx, user, ipAddress)
}

// startSession creates a session for an already-authenticated user and issues
// its token pair. Shared by password sign-in and magic-link sign-in.
func (s *AuthService) startSession(ctx context.Context, user *userdomain.User, ipAddress string) (*AuthResult, error) {
	sessionID := uuid.New().String()
	refreshToken, jti, _, err := s.tokens.IssueRefresh(sessionID, user.ID)
	if err != nil {
		return nil, err
	}
	accessToken, _, accessExp, err := s.tokens.IssueAccess(sessionID, user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &sessiondomain.Session{
		ID:               sessionID,
		UserID:           user.ID,
		ExpiresAt:        now.Add(s.refreshTTL),
		IPAddress:        ipAddress,
		RefreshJti:       jti,
		RefreshTokenHash: security.HashRefreshToken(refreshToken),
		CreatedAt:        now,
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExp,
		UserID:       user.ID,
		Role:         user.Role,
	}, nil
}

// Refresh validates the refresh token, rotates it, and returns new tokens.
// Presenting an already-rotated token revokes every session of the user.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	sessionID, jti, userID, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if !sess.Active(now) {
		return nil, ErrInvalidRefreshToken
	}
	if sess.RefreshJti != jti {
		_ = s.sessionRepo.RevokeAllByUser(ctx, userID)
		return nil, ErrRefreshTokenReuse
	}
	if sess.RefreshTokenHash != "" && !security.RefreshTokenHashEqual(refreshToken, sess.RefreshTokenHash) {
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidRefreshToken
	}
	_ = s.sessionRepo.UpdateLastSeen(ctx, sessionID, now)
	newRefresh, newJti, _, err := s.tokens.IssueRefresh(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.UpdateRefreshToken(ctx, sessionID, newJti, security.HashRefreshToken(newRefresh)); err != nil {
		return nil, err
	}
	accessToken, _, accessExp, err := s.tokens.IssueAccess(sessionID, userID, string(user.Role))
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    accessExp,
		UserID:       userID,
		Role:         user.Role,
	}, nil
}

// SignOut revokes the session identified by the refresh token or, when none is
// given, the session the auth middleware put in the context. Unknown or
// malformed tokens are a no-op so sign-out never fails visibly.
func (s *AuthService) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		sessionID, _, _, err := s.tokens.ValidateRefresh(refreshToken)
		if err != nil {
			return nil
		}
		return s.sessionRepo.Revoke(ctx, sessionID)
	}
	sessionID, ok := middleware.GetSessionID(ctx)
	if !ok {
		return nil
	}
	return s.sessionRepo.Revoke(ctx, sessionID)
}

// SessionInfo describes the authenticated caller; the SPA polls it to decide
// whether the user is still signed in.
type SessionInfo struct {
	UserID string
	Email  string
	Name   string
	Role   userdomain.Role
}

// CurrentSession returns the signed-in user for the session in context, or
// ErrInvalidRefreshToken when the context carries no live session.
func (s *AuthService) CurrentSession(ctx context.Context) (*SessionInfo, error) {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	return &SessionInfo{UserID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role}, nil
}

// RequestPasswordReset emails a single-use reset token to the account. Unknown
// emails succeed silently so the endpoint does not reveal which accounts exist.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	return s.issueToken(ctx, email, authdomain.PurposePasswordReset, resetTokenTTL, "password-reset")
}

// RequestMagicLink emails a single-use sign-in token to the account. Unknown
// emails succeed silently, same as RequestPasswordReset.
func (s *AuthService) RequestMagicLink(ctx context.Context, email string) error {
	return s.issueToken(ctx, email, authdomain.PurposeMagicLink, magicLinkTTL, "magic-link")
}

func (s *AuthService) issueToken(ctx context.Context, email string, purpose authdomain.TokenPurpose, ttl time.Duration, template string) error {
	if s.tokenRepo == nil || s.links == nil {
		return errors.New("token dispatch is not configured")
	}
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	raw, err := security.GenerateOpaqueToken()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t := &authdomain.Token{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Purpose:   purpose,
		TokenHash: security.HashOpaqueToken(raw),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.tokenRepo.Create(ctx, t); err != nil {
		return err
	}
	if err := s.links.SendLink(ctx, user.Email, raw, template); err != nil {
		return fmt.Errorf("send %s link: %w", template, err)
	}
	return nil
}

// redeemToken looks up, validates, and consumes a single-use token, returning
// its owner. Consumption is race-safe: presented twice, only one caller wins.
func (s *AuthService) redeemToken(ctx context.Context, raw string, purpose authdomain.TokenPurpose) (*userdomain.User, error) {
	if s.tokenRepo == nil || raw == "" {
		return nil, ErrInvalidAuthToken
	}
	t, err := s.tokenRepo.GetByHash(ctx, security.HashOpaqueToken(raw))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if t == nil || t.Purpose != purpose || !t.Live(now) {
		return nil, ErrInvalidAuthToken
	}
	ok, err := s.tokenRepo.Consume(ctx, t.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidAuthToken
	}
	user, err := s.userRepo.GetByID(ctx, t.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidAuthToken
	}
	return user, nil
}

// ResetPassword sets a new password for the account the reset token belongs to
// and revokes every open session; the holder of the new password signs in fresh.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.redeemToken(ctx, token, authdomain.PurposePasswordReset)
	if err != nil {
		return err
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, hashed); err != nil {
		return err
	}
	return s.sessionRepo.RevokeAllByUser(ctx, user.ID)
}

// UpdatePassword sets a new password for the signed-in user. The live session is
// the authentication; no current password is required.
func (s *AuthService) UpdatePassword(ctx context.Context, newPassword string) error {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return ErrInvalidCredentials
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return err
	}
	return s.userRepo.UpdatePassword(ctx, userID, hashed)
}

// SignInWithMagicLink redeems a magic-link token and starts a session, returning
// the same token pair a password sign-in would.
func (s *AuthService) SignInWithMagicLink(ctx context.Context, token, ipAddress string) (*AuthResult, error) {
	user, err := s.redeemToken(ctx, token, authdomain.PurposeMagicLink)
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, user, ipAddress)
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	ok, _ := regexp.MatchString(simpleEmail, email)
	if !ok {
		return errors.New("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 12 {
		return errors.New("password must be at least 12 characters")
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		case r < '0' || (r > '9' && r < 'A') || (r > 'Z' && r < 'a') || r > 'z':
			hasSymbol = true
		}
	}
	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	if !hasSymbol {
		return errors.New("password must contain at least one symbol")
	}
	return nil
}
