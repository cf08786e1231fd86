package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	authdomain "claims-portal/backend/internal/auth/domain"
	"claims-portal/backend/internal/security"
	"claims-portal/backend/internal/server/middleware"
	sessiondomain "claims-portal/backend/internal/session/domain"
	userdomain "claims-portal/backend/internal/user/domain"
)

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*userdomain.User
	byEmail map[string]*userdomain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: map[string]*userdomain.User{}, byEmail: map[string]*userdomain.User{}}
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byEmail[email], nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
	return nil
}

func (r *memUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

type memTokenRepo struct {
	mu sync.Mutex
	m  map[string]*authdomain.Token
}

func newMemTokenRepo() *memTokenRepo { return &memTokenRepo{m: map[string]*authdomain.Token{}} }

func (r *memTokenRepo) Create(ctx context.Context, t *authdomain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, prev := range r.m {
		if prev.UserID == t.UserID && prev.Purpose == t.Purpose {
			delete(r.m, h)
		}
	}
	cp := *t
	r.m[t.TokenHash] = &cp
	return nil
}

func (r *memTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*authdomain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.m[tokenHash]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTokenRepo) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.m {
		if t.ID == id {
			if t.ConsumedAt != nil {
				return false, nil
			}
			ts := at
			t.ConsumedAt = &ts
			return true, nil
		}
	}
	return false, nil
}

type captureLinks struct {
	mu     sync.Mutex
	tokens []string
}

func (s *captureLinks) SendLink(ctx context.Context, email, token, template string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token)
	return nil
}

func (s *captureLinks) last(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) == 0 {
		t.Fatal("no link was dispatched")
	}
	return s.tokens[len(s.tokens)-1]
}

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: map[string]*sessiondomain.Session{}}
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id], nil
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s2 := *s
	r.m[s.ID] = &s2
	return nil
}

func (r *memSessionRepo) Revoke(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		t := time.Now()
		s.RevokedAt = &t
	}
	return nil
}

func (r *memSessionRepo) RevokeAllByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := time.Now()
	for _, s := range r.m {
		if s.UserID == userID {
			s.RevokedAt = &t
		}
	}
	return nil
}

func (r *memSessionRepo) UpdateRefreshToken(ctx context.Context, sessionID, jti, refreshTokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[sessionID]; ok {
		s.RefreshJti = jti
		s.RefreshTokenHash = refreshTokenHash
	}
	return nil
}

func (r *memSessionRepo) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	return nil
}

func newTestAuthService(t *testing.T) (*AuthService, *memUserRepo, *memSessionRepo) {
	t.Helper()
	svc, users, sessions, _ := newTestAuthServiceWithLinks(t)
	return svc, users, sessions
}

func newTestAuthServiceWithLinks(t *testing.T) (*AuthService, *memUserRepo, *memSessionRepo, *captureLinks) {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	users := newMemUserRepo()
	sessions := newMemSessionRepo()
	links := &captureLinks{}
	svc := NewAuthService(users, sessions, newMemTokenRepo(), links, security.NewHasher(4), tokens, 24*time.Hour)
	return svc, users, sessions, links
}

const testPassword = "Sup3r-Secret-Pass!"

func TestAuthService_SignUp(t *testing.T) {
	svc, users, _ := newTestAuthService(t)
	ctx := context.Background()

	res, err := svc.SignUp(ctx, "Staff@Example.com", testPassword, "Staff One")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if res.UserID == "" || res.AccessToken != "" {
		t.Fatalf("SignUp result: %+v", res)
	}
	u, _ := users.GetByEmail(ctx, "staff@example.com")
	if u == nil {
		t.Fatal("email not normalized to lower case")
	}
	if u.Role != userdomain.RoleStaff {
		t.Fatalf("new account role = %q, want staff", u.Role)
	}
	if u.PasswordHash == "" || u.PasswordHash == testPassword {
		t.Fatal("password not hashed")
	}

	if _, err := svc.SignUp(ctx, "staff@example.com", testPassword, "Dup"); !errors.Is(err, ErrEmailAlreadyRegistered) {
		t.Fatalf("duplicate email: got %v", err)
	}
}

func TestAuthService_SignUpValidation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()
	cases := []struct {
		name, email, password string
	}{
		{"empty email", "", testPassword},
		{"bad email", "not-an-email", testPassword},
		{"short password", "a@b.com", "Sh0rt!"},
		{"no symbol", "a@b.com", "Password12345678"},
		{"no number", "a@b.com", "Password!!!!!!!!"},
	}
	for _, tc := range cases {
		if _, err := svc.SignUp(ctx, tc.email, tc.password, "x"); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestAuthService_SignInAndRefreshAndSignOut(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, "fin@example.com", testPassword, "Finance"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	res, err := svc.SignIn(ctx, "fin@example.com", testPassword, "10.0.0.1")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("tokens missing from sign-in result")
	}
	if res.Role != userdomain.RoleStaff {
		t.Fatalf("role = %q", res.Role)
	}

	ref, err := svc.Refresh(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if ref.RefreshToken == res.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	if err := svc.SignOut(ctx, ref.RefreshToken); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := svc.Refresh(ctx, ref.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("refresh after sign-out: got %v", err)
	}

	// Sanity: exactly one session exists and it is revoked.
	sessions.mu.Lock()
	n, revoked := 0, 0
	for _, s := range sessions.m {
		n++
		if s.RevokedAt != nil {
			revoked++
		}
	}
	sessions.mu.Unlock()
	if n != 1 || revoked != 1 {
		t.Fatalf("sessions=%d revoked=%d, want 1/1", n, revoked)
	}
}

func TestAuthService_SignInWrongPassword(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "a@b.com", testPassword, "A"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if _, err := svc.SignIn(ctx, "a@b.com", "Wrong-Password-1!", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := svc.SignIn(ctx, "nobody@b.com", testPassword, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", err)
	}
}

func TestAuthService_RefreshTokenReuseDetection(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "a@b.com", testPassword, "A"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	res, err := svc.SignIn(ctx, "a@b.com", testPassword, "")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if _, err := svc.Refresh(ctx, res.RefreshToken); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	// Replaying the pre-rotation token must revoke everything.
	if _, err := svc.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrRefreshTokenReuse) {
		t.Fatalf("replayed token: got %v, want ErrRefreshTokenReuse", err)
	}
	sessions.mu.Lock()
	for id, s := range sessions.m {
		if s.RevokedAt == nil {
			t.Errorf("session %s not revoked after reuse detection", id)
		}
	}
	sessions.mu.Unlock()
}

func TestAuthService_Refresh_EmptyToken(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	if _, err := svc.Refresh(context.Background(), ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("got %v", err)
	}
}

func TestAuthService_SignOutFromContext(t *testing.T) {
	svc, _, sessions := newTestAuthService(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "a@b.com", testPassword, "A"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	res, err := svc.SignIn(ctx, "a@b.com", testPassword, "")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	var sessionID string
	sessions.mu.Lock()
	for id := range sessions.m {
		sessionID = id
	}
	sessions.mu.Unlock()

	authed := middleware.WithIdentity(ctx, res.UserID, string(res.Role), sessionID)
	if err := svc.SignOut(authed, ""); err != nil {
		t.Fatalf("SignOut from context: %v", err)
	}
	sess, _ := sessions.GetByID(ctx, sessionID)
	if sess.RevokedAt == nil {
		t.Fatal("session not revoked")
	}
}

func TestAuthService_CurrentSession(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()
	if _, err := svc.CurrentSession(ctx); err == nil {
		t.Fatal("anonymous context should fail")
	}
	res, err := svc.SignUp(ctx, "a@b.com", testPassword, "Alice")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	authed := middleware.WithIdentity(ctx, res.UserID, string(res.Role), "s1")
	info, err := svc.CurrentSession(authed)
	if err != nil {
		t.Fatalf("CurrentSession: %v", err)
	}
	if info.Email != "a@b.com" || info.Name != "Alice" || info.Role != userdomain.RoleStaff {
		t.Fatalf("session info: %+v", info)
	}
}

func TestAuthService_PasswordReset(t *testing.T) {
	svc, _, sessions, links := newTestAuthServiceWithLinks(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "a@b.com", testPassword, "A"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if _, err := svc.SignIn(ctx, "a@b.com", testPassword, ""); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	// Unknown accounts get a silent success and no email.
	if err := svc.RequestPasswordReset(ctx, "nobody@b.com"); err != nil {
		t.Fatalf("RequestPasswordReset unknown: %v", err)
	}
	if len(links.tokens) != 0 {
		t.Fatal("no email should be dispatched for an unknown account")
	}

	if err := svc.RequestPasswordReset(ctx, "a@b.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	token := links.last(t)

	const newPassword = "Fresh-Secret-Pass-9!"
	if err := svc.ResetPassword(ctx, token, newPassword); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	// Every session opened before the reset is revoked.
	sessions.mu.Lock()
	for id, s := range sessions.m {
		if s.RevokedAt == nil {
			t.Errorf("session %s survived the reset", id)
		}
	}
	sessions.mu.Unlock()

	if _, err := svc.SignIn(ctx, "a@b.com", testPassword, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password: got %v", err)
	}
	if _, err := svc.SignIn(ctx, "a@b.com", newPassword, ""); err != nil {
		t.Fatalf("new password: %v", err)
	}

	// Single use.
	if err := svc.ResetPassword(ctx, token, "Another-Secret-9!aa"); !errors.Is(err, ErrInvalidAuthToken) {
		t.Fatalf("replayed token: got %v", err)
	}
}

func TestAuthService_ResetTokenSuperseded(t *testing.T) {
	svc, _, _, links := newTestAuthServiceWithLinks(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "a@b.com", testPassword, "A"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if err := svc.RequestPasswordReset(ctx, "a@b.com"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	first := links.last(t)
	if err := svc.RequestPasswordReset(ctx, "a@b.com"); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if err := svc.ResetPassword(ctx, first, "Fresh-Secret-Pass-9!"); !errors.Is(err, ErrInvalidAuthToken) {
		t.Fatalf("superseded token: got %v", err)
	}
	if err := svc.ResetPassword(ctx, links.last(t), "Fresh-Secret-Pass-9!"); err != nil {
		t.Fatalf("latest token: %v", err)
	}
}

func TestAuthService_UpdatePassword(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()
	res, err := svc.SignUp(ctx, "a@b.com", testPassword, "A")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	const newPassword = "Fresh-Secret-Pass-9!"
	if err := svc.UpdatePassword(ctx, newPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("anonymous context: got %v", err)
	}

	authed := middleware.WithIdentity(ctx, res.UserID, string(res.Role), "s1")
	if err := svc.UpdatePassword(authed, "weak"); err == nil {
		t.Fatal("weak password must be rejected")
	}
	if err := svc.UpdatePassword(authed, newPassword); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if _, err := svc.SignIn(ctx, "a@b.com", newPassword, ""); err != nil {
		t.Fatalf("sign-in with new password: %v", err)
	}
}

func TestAuthService_MagicLink(t *testing.T) {
	svc, _, _, links := newTestAuthServiceWithLinks(t)
	ctx := context.Background()
	if _, err := svc.SignUp(ctx, "a@b.com", testPassword, "A"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if err := svc.RequestMagicLink(ctx, "nobody@b.com"); err != nil {
		t.Fatalf("RequestMagicLink unknown: %v", err)
	}
	if len(links.tokens) != 0 {
		t.Fatal("no email should be dispatched for an unknown account")
	}

	if err := svc.RequestMagicLink(ctx, "a@b.com"); err != nil {
		t.Fatalf("RequestMagicLink: %v", err)
	}
	token := links.last(t)

	res, err := svc.SignInWithMagicLink(ctx, token, "10.0.0.1")
	if err != nil {
		t.Fatalf("SignInWithMagicLink: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("magic-link sign-in must issue a full token pair")
	}
	if res.Role != userdomain.RoleStaff {
		t.Fatalf("role = %q", res.Role)
	}

	if _, err := svc.SignInWithMagicLink(ctx, token, ""); !errors.Is(err, ErrInvalidAuthToken) {
		t.Fatalf("replayed link: got %v", err)
	}

	// A reset token cannot be redeemed as a magic link.
	if err := svc.RequestPasswordReset(ctx, "a@b.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if _, err := svc.SignInWithMagicLink(ctx, links.last(t), ""); !errors.Is(err, ErrInvalidAuthToken) {
		t.Fatalf("cross-purpose token: got %v", err)
	}
}
