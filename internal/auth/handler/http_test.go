package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	authdomain "claims-portal/backend/internal/auth/domain"
	"claims-portal/backend/internal/auth/service"
	"claims-portal/backend/internal/security"
	"claims-portal/backend/internal/server/middleware"
	sessiondomain "claims-portal/backend/internal/session/domain"
	userdomain "claims-portal/backend/internal/user/domain"
)

type memUserRepo struct {
	mu sync.Mutex
	m  map[string]*userdomain.User
}

func newMemUserRepo() *memUserRepo { return &memUserRepo{m: make(map[string]*userdomain.User)} }

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.m {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.m[u.ID] = &cp
	return nil
}

func (r *memUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.m[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

type memTokenRepo struct {
	mu     sync.Mutex
	byHash map[string]*authdomain.Token
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{byHash: make(map[string]*authdomain.Token)}
}

func (r *memTokenRepo) Create(ctx context.Context, t *authdomain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, prev := range r.byHash {
		if prev.UserID == t.UserID && prev.Purpose == t.Purpose {
			delete(r.byHash, h)
		}
	}
	cp := *t
	r.byHash[t.TokenHash] = &cp
	return nil
}

func (r *memTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*authdomain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[tokenHash]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTokenRepo) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byHash {
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

type captureLinkSender struct {
	mu     sync.Mutex
	tokens []string
}

func (s *captureLinkSender) SendLink(ctx context.Context, email, token, template string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token)
	return nil
}

func (s *captureLinkSender) lastToken(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) == 0 {
		t.Fatal("no link was dispatched")
	}
	return s.tokens[len(s.tokens)-1]
}

func (s *captureLinkSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: make(map[string]*sessiondomain.Session)}
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.m[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) Revoke(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && s.RevokedAt == nil {
		now := time.Now().UTC()
		s.RevokedAt = &now
	}
	return nil
}

func (r *memSessionRepo) RevokeAllByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for _, s := range r.m {
		if s.UserID == userID && s.RevokedAt == nil {
			t := now
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
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		t := at
		s.LastSeenAt = &t
	}
	return nil
}

const testPassword = "Sup3r-Secret-Pass!"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	router, _ := newAuthEnv(t)
	return router
}

func newAuthEnv(t *testing.T) (*gin.Engine, *captureLinkSender) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	users := newMemUserRepo()
	sessions := newMemSessionRepo()
	links := &captureLinkSender{}
	svc := service.NewAuthService(users, sessions, newMemTokenRepo(), links, security.NewHasher(4), tokens, 24*time.Hour)
	h := NewAuthHandler(svc, false)

	router := gin.New()
	api := router.Group("/api")
	authed := api.Group("")
	authed.Use(middleware.Auth(tokens, sessions))
	h.Register(api, authed)
	return router, links
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func signUp(t *testing.T, router *gin.Engine, email string) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/auth/signup", map[string]any{
		"email":    email,
		"password": testPassword,
		"name":     "Jordan Doe",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("signup: want 201, got %d: %s", w.Code, w.Body.String())
	}
}

func signIn(t *testing.T, router *gin.Engine, email string) (accessToken, refreshCookie string) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/auth/signin", map[string]any{
		"email":    email,
		"password": testPassword,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("signin: want 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	accessToken, _ = body["accessToken"].(string)
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			refreshCookie = c.Value
		}
	}
	if accessToken == "" || refreshCookie == "" {
		t.Fatal("signin must return an access token and set the refresh cookie")
	}
	return accessToken, refreshCookie
}

func TestSignUpAndSignIn(t *testing.T) {
	router := newTestRouter(t)
	signUp(t, router, "jordan@example.com")

	// Email comparison is case-insensitive.
	accessToken, _ := signIn(t, router, "Jordan@Example.com")
	if accessToken == "" {
		t.Fatal("missing access token")
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	router := newTestRouter(t)
	signUp(t, router, "jordan@example.com")

	w := doJSON(t, router, http.MethodPost, "/api/auth/signup", map[string]any{
		"email":    "jordan@example.com",
		"password": testPassword,
		"name":     "Jordan Doe",
	}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d", w.Code)
	}
}

func TestSignUp_WeakPassword(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/auth/signup", map[string]any{
		"email":    "jordan@example.com",
		"password": "short",
		"name":     "Jordan Doe",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", w.Code)
	}
}

func TestSignIn_WrongPassword(t *testing.T) {
	router := newTestRouter(t)
	signUp(t, router, "jordan@example.com")

	w := doJSON(t, router, http.MethodPost, "/api/auth/signin", map[string]any{
		"email":    "jordan@example.com",
		"password": "Wrong-Password-123!",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
}

func TestSession_RequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	if w := doJSON(t, router, http.MethodGet, "/api/auth/session", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 without a token, got %d", w.Code)
	}

	signUp(t, router, "jordan@example.com")
	accessToken, _ := signIn(t, router, "jordan@example.com")

	header := http.Header{"Authorization": []string{"Bearer " + accessToken}}
	w := doJSON(t, router, http.MethodGet, "/api/auth/session", nil, header)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200 with a token, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["email"] != "jordan@example.com" || body["role"] != "staff" {
		t.Fatalf("session mismatch: %v", body)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	router := newTestRouter(t)
	signUp(t, router, "jordan@example.com")
	_, refresh := signIn(t, router, "jordan@example.com")

	w := doJSON(t, router, http.MethodPost, "/api/auth/refresh", map[string]any{"refreshToken": refresh}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: want 200, got %d: %s", w.Code, w.Body.String())
	}
	if decode(t, w)["accessToken"] == "" {
		t.Fatal("refresh must return a new access token")
	}

	// The rotated-out token is now a reuse signal and revokes the account's sessions.
	w = doJSON(t, router, http.MethodPost, "/api/auth/refresh", map[string]any{"refreshToken": refresh}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("replayed refresh: want 401, got %d", w.Code)
	}
}

func TestRefresh_FromCookie(t *testing.T) {
	router := newTestRouter(t)
	signUp(t, router, "jordan@example.com")
	_, refresh := signIn(t, router, "jordan@example.com")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: refresh})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("cookie refresh: want 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRefresh_InvalidToken(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/auth/refresh", map[string]any{"refreshToken": "garbage"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
}

func TestSignOut_RevokesSession(t *testing.T) {
	router := newTestRouter(t)
	signUp(t, router, "jordan@example.com")
	accessToken, refresh := signIn(t, router, "jordan@example.com")

	w := doJSON(t, router, http.MethodPost, "/api/auth/signout", map[string]any{"refreshToken": refresh}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("signout: want 200, got %d", w.Code)
	}

	// The session is revoked; the still-unexpired access token no longer works.
	header := http.Header{"Authorization": []string{"Bearer " + accessToken}}
	if w := doJSON(t, router, http.MethodGet, "/api/auth/session", nil, header); w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 after signout, got %d", w.Code)
	}

	// The revoked refresh token is dead too.
	if w := doJSON(t, router, http.MethodPost, "/api/auth/refresh", map[string]any{"refreshToken": refresh}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 refreshing a revoked session, got %d", w.Code)
	}
}

func signInWith(t *testing.T, router *gin.Engine, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, router, http.MethodPost, "/api/auth/signin", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
}

func TestRequestReset_UnknownEmailStaysSilent(t *testing.T) {
	router, links := newAuthEnv(t)

	w := doJSON(t, router, http.MethodPost, "/api/auth/request-reset", map[string]any{"email": "nobody@example.com"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200 for an unknown account, got %d: %s", w.Code, w.Body.String())
	}
	if links.count() != 0 {
		t.Fatalf("no email should be dispatched for an unknown account, got %d", links.count())
	}
}

func TestResetPassword_Flow(t *testing.T) {
	router, links := newAuthEnv(t)
	signUp(t, router, "jordan@example.com")
	accessToken, _ := signIn(t, router, "jordan@example.com")

	w := doJSON(t, router, http.MethodPost, "/api/auth/request-reset", map[string]any{"email": "jordan@example.com"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("request-reset: want 200, got %d: %s", w.Code, w.Body.String())
	}
	token := links.lastToken(t)

	const newPassword = "Fresh-Secret-Pass-9!"
	w = doJSON(t, router, http.MethodPost, "/api/auth/reset-password", map[string]any{
		"token":       token,
		"newPassword": newPassword,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset-password: want 200, got %d: %s", w.Code, w.Body.String())
	}

	if w := signInWith(t, router, "jordan@example.com", testPassword); w.Code != http.StatusUnauthorized {
		t.Fatalf("old password must stop working, got %d", w.Code)
	}
	if w := signInWith(t, router, "jordan@example.com", newPassword); w.Code != http.StatusOK {
		t.Fatalf("new password must sign in, got %d: %s", w.Code, w.Body.String())
	}

	// A reset revokes every existing session.
	header := http.Header{"Authorization": []string{"Bearer " + accessToken}}
	if w := doJSON(t, router, http.MethodGet, "/api/auth/session", nil, header); w.Code != http.StatusUnauthorized {
		t.Fatalf("pre-reset session must be revoked, got %d", w.Code)
	}

	// The token is single-use.
	w = doJSON(t, router, http.MethodPost, "/api/auth/reset-password", map[string]any{
		"token":       token,
		"newPassword": "Another-Secret-Pass-9!",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("replayed reset token: want 401, got %d", w.Code)
	}
}

func TestResetPassword_InvalidToken(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/auth/reset-password", map[string]any{
		"token":       "garbage",
		"newPassword": "Fresh-Secret-Pass-9!",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
}

func TestUpdatePassword(t *testing.T) {
	router := newTestRouter(t)
	signUp(t, router, "jordan@example.com")
	accessToken, _ := signIn(t, router, "jordan@example.com")

	const newPassword = "Fresh-Secret-Pass-9!"
	if w := doJSON(t, router, http.MethodPost, "/api/auth/update-password", map[string]any{"password": newPassword}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 without a token, got %d", w.Code)
	}

	header := http.Header{"Authorization": []string{"Bearer " + accessToken}}
	w := doJSON(t, router, http.MethodPost, "/api/auth/update-password", map[string]any{"password": newPassword}, header)
	if w.Code != http.StatusOK {
		t.Fatalf("update-password: want 200, got %d: %s", w.Code, w.Body.String())
	}

	if w := signInWith(t, router, "jordan@example.com", testPassword); w.Code != http.StatusUnauthorized {
		t.Fatalf("old password must stop working, got %d", w.Code)
	}
	if w := signInWith(t, router, "jordan@example.com", newPassword); w.Code != http.StatusOK {
		t.Fatalf("new password must sign in, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMagicLink_Flow(t *testing.T) {
	router, links := newAuthEnv(t)
	signUp(t, router, "jordan@example.com")

	w := doJSON(t, router, http.MethodPost, "/api/auth/magic-link", map[string]any{"email": "jordan@example.com"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("magic-link: want 200, got %d: %s", w.Code, w.Body.String())
	}
	token := links.lastToken(t)

	w = doJSON(t, router, http.MethodPost, "/api/auth/magic-link/verify", map[string]any{"token": token}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: want 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["accessToken"] == "" || body["role"] != "staff" {
		t.Fatalf("verify must respond like a sign-in: %v", body)
	}
	var gotCookie bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" && c.Value != "" {
			gotCookie = true
		}
	}
	if !gotCookie {
		t.Fatal("verify must set the refresh cookie")
	}

	// The link is single-use.
	if w := doJSON(t, router, http.MethodPost, "/api/auth/magic-link/verify", map[string]any{"token": token}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("replayed magic link: want 401, got %d", w.Code)
	}
}

func TestMagicLink_UnknownEmailStaysSilent(t *testing.T) {
	router, links := newAuthEnv(t)

	w := doJSON(t, router, http.MethodPost, "/api/auth/magic-link", map[string]any{"email": "nobody@example.com"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200 for an unknown account, got %d: %s", w.Code, w.Body.String())
	}
	if links.count() != 0 {
		t.Fatalf("no email should be dispatched for an unknown account, got %d", links.count())
	}
}
