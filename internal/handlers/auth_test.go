package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/luiggisao1/turbonote/internal/auth"
	"github.com/luiggisao1/turbonote/internal/config"
	"github.com/luiggisao1/turbonote/internal/testutil"
	"log/slog"
)

// fakeClock advances one second per reading so consecutive token pairs never
// collide on iat.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(time.Second)
	return f.now
}

type testEnv struct {
	router *gin.Engine
	store  *memStore
	clock  *fakeClock
	auth   *AuthHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		JWTSecret:       "test-secret",
		JWTIssuer:       "turbonote",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		IdentityScheme:  config.IdentityEmail,
		Argon2:          config.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
	}

	authHandler := NewAuthHandler(store, logger, cfg)
	clock := &fakeClock{now: time.Now()}
	authHandler.Clock = clock

	notesHandler := NewNotesHandler(store, logger)
	authenticated := auth.Middleware([]byte(cfg.JWTSecret), store)

	router := gin.New()
	authHandler.RegisterRoutes(router, authenticated)
	notesHandler.RegisterRoutes(router, authenticated)

	return &testEnv{router: router, store: store, clock: clock, auth: authHandler}
}

func (e *testEnv) register(t *testing.T, email, password string) tokenPairResponse {
	t.Helper()
	resp := testutil.MakeAPIRequest(e.router, http.MethodPost, "/auth/register/", credentialsRequest{Email: email, Password: password})
	testutil.AssertHTTPStatus(t, resp, http.StatusCreated)

	var pair tokenPairResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return pair
}

func (e *testEnv) login(t *testing.T, email, password string) tokenPairResponse {
	t.Helper()
	resp := testutil.MakeAPIRequest(e.router, http.MethodPost, "/auth/login/", credentialsRequest{Email: email, Password: password})
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var pair tokenPairResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return pair
}

func TestRegisterSuccess(t *testing.T) {
	env := newTestEnv(t)

	pair := env.register(t, "new@example.com", "newpass")
	if pair.Email != "new@example.com" {
		t.Fatalf("expected email echoed back, got %q", pair.Email)
	}
	if pair.ID == uuid.Nil {
		t.Fatalf("expected user id")
	}
	if pair.Access == "" || pair.Refresh == "" {
		t.Fatalf("expected access and refresh tokens")
	}

	if len(env.store.tokens) != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", len(env.store.tokens))
	}
	for _, token := range env.store.tokens {
		if token.UserID != pair.ID {
			t.Fatalf("ledger row bound to wrong user")
		}
		if token.Blacklisted() {
			t.Fatalf("fresh token must not be blacklisted")
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "taken@example.com", "p1")

	// a different password and different casing still collide
	resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/register/", credentialsRequest{Email: "Taken@Example.COM", Password: "other"})
	testutil.AssertErrorCode(t, resp, http.StatusBadRequest, testutil.ErrorCodeDuplicateEmail)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []credentialsRequest{
		{Email: "", Password: "p1"},
		{Email: "a@x.com", Password: ""},
		{Email: "", Password: ""},
	}
	for _, req := range cases {
		resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/register/", req)
		testutil.AssertErrorCode(t, resp, http.StatusBadRequest, testutil.ErrorCodeValidation)
	}
}

func TestRegisterRejectsMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/register/", "not-an-object")
	testutil.AssertErrorCode(t, resp, http.StatusBadRequest, testutil.ErrorCodeValidation)
}

func TestLoginIssuesFreshPair(t *testing.T) {
	env := newTestEnv(t)

	pairA := env.register(t, "a@x.com", "p1")
	pairB := env.login(t, "a@x.com", "p1")

	if pairA.Access == pairB.Access {
		t.Fatalf("expected a fresh access token on login")
	}
	if pairA.Refresh == pairB.Refresh {
		t.Fatalf("expected a fresh refresh token on login")
	}
	if len(env.store.tokens) != 2 {
		t.Fatalf("expected two ledger rows, got %d", len(env.store.tokens))
	}

	// the earlier session is still alive
	resp := testutil.MakeAuthRequest(env.router, http.MethodGet, "/auth/me/", nil, pairA.Access)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
}

func TestLoginEnumerationResistance(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com", "p1")

	wrongPassword := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/login/", credentialsRequest{Email: "a@x.com", Password: "wrong"})
	unknownEmail := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/login/", credentialsRequest{Email: "ghost@x.com", Password: "p1"})

	testutil.AssertErrorCode(t, wrongPassword, http.StatusBadRequest, testutil.ErrorCodeInvalidCredentials)
	testutil.AssertErrorCode(t, unknownEmail, http.StatusBadRequest, testutil.ErrorCodeInvalidCredentials)

	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("error bodies must be indistinguishable:\n%s\n%s", wrongPassword.Body.String(), unknownEmail.Body.String())
	}
}

func TestLoginValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/login/", credentialsRequest{Email: "a@x.com"})
	testutil.AssertErrorCode(t, resp, http.StatusBadRequest, testutil.ErrorCodeValidation)
}

func TestLogoutBlacklistsAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	pair := env.register(t, "a@x.com", "p1")

	resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/logout/", refreshRequest{Refresh: pair.Refresh})
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	for _, token := range env.store.tokens {
		if !token.Blacklisted() {
			t.Fatalf("expected ledger row blacklisted after logout")
		}
	}

	// logging out again is still success
	resp = testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/logout/", refreshRequest{Refresh: pair.Refresh})
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
}

func TestLogoutRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	pair := env.register(t, "a@x.com", "p1")

	missing := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/logout/", refreshRequest{})
	testutil.AssertErrorCode(t, missing, http.StatusBadRequest, testutil.ErrorCodeValidation)

	garbage := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/logout/", refreshRequest{Refresh: "not-a-token"})
	testutil.AssertErrorCode(t, garbage, http.StatusBadRequest, testutil.ErrorCodeInvalidToken)

	// an access token is not a refresh token
	wrongKind := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/logout/", refreshRequest{Refresh: pair.Access})
	testutil.AssertErrorCode(t, wrongKind, http.StatusBadRequest, testutil.ErrorCodeInvalidToken)
}

func TestLogoutAllRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/logout_all/", nil)
	testutil.AssertHTTPStatus(t, resp, http.StatusUnauthorized)
}

func TestLogoutAllScopedToCaller(t *testing.T) {
	env := newTestEnv(t)

	alice := env.register(t, "alice@example.com", "pass1234")
	env.login(t, "alice@example.com", "pass1234")
	bob := env.register(t, "bob@example.com", "pass5678")

	resp := testutil.MakeAuthRequest(env.router, http.MethodPost, "/auth/logout_all/", nil, alice.Access)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var out detailResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Revoked == nil || *out.Revoked != 2 {
		t.Fatalf("expected 2 revoked tokens, got %v", out.Revoked)
	}

	for _, token := range env.store.tokens {
		if token.UserID == alice.ID && !token.Blacklisted() {
			t.Fatalf("expected all of alice's tokens blacklisted")
		}
		if token.UserID == bob.ID && token.Blacklisted() {
			t.Fatalf("bob's tokens must be untouched")
		}
	}

	// a second logout_all finds nothing left to revoke
	resp = testutil.MakeAuthRequest(env.router, http.MethodPost, "/auth/logout_all/", nil, alice.Access)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Revoked == nil || *out.Revoked != 0 {
		t.Fatalf("expected 0 revoked tokens, got %v", out.Revoked)
	}

	// issued access tokens stay valid until natural expiry
	me := testutil.MakeAuthRequest(env.router, http.MethodGet, "/auth/me/", nil, alice.Access)
	testutil.AssertHTTPStatus(t, me, http.StatusOK)
}

func TestRefreshIssuesNewAccessOnly(t *testing.T) {
	env := newTestEnv(t)
	pair := env.register(t, "a@x.com", "p1")

	resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/token/refresh/", refreshRequest{Refresh: pair.Refresh})
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var out accessResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Access == "" || out.Access == pair.Access {
		t.Fatalf("expected a fresh access token")
	}
	if len(env.store.tokens) != 1 {
		t.Fatalf("refresh must not create ledger rows, got %d", len(env.store.tokens))
	}

	me := testutil.MakeAuthRequest(env.router, http.MethodGet, "/auth/me/", nil, out.Access)
	testutil.AssertHTTPStatus(t, me, http.StatusOK)
}

func TestRefreshRejectsBlacklistedToken(t *testing.T) {
	env := newTestEnv(t)
	pair := env.register(t, "a@x.com", "p1")

	logout := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/logout/", refreshRequest{Refresh: pair.Refresh})
	testutil.AssertHTTPStatus(t, logout, http.StatusOK)

	resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/token/refresh/", refreshRequest{Refresh: pair.Refresh})
	testutil.AssertErrorCode(t, resp, http.StatusUnauthorized, testutil.ErrorCodeInvalidToken)
}

func TestRefreshRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	pair := env.register(t, "a@x.com", "p1")

	missing := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/token/refresh/", refreshRequest{})
	testutil.AssertErrorCode(t, missing, http.StatusBadRequest, testutil.ErrorCodeValidation)

	garbage := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/token/refresh/", refreshRequest{Refresh: "not-a-token"})
	testutil.AssertErrorCode(t, garbage, http.StatusUnauthorized, testutil.ErrorCodeInvalidToken)

	wrongKind := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/token/refresh/", refreshRequest{Refresh: pair.Access})
	testutil.AssertErrorCode(t, wrongKind, http.StatusUnauthorized, testutil.ErrorCodeInvalidToken)
}

func TestRefreshRejectsUnknownLedgerRow(t *testing.T) {
	env := newTestEnv(t)
	pair := env.register(t, "a@x.com", "p1")

	// simulate a swept ledger: the token still verifies but has no row
	for id := range env.store.tokens {
		delete(env.store.tokens, id)
	}

	resp := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/token/refresh/", refreshRequest{Refresh: pair.Refresh})
	testutil.AssertErrorCode(t, resp, http.StatusUnauthorized, testutil.ErrorCodeInvalidToken)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	pair := env.register(t, "me@example.com", "p1")

	unauthenticated := testutil.MakeAPIRequest(env.router, http.MethodGet, "/auth/me/", nil)
	testutil.AssertHTTPStatus(t, unauthenticated, http.StatusUnauthorized)

	resp := testutil.MakeAuthRequest(env.router, http.MethodGet, "/auth/me/", nil, pair.Access)
	testutil.AssertHTTPStatus(t, resp, http.StatusOK)

	var out meResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.ID != pair.ID || out.Email != "me@example.com" {
		t.Fatalf("expected own profile, got %+v", out)
	}
	if out.Username != "me@example.com" {
		t.Fatalf("email identity scheme mirrors email into username, got %q", out.Username)
	}
}

// The end-to-end session lifecycle: register, bad login, good login, logout of
// the first pair, refresh attempts with both pairs.
func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	pairA := env.register(t, "a@x.com", "p1")

	badLogin := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/login/", credentialsRequest{Email: "a@x.com", Password: "wrong"})
	testutil.AssertErrorCode(t, badLogin, http.StatusBadRequest, testutil.ErrorCodeInvalidCredentials)

	pairB := env.login(t, "a@x.com", "p1")
	if pairB.Access == pairA.Access || pairB.Refresh == pairA.Refresh {
		t.Fatalf("expected pair B to differ from pair A")
	}

	logout := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/logout/", refreshRequest{Refresh: pairA.Refresh})
	testutil.AssertHTTPStatus(t, logout, http.StatusOK)

	refreshA := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/token/refresh/", refreshRequest{Refresh: pairA.Refresh})
	testutil.AssertErrorCode(t, refreshA, http.StatusUnauthorized, testutil.ErrorCodeInvalidToken)

	refreshB := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/token/refresh/", refreshRequest{Refresh: pairB.Refresh})
	testutil.AssertHTTPStatus(t, refreshB, http.StatusOK)

	var out accessResponse
	if err := json.Unmarshal(refreshB.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Access == "" {
		t.Fatalf("expected a new access token from pair B")
	}
}
