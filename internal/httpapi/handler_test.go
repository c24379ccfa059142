package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	accountdomain "marketplace-auth/internal/account/domain"
	"marketplace-auth/internal/auth"
	"marketplace-auth/internal/authsvc"
	"marketplace-auth/internal/faststore"
	"marketplace-auth/internal/identity"
	"marketplace-auth/internal/rateguard"
	"marketplace-auth/internal/security"
	"marketplace-auth/internal/session/cache"
	sessiondomain "marketplace-auth/internal/session/domain"
	sessionsvc "marketplace-auth/internal/session/service"
	"marketplace-auth/internal/verification"
)

const testPhone = "+14155551234"

type memAccountRepo struct {
	mu sync.Mutex
	m  map[string]*accountdomain.Account
}

func (r *memAccountRepo) GetByID(ctx context.Context, id string) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[id]; ok {
		a2 := *a
		return &a2, nil
	}
	return nil, nil
}

func (r *memAccountRepo) GetByExternalID(ctx context.Context, kind auth.CredentialKind, externalID string) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.m {
		var subject string
		switch kind {
		case auth.KindPhone:
			subject = a.Phone
		case auth.KindGoogle:
			subject = a.GoogleID
		case auth.KindApple:
			subject = a.AppleID
		}
		if subject == externalID && externalID != "" {
			a2 := *a
			return &a2, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.m {
		if a.Email == email && email != "" {
			a2 := *a
			return &a2, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) Create(ctx context.Context, a *accountdomain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a2 := *a
	r.m[a.ID] = &a2
	return nil
}

func (r *memAccountRepo) Update(ctx context.Context, a *accountdomain.Account) error {
	return r.Create(ctx, a)
}

func (r *memAccountRepo) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.m[id]; ok {
		a.LastActiveAt = at
	}
	return nil
}

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	s2 := *s
	return &s2, nil
}

func (r *memSessionRepo) ListByAccount(ctx context.Context, accountID string) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.m {
		if s.AccountID == accountID {
			s2 := *s
			out = append(out, &s2)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s2 := *s
	r.m[s.ID] = &s2
	return nil
}

func (r *memSessionRepo) RotateRefreshHash(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time, ip string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok || s.RefreshTokenHash != oldHash {
		return false, nil
	}
	s.RefreshTokenHash = newHash
	s.ExpiresAt = expiresAt
	s.IP = ip
	return true, nil
}

func (r *memSessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, id)
	return nil
}

func (r *memSessionRepo) DeleteAllByAccount(ctx context.Context, accountID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.m {
		if s.AccountID == accountID {
			ids = append(ids, id)
			delete(r.m, id)
		}
	}
	return ids, nil
}

func (r *memSessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.m {
		if s.ExpiresAt.Before(cutoff) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

type capturingSender struct {
	mu       sync.Mutex
	lastCode string
}

func (c *capturingSender) Send(ctx context.Context, phone, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCode = code
	return nil
}

func (c *capturingSender) code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCode
}

type testAPI struct {
	mux    *http.ServeMux
	sender *capturingSender
}

func newTestAPI(t *testing.T, ready func(ctx context.Context) error) *testAPI {
	t.Helper()
	access, refresh, err := security.DeriveTokenSecrets([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("DeriveTokenSecrets: %v", err)
	}
	tokens := security.NewTokenProvider(access, refresh, "marketplace-auth", "marketplace-api", 15*time.Minute, 14*24*time.Hour)

	store := faststore.NewMemoryStore()
	sender := &capturingSender{}
	verify := verification.NewService(store, rateguard.New(store, nil), sender, nil, verification.Config{})

	accounts := &memAccountRepo{m: make(map[string]*accountdomain.Account)}
	sessions := &memSessionRepo{m: make(map[string]*sessiondomain.Session)}
	manager := sessionsvc.NewManager(sessions, cache.New(store, nil), tokens, nil, 5)

	svc := authsvc.NewService(verify, identity.NewResolver(accounts, nil), accounts, manager, tokens, nil, nil)

	metrics := NewMetrics(prometheus.NewRegistry())
	h := NewHandler(nil, svc, metrics, ready, false)
	mux := http.NewServeMux()
	h.Register(mux)
	return &testAPI{mux: mux, sender: sender}
}

func (a *testAPI) do(t *testing.T, method, path, body, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) login(t *testing.T) *authsvc.AuthResult {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/auth/phone/send-code", `{"phone":"`+testPhone+`"}`, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("send-code status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = a.do(t, http.MethodPost, "/auth/phone/verify",
		`{"phone":"`+testPhone+`","code":"`+a.sender.code()+`","device_type":"web"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body %s", rec.Code, rec.Body.String())
	}
	var res authsvc.AuthResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode AuthResult: %v", err)
	}
	return &res
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error.Code
}

func TestPhoneFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil)

	res := api.login(t)
	if !res.IsNewAccount {
		t.Error("IsNewAccount = false on first verification")
	}
	if res.Tokens == nil || res.Tokens.AccessToken == "" {
		t.Fatal("missing tokens in response")
	}

	rec := api.do(t, http.MethodGet, "/auth/session", "", res.Tokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("session status = %d", rec.Code)
	}
	var sess sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Account == nil || sess.Account.ID != res.Account.ID {
		t.Errorf("session account = %+v, want id %q", sess.Account, res.Account.ID)
	}
}

func TestVerifyWrongCode(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/auth/phone/send-code", `{"phone":"`+testPhone+`"}`, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("send-code status = %d", rec.Code)
	}
	wrong := "000000"
	if api.sender.code() == wrong {
		wrong = "000001"
	}
	rec = api.do(t, http.MethodPost, "/auth/phone/verify",
		`{"phone":"`+testPhone+`","code":"`+wrong+`"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if code := errorCode(t, rec); code != "invalid_credential" {
		t.Errorf("error code = %q", code)
	}
}

func TestSendCodeRateLimited(t *testing.T) {
	api := newTestAPI(t, nil)

	body := `{"phone":"` + testPhone + `"}`
	for i := 0; i < 5; i++ {
		if rec := api.do(t, http.MethodPost, "/auth/phone/send-code", body, ""); rec.Code != http.StatusNoContent {
			t.Fatalf("send %d status = %d", i+1, rec.Code)
		}
	}
	rec := api.do(t, http.MethodPost, "/auth/phone/send-code", body, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestRefreshAndReplayOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil)
	res := api.login(t)

	body := `{"refresh_token":"` + res.Tokens.RefreshToken + `"}`
	rec := api.do(t, http.MethodPost, "/auth/refresh", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", rec.Code, rec.Body.String())
	}
	var pair sessionsvc.TokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode pair: %v", err)
	}
	if pair.RefreshToken == res.Tokens.RefreshToken {
		t.Error("refresh token not rotated")
	}

	rec = api.do(t, http.MethodPost, "/auth/refresh", body, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", rec.Code)
	}
	if code := errorCode(t, rec); code != "session_compromised" {
		t.Errorf("replay error code = %q", code)
	}
}

func TestLogoutOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil)
	res := api.login(t)

	rec := api.do(t, http.MethodPost, "/auth/logout", "", res.Tokens.AccessToken)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}

	rec = api.do(t, http.MethodGet, "/auth/session", "", res.Tokens.AccessToken)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("session after logout status = %d, want 401", rec.Code)
	}
}

func TestBearerRequired(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/auth/session", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/auth/session", "", "garbage")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", rec.Code)
	}
}

func TestBadRequests(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/auth/phone/send-code", "{not json", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d", rec.Code)
	}
	rec = api.do(t, http.MethodPost, "/auth/phone/send-code", `{"phone":""}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty phone status = %d", rec.Code)
	}
	rec = api.do(t, http.MethodGet, "/auth/phone/send-code", "", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", rec.Code)
	}
	rec = api.do(t, http.MethodPost, "/auth/google", `{"id_token":""}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty id_token status = %d", rec.Code)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	api := newTestAPI(t, nil)
	if rec := api.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d", rec.Code)
	}

	failing := newTestAPI(t, func(ctx context.Context) error { return errors.New("db down") })
	if rec := failing.do(t, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("failing readyz status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := api.do(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d", rec.Code)
	}
}
