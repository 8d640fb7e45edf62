package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/gakuseki/internal/middleware"
	"github.com/hitoshi/gakuseki/internal/model"
	"github.com/hitoshi/gakuseki/internal/session"
)

const testCSRFCookieName = "csrf_token"
const testCSRFHeaderName = "X-CSRF-Token"

// newTestRouter はテスト用のルーターと依存一式を構築する。
func newTestRouter(t *testing.T, reconciler *mockReconciler) http.Handler {
	t.Helper()

	finder := &mockSessionFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "valid-session" {
				return &model.Session{
					ID:                id,
					IdentityID:        "id-1",
					CredentialVersion: 1,
					ExpiresAt:         time.Now().Add(time.Hour),
				}, nil
			}
			return nil, nil
		},
	}

	if reconciler == nil {
		reconciler = &mockReconciler{
			fetchFn: func(ctx context.Context, identityID string) (*model.ProfileRecord, error) {
				return testProfileRecord(), nil
			},
		}
	}

	state := &mockSessionState{
		stateFn: func() session.State { return session.StateAuthenticated },
		currentViewFn: func() *session.View {
			return &session.View{Identity: &model.Identity{ID: "id-1", Email: "ana@example.com"}}
		},
	}

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	csrfConfig := middleware.CSRFConfig{CookieSecure: false}
	authHandler := NewAuthHandler(&mockRegistrar{}, &mockProvider{}, state, finder, AuthHandlerConfig{SessionMaxAge: 3600})
	profileHandler := NewProfileHandler(reconciler, &mockRefresher{
		currentViewFn: state.currentViewFn,
	})

	return NewRouter(RouterDeps{
		AuthHandler:       authHandler,
		ProfileHandler:    profileHandler,
		SessionFinder:     finder,
		RateLimiter:       rl,
		CORSAllowedOrigin: "http://localhost:5173",
		CSRFConfig:        csrfConfig,
		Gatherer:          prometheus.NewRegistry(),
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
}

// TestRouter_Health はヘルスチェックが認証なしで通ることを検証する。
func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestRouter_Metrics はメトリクスエンドポイントが認証なしで通ることを検証する。
func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestRouter_Register_NoSessionRequired は登録がセッションなしで通ることを検証する。
func TestRouter_Register_NoSessionRequired(t *testing.T) {
	r := newTestRouter(t, nil)

	body, _ := json.Marshal(map[string]string{
		"name": "Ana", "email": "ana@example.com", "password": "abc123",
		"age": "20", "specialty": "Desarrollo de Software",
	})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.10:51000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}
}

// TestRouter_Profile_RequiresSession はプロフィール取得がセッション必須であることを検証する。
func TestRouter_Profile_RequiresSession(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// TestRouter_Profile_WithSession はセッション付きでプロフィールが取得できることを検証する。
func TestRouter_Profile_WithSession(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["name"] != "Ana" {
		t.Errorf("name = %v, want %q", body["name"], "Ana")
	}
}

// TestRouter_ProfileUpdate_RequiresCSRF はPUTがCSRFトークン必須であることを検証する。
func TestRouter_ProfileUpdate_RequiresCSRF(t *testing.T) {
	r := newTestRouter(t, nil)

	body, _ := json.Marshal(map[string]string{
		"name": "Ana", "age": "21", "specialty": "Contabilidad",
	})
	req := httptest.NewRequest(http.MethodPut, "/api/profile", bytes.NewReader(body))
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

// TestRouter_ProfileUpdate_WithCSRF はセッションとCSRFトークン付きでPUTが通ることを検証する。
func TestRouter_ProfileUpdate_WithCSRF(t *testing.T) {
	r := newTestRouter(t, nil)

	body, _ := json.Marshal(map[string]string{
		"name": "Ana", "age": "21", "specialty": "Contabilidad",
	})
	req := httptest.NewRequest(http.MethodPut, "/api/profile", bytes.NewReader(body))
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	req.AddCookie(&http.Cookie{Name: testCSRFCookieName, Value: "test-token"})
	req.Header.Set(testCSRFHeaderName, "test-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestRouter_CSRFTokenEndpoint はCSRFトークン取得が認証なしで通ることを検証する。
func TestRouter_CSRFTokenEndpoint(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Token == "" {
		t.Error("expected non-empty token")
	}
}

// TestRouter_CORSHeaders はCORSヘッダーが付与されることを検証する。
func TestRouter_CORSHeaders(t *testing.T) {
	r := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Result().Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:5173")
	}
}

// TestRouter_AuthRateLimit は認証系エンドポイントがIP単位でレート制限されることを検証する。
func TestRouter_AuthRateLimit(t *testing.T) {
	finder := &mockSessionFinder{}
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		AuthRate:        1,
		AuthBurst:       2,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	state := &mockSessionState{}
	r := NewRouter(RouterDeps{
		AuthHandler:       NewAuthHandler(&mockRegistrar{}, &mockProvider{}, state, finder, AuthHandlerConfig{SessionMaxAge: 3600}),
		ProfileHandler:    NewProfileHandler(&mockReconciler{}, &mockRefresher{}),
		SessionFinder:     finder,
		RateLimiter:       rl,
		CORSAllowedOrigin: "http://localhost:5173",
		CSRFConfig:        middleware.CSRFConfig{CookieSecure: false},
		Gatherer:          prometheus.NewRegistry(),
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})

	loginBody := func() *bytes.Reader {
		b, _ := json.Marshal(map[string]string{"email": "ana@example.com", "password": "abc123"})
		return bytes.NewReader(b)
	}

	// バースト上限の2回までは通る
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", loginBody())
		req.RemoteAddr = "203.0.113.10:51000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Result().StatusCode, http.StatusOK)
		}
	}

	// 3回目は429
	req := httptest.NewRequest(http.MethodPost, "/auth/login", loginBody())
	req.RemoteAddr = "203.0.113.10:51000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Result().StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
	}
}
