// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/gakuseki/internal/middleware"
	"github.com/hitoshi/gakuseki/internal/model"
	"github.com/hitoshi/gakuseki/internal/session"
)

const sessionCookieName = "session_id"

// IdentityProviderInterface は認証ハンドラーが必要とするIDサービスの部分集合。
// identity.LocalProviderが満たす。
type IdentityProviderInterface interface {
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)
	SignOut(ctx context.Context) error
	CurrentSession() *model.Session
}

// RegistrarInterface は登録処理のインターフェース。profile.Reconcilerが満たす。
type RegistrarInterface interface {
	Register(ctx context.Context, name, email, password, ageInput, specialty string) (*model.Identity, error)
}

// SessionStateInterface はセッション状態の読み取りインターフェース。
// session.Bootstrapperが満たす。
type SessionStateInterface interface {
	State() session.State
	CurrentView() *session.View
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は登録・ログイン・ログアウト関連のHTTPハンドラー。
type AuthHandler struct {
	registrar RegistrarInterface
	provider  IdentityProviderInterface
	state     SessionStateInterface
	sessions  middleware.SessionFinder
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	registrar RegistrarInterface,
	provider IdentityProviderInterface,
	state SessionStateInterface,
	sessions middleware.SessionFinder,
	config AuthHandlerConfig,
) *AuthHandler {
	return &AuthHandler{
		registrar: registrar,
		provider:  provider,
		state:     state,
		sessions:  sessions,
		config:    config,
	}
}

// registerRequest は登録リクエストのボディ。
type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Age       string `json:"age"`
	Specialty string `json:"specialty"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register は学生を登録し、サインイン状態にする。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ident, err := h.registrar.Register(r.Context(), req.Name, req.Email, req.Password, req.Age, req.Specialty)
	if err != nil {
		status, apiErr := model.APIErrorFrom(err)
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	h.setSessionCookie(w)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(identityResponse(ident))
}

// Login は資格情報を検証してサインイン状態にする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ident, err := h.provider.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		status, apiErr := model.APIErrorFrom(err)
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	h.setSessionCookie(w)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(identityResponse(ident))
}

// Logout はサインイン状態を解除する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.SignOut(r.Context()); err != nil {
		slog.Error("failed to sign out", slog.String("error", err.Error()))
		// サインアウト失敗してもCookieはクリアする
	}

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のセッション状態（IDとプロフィールの統合ビュー）を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sess, err := h.sessions.FindByID(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to find session", slog.String("error", err.Error()))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if sess == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	view := h.state.CurrentView()

	body := map[string]any{
		"state": string(h.state.State()),
	}
	if view != nil && view.Identity != nil {
		body["identity"] = identityResponse(view.Identity)
		if view.Profile != nil {
			body["profile"] = profileResponse(view.Profile)
		} else {
			body["profile"] = nil
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

// setSessionCookie は現在のセッションをHTTP Only Cookieとして設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter) {
	sess := h.provider.CurrentSession()
	if sess == nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// identityResponse はIdentityのAPIレスポンス表現を返す。
func identityResponse(ident *model.Identity) map[string]any {
	return map[string]any{
		"id":          ident.ID,
		"email":       ident.Email,
		"displayName": ident.DisplayName,
	}
}
