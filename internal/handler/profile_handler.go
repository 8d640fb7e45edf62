package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/gakuseki/internal/middleware"
	"github.com/hitoshi/gakuseki/internal/model"
	"github.com/hitoshi/gakuseki/internal/profile"
	"github.com/hitoshi/gakuseki/internal/session"
	"github.com/hitoshi/gakuseki/internal/validate"
)

// ReconcilerInterface はプロフィール調停処理のインターフェース。
// profile.Reconcilerが満たす。
type ReconcilerInterface interface {
	Fetch(ctx context.Context, identityID string) (*model.ProfileRecord, error)
	Update(ctx context.Context, identityID string, changes profile.Changes) error
	ResetToServerState(ctx context.Context, identityID string) (*model.ProfileRecord, error)
	CreateProfile(ctx context.Context, identityID, name, email string, age int, specialty model.Specialty) (*model.ProfileRecord, error)
}

// ViewRefresher は更新成功後のビュー再計算インターフェース。
// session.Bootstrapperが満たす。
type ViewRefresher interface {
	RefreshProfile(ctx context.Context)
	CurrentView() *session.View
}

// ProfileHandler はプロフィール関連のHTTPハンドラー。
type ProfileHandler struct {
	reconciler ReconcilerInterface
	refresher  ViewRefresher
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(reconciler ReconcilerInterface, refresher ViewRefresher) *ProfileHandler {
	return &ProfileHandler{
		reconciler: reconciler,
		refresher:  refresher,
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
// displayNameとnewPasswordは省略時は変更しない。
type updateProfileRequest struct {
	Name        string `json:"name"`
	Age         string `json:"age"`
	Specialty   string `json:"specialty"`
	DisplayName string `json:"displayName,omitempty"`
	NewPassword string `json:"newPassword,omitempty"`
}

// createProfileRequest は登録途中失敗後の再試行リクエストのボディ。
type createProfileRequest struct {
	Name      string `json:"name"`
	Age       string `json:"age"`
	Specialty string `json:"specialty"`
}

// Get は現在の学生のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	identityID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	record, err := h.reconciler.Fetch(r.Context(), identityID)
	if err != nil {
		status, apiErr := model.APIErrorFrom(err)
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}
	if record == nil {
		// 不在はエラーではないが、このエンドポイントでは404で表現する
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "PROFILE_NOT_FOUND",
			Message:  "プロフィールが登録されていません。",
			Category: "profile",
			Action:   "プロフィールを作成してください。",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profileResponse(record))
}

// Update はプロフィールを部分更新し、再取得したビューを返す。
// PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	identityID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	changes := profile.Changes{
		Name:        req.Name,
		AgeInput:    req.Age,
		Specialty:   req.Specialty,
		DisplayName: req.DisplayName,
		NewPassword: req.NewPassword,
	}

	if err := h.reconciler.Update(r.Context(), identityID, changes); err != nil {
		// 部分的に成功していてもビューは再計算する
		h.refresher.RefreshProfile(r.Context())
		status, apiErr := model.APIErrorFrom(err)
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	h.refresher.RefreshProfile(r.Context())

	record, err := h.reconciler.Fetch(r.Context(), identityID)
	if err != nil {
		status, apiErr := model.APIErrorFrom(err)
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(profileResponse(record))
}

// Reset は未保存のローカル編集を破棄し、サーバー上の状態を返す。
// POST /api/profile/reset
func (h *ProfileHandler) Reset(w http.ResponseWriter, r *http.Request) {
	identityID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	record, err := h.reconciler.ResetToServerState(r.Context(), identityID)
	if err != nil {
		status, apiErr := model.APIErrorFrom(err)
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	h.refresher.RefreshProfile(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if record == nil {
		json.NewEncoder(w).Encode(map[string]any{"profile": nil})
		return
	}
	json.NewEncoder(w).Encode(profileResponse(record))
}

// Create は登録途中失敗後にProfileRecordの作成を再試行する。
// POST /api/profile
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	identityID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	age, err := validate.ProfileEdit(req.Name, req.Age, req.Specialty)
	if err != nil {
		status, apiErr := model.APIErrorFrom(err)
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	view := h.refresher.CurrentView()
	if view == nil || view.Identity == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	specialty, _ := model.ParseSpecialty(req.Specialty)
	record, err := h.reconciler.CreateProfile(r.Context(), identityID, req.Name, view.Identity.Email, age, specialty)
	if err != nil {
		status, apiErr := model.APIErrorFrom(err)
		middleware.WriteErrorResponse(w, status, apiErr)
		return
	}

	h.refresher.RefreshProfile(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(profileResponse(record))
}

// profileResponse はProfileRecordのAPIレスポンス表現を返す。
func profileResponse(record *model.ProfileRecord) map[string]any {
	return map[string]any{
		"name":                   record.Name,
		"email":                  record.Email,
		"age":                    record.Age,
		"specialty":              string(record.Specialty),
		"registration_timestamp": record.RegistrationTimestamp.UTC().Format(time.RFC3339),
	}
}
