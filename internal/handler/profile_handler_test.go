package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/gakuseki/internal/middleware"
	"github.com/hitoshi/gakuseki/internal/model"
	"github.com/hitoshi/gakuseki/internal/profile"
	"github.com/hitoshi/gakuseki/internal/session"
)

// mockReconciler はReconcilerInterfaceのモック。
type mockReconciler struct {
	fetchFn  func(ctx context.Context, identityID string) (*model.ProfileRecord, error)
	updateFn func(ctx context.Context, identityID string, changes profile.Changes) error
	resetFn  func(ctx context.Context, identityID string) (*model.ProfileRecord, error)
	createFn func(ctx context.Context, identityID, name, email string, age int, specialty model.Specialty) (*model.ProfileRecord, error)
}

func (m *mockReconciler) Fetch(ctx context.Context, identityID string) (*model.ProfileRecord, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, identityID)
	}
	return nil, nil
}

func (m *mockReconciler) Update(ctx context.Context, identityID string, changes profile.Changes) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, identityID, changes)
	}
	return nil
}

func (m *mockReconciler) ResetToServerState(ctx context.Context, identityID string) (*model.ProfileRecord, error) {
	if m.resetFn != nil {
		return m.resetFn(ctx, identityID)
	}
	return nil, nil
}

func (m *mockReconciler) CreateProfile(ctx context.Context, identityID, name, email string, age int, specialty model.Specialty) (*model.ProfileRecord, error) {
	if m.createFn != nil {
		return m.createFn(ctx, identityID, name, email, age, specialty)
	}
	return &model.ProfileRecord{Name: name, Email: email, Age: age, Specialty: specialty}, nil
}

// mockRefresher はViewRefresherのモック。
type mockRefresher struct {
	refreshCalls  int
	currentViewFn func() *session.View
}

func (m *mockRefresher) RefreshProfile(ctx context.Context) {
	m.refreshCalls++
}

func (m *mockRefresher) CurrentView() *session.View {
	if m.currentViewFn != nil {
		return m.currentViewFn()
	}
	return &session.View{Identity: &model.Identity{ID: "id-1", Email: "ana@example.com"}}
}

func testProfileRecord() *model.ProfileRecord {
	return &model.ProfileRecord{
		Name:                  "Ana",
		Email:                 "ana@example.com",
		Age:                   20,
		Specialty:             model.SpecialtySoftwareDevelopment,
		RegistrationTimestamp: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
	}
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.ContextWithIdentityID(req.Context(), "id-1"))
}

// TestProfileHandler_Get_Success はプロフィール取得成功を検証する。
func TestProfileHandler_Get_Success(t *testing.T) {
	reconciler := &mockReconciler{
		fetchFn: func(ctx context.Context, identityID string) (*model.ProfileRecord, error) {
			if identityID != "id-1" {
				t.Errorf("identityID = %q, want %q", identityID, "id-1")
			}
			return testProfileRecord(), nil
		},
	}
	h := NewProfileHandler(reconciler, &mockRefresher{})

	w := httptest.NewRecorder()
	h.Get(w, authedRequest(http.MethodGet, "/api/profile", nil))

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
	if body["specialty"] != "Desarrollo de Software" {
		t.Errorf("specialty = %v, want %q", body["specialty"], "Desarrollo de Software")
	}
	if body["registration_timestamp"] != "2025-04-01T12:00:00Z" {
		t.Errorf("registration_timestamp = %v", body["registration_timestamp"])
	}
}

// TestProfileHandler_Get_NotFound はドキュメント不在で404が返ることを検証する。
func TestProfileHandler_Get_NotFound(t *testing.T) {
	reconciler := &mockReconciler{
		fetchFn: func(ctx context.Context, identityID string) (*model.ProfileRecord, error) {
			return nil, nil
		},
	}
	h := NewProfileHandler(reconciler, &mockRefresher{})

	w := httptest.NewRecorder()
	h.Get(w, authedRequest(http.MethodGet, "/api/profile", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != "PROFILE_NOT_FOUND" {
		t.Errorf("code = %q, want %q", body.Code, "PROFILE_NOT_FOUND")
	}
}

// TestProfileHandler_Get_StoreError はドキュメントストア障害で502が返ることを検証する。
func TestProfileHandler_Get_StoreError(t *testing.T) {
	reconciler := &mockReconciler{
		fetchFn: func(ctx context.Context, identityID string) (*model.ProfileRecord, error) {
			return nil, model.NewDocumentStoreError("get", "users", identityID, context.DeadlineExceeded)
		},
	}
	h := NewProfileHandler(reconciler, &mockRefresher{})

	w := httptest.NewRecorder()
	h.Get(w, authedRequest(http.MethodGet, "/api/profile", nil))

	if w.Result().StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadGateway)
	}
}

// TestProfileHandler_Get_NoIdentity はコンテキストにIdentity IDがない場合に401が返ることを検証する。
func TestProfileHandler_Get_NoIdentity(t *testing.T) {
	h := NewProfileHandler(&mockReconciler{}, &mockRefresher{})

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	w := httptest.NewRecorder()
	h.Get(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// TestProfileHandler_Update_Success は更新成功時にビュー再計算と再取得が行われることを検証する。
func TestProfileHandler_Update_Success(t *testing.T) {
	var gotChanges profile.Changes
	reconciler := &mockReconciler{
		updateFn: func(ctx context.Context, identityID string, changes profile.Changes) error {
			gotChanges = changes
			return nil
		},
		fetchFn: func(ctx context.Context, identityID string) (*model.ProfileRecord, error) {
			record := testProfileRecord()
			record.Name = "Ana María"
			return record, nil
		},
	}
	refresher := &mockRefresher{}
	h := NewProfileHandler(reconciler, refresher)

	body, _ := json.Marshal(map[string]string{
		"name":        "Ana María",
		"age":         "21",
		"specialty":   "Contabilidad",
		"displayName": "Ana M.",
	})
	w := httptest.NewRecorder()
	h.Update(w, authedRequest(http.MethodPut, "/api/profile", body))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if gotChanges.Name != "Ana María" || gotChanges.AgeInput != "21" {
		t.Errorf("changes = %+v", gotChanges)
	}
	if gotChanges.DisplayName != "Ana M." {
		t.Errorf("displayName = %q, want %q", gotChanges.DisplayName, "Ana M.")
	}
	if gotChanges.NewPassword != "" {
		t.Errorf("newPassword = %q, want empty", gotChanges.NewPassword)
	}
	if refresher.refreshCalls != 1 {
		t.Errorf("refreshCalls = %d, want 1", refresher.refreshCalls)
	}

	var respBody map[string]any
	json.NewDecoder(resp.Body).Decode(&respBody)
	if respBody["name"] != "Ana María" {
		t.Errorf("name = %v, want %q", respBody["name"], "Ana María")
	}
}

// TestProfileHandler_Update_ValidationError は検証エラーが400で返り、
// バックエンド呼び出しが発生しないことを検証する。
func TestProfileHandler_Update_ValidationError(t *testing.T) {
	reconciler := &mockReconciler{
		updateFn: func(ctx context.Context, identityID string, changes profile.Changes) error {
			return model.NewInvalidAgeError(changes.AgeInput)
		},
	}
	refresher := &mockRefresher{}
	h := NewProfileHandler(reconciler, refresher)

	body, _ := json.Marshal(map[string]string{
		"name": "Ana", "age": "200", "specialty": "Contabilidad",
	})
	w := httptest.NewRecorder()
	h.Update(w, authedRequest(http.MethodPut, "/api/profile", body))

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	var respBody middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if respBody.Code != "VALIDATION_FAILED" {
		t.Errorf("code = %q, want %q", respBody.Code, "VALIDATION_FAILED")
	}
}

// TestProfileHandler_Update_PartialFailure は部分更新失敗が
// サブ操作由来のステータスとPARTIAL_UPDATE_FAILUREコードで返ることを検証する。
func TestProfileHandler_Update_PartialFailure(t *testing.T) {
	reconciler := &mockReconciler{
		updateFn: func(ctx context.Context, identityID string, changes profile.Changes) error {
			return &model.PartialUpdateFailure{
				Succeeded: []model.SubOperation{model.SubOpDisplayName, model.SubOpDocumentFields},
				Failed:    model.SubOpPassword,
				Err:       model.NewRequiresRecentLoginError(),
			}
		},
	}
	refresher := &mockRefresher{}
	h := NewProfileHandler(reconciler, refresher)

	body, _ := json.Marshal(map[string]string{
		"name": "Ana", "age": "21", "specialty": "Contabilidad",
		"displayName": "Ana M.", "newPassword": "newpass123",
	})
	w := httptest.NewRecorder()
	h.Update(w, authedRequest(http.MethodPut, "/api/profile", body))

	resp := w.Result()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	var respBody middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if respBody.Code != "PARTIAL_UPDATE_FAILURE" {
		t.Errorf("code = %q, want %q", respBody.Code, "PARTIAL_UPDATE_FAILURE")
	}

	// 部分的に成功した結果を反映するためビューは再計算される
	if refresher.refreshCalls != 1 {
		t.Errorf("refreshCalls = %d, want 1", refresher.refreshCalls)
	}
}

// TestProfileHandler_Reset_Success はリセットがサーバー上の状態を返すことを検証する。
func TestProfileHandler_Reset_Success(t *testing.T) {
	reconciler := &mockReconciler{
		resetFn: func(ctx context.Context, identityID string) (*model.ProfileRecord, error) {
			return testProfileRecord(), nil
		},
	}
	refresher := &mockRefresher{}
	h := NewProfileHandler(reconciler, refresher)

	w := httptest.NewRecorder()
	h.Reset(w, authedRequest(http.MethodPost, "/api/profile/reset", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["name"] != "Ana" {
		t.Errorf("name = %v, want %q", body["name"], "Ana")
	}
	if refresher.refreshCalls != 1 {
		t.Errorf("refreshCalls = %d, want 1", refresher.refreshCalls)
	}
}

// TestProfileHandler_Reset_Absent はドキュメント不在でも200でnullが返ることを検証する。
func TestProfileHandler_Reset_Absent(t *testing.T) {
	h := NewProfileHandler(&mockReconciler{}, &mockRefresher{})

	w := httptest.NewRecorder()
	h.Reset(w, authedRequest(http.MethodPost, "/api/profile/reset", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if profile, ok := body["profile"]; !ok || profile != nil {
		t.Errorf("profile = %v, want explicit null", profile)
	}
}

// TestProfileHandler_Create_Success は登録再試行でプロフィールが作成されることを検証する。
func TestProfileHandler_Create_Success(t *testing.T) {
	var gotEmail string
	var gotAge int
	reconciler := &mockReconciler{
		createFn: func(ctx context.Context, identityID, name, email string, age int, specialty model.Specialty) (*model.ProfileRecord, error) {
			gotEmail, gotAge = email, age
			return &model.ProfileRecord{
				Name: name, Email: email, Age: age, Specialty: specialty,
				RegistrationTimestamp: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	refresher := &mockRefresher{
		currentViewFn: func() *session.View {
			return &session.View{Identity: &model.Identity{ID: "id-1", Email: "ana@example.com"}}
		},
	}
	h := NewProfileHandler(reconciler, refresher)

	body, _ := json.Marshal(map[string]string{
		"name": "Ana", "age": "20", "specialty": "Desarrollo de Software",
	})
	w := httptest.NewRecorder()
	h.Create(w, authedRequest(http.MethodPost, "/api/profile", body))

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if gotEmail != "ana@example.com" {
		t.Errorf("email = %q, want %q", gotEmail, "ana@example.com")
	}
	if gotAge != 20 {
		t.Errorf("age = %d, want 20", gotAge)
	}
	if refresher.refreshCalls != 1 {
		t.Errorf("refreshCalls = %d, want 1", refresher.refreshCalls)
	}
}

// TestProfileHandler_Create_ValidationError は検証エラーで400が返り、
// 作成処理が呼ばれないことを検証する。
func TestProfileHandler_Create_ValidationError(t *testing.T) {
	created := false
	reconciler := &mockReconciler{
		createFn: func(ctx context.Context, identityID, name, email string, age int, specialty model.Specialty) (*model.ProfileRecord, error) {
			created = true
			return nil, nil
		},
	}
	h := NewProfileHandler(reconciler, &mockRefresher{})

	body, _ := json.Marshal(map[string]string{
		"name": "Ana", "age": "abc", "specialty": "Desarrollo de Software",
	})
	w := httptest.NewRecorder()
	h.Create(w, authedRequest(http.MethodPost, "/api/profile", body))

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
	if created {
		t.Error("CreateProfile should not have been called")
	}
}
