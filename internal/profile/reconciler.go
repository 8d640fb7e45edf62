// Package profile はIDサービスとドキュメントストアに分かれて保存される
// プロフィール情報の読み取り・作成・更新を調停する。
//
// 登録は「Identity作成 → ProfileRecord作成」の2段階で、途中失敗時に
// Identityだけが残る中間状態を補償しない（失敗は呼び出し元へそのまま返す）。
// 更新は表示名 → ドキュメント → パスワードの順に実行し、
// 途中で失敗してもそれ以前の成功はロールバックしない。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/gakuseki/internal/docstore"
	"github.com/hitoshi/gakuseki/internal/identity"
	"github.com/hitoshi/gakuseki/internal/metrics"
	"github.com/hitoshi/gakuseki/internal/model"
	"github.com/hitoshi/gakuseki/internal/security"
	"github.com/hitoshi/gakuseki/internal/validate"
)

// Collection はプロフィールを保存するコレクション名。
// キーはIdentity.IDで、1ドキュメント1学生。
const Collection = "users"

// ドキュメントのフィールドキー
const (
	fieldName                  = "name"
	fieldEmail                 = "email"
	fieldAge                   = "age"
	fieldSpecialty             = "specialty"
	fieldRegistrationTimestamp = "registration_timestamp"
)

// Changes はプロフィール更新の入力。
// DisplayNameとNewPasswordは空文字列なら変更しない。
// Identity.Emailはこの経路では変更できない。
type Changes struct {
	Name        string
	AgeInput    string
	Specialty   string
	DisplayName string
	NewPassword string
}

// Reconciler はプロフィールの調停処理を実装する。
type Reconciler struct {
	identities identity.Service
	store      docstore.Store
	sanitizer  security.InputSanitizerService
	collector  metrics.MetricsCollector

	now func() time.Time
}

// NewReconciler はReconcilerを生成する。
func NewReconciler(
	identities identity.Service,
	store docstore.Store,
	sanitizer security.InputSanitizerService,
	collector metrics.MetricsCollector,
) *Reconciler {
	return &Reconciler{
		identities: identities,
		store:      store,
		sanitizer:  sanitizer,
		collector:  collector,
		now:        time.Now,
	}
}

// Register は学生を登録する。検証 → Identity作成 → ProfileRecord作成の順。
// 検証に失敗した場合はValidationErrorを返し、ネットワーク呼び出しは発生しない。
// Identity作成後にProfileRecord作成が失敗した場合、Identityは残したまま
// エラーを返す。呼び出し元は次回サインイン時にCreateProfileで再試行できる。
func (r *Reconciler) Register(ctx context.Context, name, email, password, ageInput, specialty string) (*model.Identity, error) {
	age, err := validate.Registration(name, email, password, ageInput, specialty)
	if err != nil {
		r.collector.RecordRegisterOutcome("validation_failed")
		return nil, err
	}

	cleanName := r.sanitizer.SanitizeText(name)

	start := r.now()
	ident, err := r.identities.SignUp(ctx, email, password)
	r.collector.RecordBackendLatency("sign_up", time.Since(start))
	if err != nil {
		r.collector.RecordRegisterOutcome("identity_failed")
		return nil, err
	}

	parsed, _ := model.ParseSpecialty(specialty)
	if _, err := r.CreateProfile(ctx, ident.ID, cleanName, email, age, parsed); err != nil {
		// Identityは作成済みのまま残る。ここでは補償しない。
		slog.Warn("profile record creation failed after identity creation",
			slog.String("identity_id", ident.ID),
			slog.String("error", err.Error()),
		)
		r.collector.RecordRegisterOutcome("profile_write_failed")
		return nil, err
	}

	r.collector.RecordRegisterOutcome("success")
	slog.Info("student registered",
		slog.String("identity_id", ident.ID),
		slog.String("specialty", specialty),
	)

	return ident, nil
}

// CreateProfile はProfileRecordを作成する。登録タイムスタンプはこの時点で確定する。
// 登録の途中失敗後の再試行のために公開している。
func (r *Reconciler) CreateProfile(ctx context.Context, identityID, name, email string, age int, specialty model.Specialty) (*model.ProfileRecord, error) {
	record := &model.ProfileRecord{
		Name:                  name,
		Email:                 email,
		Age:                   age,
		Specialty:             specialty,
		RegistrationTimestamp: r.now().UTC(),
	}

	start := r.now()
	err := r.store.Set(ctx, Collection, identityID, recordToFields(record))
	r.collector.RecordBackendLatency("profile_create", time.Since(start))
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Fetch は指定IDのProfileRecordを取得する。
// ドキュメントが存在しない場合は(nil, nil)を返す。これはエラーではない。
func (r *Reconciler) Fetch(ctx context.Context, identityID string) (*model.ProfileRecord, error) {
	start := r.now()
	fields, err := r.store.Get(ctx, Collection, identityID)
	r.collector.RecordBackendLatency("profile_fetch", time.Since(start))
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, nil
	}

	return fieldsToRecord(identityID, fields), nil
}

// Update はプロフィールを部分更新する。検証に失敗した場合は
// ValidationErrorを返し、ネットワーク呼び出しは発生しない。
//
// サブ操作は表示名 → ドキュメント → パスワードの順で実行する。
// パスワード変更は再認証を強制する可能性があるため最後に行う。
// サブ操作が失敗した場合、それ以前の成功はロールバックせず、
// どこまで成功したかを保持したPartialUpdateFailureを返す。
// Identity.Emailとドキュメント側のemailフィールドはこの経路では変更しない。
func (r *Reconciler) Update(ctx context.Context, identityID string, changes Changes) error {
	age, err := validate.ProfileEdit(changes.Name, changes.AgeInput, changes.Specialty)
	if err != nil {
		return err
	}
	if changes.NewPassword != "" && !validate.PasswordStrongEnough(changes.NewPassword) {
		return model.NewWeakPasswordValidationError()
	}

	var succeeded []model.SubOperation

	if changes.DisplayName != "" {
		cleanDisplayName := r.sanitizer.SanitizeText(changes.DisplayName)
		if err := r.identities.UpdateDisplayName(ctx, identityID, cleanDisplayName); err != nil {
			r.collector.RecordProfileUpdateOutcome(string(model.SubOpDisplayName), "failure")
			return &model.PartialUpdateFailure{
				Succeeded: succeeded,
				Failed:    model.SubOpDisplayName,
				Err:       err,
			}
		}
		r.collector.RecordProfileUpdateOutcome(string(model.SubOpDisplayName), "success")
		succeeded = append(succeeded, model.SubOpDisplayName)
	}

	parsed, _ := model.ParseSpecialty(changes.Specialty)
	fields := docstore.Fields{
		fieldName:      r.sanitizer.SanitizeText(changes.Name),
		fieldAge:       age,
		fieldSpecialty: string(parsed),
	}

	start := r.now()
	err = r.store.UpdatePartial(ctx, Collection, identityID, fields)
	r.collector.RecordBackendLatency("profile_update", time.Since(start))
	if err != nil {
		r.collector.RecordProfileUpdateOutcome(string(model.SubOpDocumentFields), "failure")
		return &model.PartialUpdateFailure{
			Succeeded: succeeded,
			Failed:    model.SubOpDocumentFields,
			Err:       err,
		}
	}
	r.collector.RecordProfileUpdateOutcome(string(model.SubOpDocumentFields), "success")
	succeeded = append(succeeded, model.SubOpDocumentFields)

	if changes.NewPassword != "" {
		if err := r.identities.UpdatePassword(ctx, identityID, changes.NewPassword); err != nil {
			r.collector.RecordProfileUpdateOutcome(string(model.SubOpPassword), "failure")
			return &model.PartialUpdateFailure{
				Succeeded: succeeded,
				Failed:    model.SubOpPassword,
				Err:       err,
			}
		}
		r.collector.RecordProfileUpdateOutcome(string(model.SubOpPassword), "success")
	}

	slog.Info("profile updated", slog.String("identity_id", identityID))
	return nil
}

// ResetToServerState は未保存のローカル編集を破棄し、サーバー上の状態を再取得する。
// 進行中のUpdateと並行して呼ばれても安全で、後に完了した呼び出しの結果が正となる。
func (r *Reconciler) ResetToServerState(ctx context.Context, identityID string) (*model.ProfileRecord, error) {
	return r.Fetch(ctx, identityID)
}

// recordToFields はProfileRecordをドキュメントのフィールド集合へ変換する。
func recordToFields(record *model.ProfileRecord) docstore.Fields {
	return docstore.Fields{
		fieldName:                  record.Name,
		fieldEmail:                 record.Email,
		fieldAge:                   record.Age,
		fieldSpecialty:             string(record.Specialty),
		fieldRegistrationTimestamp: record.RegistrationTimestamp.UTC().Format(time.RFC3339),
	}
}

// fieldsToRecord はドキュメントのフィールド集合をProfileRecordへ変換する。
// JSONを経由すると数値はfloat64になるため、年齢は両方の型を受け付ける。
// 壊れたフィールドは警告を出してゼロ値のまま進める（部分データはゼロデータに勝る）。
func fieldsToRecord(identityID string, fields docstore.Fields) *model.ProfileRecord {
	record := &model.ProfileRecord{}

	if v, ok := fields[fieldName].(string); ok {
		record.Name = v
	}
	if v, ok := fields[fieldEmail].(string); ok {
		record.Email = v
	}

	switch v := fields[fieldAge].(type) {
	case int:
		record.Age = v
	case float64:
		record.Age = int(v)
	default:
		slog.Warn("profile document has malformed age field",
			slog.String("identity_id", identityID),
			slog.String("value", fmt.Sprintf("%v", v)),
		)
	}

	if v, ok := fields[fieldSpecialty].(string); ok {
		// 閉集合外の値も読み出し時はそのまま保持する（黙って修正しない）
		record.Specialty = model.Specialty(v)
	}

	if v, ok := fields[fieldRegistrationTimestamp].(string); ok {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			slog.Warn("profile document has malformed registration timestamp",
				slog.String("identity_id", identityID),
				slog.String("value", v),
			)
		} else {
			record.RegistrationTimestamp = ts
		}
	}

	return record
}
