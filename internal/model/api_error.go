package model

import (
	"errors"
	"net/http"
)

// APIError はHTTP APIのエラーレスポンスに載せる情報を表す。
// 原因カテゴリとユーザー向けの対処方法を含む。
type APIError struct {
	Code     string
	Message  string
	Category string
	Action   string
}

// APIErrorFrom はドメインエラーをHTTPステータスコードとAPIErrorへ変換する。
// 未知のエラーは詳細を漏らさず500の一般メッセージに落とす。
func APIErrorFrom(err error) (int, *APIError) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, &APIError{
			Code:     "VALIDATION_FAILED",
			Message:  verr.Message,
			Category: "validation",
			Action:   "入力内容を確認して再度お試しください。",
		}
	}

	var perr *PartialUpdateFailure
	if errors.As(err, &perr) {
		status, inner := APIErrorFrom(perr.Err)
		return status, &APIError{
			Code:     "PARTIAL_UPDATE_FAILURE",
			Message:  partialUpdateMessage(perr),
			Category: "partial_update",
			Action:   inner.Action,
		}
	}

	var ierr *IdentityServiceError
	if errors.As(err, &ierr) {
		return identityErrorStatus(ierr.Cause), &APIError{
			Code:     identityErrorCode(ierr.Cause),
			Message:  ierr.Message,
			Category: "identity",
			Action:   ierr.Action,
		}
	}

	var derr *DocumentStoreError
	if errors.As(err, &derr) {
		return http.StatusBadGateway, &APIError{
			Code:     "DOCUMENT_STORE_ERROR",
			Message:  "プロフィールデータの読み書きに失敗しました。",
			Category: "backend",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}

	return http.StatusInternalServerError, &APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// identityErrorStatus はIDサービスの原因コードをHTTPステータスへ対応付ける。
func identityErrorStatus(cause string) int {
	switch cause {
	case CauseEmailInUse:
		return http.StatusConflict
	case CauseInvalidEmail, CauseWeakPassword:
		return http.StatusBadRequest
	case CauseInvalidCredentials:
		return http.StatusUnauthorized
	case CauseRequiresRecentLogin:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// identityErrorCode は原因コードをAPIレスポンス用のコードへ対応付ける。
func identityErrorCode(cause string) string {
	switch cause {
	case CauseEmailInUse:
		return "EMAIL_IN_USE"
	case CauseInvalidEmail:
		return "INVALID_EMAIL"
	case CauseWeakPassword:
		return "WEAK_PASSWORD"
	case CauseInvalidCredentials:
		return "INVALID_CREDENTIALS"
	case CauseRequiresRecentLogin:
		return "REQUIRES_RECENT_LOGIN"
	default:
		return "IDENTITY_ERROR"
	}
}

// partialUpdateMessage はどのサブ操作まで成功したかを説明するメッセージを組み立てる。
func partialUpdateMessage(perr *PartialUpdateFailure) string {
	labels := map[SubOperation]string{
		SubOpDisplayName:    "表示名",
		SubOpDocumentFields: "プロフィール項目",
		SubOpPassword:       "パスワード",
	}

	msg := labels[perr.Failed] + "の更新に失敗しました。"
	if len(perr.Succeeded) == 0 {
		return msg + "他の項目は変更されていません。"
	}

	saved := ""
	for i, op := range perr.Succeeded {
		if i > 0 {
			saved += "と"
		}
		saved += labels[op]
	}
	return saved + "は保存されましたが、" + msg
}
