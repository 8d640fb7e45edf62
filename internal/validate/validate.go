// Package validate はフォーム入力の事前検証を提供する。
// すべて純粋な同期関数であり、I/Oを行わない。
// ここを通過した入力でもバックエンドが独自に拒否する可能性はある。
package validate

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/gakuseki/internal/model"
)

// RequiredFieldsPresent は渡されたフィールドすべてが空でないことを検証する。
func RequiredFieldsPresent(fields ...string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}

// AgeInRange は入力が整数として解釈でき、かつ15〜100の範囲に収まるかを検証する。
// 小数や数値以外の入力は無効。
func AgeInRange(input string) bool {
	age, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return false
	}
	return age >= model.MinAge && age <= model.MaxAge
}

// PasswordStrongEnough はパスワードが6文字以上であることを検証する。
func PasswordStrongEnough(password string) bool {
	return utf8.RuneCountInString(password) >= 6
}

// Registration は登録フォームの入力を検証し、年齢を整数に変換して返す。
// 検証に失敗した場合はValidationErrorを返し、ネットワーク呼び出しは発生しない。
func Registration(name, email, password, ageInput string, specialty string) (int, error) {
	if !RequiredFieldsPresent(name, email, password, ageInput, specialty) {
		return 0, model.NewRequiredFieldsError("name", "email", "password", "age", "specialty")
	}
	if !PasswordStrongEnough(password) {
		return 0, model.NewWeakPasswordValidationError()
	}
	if !AgeInRange(ageInput) {
		return 0, model.NewInvalidAgeError(ageInput)
	}
	if _, ok := model.ParseSpecialty(specialty); !ok {
		return 0, model.NewInvalidSpecialtyError(specialty)
	}
	age, _ := strconv.Atoi(strings.TrimSpace(ageInput))
	return age, nil
}

// ProfileEdit は編集フォームの入力を検証し、年齢を整数に変換して返す。
// 登録時と異なり、email・passwordは必須ではない。
func ProfileEdit(name, ageInput string, specialty string) (int, error) {
	if !RequiredFieldsPresent(name, ageInput, specialty) {
		return 0, model.NewRequiredFieldsError("name", "age", "specialty")
	}
	if !AgeInRange(ageInput) {
		return 0, model.NewInvalidAgeError(ageInput)
	}
	if _, ok := model.ParseSpecialty(specialty); !ok {
		return 0, model.NewInvalidSpecialtyError(specialty)
	}
	age, _ := strconv.Atoi(strings.TrimSpace(ageInput))
	return age, nil
}
