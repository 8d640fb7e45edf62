package model

import "time"

// Specialty は学生の専攻を表す閉集合。
// 永続化される正規値は元プロダクトがFirestoreに保存していたスペイン語表記をそのまま使う。
type Specialty string

// 定義済み専攻
const (
	SpecialtySoftwareDevelopment Specialty = "Desarrollo de Software"
	SpecialtyNetworking          Specialty = "Redes y Telecomunicaciones"
	SpecialtyGraphicDesign       Specialty = "Diseño Gráfico"
	SpecialtyAccounting          Specialty = "Contabilidad"
	SpecialtySecretarial         Specialty = "Secretariado"
)

// Specialties は選択可能な専攻の一覧を返す。
func Specialties() []Specialty {
	return []Specialty{
		SpecialtySoftwareDevelopment,
		SpecialtyNetworking,
		SpecialtyGraphicDesign,
		SpecialtyAccounting,
		SpecialtySecretarial,
	}
}

// ParseSpecialty は文字列を専攻として解釈する。閉集合に含まれない値はfalseを返す。
func ParseSpecialty(s string) (Specialty, bool) {
	for _, sp := range Specialties() {
		if string(sp) == s {
			return sp, true
		}
	}
	return "", false
}

// Valid は専攻が閉集合に含まれるかを返す。
func (s Specialty) Valid() bool {
	_, ok := ParseSpecialty(string(s))
	return ok
}

// 年齢のドメイン制約
const (
	MinAge = 15
	MaxAge = 100
)

// ProfileRecord はドキュメントストアがIdentity.IDをキーに保持する学生プロフィールを表す。
// 登録が完了した場合に限り存在する。登録の途中失敗によりIdentityだけが
// 存在する中間状態は設計上許容される（補償トランザクションは行わない）。
type ProfileRecord struct {
	Name string
	// Email は登録時点のIdentity.Emailの非正規化コピー。
	// ID側の変更に追従する保証はなく、乖離は許容する（黙って修正しない）。
	Email     string
	Age       int
	Specialty Specialty
	// RegistrationTimestamp は作成時に一度だけ設定され、以後変更されない。
	RegistrationTimestamp time.Time
}
