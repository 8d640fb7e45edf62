package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/mail"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/gakuseki/internal/model"
	"github.com/hitoshi/gakuseki/internal/repository"
)

// ProviderConfig はLocalProviderの設定。
type ProviderConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	// RecentLoginWindow はパスワード変更を許可する直近ログインからの猶予。
	// これを超えるとrequires-recent-loginで失敗する。
	RecentLoginWindow time.Duration
}

// LocalProvider はPostgreSQLリポジトリを使ったIDサービス実装。
// プロセス全体で単一のサインイン状態を保持する（単一ユーザー・単一デバイス前提）。
type LocalProvider struct {
	accounts repository.AccountRepository
	sessions repository.SessionRepository
	config   ProviderConfig

	mu             sync.Mutex
	current        *model.Identity
	currentSession *model.Session
	lastSignIn     time.Time
	subscribers    map[int]ChangeFunc
	nextSubID      int
}

// NewLocalProvider はLocalProviderを生成する。
func NewLocalProvider(
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	config ProviderConfig,
) *LocalProvider {
	return &LocalProvider{
		accounts:    accounts,
		sessions:    sessions,
		config:      config,
		subscribers: make(map[int]ChangeFunc),
	}
}

// SignUp はアカウントを作成し、サインイン状態にする。
// メールアドレス重複はemail-in-use、形式不正はinvalid-email、
// 6文字未満のパスワードはweak-passwordで失敗する。
func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (*model.Identity, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewInvalidEmailError(email)
	}
	if utf8.RuneCountInString(password) < 6 {
		return nil, model.NewWeakPasswordError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, model.NewIdentityInternalError(fmt.Errorf("failed to hash password: %w", err))
	}

	now := time.Now()
	account := &repository.Account{
		ID:                uuid.New().String(),
		Email:             email,
		PasswordHash:      string(hash),
		CredentialVersion: 1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := p.accounts.Create(ctx, account); err != nil {
		if err == repository.ErrDuplicateEmail {
			return nil, model.NewEmailInUseError(email)
		}
		return nil, model.NewIdentityInternalError(err)
	}

	slog.Info("account created",
		slog.String("identity_id", account.ID),
		slog.String("email", email),
	)

	return p.establishSession(ctx, account)
}

// SignIn は資格情報を検証してサインイン状態にする。
func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	account, err := p.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, model.NewIdentityInternalError(err)
	}
	if account == nil {
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	slog.Info("signed in", slog.String("identity_id", account.ID))

	return p.establishSession(ctx, account)
}

// SignOut は現在のセッションを破棄し、購読者にnilを通知する。
// 未サインイン状態での呼び出しは何もしない。
func (p *LocalProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	session := p.currentSession
	p.current = nil
	p.currentSession = nil
	p.mu.Unlock()

	if session != nil {
		if err := p.sessions.DeleteByID(ctx, session.ID); err != nil {
			return model.NewIdentityInternalError(err)
		}
		slog.Info("signed out", slog.String("identity_id", session.IdentityID))
	}

	p.notify(nil)
	return nil
}

// CurrentIdentity は現在サインインしているIdentityのコピーを返す。未サインインはnil。
func (p *LocalProvider) CurrentIdentity() *model.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	identity := *p.current
	return &identity
}

// CurrentSession は現在のセッションのコピーを返す。未サインインはnil。
// HTTPゲートウェイのCookie発行に使用する（Serviceインターフェースの外）。
func (p *LocalProvider) CurrentSession() *model.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentSession == nil {
		return nil
	}
	session := *p.currentSession
	return &session
}

// SubscribeToIdentityChanges はID変更通知を購読する。
// 登録時に現在の状態で即座に1回コールバックする。
func (p *LocalProvider) SubscribeToIdentityChanges(fn ChangeFunc) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = fn

	var initial *model.Identity
	if p.current != nil {
		identity := *p.current
		initial = &identity
	}
	p.mu.Unlock()

	// onAuthStateChangedと同様、購読開始時点の状態を必ず1回届ける
	fn(initial)

	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

// UpdateDisplayName は指定アカウントの表示名を更新する。
// ID変更通知は発火しない（サインイン状態は変わらないため）。
func (p *LocalProvider) UpdateDisplayName(ctx context.Context, identityID, displayName string) error {
	if err := p.accounts.UpdateDisplayName(ctx, identityID, displayName); err != nil {
		return model.NewIdentityInternalError(err)
	}

	p.mu.Lock()
	if p.current != nil && p.current.ID == identityID {
		p.current.DisplayName = displayName
	}
	p.mu.Unlock()

	return nil
}

// UpdatePassword は指定アカウントのパスワードを更新する。
// 直近ログインからRecentLoginWindowを超えている場合はrequires-recent-loginで失敗する。
// 成功時はcredential_versionが上がり既存セッションは無効になるため、
// 現在のセッションは新しいバージョンで再発行する。
func (p *LocalProvider) UpdatePassword(ctx context.Context, identityID, newPassword string) error {
	if utf8.RuneCountInString(newPassword) < 6 {
		return model.NewWeakPasswordError()
	}

	p.mu.Lock()
	lastSignIn := p.lastSignIn
	p.mu.Unlock()

	if lastSignIn.IsZero() || time.Since(lastSignIn) > p.config.RecentLoginWindow {
		return model.NewRequiresRecentLoginError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return model.NewIdentityInternalError(fmt.Errorf("failed to hash password: %w", err))
	}

	version, err := p.accounts.UpdatePassword(ctx, identityID, string(hash))
	if err != nil {
		return model.NewIdentityInternalError(err)
	}

	slog.Info("password updated",
		slog.String("identity_id", identityID),
		slog.Int("credential_version", version),
	)

	p.mu.Lock()
	reissue := p.current != nil && p.current.ID == identityID
	if reissue {
		p.current.CredentialVersion = version
	}
	oldSession := p.currentSession
	p.mu.Unlock()

	if !reissue {
		return nil
	}

	// 現在のセッションだけは継続させる
	if oldSession != nil {
		if err := p.sessions.DeleteByID(ctx, oldSession.ID); err != nil {
			return model.NewIdentityInternalError(err)
		}
	}
	session, err := p.createSession(ctx, identityID, version)
	if err != nil {
		return model.NewIdentityInternalError(err)
	}

	p.mu.Lock()
	p.currentSession = session
	p.mu.Unlock()

	return nil
}

// establishSession はセッションを発行してサインイン状態を確立し、購読者に通知する。
func (p *LocalProvider) establishSession(ctx context.Context, account *repository.Account) (*model.Identity, error) {
	session, err := p.createSession(ctx, account.ID, account.CredentialVersion)
	if err != nil {
		return nil, model.NewIdentityInternalError(err)
	}

	identity := account.Identity()

	p.mu.Lock()
	p.current = identity
	p.currentSession = session
	p.lastSignIn = time.Now()
	p.mu.Unlock()

	p.notify(identity)

	result := *identity
	return &result, nil
}

// createSession はセッションを作成し永続化する。
func (p *LocalProvider) createSession(ctx context.Context, identityID string, credentialVersion int) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:                sessionID,
		IdentityID:        identityID,
		CredentialVersion: credentialVersion,
		ExpiresAt:         time.Now().Add(time.Duration(p.config.SessionMaxAge) * time.Second),
		CreatedAt:         time.Now(),
	}

	if err := p.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// notify は購読者全員に現在のIdentityを通知する。
// バックエンドが発行した順序のまま届けるため、呼び出し元の流れで同期的に実行する。
func (p *LocalProvider) notify(identity *model.Identity) {
	p.mu.Lock()
	fns := make([]ChangeFunc, 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		var copied *model.Identity
		if identity != nil {
			c := *identity
			copied = &c
		}
		fn(copied)
	}
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// compile-time interface check
var _ Service = (*LocalProvider)(nil)
