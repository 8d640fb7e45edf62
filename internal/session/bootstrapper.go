// Package session はプロセス全体の認証ライフサイクルを管理する。
// Bootstrapperが「誰がサインインしていて、どのプロフィールが裏付けるか」の
// 唯一の正解を保持し、状態遷移を下流の観測者へ通知する。
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/gakuseki/internal/identity"
	"github.com/hitoshi/gakuseki/internal/metrics"
	"github.com/hitoshi/gakuseki/internal/model"
)

// State はセッション状態機械の状態。
// Uninitialized → Loading → {Authenticated | Anonymous} と遷移し、
// 以降はID変更通知ごとにAuthenticated/Anonymous間を行き来する。
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

// View はIDとプロフィールを統合した投影。UI層が参照する唯一のビュー。
// Profileがnilの場合はドキュメント不在または取得失敗で、
// ID情報のみで描画を続行する（部分データはゼロデータに勝る）。
type View struct {
	Identity *model.Identity
	Profile  *model.ProfileRecord
}

// ProfileFetcher はプロフィール取得の能力面。
// 不在は(nil, nil)で表現され、エラーとは区別される。
type ProfileFetcher interface {
	Fetch(ctx context.Context, identityID string) (*model.ProfileRecord, error)
}

// IdentityWatcher はID変更通知の購読能力面。identity.Serviceが満たす。
type IdentityWatcher interface {
	SubscribeToIdentityChanges(fn identity.ChangeFunc) (unsubscribe func())
}

// ObserverFunc は状態確定後に呼ばれる観測者コールバック。
type ObserverFunc func(state State, view *View)

// Bootstrapper はセッション状態機械の実装。
// 状態の変更はすべてOnIdentityChanged経由で行われ、観測者は読むだけ。
type Bootstrapper struct {
	fetcher   ProfileFetcher
	collector metrics.MetricsCollector

	mu          sync.Mutex
	state       State
	view        *View
	generation  uint64
	settled     bool
	observers   map[int]ObserverFunc
	nextObsID   int
	unsubscribe func()
}

// NewBootstrapper はBootstrapperを生成する。初期状態はUninitialized。
func NewBootstrapper(fetcher ProfileFetcher, collector metrics.MetricsCollector) *Bootstrapper {
	return &Bootstrapper{
		fetcher:   fetcher,
		collector: collector,
		state:     StateUninitialized,
		observers: make(map[int]ObserverFunc),
	}
}

// Start はID変更通知の購読を開始する。プロセス起動時に一度だけ呼ぶ。
// 購読開始時にIDサービスが現在の状態を1回通知するため、
// Loadingに入った直後に最初の確定が行われる。
func (b *Bootstrapper) Start(watcher IdentityWatcher) {
	b.mu.Lock()
	b.state = StateLoading
	b.mu.Unlock()

	slog.Info("session bootstrap started")

	b.unsubscribe = watcher.SubscribeToIdentityChanges(b.OnIdentityChanged)
}

// Stop はID変更通知の購読を解除する。
func (b *Bootstrapper) Stop() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

// OnIdentityChanged はID変更通知を処理する状態遷移関数。
// nilはAnonymousへの遷移。非nilはプロフィール取得を挟んでAuthenticatedへ遷移する。
// 取得中に新しい通知が届いた場合、古い取得結果は破棄される
// （完了順ではなく通知順で最後の値が勝つ）。
func (b *Bootstrapper) OnIdentityChanged(ident *model.Identity) {
	b.mu.Lock()
	b.generation++
	gen := b.generation
	b.mu.Unlock()

	if ident == nil {
		b.settle(gen, StateAnonymous, nil)
		return
	}

	profile, err := b.fetcher.Fetch(context.Background(), ident.ID)
	if err != nil {
		// 取得失敗でもID情報だけで認証済みとして確定する
		slog.Warn("profile fetch failed, continuing with identity only",
			slog.String("identity_id", ident.ID),
			slog.String("error", err.Error()),
		)
		profile = nil
	}

	b.settle(gen, StateAuthenticated, &View{Identity: ident, Profile: profile})
}

// RefreshProfile はプロフィール変更成功後にビューを再計算する。
// 未サインイン状態では何もしない。
func (b *Bootstrapper) RefreshProfile(ctx context.Context) {
	b.mu.Lock()
	if b.view == nil || b.view.Identity == nil {
		b.mu.Unlock()
		return
	}
	ident := b.view.Identity
	b.generation++
	gen := b.generation
	b.mu.Unlock()

	profile, err := b.fetcher.Fetch(ctx, ident.ID)
	if err != nil {
		slog.Warn("profile refresh failed, keeping last view",
			slog.String("identity_id", ident.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	b.settle(gen, StateAuthenticated, &View{Identity: ident, Profile: profile})
}

// settle は世代が最新の場合のみ状態を確定し、観測者へ同期的に通知する。
// 古い世代の結果は破棄する。
func (b *Bootstrapper) settle(gen uint64, state State, view *View) {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		b.collector.RecordStaleFetchDiscard()
		slog.Debug("stale fetch result discarded")
		return
	}

	b.state = state
	b.view = view
	firstSettle := !b.settled
	b.settled = true

	fns := make([]ObserverFunc, 0, len(b.observers))
	for _, fn := range b.observers {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	b.collector.RecordSessionTransition(string(state))

	slog.Info("session state settled",
		slog.String("state", string(state)),
		slog.Bool("first_settle", firstSettle),
	)

	for _, fn := range fns {
		fn(state, copyView(view))
	}
}

// State は現在の状態を返す。
func (b *Bootstrapper) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CurrentView は現在のビューのコピーを返す。Anonymousではnil。
func (b *Bootstrapper) CurrentView() *View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyView(b.view)
}

// Settled は最初の確定が済んだかを返す。
// 初回起動のローディング表示を、以降のルーチンな再取得で
// 再表示しないための判定に使う。
func (b *Bootstrapper) Settled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settled
}

// Subscribe は状態確定の観測者を登録する。
// 登録時に現在の状態で即座に1回コールバックし、解除用の関数を返す。
func (b *Bootstrapper) Subscribe(fn ObserverFunc) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextObsID
	b.nextObsID++
	b.observers[id] = fn
	state := b.state
	view := copyView(b.view)
	b.mu.Unlock()

	fn(state, view)

	return func() {
		b.mu.Lock()
		delete(b.observers, id)
		b.mu.Unlock()
	}
}

// copyView はビューの深いコピーを返す。観測者が内部状態を書き換えられないようにする。
func copyView(view *View) *View {
	if view == nil {
		return nil
	}
	copied := &View{}
	if view.Identity != nil {
		ident := *view.Identity
		copied.Identity = &ident
	}
	if view.Profile != nil {
		profile := *view.Profile
		copied.Profile = &profile
	}
	return copied
}
