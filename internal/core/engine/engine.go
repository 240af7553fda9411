package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/urukhq/whisperd/internal/core/transcript"
)

// Engine は音声認識コラボレータです。音声ファイルを受け取り、
// 整列済みの区間列を含む結果を返します。
type Engine interface {
	Transcribe(ctx context.Context, audioPath string) (*transcript.Result, error)
}

// Aligner は単語レベルのタイムスタンプを付与するエンハンスメントです。
type Aligner interface {
	Align(ctx context.Context, audioPath string, res *transcript.Result) (*transcript.Result, error)
}

// Diarizer は話者ラベルを付与するエンハンスメントです。
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, res *transcript.Result) (*transcript.Result, error)
}

// ErrNotConfigured は要求されたコラボレータのファクトリが未設定の場合のエラー
var ErrNotConfigured = errors.New("engine collaborator not configured")

// Factories は各コラボレータの生成関数です。モデルのロードは重いため、
// 生成はワーカープロセスごとに一度だけ遅延実行されます。
type Factories struct {
	Engine   func() (Engine, error)
	Aligner  func() (Aligner, error)
	Diarizer func() (Diarizer, error)
}

// Registry はモデルを保持するコラボレータのプロセス内レジストリです。
// かつての「モジュールレベルのシングルトン」に相当する状態を明示的な
// オブジェクトとして持ち、初期化順序と失敗を観測可能にします。
// 一度生成したコラボレータはジョブをまたいで再利用されます。
type Registry struct {
	factories      Factories
	alignEnabled   bool
	diarizeEnabled bool

	engineOnce sync.Once
	engine     Engine
	engineErr  error

	alignerOnce sync.Once
	aligner     Aligner
	alignerErr  error

	diarizerOnce sync.Once
	diarizer     Diarizer
	diarizerErr  error
}

// NewRegistry は新しい Registry を作成します。
func NewRegistry(factories Factories, alignEnabled, diarizeEnabled bool) *Registry {
	return &Registry{
		factories:      factories,
		alignEnabled:   alignEnabled,
		diarizeEnabled: diarizeEnabled,
	}
}

// Engine は ASR エンジンを返します。初回呼び出しで一度だけ生成されます。
func (r *Registry) Engine() (Engine, error) {
	r.engineOnce.Do(func() {
		if r.factories.Engine == nil {
			r.engineErr = ErrNotConfigured
			return
		}
		r.engine, r.engineErr = r.factories.Engine()
	})
	return r.engine, r.engineErr
}

// AlignmentEnabled はアライメントが構成上有効かを返します。
func (r *Registry) AlignmentEnabled() bool {
	return r.alignEnabled && r.factories.Aligner != nil
}

// Aligner はアライメントコラボレータを返します。
func (r *Registry) Aligner() (Aligner, error) {
	r.alignerOnce.Do(func() {
		if r.factories.Aligner == nil {
			r.alignerErr = ErrNotConfigured
			return
		}
		r.aligner, r.alignerErr = r.factories.Aligner()
	})
	return r.aligner, r.alignerErr
}

// DiarizationEnabled はダイアライゼーションが構成上有効かを返します。
func (r *Registry) DiarizationEnabled() bool {
	return r.diarizeEnabled && r.factories.Diarizer != nil
}

// Diarizer はダイアライゼーションコラボレータを返します。
func (r *Registry) Diarizer() (Diarizer, error) {
	r.diarizerOnce.Do(func() {
		if r.factories.Diarizer == nil {
			r.diarizerErr = ErrNotConfigured
			return
		}
		r.diarizer, r.diarizerErr = r.factories.Diarizer()
	})
	return r.diarizer, r.diarizerErr
}
