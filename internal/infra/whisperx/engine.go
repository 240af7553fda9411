package whisperx

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/urukhq/whisperd/internal/core/engine"
	"github.com/urukhq/whisperd/internal/core/transcript"
	"github.com/urukhq/whisperd/pkg/config"
)

//go:embed assets/whisperx_runner.py
var runnerScript []byte

// Engine は WhisperX を子プロセスとして呼び出す ASR エンジンです。
// 同梱の Python ランナーを構築時に一度だけ書き出し、transcribe / align /
// diarize の各サブコマンドで呼び出します。モデル自体はランナー側の
// プロセスキャッシュに載るため、Go 側はファイルパスの受け渡しに徹します。
type Engine struct {
	python string
	script string
	cfg    config.EngineConfig
}

// NewEngine は新しい Engine を作成します。
func NewEngine(cfg config.EngineConfig) (*Engine, error) {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}

	dir, err := os.MkdirTemp("", "whisperd-runner-")
	if err != nil {
		return nil, fmt.Errorf("failed to create runner directory: %w", err)
	}
	script := filepath.Join(dir, "whisperx_runner.py")
	if err := os.WriteFile(script, runnerScript, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write runner script: %w", err)
	}

	return &Engine{python: python, script: script, cfg: cfg}, nil
}

// コンパイル時の型チェック
var (
	_ engine.Engine   = (*Engine)(nil)
	_ engine.Aligner  = (*Engine)(nil)
	_ engine.Diarizer = (*Engine)(nil)
)

// Transcribe は音声を認識し、区間列を含む結果を返します。
func (e *Engine) Transcribe(ctx context.Context, audioPath string) (*transcript.Result, error) {
	out, err := e.run(ctx, "transcribe", nil,
		"--audio", audioPath,
		"--model", e.cfg.ModelName,
		"--device", e.cfg.Device,
		"--compute-type", e.cfg.ComputeType,
	)
	if err != nil {
		return nil, err
	}

	res, err := parseRunnerOutput(out)
	if err != nil {
		return nil, err
	}
	res.Model = transcript.ModelInfo{
		Name:        e.cfg.ModelName,
		Device:      e.cfg.Device,
		ComputeType: e.cfg.ComputeType,
	}
	return res, nil
}

// Align は単語レベルのタイムスタンプを付与します。
func (e *Engine) Align(ctx context.Context, audioPath string, res *transcript.Result) (*transcript.Result, error) {
	in, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode alignment input: %w", err)
	}

	out, err := e.run(ctx, "align", in,
		"--audio", audioPath,
		"--device", e.cfg.Device,
		"--language", res.Language,
	)
	if err != nil {
		return nil, err
	}

	aligned, err := parseRunnerOutput(out)
	if err != nil {
		return nil, err
	}
	if aligned.Language == "" {
		aligned.Language = res.Language
	}
	aligned.Model = res.Model
	return aligned, nil
}

// Diarize は話者ラベルを付与します。Hugging Face トークンが必要です。
func (e *Engine) Diarize(ctx context.Context, audioPath string, res *transcript.Result) (*transcript.Result, error) {
	if e.cfg.HuggingFaceToken == "" {
		return nil, fmt.Errorf("hugging face token is not configured")
	}

	in, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode diarization input: %w", err)
	}

	out, err := e.run(ctx, "diarize", in,
		"--audio", audioPath,
		"--device", e.cfg.Device,
		"--hf-token", e.cfg.HuggingFaceToken,
	)
	if err != nil {
		return nil, err
	}

	diarized, err := parseRunnerOutput(out)
	if err != nil {
		return nil, err
	}
	if diarized.Language == "" {
		diarized.Language = res.Language
	}
	diarized.Model = res.Model
	return diarized, nil
}

// run はランナーの 1 サブコマンドを実行し、stdout を返します。
func (e *Engine) run(ctx context.Context, subcommand string, stdin []byte, args ...string) ([]byte, error) {
	cmdArgs := append([]string{e.script, subcommand}, args...)
	cmd := exec.CommandContext(ctx, e.python, cmdArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("whisperx %s failed: %w: %s", subcommand, err, stderrTail(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// runnerResult はランナーの stdout に現れる JSON の形です。
type runnerResult struct {
	Language string               `json:"language"`
	Segments []transcript.Segment `json:"segments"`
}

// parseRunnerOutput はランナーの stdout を結果に変換します。
func parseRunnerOutput(out []byte) (*transcript.Result, error) {
	var r runnerResult
	if err := json.Unmarshal(out, &r); err != nil {
		return nil, fmt.Errorf("failed to decode runner output: %w", err)
	}
	if r.Segments == nil {
		r.Segments = []transcript.Segment{}
	}
	return &transcript.Result{
		Language: r.Language,
		Segments: r.Segments,
	}, nil
}

// stderrTail はランナーの stderr から最後の非空行だけを取り出します。
// モデルのロードログは長く、エラーメッセージは末尾に出ます。
func stderrTail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
