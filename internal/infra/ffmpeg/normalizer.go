package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/urukhq/whisperd/internal/core/pipeline"
)

// Normalizer は ffmpeg で音声を正準波形（mono/16kHz/16bit PCM）へ変換します。
// ASR モデルへの入力を揃えるための品質改善であり、失敗した場合は呼び出し側が
// 元ファイルのまま続行します。
type Normalizer struct {
	binary string
}

// NewNormalizer は新しい Normalizer を作成します。binary が空の場合は
// PATH 上の ffmpeg を使います。
func NewNormalizer(binary string) *Normalizer {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Normalizer{binary: binary}
}

// コンパイル時の型チェック
var _ pipeline.Normalizer = (*Normalizer)(nil)

// Normalize は src を変換し、変換後ファイルのパスを返します。
func (n *Normalizer) Normalize(ctx context.Context, src, jobID string) (string, error) {
	dst := filepath.Join(filepath.Dir(src), "normalized.wav")

	cmd := exec.CommandContext(ctx, n.binary,
		"-y",
		"-i", src,
		"-ac", "1",
		"-ar", "16000",
		"-acodec", "pcm_s16le",
		dst,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(stderr.String()))
	}
	return dst, nil
}

// lastLine は ffmpeg の冗長な stderr から最後の非空行だけを取り出します。
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
