package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/urukhq/whisperd/internal/core/pipeline"
)

// Downloader は外部 URL の音声を job_id をキーにしたスクラッチ領域へ
// ストリーミング取得します。メモリ上に全体を載せずディスクへ直接書きます。
type Downloader struct {
	client    *http.Client
	allowlist *Allowlist
	tmpDir    string
}

// NewDownloader は新しい Downloader を作成します。
// リダイレクトの各ホップも許可リストで再検証します。最初の URL だけを検査
// すると、許可済みホストからのリダイレクトで任意のホスト（内部アドレスを
// 含む）へ到達できてしまうためです。
func NewDownloader(allowlist *Allowlist, tmpDir string, timeout time.Duration) *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				if !allowlist.Allowed(req.URL.Hostname()) {
					return fmt.Errorf("redirect to host %q is not allowed", req.URL.Hostname())
				}
				return nil
			},
		},
		allowlist: allowlist,
		tmpDir:    tmpDir,
	}
}

// コンパイル時の型チェック
var _ pipeline.Downloader = (*Downloader)(nil)

// Fetch は音声を取得し、保存先のパスを返します。許可リスト外のホスト、
// 2xx 以外のレスポンスはエラーです。
func (d *Downloader) Fetch(ctx context.Context, audioURL, jobID string) (string, error) {
	u, err := url.Parse(audioURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse audio url: %w", err)
	}
	if !d.allowlist.Allowed(u.Hostname()) {
		return "", fmt.Errorf("host %q is not allowed", u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d downloading audio", resp.StatusCode)
	}

	dir := filepath.Join(d.tmpDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}

	ext := filepath.Ext(u.Path)
	if ext == "" {
		ext = ".audio"
	}
	path := filepath.Join(dir, "source"+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create audio file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to flush audio file: %w", err)
	}
	return path, nil
}
