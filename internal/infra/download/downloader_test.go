package download

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloader_Fetch(t *testing.T) {
	t.Run("音声を取得してスクラッチ領域に保存する", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("fake-audio-bytes"))
		}))
		defer srv.Close()

		host := mustHost(t, srv.URL)
		d := NewDownloader(NewAllowlist([]string{host}), t.TempDir(), 5*time.Second)

		path, err := d.Fetch(t.Context(), srv.URL+"/media/sample.wav", "job-1")
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "fake-audio-bytes", string(data))
		assert.Contains(t, path, "job-1")
		assert.Contains(t, path, ".wav")
	})

	t.Run("拡張子のない URL にはフォールバックの拡張子を使う", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("data"))
		}))
		defer srv.Close()

		host := mustHost(t, srv.URL)
		d := NewDownloader(NewAllowlist([]string{host}), t.TempDir(), 5*time.Second)

		path, err := d.Fetch(t.Context(), srv.URL+"/stream", "job-2")
		require.NoError(t, err)
		assert.Contains(t, path, ".audio")
	})

	t.Run("許可リスト外のホストはリクエストせずに拒否する", func(t *testing.T) {
		d := NewDownloader(NewAllowlist([]string{"allowed.example.com"}), t.TempDir(), 5*time.Second)

		_, err := d.Fetch(t.Context(), "https://evil.example.net/audio.mp3", "job-3")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not allowed")
	})

	t.Run("許可リスト外のホストへのリダイレクトは拒否される", func(t *testing.T) {
		forbidden := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("internal-secret"))
		}))
		defer forbidden.Close()

		// 同じアドレスでもホスト名が許可リストに無ければ到達できない
		forbiddenURL, err := url.Parse(forbidden.URL)
		require.NoError(t, err)
		location := "http://localhost:" + forbiddenURL.Port() + "/secret.wav"

		redirecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, location, http.StatusFound)
		}))
		defer redirecting.Close()

		host := mustHost(t, redirecting.URL)
		d := NewDownloader(NewAllowlist([]string{host}), t.TempDir(), 5*time.Second)

		_, err = d.Fetch(t.Context(), redirecting.URL+"/audio.wav", "job-redirect")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not allowed")
	})

	t.Run("許可済みホスト内のリダイレクトは追従する", func(t *testing.T) {
		mux := http.NewServeMux()
		srv := httptest.NewServer(mux)
		defer srv.Close()
		mux.HandleFunc("/moved.wav", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, srv.URL+"/real.wav", http.StatusMovedPermanently)
		})
		mux.HandleFunc("/real.wav", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("relocated-audio"))
		})

		host := mustHost(t, srv.URL)
		d := NewDownloader(NewAllowlist([]string{host}), t.TempDir(), 5*time.Second)

		path, err := d.Fetch(t.Context(), srv.URL+"/moved.wav", "job-moved")
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "relocated-audio", string(data))
	})

	t.Run("2xx 以外のレスポンスはエラーになる", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		host := mustHost(t, srv.URL)
		d := NewDownloader(NewAllowlist([]string{host}), t.TempDir(), 5*time.Second)

		_, err := d.Fetch(t.Context(), srv.URL+"/missing.wav", "job-4")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}

func mustHost(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Hostname()
}
