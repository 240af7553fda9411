package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urukhq/whisperd/internal/core/job"
	"github.com/urukhq/whisperd/internal/infra/identity"
)

type jobServiceFake struct {
	submitReceipt *job.Receipt
	submitErr     error
	gotAudioURL   string
	gotMetadata   map[string]any
	gotUser       json.RawMessage

	uploadReceipt *job.UploadReceipt
	uploadErr     error
	gotFilename   string
	gotData       []byte

	canceledID string
	cancelErr  error

	listJobs []*job.Job
	listErr  error
}

func (f *jobServiceFake) Submit(_ context.Context, audioURL string, metadata map[string]any, userInfo json.RawMessage) (*job.Receipt, error) {
	f.gotAudioURL = audioURL
	f.gotMetadata = metadata
	f.gotUser = userInfo
	return f.submitReceipt, f.submitErr
}

func (f *jobServiceFake) UploadAndSubmit(_ context.Context, data []byte, filename string, _ json.RawMessage) (*job.UploadReceipt, error) {
	f.gotData = data
	f.gotFilename = filename
	return f.uploadReceipt, f.uploadErr
}

func (f *jobServiceFake) Cancel(_ context.Context, jobID string) error {
	f.canceledID = jobID
	return f.cancelErr
}

func (f *jobServiceFake) List(_ context.Context) ([]*job.Job, error) {
	return f.listJobs, f.listErr
}

type resolverFake struct {
	resolution *job.Resolution
	err        error
}

func (f *resolverFake) Resolve(_ context.Context, jobID string) (*job.Resolution, error) {
	if f.resolution != nil {
		f.resolution.JobID = jobID
	}
	return f.resolution, f.err
}

type tokenResolverFake struct {
	user json.RawMessage
	err  error
}

func (f *tokenResolverFake) ResolveToken(_ context.Context, token string) (json.RawMessage, error) {
	return f.user, f.err
}

func newTestRouter(jobs *jobServiceFake, resolver *resolverFake, tokens *tokenResolverFake) http.Handler {
	logger := slog.New(slog.DiscardHandler)
	h := NewHandler(jobs, resolver, logger)
	auth := NewAuthenticator(tokens, logger)
	return NewRouter(h, auth, "/v1")
}

func authedRequest(method, target string, body *bytes.Buffer) *http.Request {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer test-token")
	return req
}

func TestCreateTranscription(t *testing.T) {
	t.Run("ジョブを受け付けて受領を返す", func(t *testing.T) {
		jobs := &jobServiceFake{submitReceipt: &job.Receipt{JobID: "task-1", Status: job.StatusQueued}}
		router := newTestRouter(jobs, &resolverFake{}, &tokenResolverFake{user: json.RawMessage(`{"id": 1}`)})

		body := bytes.NewBufferString(`{"audio_url": "https://cdn.example.com/a.wav", "metadata": {"lang": "en"}}`)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/transcriptions", body))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"job_id": "task-1", "status": "queued"}`, rec.Body.String())
		assert.Equal(t, "https://cdn.example.com/a.wav", jobs.gotAudioURL)
		assert.Equal(t, map[string]any{"lang": "en"}, jobs.gotMetadata)
		assert.JSONEq(t, `{"id": 1}`, string(jobs.gotUser))
	})

	t.Run("不正な audio_url は 400 になる", func(t *testing.T) {
		jobs := &jobServiceFake{submitErr: job.ErrInvalidAudioURL}
		router := newTestRouter(jobs, &resolverFake{}, &tokenResolverFake{user: json.RawMessage(`{}`)})

		body := bytes.NewBufferString(`{"audio_url": "ftp://example.com/a.wav"}`)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/transcriptions", body))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("壊れた JSON ボディは 400 になる", func(t *testing.T) {
		router := newTestRouter(&jobServiceFake{}, &resolverFake{}, &tokenResolverFake{user: json.RawMessage(`{}`)})

		body := bytes.NewBufferString(`{not json`)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/transcriptions", body))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetTranscription(t *testing.T) {
	t.Run("ステータスを解決して返す", func(t *testing.T) {
		resolver := &resolverFake{resolution: &job.Resolution{Status: "running", Phase: "transcribing"}}
		router := newTestRouter(&jobServiceFake{}, resolver, &tokenResolverFake{user: json.RawMessage(`{}`)})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v1/transcriptions/task-9", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"job_id": "task-9", "status": "running", "phase": "transcribing"}`, rec.Body.String())
	})

	t.Run("未知のジョブは 404 になる", func(t *testing.T) {
		resolver := &resolverFake{err: job.ErrJobNotFound}
		router := newTestRouter(&jobServiceFake{}, resolver, &tokenResolverFake{user: json.RawMessage(`{}`)})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v1/transcriptions/nope", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListTranscriptions(t *testing.T) {
	t.Run("ジョブが無い場合は空配列を返す", func(t *testing.T) {
		router := newTestRouter(&jobServiceFake{}, &resolverFake{}, &tokenResolverFake{user: json.RawMessage(`{}`)})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v1/transcriptions", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("ジョブの一覧を返す", func(t *testing.T) {
		jobs := &jobServiceFake{listJobs: []*job.Job{
			{JobID: "task-2", Status: job.StatusQueued},
			{JobID: "task-1", Status: job.StatusSucceeded},
		}}
		router := newTestRouter(jobs, &resolverFake{}, &tokenResolverFake{user: json.RawMessage(`{}`)})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v1/transcriptions", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var got []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "task-2", got[0]["job_id"])
	})
}

func TestCancelTranscription(t *testing.T) {
	jobs := &jobServiceFake{}
	resolver := &resolverFake{resolution: &job.Resolution{Status: "canceled"}}
	router := newTestRouter(jobs, resolver, &tokenResolverFake{user: json.RawMessage(`{}`)})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/v1/transcriptions/task-5/cancel", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "task-5", jobs.canceledID)
	assert.JSONEq(t, `{"job_id": "task-5", "status": "canceled"}`, rec.Body.String())
}

func TestUploadFile(t *testing.T) {
	newUploadRequest := func(t *testing.T, filename, content string) *http.Request {
		t.Helper()
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := authedRequest(http.MethodPost, "/v1/uploadfile/", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req
	}

	t.Run("ファイルを受け付けてジョブを作る", func(t *testing.T) {
		jobs := &jobServiceFake{uploadReceipt: &job.UploadReceipt{
			Message: "file uploaded and job enqueued",
			URL:     "https://blob.example.com/c/x.wav",
			JobID:   "task-7",
			Status:  job.StatusQueued,
		}}
		router := newTestRouter(jobs, &resolverFake{}, &tokenResolverFake{user: json.RawMessage(`{}`)})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, newUploadRequest(t, "meeting.wav", "audio-bytes"))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "meeting.wav", jobs.gotFilename)
		assert.Equal(t, []byte("audio-bytes"), jobs.gotData)
	})

	t.Run("Blob への書き込み拒否は 500 になる", func(t *testing.T) {
		jobs := &jobServiceFake{uploadErr: fmt.Errorf("%w: storage rejected write", job.ErrUpload)}
		router := newTestRouter(jobs, &resolverFake{}, &tokenResolverFake{user: json.RawMessage(`{}`)})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, newUploadRequest(t, "a.wav", "x"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("ストレージ未設定は 503 になる", func(t *testing.T) {
		jobs := &jobServiceFake{uploadErr: job.ErrStorageNotConfigured}
		router := newTestRouter(jobs, &resolverFake{}, &tokenResolverFake{user: json.RawMessage(`{}`)})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, newUploadRequest(t, "a.wav", "x"))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("file フィールドが無ければ 400 になる", func(t *testing.T) {
		router := newTestRouter(&jobServiceFake{}, &resolverFake{}, &tokenResolverFake{user: json.RawMessage(`{}`)})

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("other", "value"))
		require.NoError(t, mw.Close())
		req := authedRequest(http.MethodPost, "/v1/uploadfile/", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthentication(t *testing.T) {
	t.Run("トークンが無ければ 401 になる", func(t *testing.T) {
		router := newTestRouter(&jobServiceFake{}, &resolverFake{}, &tokenResolverFake{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/transcriptions", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("拒否されたトークンは 401 になる", func(t *testing.T) {
		tokens := &tokenResolverFake{err: fmt.Errorf("status 401: %w", identity.ErrUnauthorized)}
		router := newTestRouter(&jobServiceFake{}, &resolverFake{}, tokens)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v1/transcriptions", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("認証バックエンド障害は 500 になる", func(t *testing.T) {
		tokens := &tokenResolverFake{err: fmt.Errorf("connection refused")}
		router := newTestRouter(&jobServiceFake{}, &resolverFake{}, tokens)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v1/transcriptions", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("ヘルスチェックは認証不要", func(t *testing.T) {
		router := newTestRouter(&jobServiceFake{}, &resolverFake{}, &tokenResolverFake{})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
