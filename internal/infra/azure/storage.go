package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/urukhq/whisperd/internal/core/job"
)

// BlobStorage は Azure Blob Storage へのアップロード実装です。
// アップロード済み Blob の URL がそのままジョブの audio_url になります。
type BlobStorage struct {
	client    *azblob.Client
	container string
}

// NewBlobStorage は接続文字列から新しい BlobStorage を作成します。
func NewBlobStorage(connectionString, container string) (*BlobStorage, error) {
	if connectionString == "" || container == "" {
		return nil, job.ErrStorageNotConfigured
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	return &BlobStorage{client: client, container: container}, nil
}

// コンパイル時の型チェック
var _ job.BlobStorage = (*BlobStorage)(nil)

// Upload は Blob を書き込み、公開 URL を返します。
func (s *BlobStorage) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if _, err := s.client.UploadBuffer(ctx, s.container, name, data, nil); err != nil {
		return "", fmt.Errorf("failed to upload blob: %w", err)
	}
	base := strings.TrimSuffix(s.client.URL(), "/")
	return fmt.Sprintf("%s/%s/%s", base, s.container, name), nil
}
