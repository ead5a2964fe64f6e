package routes

import (
	"context"
	"time"

	"github.com/lgulliver/lodestone-upload/internal/common"
	"github.com/lgulliver/lodestone-upload/pkg/types"
)

// UploadServiceInterface defines the contract for the upload session manager
type UploadServiceInterface interface {
	Start(ctx context.Context, filename string) (*types.UploadSnapshot, error)
	Continue(ctx context.Context, token string, offset int64, data []byte) (int64, error)
	Finish(ctx context.Context, token, filename, digest string, size int64) (*types.UploadSnapshot, error)
	Cancel(ctx context.Context, token string) (*types.UploadSnapshot, error)
	Status(ctx context.Context, token string) (*types.UploadSnapshot, error)
}

// RecordServiceInterface defines the contract for the upload ledger
type RecordServiceInterface interface {
	GetUpload(ctx context.Context, token string) (*types.UploadRecord, error)
	ListUploads(ctx context.Context, filter *types.UploadRecordFilter) ([]*types.UploadRecord, int64, error)
	Stats(ctx context.Context, since *time.Time) (*common.UploadStats, error)
}
