package storage

import "context"

// ObjectInfo represents metadata for a remote report object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the minimal S3-compatible operations the backtest
// tooling needs for archiving reports.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	UploadObject(ctx context.Context, key string, data []byte) error
	DownloadObject(ctx context.Context, key string) ([]byte, error)
}
