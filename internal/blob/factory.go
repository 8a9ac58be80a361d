package blob

import (
	"context"
	"fmt"
	"os"

	"vaultcore/internal/infra/blob/fs"
	"vaultcore/internal/infra/blob/memory"
	"vaultcore/internal/infra/blob/s3"
)

// S3Config configures the S3 driver.
type S3Config = s3.Config

// Open selects an archive Store using environment variables.
//
//	VAULTCORE_ARCHIVE_DRIVER: fs|s3|memory (default fs)
//	VAULTCORE_ARCHIVE_FS_ROOT: directory when driver=fs (default ./vaultarchive)
//	VAULTCORE_ARCHIVE_S3_*: see internal/infra/blob/s3
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("VAULTCORE_ARCHIVE_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("VAULTCORE_ARCHIVE_FS_ROOT"))
	case DriverS3:
		cfg, err := s3.ConfigFromEnv()
		if err != nil {
			return nil, err
		}
		return NewS3(ctx, cfg)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %s", driver)
	}
}

// NewFilesystem returns a directory-backed Store.
func NewFilesystem(root string) (Store, error) {
	store, err := fs.New(root)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewMemory returns a process-local Store.
func NewMemory() Store { return memory.New() }

// NewS3 returns a bucket-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	store, err := s3.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}
