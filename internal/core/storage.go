package core

import (
	"context"
	"errors"
	"fmt"
	"os"

	"vaultcore/internal/blob"
	"vaultcore/internal/infra/persistence/memory"
	"vaultcore/internal/infra/persistence/postgres"
	"vaultcore/internal/infra/persistence/sqlite"
	"vaultcore/pkg/domain"
	"vaultcore/pkg/schema"
)

// StorageDriver identifies a concrete baseline store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// ErrUnknownDriver is wrapped by the Open helpers for unrecognized driver names.
var ErrUnknownDriver = errors.New("unknown driver")

// OpenBaselineStore selects a backend using environment variables.
//
//	VAULTCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	VAULTCORE_SQLITE_PATH: path to sqlite file (default ./vaultcore.db)
//	VAULTCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenBaselineStore(ctx context.Context) (domain.BaselineStore, error) {
	driver := os.Getenv("VAULTCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(os.Getenv("VAULTCORE_SQLITE_PATH"))
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, os.Getenv("VAULTCORE_POSTGRES_DSN"))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: storage %s", ErrUnknownDriver, driver)
	}
}

// OpenArchive selects the history archive backend from VAULTCORE_ARCHIVE_*.
// An archive driver of "none" disables archiving and returns nil.
func OpenArchive(ctx context.Context) (blob.Store, error) {
	if os.Getenv("VAULTCORE_ARCHIVE_DRIVER") == "none" {
		return nil, nil
	}
	return blob.Open(ctx)
}

// OpenServiceFromEnv wires a Service for fs to the environment-selected
// baseline store and archive. Close the service to release the store.
func OpenServiceFromEnv(ctx context.Context, fs *schema.FieldSet, opts ...ServiceOption) (*Service, error) {
	store, err := OpenBaselineStore(ctx)
	if err != nil {
		return nil, err
	}
	archive, err := OpenArchive(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if archive != nil {
		opts = append([]ServiceOption{WithArchive(archive)}, opts...)
	}
	return NewService(fs, store, opts...), nil
}
