package blob

import (
	"context"
	"fmt"

	"brewcore/internal/infra/blob/fs"
	memorystore "brewcore/internal/infra/blob/memory"
)

// Config selects and configures a blob backend.
type Config struct {
	Driver Driver   `toml:"driver"`
	FSRoot string   `toml:"fs_root"`
	S3     S3Config `toml:"s3"`
}

// Open returns the Store described by cfg. An empty driver selects the
// filesystem backend rooted at cfg.FSRoot (default ./blobdata).
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewFilesystem constructs a filesystem-backed Store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns an in-memory Store for tests and dry runs.
func NewMemory() Store { return memorystore.New() }
