package vector

import (
	"os"
	"path/filepath"

	"github.com/normgraph/normgraph/internal/config"
	"github.com/normgraph/normgraph/internal/types"
)

// NewStore creates the vector store described by the configuration.
// The parent directory of the database file is created if missing.
func NewStore(cfg config.VectorConfig) (Store, error) {
	if cfg.Path == "" {
		return nil, types.NewError(types.VECTOR_STORE_FAILED, "vector.path is required")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, types.WrapError(types.VECTOR_STORE_FAILED,
			"failed to create vector storage directory", err)
	}

	return NewSqliteStore(SqliteConfig{
		Path: cfg.Path,
		Dims: cfg.Dimensions,
	})
}
