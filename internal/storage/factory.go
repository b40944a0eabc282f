package storage

import (
	"context"
	"fmt"

	"github.com/AndyChoi4495/fragments/internal/storage/local"
	"github.com/AndyChoi4495/fragments/internal/storage/memory"
	s3backend "github.com/AndyChoi4495/fragments/internal/storage/s3"
)

// Config selects and configures a payload backend.
type Config struct {
	Type  string // memory, local, s3
	Local local.Config
	S3    s3backend.Config
}

// NewBackend creates the Backend named by cfg.Type.
func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "local":
		return local.New(cfg.Local)
	case "s3":
		return s3backend.New(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Type)
	}
}
