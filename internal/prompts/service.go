package prompts

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("prompt not found")

type repository interface {
	GetByID(ctx context.Context, id int64) (*Config, error)
}

type Resolver struct {
	repo     repository
	fallback Config
}

// NewResolver builds a resolver whose default is used by ResolveOrDefault.
// Zero-valued fields of a stored prompt are filled from the default.
func NewResolver(repo repository, fallback Config) *Resolver {
	return &Resolver{repo: repo, fallback: fallback}
}

func (r *Resolver) Resolve(ctx context.Context, id int64) (Config, error) {
	cfg, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return Config{}, fmt.Errorf("resolve prompt: %w", err)
	}
	if cfg == nil {
		return Config{}, fmt.Errorf("prompt %d: %w", id, ErrNotFound)
	}
	return r.fill(*cfg), nil
}

// ResolveOrDefault never fails: a missing prompt or a failing lookup yields the default.
func (r *Resolver) ResolveOrDefault(ctx context.Context, id int64) Config {
	cfg, err := r.Resolve(ctx, id)
	if err != nil {
		logrus.WithField("prompt_id", id).Warnf("using default prompt: %v", err)
		return r.fallback
	}
	return cfg
}

func (r *Resolver) fill(cfg Config) Config {
	if cfg.Model == "" {
		cfg.Model = r.fallback.Model
	}
	if cfg.Template == "" {
		cfg.Template = r.fallback.Template
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = r.fallback.MaxTokens
	}
	return cfg
}
