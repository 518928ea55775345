// Package cache persists synthesized audio so repeated chunks skip the
// provider.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/frame/datastore/pool"

	"github.com/readaloud/readaloud/internal/speech/engine"
)

// Repository stores CachedAudio rows. It satisfies client.Cache.
type Repository struct {
	pool pool.Pool
}

// NewRepository creates a repository over the service datastore pool.
func NewRepository(pool pool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// Migrate creates or updates the cache table.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db(ctx, false).AutoMigrate(&CachedAudio{}); err != nil {
		return fmt.Errorf("migrate audio cache: %w", err)
	}
	return nil
}

// Get returns the cached audio for key. A miss is (nil, false, nil).
func (r *Repository) Get(ctx context.Context, key string) (*engine.Audio, bool, error) {
	var entry CachedAudio
	err := r.db(ctx, true).Where("content_hash = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if err := r.db(ctx, false).
		Model(&CachedAudio{}).
		Where("id = ?", entry.ID).
		UpdateColumn("hit_count", gorm.Expr("hit_count + ?", 1)).Error; err != nil {
		slog.WarnContext(ctx, "audio cache hit count not updated",
			slog.String("content_hash", key), slog.String("error", err.Error()))
	}

	return entry.Audio(), true, nil
}

// Put stores audio under key. An existing entry is kept.
func (r *Repository) Put(ctx context.Context, key string, audio *engine.Audio) error {
	return r.db(ctx, false).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_hash"}},
			DoNothing: true,
		}).
		Create(newEntry(key, audio)).Error
}
