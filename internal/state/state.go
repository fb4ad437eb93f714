// Package state wraps the kv store with typed load/save/clear access to the
// session records. Load never fails with "not found": a missing key yields a
// fresh default record. Save always refreshes updated_at and writes the
// whole record under a single key.
package state

import (
	"context"
	"fmt"
	"time"

	"github.com/fabrica3d/fabrica/internal/kv"
	"github.com/fabrica3d/fabrica/internal/models"
)

// Persistence keys. One record per kind, process-wide.
const (
	ProductKey       = "product:current"
	ProductStatusKey = "product_status:current"
	PackagingKey     = "packaging:current"
)

// ProductStore persists the product session record.
type ProductStore struct {
	kv  kv.Store
	ttl time.Duration
}

func NewProductStore(store kv.Store, ttl time.Duration) *ProductStore {
	return &ProductStore{kv: store, ttl: ttl}
}

func (s *ProductStore) Load(ctx context.Context) (*models.ProductSession, error) {
	sess := models.NewProductSession()
	found, err := s.kv.GetJSON(ctx, ProductKey, sess)
	if err != nil {
		return nil, fmt.Errorf("load product session: %w", err)
	}
	if !found {
		return models.NewProductSession(), nil
	}
	if sess.Images == nil {
		sess.Images = []string{}
	}
	if sess.Iterations == nil {
		sess.Iterations = []models.Iteration{}
	}
	return sess, nil
}

func (s *ProductStore) Save(ctx context.Context, sess *models.ProductSession) error {
	sess.UpdatedAt = time.Now().UTC()
	if err := s.kv.SetJSON(ctx, ProductKey, sess, s.ttl); err != nil {
		return fmt.Errorf("save product session: %w", err)
	}
	return nil
}

// Clear discards the stored record and returns a fresh default.
func (s *ProductStore) Clear(ctx context.Context) (*models.ProductSession, error) {
	sess := models.NewProductSession()
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// StatusStore persists the polled status projection.
type StatusStore struct {
	kv  kv.Store
	ttl time.Duration
}

func NewStatusStore(store kv.Store, ttl time.Duration) *StatusStore {
	return &StatusStore{kv: store, ttl: ttl}
}

func (s *StatusStore) Load(ctx context.Context) (*models.StatusProjection, error) {
	proj := models.NewStatusProjection()
	found, err := s.kv.GetJSON(ctx, ProductStatusKey, proj)
	if err != nil {
		return nil, fmt.Errorf("load status projection: %w", err)
	}
	if !found {
		return models.NewStatusProjection(), nil
	}
	return proj, nil
}

func (s *StatusStore) Save(ctx context.Context, proj *models.StatusProjection) error {
	proj.UpdatedAt = time.Now().UTC()
	if err := s.kv.SetJSON(ctx, ProductStatusKey, proj, s.ttl); err != nil {
		return fmt.Errorf("save status projection: %w", err)
	}
	return nil
}

// PackagingStore persists the packaging session record and applies
// shape-state self-healing on every load.
type PackagingStore struct {
	kv  kv.Store
	ttl time.Duration
}

func NewPackagingStore(store kv.Store, ttl time.Duration) *PackagingStore {
	return &PackagingStore{kv: store, ttl: ttl}
}

func (s *PackagingStore) Load(ctx context.Context) (*models.PackagingSession, error) {
	sess := models.NewPackagingSession()
	found, err := s.kv.GetJSON(ctx, PackagingKey, sess)
	if err != nil {
		return nil, fmt.Errorf("load packaging session: %w", err)
	}
	if !found {
		return models.NewPackagingSession(), nil
	}
	sess.Heal()
	return sess, nil
}

func (s *PackagingStore) Save(ctx context.Context, sess *models.PackagingSession) error {
	sess.UpdatedAt = time.Now().UTC()
	if err := s.kv.SetJSON(ctx, PackagingKey, sess, s.ttl); err != nil {
		return fmt.Errorf("save packaging session: %w", err)
	}
	return nil
}

func (s *PackagingStore) Clear(ctx context.Context) (*models.PackagingSession, error) {
	sess := models.NewPackagingSession()
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}
