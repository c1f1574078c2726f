// Package quizpack loads question packages. Packages are authored and stored
// elsewhere; sessions only read them.
package quizpack

import (
	"context"
	"errors"
	"sync"

	"github.com/mcdev12/quizhall/go/internal/models"
)

var ErrPackageNotFound = errors.New("question package not found")

// Provider resolves a package by id.
type Provider interface {
	Get(ctx context.Context, id string) (*models.Package, error)
}

// Cache memoizes packages from another provider. Packages never change once
// published, so entries are never invalidated.
type Cache struct {
	next Provider

	mu       sync.RWMutex
	packages map[string]*models.Package
}

func NewCache(next Provider) *Cache {
	return &Cache{next: next, packages: make(map[string]*models.Package)}
}

func (c *Cache) Get(ctx context.Context, id string) (*models.Package, error) {
	c.mu.RLock()
	pkg, ok := c.packages[id]
	c.mu.RUnlock()
	if ok {
		return pkg, nil
	}

	pkg, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.packages[id] = pkg
	c.mu.Unlock()
	return pkg, nil
}

// Static serves packages held in memory.
type Static map[string]*models.Package

func (s Static) Get(_ context.Context, id string) (*models.Package, error) {
	pkg, ok := s[id]
	if !ok {
		return nil, ErrPackageNotFound
	}
	return pkg, nil
}
