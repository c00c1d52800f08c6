// Package cache holds rendered export artifacts so repeated downloads of an
// unchanged month skip rendering.
package cache

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"dividi/internal/core"
)

// Artifact is a rendered report ready to be served.
type Artifact struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Key identifies an artifact. Including the store revision means any write
// makes older entries unreachable; they age out through the LRU.
type Key struct {
	Revision uint64
	Month    core.MonthKey
	Format   string
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%s", k.Revision, k.Month, k.Format)
}

type ExportCache struct {
	lru   *expirable.LRU[Key, Artifact]
	group singleflight.Group
}

// NewExportCache keeps at most size artifacts, each for at most ttl.
func NewExportCache(size int, ttl time.Duration) *ExportCache {
	return &ExportCache{lru: expirable.NewLRU[Key, Artifact](size, nil, ttl)}
}

func (c *ExportCache) Get(key Key) (Artifact, bool) {
	return c.lru.Get(key)
}

func (c *ExportCache) Add(key Key, a Artifact) {
	c.lru.Add(key, a)
}

// GetOrRender returns the cached artifact for key or renders, stores and
// returns it. Concurrent callers for the same key share one render. Errors
// are not cached.
func (c *ExportCache) GetOrRender(key Key, render func() (Artifact, error)) (Artifact, bool, error) {
	if a, ok := c.lru.Get(key); ok {
		return a, true, nil
	}
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		a, err := render()
		if err != nil {
			return Artifact{}, err
		}
		c.lru.Add(key, a)
		return a, nil
	})
	if err != nil {
		return Artifact{}, false, err
	}
	return v.(Artifact), false, nil
}

func (c *ExportCache) Len() int { return c.lru.Len() }

func (c *ExportCache) Purge() { c.lru.Purge() }
