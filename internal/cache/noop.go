package cache

import (
	"context"
	"time"
)

// NoopCache disables decrypted-value caching.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (NoopCache) Set(context.Context, string, []byte, time.Duration) {}

func (NoopCache) DeletePrefix(context.Context, string) error { return nil }

func (NoopCache) Close() error { return nil }
