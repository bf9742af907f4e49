package ragpipe

import (
	"context"
	"time"

	"github.com/yukunliu/ragpipe/cache"
)

// passthroughCache is the degraded cache: every read misses, every
// write is accepted and dropped, and the lock always grants. The chat
// path behaves as if every query were a cold miss.
type passthroughCache struct{}

func (passthroughCache) GetExact(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (passthroughCache) SetExact(context.Context, string, string) error { return nil }

func (passthroughCache) GetSemantic(context.Context, []float32) (string, bool, error) {
	return "", false, nil
}

func (passthroughCache) SetSemantic(context.Context, string, []float32, string) error {
	return nil
}

func (passthroughCache) History(context.Context, string, string) ([]cache.Message, error) {
	return nil, nil
}

func (passthroughCache) PushMessage(context.Context, string, string, cache.Message) error {
	return nil
}

func (passthroughCache) TrimHistory(context.Context, string, string, int) error { return nil }

func (passthroughCache) ReplaceHistory(context.Context, string, string, []cache.Message) error {
	return nil
}

func (passthroughCache) AcquireLock(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

func (passthroughCache) ReleaseLock(context.Context, string) error { return nil }

func (passthroughCache) Close() error { return nil }
