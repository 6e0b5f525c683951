package credential

import (
	"context"
	"sync"
)

// MemoryProvider keeps the key in process memory.
type MemoryProvider struct {
	mu  sync.RWMutex
	key string
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{}
}

func (p *MemoryProvider) Get(context.Context) (string, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.key, p.key != "", nil
}

func (p *MemoryProvider) Set(_ context.Context, key string) error {
	key, err := ValidateKey(key)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.key = key
	p.mu.Unlock()
	return nil
}

func (p *MemoryProvider) Clear(context.Context) error {
	p.mu.Lock()
	p.key = ""
	p.mu.Unlock()
	return nil
}
