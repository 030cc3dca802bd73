package settings

import (
	"context"
	"sync"
)

// In-process Editor, for tests and single-node dev use.
type MemProvider struct {
	Base Settings

	mu        sync.Mutex
	overrides map[string]map[string]string
}

var _ Editor = (*MemProvider)(nil)

func NewMemProvider(base Settings) *MemProvider {
	return &MemProvider{
		Base:      base,
		overrides: make(map[string]map[string]string),
	}
}

func (p *MemProvider) Get(ctx context.Context, scopeID string) (Settings, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, _ := StaticProvider{Settings: p.Base}.Get(ctx, scopeID)
	return s.Apply(p.overrides[scopeID])
}

func (p *MemProvider) Update(ctx context.Context, scopeID string, fields map[string]string) error {
	if _, err := p.Base.Apply(fields); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.overrides[scopeID]
	if !ok {
		m = make(map[string]string)
		p.overrides[scopeID] = m
	}
	for k, v := range fields {
		m[k] = v
	}
	return nil
}
