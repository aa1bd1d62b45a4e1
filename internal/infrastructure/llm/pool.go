package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"prompt-blueprint-api/internal/domain/provider"
)

// clientPool 按 (provider, baseURL, model, 凭证摘要) 缓存客户端，
// 不同凭证永远不会共用同一个客户端
type clientPool struct {
	mu      sync.RWMutex
	clients map[string]any
}

func newClientPool() *clientPool {
	return &clientPool{clients: make(map[string]any)}
}

func poolKey(cfg *provider.EffectiveConfig) string {
	sum := sha256.Sum256([]byte(cfg.Credential))
	return cfg.ID + "|" + cfg.BaseURL + "|" + cfg.Model + "|" + hex.EncodeToString(sum[:])
}

func (p *clientPool) get(ctx context.Context, cfg *provider.EffectiveConfig, build func(context.Context) (any, error)) (any, error) {
	key := poolKey(cfg)

	p.mu.RLock()
	c, ok := p.clients[key]
	p.mu.RUnlock()
	if ok {
		return c, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// 再次检查防止竞态
	if c, ok = p.clients[key]; ok {
		return c, nil
	}

	c, err := build(ctx)
	if err != nil {
		return nil, err
	}
	p.clients[key] = c
	return c, nil
}

func (p *clientPool) size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.clients)
}
