package database

import (
	"context"
	"fmt"
)

// Provider hands out transaction handles for either the live consent store
// or the separate retention/archival store.
type Provider struct {
	live      *DB
	retention *DB
}

// NewProvider creates a connection provider. The retention store may be nil
// when no archival database is configured.
func NewProvider(live, retention *DB) *Provider {
	return &Provider{live: live, retention: retention}
}

// Live returns the live consent store
func (p *Provider) Live() *DB {
	return p.live
}

// Retention returns the retention store
func (p *Provider) Retention() *DB {
	return p.retention
}

// BeginTx starts a transaction against the selected store
func (p *Provider) BeginTx(ctx context.Context, useRetention bool) (*Transaction, error) {
	if useRetention {
		if p.retention == nil {
			return nil, fmt.Errorf("retention store is not configured")
		}
		return p.retention.BeginTx(ctx)
	}
	return p.live.BeginTx(ctx)
}
