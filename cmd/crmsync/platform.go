package main

import (
	"context"
	"encoding/json"
	"io"
	gosync "sync"

	"github.com/homemade/crmsync/sync"
)

type platformWrite struct {
	Type       string          `json:"type"`
	Identity   sync.Identity   `json:"identity"`
	Attributes sync.Attributes `json:"attributes"`
	Account    *sync.Identity  `json:"account,omitempty"`
}

// ndjsonPlatform writes each upsert as one JSON line.
type ndjsonPlatform struct {
	mu      gosync.Mutex
	encoder *json.Encoder
}

func newNDJSONPlatform(w io.Writer) *ndjsonPlatform {
	return &ndjsonPlatform{encoder: json.NewEncoder(w)}
}

func (p *ndjsonPlatform) UpsertAccount(_ context.Context, ident sync.Identity, attrs sync.Attributes) error {
	return p.write(platformWrite{Type: "account", Identity: ident, Attributes: attrs})
}

func (p *ndjsonPlatform) UpsertUser(_ context.Context, ident sync.Identity, attrs sync.Attributes, account *sync.Identity) error {
	return p.write(platformWrite{Type: "user", Identity: ident, Attributes: attrs, Account: account})
}

func (p *ndjsonPlatform) write(w platformWrite) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(w)
}
