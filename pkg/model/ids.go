package model

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
	"sync"
)

// DefaultIDPrefix is the base of the 13-digit ID range.
const DefaultIDPrefix int64 = 1_000_000_000_000

const idRange int64 = 1_000_000_000_000

// IDGenerator issues stable numeric IDs above a configurable prefix.
// Sequential IDs come from a counter; per-key IDs are derived from the
// SHA-256 of the key so the same source identifier always maps to the same
// ID, with a linear bump on the (rare) digest collision.
type IDGenerator struct {
	mu     sync.Mutex
	prefix int64
	next   int64
	used   map[int64]struct{}
	byKey  map[string]string
}

// NewIDGenerator returns a generator seeded at prefix. A non-positive prefix
// selects DefaultIDPrefix.
func NewIDGenerator(prefix int64) *IDGenerator {
	if prefix <= 0 {
		prefix = DefaultIDPrefix
	}
	return &IDGenerator{
		prefix: prefix,
		used:   make(map[int64]struct{}),
		byKey:  make(map[string]string),
	}
}

// Next issues the next free sequential ID.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		candidate := g.prefix + g.next
		g.next++
		if _, taken := g.used[candidate]; !taken {
			g.used[candidate] = struct{}{}
			return strconv.FormatInt(candidate, 10)
		}
	}
}

// For returns the deterministic ID for key, issuing it on first use.
func (g *IDGenerator) For(key string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id, ok := g.byKey[key]; ok {
		return id
	}
	sum := sha256.Sum256([]byte(key))
	offset := int64(binary.BigEndian.Uint64(sum[:8]) % uint64(idRange))
	for {
		candidate := g.prefix + offset
		if _, taken := g.used[candidate]; !taken {
			g.used[candidate] = struct{}{}
			id := strconv.FormatInt(candidate, 10)
			g.byKey[key] = id
			return id
		}
		offset = (offset + 1) % idRange
	}
}
