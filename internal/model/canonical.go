package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainPool prefixes pool content hashes. The version suffix leaves room
// for a future encoding change.
const DomainPool = "roulette/pool/v1"

// canonicalPool fixes the field order of the persisted definition. The
// version is deliberately absent: it is assigned by the store, not part of
// the content.
type canonicalPool struct {
	ID      string        `json:"id"`
	Rule    ExclusionRule `json:"rule"`
	Entries []Entry       `json:"entries"`
}

// MarshalCanonical encodes the normalized pool definition deterministically:
// fixed field order, sorted tags, compacted metadata and no HTML escaping.
// Two definitions with equal content always encode to equal bytes.
func MarshalCanonical(p Pool) ([]byte, error) {
	n := p.Normalize()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(canonicalPool{ID: n.ID, Rule: n.Rule, Entries: n.Entries}); err != nil {
		return nil, fmt.Errorf("marshal pool %s: %w", p.ID, err)
	}
	// Encoder adds a trailing newline
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalCanonical decodes a definition produced by MarshalCanonical.
// The returned pool has Version 0.
func UnmarshalCanonical(data []byte) (Pool, error) {
	var c canonicalPool
	if err := json.Unmarshal(data, &c); err != nil {
		return Pool{}, fmt.Errorf("unmarshal pool: %w", err)
	}
	return Pool{ID: c.ID, Rule: c.Rule, Entries: c.Entries}, nil
}

// ContentHash returns the domain-separated SHA-256 of the canonical
// encoding. Used to tell whether a refresh actually changed a pool.
func ContentHash(p Pool) (string, error) {
	data, err := MarshalCanonical(p)
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainPool, data), nil
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
