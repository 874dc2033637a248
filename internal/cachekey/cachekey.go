// Package cachekey derives keyed fingerprints from extracted filters. Two
// statements filtering on the same predicates share a key whatever the order
// in which the predicates were written.
package cachekey

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dchest/siphash"
	"github.com/nnaka2992/pg-filter-columns/internal/filter"
)

// keySize is the SipHash key length in bytes
const keySize = 16

// fieldSep separates the parts of a canonical entry
const fieldSep = "\x1f"

// ErrInvalidKey is returned for keys that are not 32 hex characters
var ErrInvalidKey = errors.New("cache key must be 32 hex characters")

// Key is a 128-bit SipHash key
type Key struct {
	k0, k1 uint64
}

// DefaultKey is used when no key is configured
var DefaultKey = Key{k0: 0x706766696c746572, k1: 0x636f6c756d6e7321}

// ParseKey decodes a hex-encoded 128-bit key
func ParseKey(s string) (Key, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != keySize {
		return Key{}, ErrInvalidKey
	}

	return Key{
		k0: binary.LittleEndian.Uint64(raw[:8]),
		k1: binary.LittleEndian.Uint64(raw[8:]),
	}, nil
}

func (k Key) String() string {
	raw := make([]byte, keySize)
	binary.LittleEndian.PutUint64(raw[:8], k.k0)
	binary.LittleEndian.PutUint64(raw[8:], k.k1)
	return hex.EncodeToString(raw)
}

// Predicates fingerprints a predicate set
func Predicates(key Key, preds []filter.Predicate) uint64 {
	entries := make([]string, 0, len(preds))
	for _, p := range preds {
		// The value's type is part of the entry so that 1 and '1' differ
		entries = append(entries, strings.Join([]string{
			p.Column, p.Operator, fmt.Sprintf("%T:%v", p.Value, p.Value),
		}, fieldSep))
	}
	return hashEntries(key, entries)
}

// Columns fingerprints a filtered column set
func Columns(key Key, cols []filter.FilteredColumn) uint64 {
	entries := make([]string, 0, len(cols))
	for _, c := range cols {
		entries = append(entries, c.Table+fieldSep+c.Column)
	}
	return hashEntries(key, entries)
}

// Format renders a fingerprint as 16 hex digits
func Format(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

func hashEntries(key Key, entries []string) uint64 {
	slices.Sort(entries)
	entries = slices.Compact(entries)
	return siphash.Hash(key.k0, key.k1, []byte(strings.Join(entries, "\x00")))
}
