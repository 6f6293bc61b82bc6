package memory

import (
	lru "github.com/hashicorp/golang-lru"
)

const tlbEntries = 64

type translation struct {
	frame  uint32
	flags  PageEntry
	global bool
}

// TLB caches page translations. A flush drops everything except entries
// that came from global mappings.
type TLB struct {
	cache *lru.Cache
}

func NewTLB() *TLB {
	cache, err := lru.New(tlbEntries)
	if err != nil {
		panic(err)
	}

	return &TLB{cache: cache}
}

func (t *TLB) lookup(vpn uint32) (translation, bool) {
	val, ok := t.cache.Get(vpn)
	if !ok {
		return translation{}, false
	}

	return val.(translation), true
}

func (t *TLB) insert(vpn uint32, tr translation) {
	t.cache.Add(vpn, tr)
}

// Flush drops every non-global translation.
func (t *TLB) Flush() {
	for _, key := range t.cache.Keys() {
		val, ok := t.cache.Peek(key)
		if !ok {
			continue
		}

		if !val.(translation).global {
			t.cache.Remove(key)
		}
	}
}

// Contains reports whether the page holding addr has a cached translation.
func (t *TLB) Contains(addr uint32) bool {
	return t.cache.Contains(addr / PageSize)
}

func (t *TLB) Len() int {
	return t.cache.Len()
}
