package session

import "sync"

// CodeStore is the standard CodeSink: it holds the current design code
// as published by the most recent stream. Reads and writes may come
// from different goroutines (the session's reader and its owner).
type CodeStore struct {
	mu   sync.RWMutex
	code string
}

// NewCodeStore creates an empty CodeStore.
func NewCodeStore() *CodeStore {
	return &CodeStore{}
}

// SetCode replaces the current code. Implements CodeSink.
func (c *CodeStore) SetCode(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code = code
}

// Code returns the current code.
func (c *CodeStore) Code() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.code
}
