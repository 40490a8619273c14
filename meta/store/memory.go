// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"sync"
)

// Memory is an in-process LogStore, useful both as a test double and
// as a minimal reference implementation: it keeps every appended
// record in a slice keyed by the path last passed to Open, replaying
// them in append order. It has no actual durability — a process
// restart loses everything, which is fine for tests exercising the
// restore/reorg contract in isolation.
type Memory struct {
	mu          sync.Mutex
	records     map[string][][]byte
	currentPath string
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string][][]byte)}
}

func (m *Memory) Open(ctx context.Context, path string, restore func([]byte) error, reorg func() error) error {
	m.mu.Lock()
	m.currentPath = path
	records := append([][]byte(nil), m.records[path]...)
	m.mu.Unlock()

	for _, raw := range records {
		if err := restore(raw); err != nil {
			return err
		}
	}
	if reorg != nil {
		return reorg()
	}
	return nil
}

func (m *Memory) Close(ctx context.Context) error {
	return nil
}

func (m *Memory) Append(ctx context.Context, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[m.currentPath] = append(m.records[m.currentPath], record)
	return nil
}
