// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store implements the persistence driver that binds a
// meta.Meta registry to an external write-ahead log store (spec
// §4.5): it drives the open-time restore/reorg sequence and appends
// every subsequent action record the registry emits.
package store

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/solidcoredata/vmeta/meta"
	"github.com/solidcoredata/vmeta/meta/actionlog"
)

// LogStore is the external key-value log store collaborator (spec
// §6), deliberately narrow: this package never assumes a concrete
// storage engine.
type LogStore interface {
	Open(ctx context.Context, path string, restore func([]byte) error, reorg func() error) error
	Close(ctx context.Context) error
	Append(ctx context.Context, record []byte) error
}

// Driver owns the Open/Close lifecycle of a Meta registry bound to a
// LogStore (spec §4.5).
type Driver struct {
	log     LogStore
	path    string
	reg     *meta.Meta
	segment *actionlog.Segment
	sugar   *zap.SugaredLogger
}

// Config configures a new Driver.
type Config struct {
	LogStore LogStore
	Path     string
	Registry *meta.Meta
	Logger   *zap.Logger
}

func New(cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		log:     cfg.LogStore,
		path:    cfg.Path,
		reg:     cfg.Registry,
		segment: &actionlog.Segment{},
		sugar:   logger.Sugar(),
	}
}

// Open replays the log store's prior records into the registry (via
// restore) and then rebuilds every Super's tag-index (via reorg),
// exactly as distilled spec §4.5.
func (d *Driver) Open(ctx context.Context) error {
	var records []actionlog.Record
	restore := func(raw []byte) error {
		r, err := actionlog.Unmarshal(raw)
		if err != nil {
			return err
		}
		records = append(records, r)
		switch r.Act {
		case actionlog.ActUpdateMeta:
			t, err := meta.DecodeTable(r.Payload)
			if err != nil {
				return err
			}
			return d.reg.Restore(t)
		case actionlog.ActDropMeta:
			return d.reg.RestoreDrop(r.UID)
		}
		return nil
	}
	reorgFn := func() error {
		return d.reorg(ctx)
	}
	if err := d.log.Open(ctx, d.path, restore, reorgFn); err != nil {
		return err
	}
	d.sugar.Infow("action log replayed", "records", len(records))
	return nil
}

// Close flushes the driver's log-store handle.
func (d *Driver) Close(ctx context.Context) error {
	return d.log.Close(ctx)
}

// Emitter returns a meta.ActionEmitter that frames every registry
// change and appends it to the log store, suitable for
// meta.Config.Emitter.
func (d *Driver) Emitter() meta.ActionEmitter {
	return &actionlog.Emitter{
		Segment: d.segment,
		Sink: func(payload []byte) error {
			return d.log.Append(context.Background(), payload)
		},
	}
}

// reorg rebuilds every Super's tag-index from the Child tables now
// present in the registry, fanning the work out one goroutine per
// Super via errgroup: distinct Supers' btrees are disjoint state, so
// indexing Child tables destined for different Supers is safe to run
// concurrently (spec §4.5).
func (d *Driver) reorg(ctx context.Context) error {
	children := d.reg.AllChildren()
	bySuper := make(map[uint64][]*meta.Table, len(children))
	for _, c := range children {
		bySuper[c.SuperUID()] = append(bySuper[c.SuperUID()], c)
	}

	g, _ := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var skipped int
	for _, group := range bySuper {
		group := group
		g.Go(func() error {
			for _, c := range group {
				if err := d.reg.IndexChild(c); err != nil {
					mu.Lock()
					skipped++
					mu.Unlock()
					d.sugar.Warnw("reorg: failed to index child", "uid", c.UID(), "superUid", c.SuperUID(), "err", err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if skipped > 0 {
		d.sugar.Warnw("reorg completed with orphaned children", "skipped", skipped)
	}
	return nil
}
