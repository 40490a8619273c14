// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

import "context"

// ConfigFunc returns a fresh create-table message for the given tid,
// used to bootstrap a newer tag schema when a tag-value update arrives
// ahead of its schema (spec §6, §4.3 updateTagValue). A nil result
// with a nil error means "no configuration available".
type ConfigFunc func(ctx context.Context, shardID uint32, tid uint32) ([]byte, error)

// StreamHandle identifies a Stream table being dropped, passed to
// CQDropFunc so the (out of scope) continuous-query subsystem can stop
// materializing it.
type StreamHandle struct {
	UID  uint64
	Name string
	SQL  string
}

// CQDropFunc notifies the continuous-query subsystem that a Stream
// table has been dropped (spec §6). Failures are not propagated (spec
// §7 propagation policy) — the registry invokes it best-effort and
// logs any error.
type CQDropFunc func(ctx context.Context, handle StreamHandle) error

// ActionEmitter is the action-log adapter's contract with the
// registry (spec §4.4). The registry calls Emit* after completing an
// in-memory structural change (spec §5 ordering guarantees); meta
// itself has no notion of records or segments, keeping the core free
// of the action-log's binary framing.
type ActionEmitter interface {
	EmitUpdateMeta(ctx context.Context, t *Table) error
	EmitDropMeta(ctx context.Context, uid uint64) error
}

// noopEmitter is used when a Meta is constructed without an emitter,
// e.g. in unit tests of the registry logic alone.
type noopEmitter struct{}

func (noopEmitter) EmitUpdateMeta(context.Context, *Table) error { return nil }
func (noopEmitter) EmitDropMeta(context.Context, uint64) error   { return nil }
