// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DefaultMaxTables is used when Config.MaxTables is zero.
const DefaultMaxTables = 4096

// Config configures a new Meta registry (spec §4.3, §6).
type Config struct {
	ShardID uint32

	// MaxTables bounds the tables[] slot array; tid must be in
	// [1, MaxTables) (spec §3 "Identity"). Defaults to
	// DefaultMaxTables.
	MaxTables uint32

	// Emitter receives UpdateMeta/DropMeta action-log records (spec
	// §4.4). A noop emitter is used if nil, useful for unit-testing
	// registry logic in isolation.
	Emitter ActionEmitter

	ConfigFunc ConfigFunc
	CQDrop     CQDropFunc

	Logger *zap.Logger
}

// Meta is the shard-wide table registry (spec §3 "Meta registry
// entities", §4.3). A single sync.RWMutex guards all structural
// changes; see spec §5.
type Meta struct {
	mu sync.RWMutex

	shardID   uint32
	maxTables uint32

	tables    []*Table // dense, index 0 reserved
	uidMap    map[uint64]*Table
	superList []*Table

	maxCols     int
	maxRowBytes int
	nTables     int

	emitter    ActionEmitter
	configFunc ConfigFunc
	cqDrop     CQDropFunc

	log *zap.SugaredLogger
}

// New constructs an empty Meta registry.
func New(cfg Config) *Meta {
	if cfg.MaxTables == 0 {
		cfg.MaxTables = DefaultMaxTables
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = noopEmitter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Meta{
		shardID:    cfg.ShardID,
		maxTables:  cfg.MaxTables,
		tables:     make([]*Table, cfg.MaxTables),
		uidMap:     make(map[uint64]*Table, 64),
		emitter:    emitter,
		configFunc: cfg.ConfigFunc,
		cqDrop:     cfg.CQDrop,
		log:        logger.Sugar(),
	}
}

// SetEmitter (re)binds the action-log emitter after construction,
// letting a persistence driver finish its open-time restore/reorg
// pass (which never touches the emitter) before wiring itself in to
// receive subsequent UpdateMeta/DropMeta calls.
func (m *Meta) SetEmitter(e ActionEmitter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e == nil {
		e = noopEmitter{}
	}
	m.emitter = e
}

// ---- Lookup operations (spec §4.3) ----

// GetByUID probes uidMap, the registry's canonical index (spec §4.3,
// invariant 1).
func (m *Meta) GetByUID(uid uint64) (*Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.uidMap[uid]
	return t, ok
}

// GetByTID probes the dense slot array directly.
func (m *Meta) GetByTID(tid uint32) (*Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tid == 0 || tid >= m.maxTables {
		return nil, false
	}
	t := m.tables[tid]
	return t, t != nil
}

// GetSchema returns the newest schema of t, or of t's Super when t is
// a Child (spec §4.3).
func (m *Meta) GetSchema(t *Table) (Schema, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	target := t
	if t.kind == KindChild {
		target = t.pSuper
	}
	if target == nil {
		return Schema{}, false
	}
	return target.newestSchema()
}

// GetSchemaByVersion binary searches the (Super's, for Child) schema
// history for an exact version match (spec §4.3).
func (m *Meta) GetSchemaByVersion(t *Table, v int64) (Schema, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	target := t
	if t.kind == KindChild {
		target = t.pSuper
	}
	if target == nil {
		return Schema{}, false
	}
	return target.schemaByVersion(v)
}

// GetTagSchema returns the Super's tag schema, directly or through
// pSuper (spec §4.3); nothing for non-super-family tables.
func (m *Meta) GetTagSchema(t *Table) (*Schema, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var target *Table
	switch t.kind {
	case KindSuper:
		target = t
	case KindChild:
		target = t.pSuper
	default:
		return nil, false
	}
	if target == nil || target.tagSchema == nil {
		return nil, false
	}
	return target.tagSchema, true
}

// GetTagValue locates colID in the tag schema, then fetches the value
// by column id from t's tag-value row, failing the precondition if
// (type, bytes) disagree with the schema (spec §4.3).
func (m *Meta) GetTagValue(t *Table, colID uint16, expectedType Type, expectedBytes uint32) (interface{}, error) {
	ts, ok := m.GetTagSchema(t)
	if !ok {
		return nil, errInvalidTableType("GetTagValue requires a Child or Super table")
	}
	col, ok := ts.ColByID(colID)
	if !ok {
		return nil, errInvalidArgumentf("no tag column %d", colID)
	}
	if col.Type != expectedType || col.Bytes != expectedBytes {
		return nil, errInvalidArgumentf("tag column %d: schema is (%v,%d), caller expected (%v,%d)", colID, col.Type, col.Bytes, expectedType, expectedBytes)
	}
	if t.kind != KindChild {
		return nil, errInvalidTableType("GetTagValue requires a Child table for the value row")
	}
	m.mu.RLock()
	tv, ok := t.tagRow.byID(colID)
	m.mu.RUnlock()
	if !ok {
		return nil, errInvalidArgumentf("no tag value for column %d on table %d", colID, t.uid)
	}
	coder, err := coderFor(col.Type)
	if err != nil {
		return nil, err
	}
	return coder.decode(col, tv.Data)
}

// ---- Structural operations (spec §4.3; write lock required) ----

// addToMetaLocked requires m.mu to be held for writing.
func (m *Meta) addToMetaLocked(t *Table, registerIndex bool) error {
	switch t.kind {
	case KindSuper:
		m.superList = append(m.superList, t)
	default:
		if t.kind == KindChild && registerIndex {
			if err := m.addToIndexLocked(t); err != nil {
				return err
			}
		}
		if t.tid == 0 || t.tid >= m.maxTables {
			if t.kind == KindChild && registerIndex {
				m.removeFromIndexLocked(t)
			}
			return errOutOfMemory("tid out of range for MaxTables")
		}
		if m.tables[t.tid] != nil {
			if t.kind == KindChild && registerIndex {
				m.removeFromIndexLocked(t)
			}
			return errTableAlreadyExists(t.uid)
		}
		m.tables[t.tid] = t
		m.nTables++
	}

	if _, exists := m.uidMap[t.uid]; exists {
		m.rollbackAddLocked(t, registerIndex)
		return errTableAlreadyExists(t.uid)
	}
	m.uidMap[t.uid] = t

	if t.kind != KindChild {
		if c := t.cols(); c > m.maxCols {
			m.maxCols = c
		}
		if rb := t.rowBytes(); rb > m.maxRowBytes {
			m.maxRowBytes = rb
		}
	}
	return nil
}

// rollbackAddLocked undoes the structural-slot portion of
// addToMetaLocked after a uidMap collision (spec §4.3 step 3 rollback).
func (m *Meta) rollbackAddLocked(t *Table, hadIndex bool) {
	switch t.kind {
	case KindSuper:
		for i := len(m.superList) - 1; i >= 0; i-- {
			if m.superList[i] == t {
				m.superList = append(m.superList[:i], m.superList[i+1:]...)
				break
			}
		}
	default:
		if t.tid < m.maxTables {
			m.tables[t.tid] = nil
		}
		m.nTables--
		if t.kind == KindChild && hadIndex {
			m.removeFromIndexLocked(t)
		}
	}
}

// removeFromMetaLocked requires m.mu to be held for writing.
func (m *Meta) removeFromMetaLocked(t *Table, removeFromIdx bool) error {
	switch t.kind {
	case KindSuper:
		found := false
		for i := len(m.superList) - 1; i >= 0; i-- {
			if m.superList[i] == t {
				m.superList = append(m.superList[:i], m.superList[i+1:]...)
				found = true
				break
			}
		}
		if !found {
			return errInvalidTableId(t.uid)
		}
	default:
		if t.tid != 0 && t.tid < m.maxTables {
			m.tables[t.tid] = nil
		}
		if t.kind == KindChild && removeFromIdx {
			if err := m.removeFromIndexLocked(t); err != nil {
				return err
			}
		}
		m.nTables--
	}
	delete(m.uidMap, t.uid)

	if t.kind != KindChild {
		if t.cols() == m.maxCols || t.rowBytes() == m.maxRowBytes {
			m.recomputeMaximaLocked()
		}
	}
	t.Unref()
	return nil
}

// recomputeMaximaLocked rescans tables[] and superList; called only
// when the removed table held one of the running maxima (spec §3
// invariant 4, §4.3 removeFromMeta).
func (m *Meta) recomputeMaximaLocked() {
	maxCols, maxRowBytes := 0, 0
	scan := func(t *Table) {
		if t == nil || t.kind == KindChild {
			return
		}
		if c := t.cols(); c > maxCols {
			maxCols = c
		}
		if rb := t.rowBytes(); rb > maxRowBytes {
			maxRowBytes = rb
		}
	}
	for _, t := range m.tables {
		scan(t)
	}
	for _, t := range m.superList {
		scan(t)
	}
	m.maxCols = maxCols
	m.maxRowBytes = maxRowBytes
}

// tagIndexKeyLocked projects child's tag-value row onto super's
// designated tag column (spec §4.3 addToIndex: "the key is obtained
// via an accessor that projects the Child's tag-value row on the
// Super's designated tag column").
func tagIndexKeyLocked(super, child *Table) ([]byte, error) {
	if super.tagSchema == nil || len(super.tagSchema.Cols) == 0 {
		return nil, errInvalidTableType("super has no tag schema")
	}
	designated := super.tagSchema.Cols[0]
	tv, ok := child.tagRow.byID(designated.ColId)
	if !ok {
		return nil, errInvalidArgumentf("child %d missing designated tag column %d", child.uid, designated.ColId)
	}
	return tv.Data, nil
}

// addToIndexLocked requires m.mu to be held for writing.
func (m *Meta) addToIndexLocked(child *Table) error {
	super, ok := m.uidMap[child.superUID]
	if !ok {
		return errInvalidTableId(child.superUID)
	}
	if super.kind != KindSuper {
		return errInvalidTableType("superUid does not reference a Super table")
	}
	key, err := tagIndexKeyLocked(super, child)
	if err != nil {
		return err
	}
	child.pSuper = super
	super.tagIndex.insert(key, child)
	super.Ref()
	return nil
}

// removeFromIndexLocked requires m.mu to be held for writing.
func (m *Meta) removeFromIndexLocked(child *Table) error {
	super := child.pSuper
	if super == nil {
		s, ok := m.uidMap[child.superUID]
		if !ok {
			return errInvalidTableId(child.superUID)
		}
		super = s
	}
	key, err := tagIndexKeyLocked(super, child)
	if err != nil {
		return err
	}
	if !super.tagIndex.removeIdentity(key, child) {
		return errInvalidTableId(child.uid)
	}
	child.pSuper = nil
	super.Unref()
	return nil
}

// ---- CRUD operations (spec §4.3 public contract) ----

// CreateTable builds and registers a Table (and, for an implicit
// Super, the Super too), emitting UpdateMeta action(s) with the
// synthesized Super first (spec §4.3, §5 ordering guarantees).
func (m *Meta) CreateTable(ctx context.Context, cfg TableCfg) (*Table, error) {
	if _, exists := m.GetByUID(cfg.UID); exists {
		return nil, errTableAlreadyExists(cfg.UID)
	}

	var super *Table
	synthesized := false
	if cfg.Kind == KindChild {
		existing, ok := m.GetByUID(cfg.SuperUID)
		if ok {
			if existing.kind != KindSuper {
				return nil, errInvalidTableType("superUid does not reference a Super table")
			}
			if err := m.UpdateTable(ctx, existing, cfg); err != nil {
				return nil, err
			}
			super = existing
		} else {
			s, err := newTable(cfg, true)
			if err != nil {
				return nil, err
			}
			super = s
			synthesized = true
		}
	}

	t, err := newTable(cfg, false)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if synthesized {
		if err := m.addToMetaLocked(super, false); err != nil {
			m.mu.Unlock()
			return nil, err
		}
	}
	if err := m.addToMetaLocked(t, cfg.Kind == KindChild); err != nil {
		if synthesized {
			m.removeFromMetaLocked(super, false)
		}
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	if synthesized {
		if err := m.emitter.EmitUpdateMeta(ctx, super); err != nil {
			return nil, wrapErr(KindSystem, "InvalidAction", "emit UpdateMeta for synthesized super failed", err)
		}
	}
	if err := m.emitter.EmitUpdateMeta(ctx, t); err != nil {
		return nil, wrapErr(KindSystem, "InvalidAction", "emit UpdateMeta failed", err)
	}
	m.log.Infow("table created", "uid", t.uid, "tid", t.tid, "kind", t.kind.String())
	return t, nil
}

// DropTable removes the table identified by uid. For a Stream table
// it invokes the continuous-query drop hook first (best effort, spec
// §7); for a Super it removes every Child found in its tag-index
// first, each with its own DropMeta record, before removing the Super
// itself (spec §4.3). Emitting the action record for a dropped Super
// is the caller's responsibility (spec §4.3, §5).
func (m *Meta) DropTable(ctx context.Context, uid uint64) error {
	t, ok := m.GetByUID(uid)
	if !ok {
		return errInvalidTableId(uid)
	}

	if t.kind == KindStream && m.cqDrop != nil {
		if err := m.cqDrop(ctx, StreamHandle{UID: t.uid, Name: t.name, SQL: t.sql}); err != nil {
			m.log.Warnw("continuous query drop hook failed", "uid", uid, "err", err)
		}
	}

	var children []*Table
	m.mu.Lock()
	if t.kind == KindSuper {
		children = t.tagIndex.all()
		for _, c := range children {
			if err := m.removeFromMetaLocked(c, true); err != nil {
				m.mu.Unlock()
				return err
			}
		}
	}
	err := m.removeFromMetaLocked(t, true)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	for _, c := range children {
		if err := m.emitter.EmitDropMeta(ctx, c.uid); err != nil {
			return wrapErr(KindSystem, "InvalidAction", "emit DropMeta for child failed", err)
		}
	}
	if t.kind != KindSuper {
		if err := m.emitter.EmitDropMeta(ctx, t.uid); err != nil {
			return wrapErr(KindSystem, "InvalidAction", "emit DropMeta failed", err)
		}
	}
	m.log.Infow("table dropped", "uid", uid, "kind", t.kind.String())
	return nil
}

// UpdateTable is only valid on non-Child tables (spec §4.3). If t is a
// Super and cfg.TagSchema carries a strictly higher version, the tag
// schema is replaced wholesale. If cfg.Schema carries a strictly
// higher version than t's current schema, it is appended to history
// (FIFO-evicting the oldest entry once full) and the registry's
// maxCols/maxRowBytes are updated. An UpdateMeta record is emitted iff
// any change occurred.
func (m *Meta) UpdateTable(ctx context.Context, t *Table, cfg TableCfg) error {
	if t.kind == KindChild {
		return errInvalidTableType("updateTable is not valid on Child tables")
	}

	changed := false
	m.mu.Lock()
	if t.kind == KindSuper && cfg.TagSchema != nil {
		if t.tagSchema == nil || cfg.TagSchema.Version > t.tagSchema.Version {
			ts := cloneSchema(*cfg.TagSchema)
			t.tagSchema = &ts
			changed = true
		}
	}
	if cfg.Schema != nil {
		cur, ok := t.newestSchema()
		if !ok || cur.Version < cfg.Schema.Version {
			t.appendSchema(*cfg.Schema)
			if c := t.cols(); c > m.maxCols {
				m.maxCols = c
			}
			if rb := t.rowBytes(); rb > m.maxRowBytes {
				m.maxRowBytes = rb
			}
			changed = true
		}
	}
	m.mu.Unlock()

	if !changed {
		return nil
	}
	if err := m.emitter.EmitUpdateMeta(ctx, t); err != nil {
		return wrapErr(KindSystem, "InvalidAction", "emit UpdateMeta failed", err)
	}
	m.log.Infow("table updated", "uid", t.uid, "kind", t.kind.String())
	return nil
}

// UpdateTagValue applies an inbound tag-value change (spec §4.3). If
// the local tag schema is older than msg.TVersion, it bootstraps a
// fresh full configuration through ConfigFunc and applies it via
// UpdateTable before proceeding; if the local tag schema is newer, the
// update is rejected with TagVersionOutOfDate.
func (m *Meta) UpdateTagValue(ctx context.Context, msg UpdateTagValMsg) error {
	t, ok := m.GetByUID(msg.UID)
	if !ok || t.tid != msg.TID {
		return errInvalidTableId(msg.UID)
	}
	if t.kind != KindChild {
		return errInvalidAction("updateTagValue target must be a Child table")
	}

	super := t.pSuper
	if super == nil {
		s, ok := m.GetByUID(t.superUID)
		if !ok {
			return errInvalidTableId(t.superUID)
		}
		super = s
	}
	if super.tagSchema == nil {
		return errInvalidTableId(super.uid)
	}

	switch {
	case super.tagSchema.Version < msg.TVersion:
		if m.configFunc == nil {
			return errTagVersionOutOfDate(super.tagSchema.Version, msg.TVersion)
		}
		raw, err := m.configFunc(ctx, m.shardID, t.tid)
		if err != nil {
			return wrapErr(KindSystem, "InvalidAction", "configFunc failed", err)
		}
		if raw == nil {
			return errTagVersionOutOfDate(super.tagSchema.Version, msg.TVersion)
		}
		fresh, err := DecodeCreateTableMsg(raw)
		if err != nil {
			return err
		}
		if err := m.UpdateTable(ctx, super, fresh.ToCfg()); err != nil {
			return err
		}
	case super.tagSchema.Version > msg.TVersion:
		return errTagVersionOutOfDate(super.tagSchema.Version, msg.TVersion)
	}

	col, ok := super.tagSchema.ColByID(msg.ColId)
	if !ok {
		return errInvalidArgumentf("no tag column %d in super %d's tag schema", msg.ColId, super.uid)
	}
	if col.Type != msg.Type || (msg.Bytes != 0 && col.Bytes != msg.Bytes) {
		return errInvalidArgumentf("tag column %d: type/width mismatch", msg.ColId)
	}

	data := append([]byte(nil), msg.Data...)
	designated := super.tagSchema.Cols[0]
	m.mu.Lock()
	if col.ColId == designated.ColId {
		oldTV, _ := t.tagRow.byID(col.ColId)
		super.tagIndex.removeIdentity(oldTV.Data, t)
		t.tagRow = t.tagRow.set(col.ColId, data)
		super.tagIndex.insert(data, t)
	} else {
		t.tagRow = t.tagRow.set(col.ColId, data)
	}
	m.mu.Unlock()

	if err := m.emitter.EmitUpdateMeta(ctx, t); err != nil {
		return wrapErr(KindSystem, "InvalidAction", "emit UpdateMeta failed", err)
	}
	return nil
}

// ---- Restore / reorg (spec §4.5, driven by meta/store) ----

// Restore registers a table decoded from the action log without
// emitting a new action record and without touching tag indexes
// (registerIndex=false): the Super a Child points at may not yet be
// present (spec §4.5 restore callback).
func (m *Meta) Restore(t *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addToMetaLocked(t, false)
}

// RestoreDrop removes uid from the registry during replay without
// touching any tag index (spec §4.5): a drop record may be replayed
// before reorg has linked Child tables into their Super's index, so
// there is nothing indexed yet to remove. A missing uid (the create
// record it would have paired with was rotated out of the log) is not
// an error.
func (m *Meta) RestoreDrop(uid uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.uidMap[uid]
	if !ok {
		return nil
	}
	return m.removeFromMetaLocked(t, false)
}

// AllChildren returns a snapshot of every currently registered Child
// table, used by the persistence driver's reorg pass (spec §4.5).
func (m *Meta) AllChildren() []*Table {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Table
	for _, t := range m.tables {
		if t != nil && t.kind == KindChild {
			out = append(out, t)
		}
	}
	return out
}

// IndexChild links a Child to its Super's tag-index, establishing the
// pSuper back-link (spec §4.5 reorg: "for every Child in tables[]
// invoke addToIndex").
func (m *Meta) IndexChild(child *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addToIndexLocked(child)
}

// ---- Reporting (spec §4.3 "iteration for reporting"; §2c of
// SPEC_FULL.md) ----

// Range calls fn for every registered table (Normal, Stream, Child,
// and Super) until fn returns false.
func (m *Meta) Range(fn func(t *Table) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tables {
		if t == nil {
			continue
		}
		if !fn(t) {
			return
		}
	}
	for _, s := range m.superList {
		if !fn(s) {
			return
		}
	}
}

// Stats is a point-in-time snapshot of registry-wide counters.
type Stats struct {
	NumTables   int
	NumSupers   int
	MaxCols     int
	MaxRowBytes int
}

// Stats reports registry-wide counters (spec §3 "maxCols, maxRowBytes").
func (m *Meta) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		NumTables:   m.nTables,
		NumSupers:   len(m.superList),
		MaxCols:     m.maxCols,
		MaxRowBytes: m.maxRowBytes,
	}
}
