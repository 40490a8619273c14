// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

import (
	"sync/atomic"
)

// Kind is the tagged-variant table kind (spec §3 "Table kinds").
type Kind uint8

const (
	KindNormal Kind = iota + 1
	KindSuper
	KindChild
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindSuper:
		return "super"
	case KindChild:
		return "child"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// InvalidSuperUID is the sentinel superUID marking "no super" (spec
// §4.1: cfg.superUid "must not equal the invalid-super sentinel").
const InvalidSuperUID uint64 = 0

// InvalidTID is the tid sentinel used by Super tables, which have no
// shard-local slot (spec §3 "Identity").
const InvalidTID uint32 = 0

// MaxSchemasPerTable bounds the schema history FIFO (spec §3).
const MaxSchemasPerTable = 16

// MaxNameLen bounds table name length (spec §4.1), checked by
// TableCfg.validate. The settings file's max_name_len does not change
// it.
const MaxNameLen = 192

// Table is the per-table record (spec §3 "Table object").
//
// Ownership model: the Meta registry is the sole owner of every Table
// it holds; a *Table pointer is stable for the table's lifetime and
// doubles as the "id" an arena-plus-id scheme would otherwise need
// (spec §9 design note). Child.pSuper is a plain back-reference, not
// an owning one; the cycle it forms with the Super's tag-index entry
// is broken by the refcount discipline in Ref/Unref.
type Table struct {
	kind Kind
	uid  uint64
	tid  uint32 // 0 (InvalidTID) for Super
	name string

	// schemas is non-empty for every non-child table (spec §3
	// invariant 5), newest-last, strictly increasing Version.
	schemas []Schema

	// Super-only.
	tagSchema *Schema
	tagIndex  *tagIndex

	// Child-only.
	superUID uint64
	pSuper   *Table
	tagRow   TagRow

	// Stream-only.
	sql string

	refs int32
}

// Kind, UID, TID, Name are read-only accessors; Table fields are
// unexported so every mutation funnels through the registry's
// documented operations (spec §5 per-table quiescence contract).
func (t *Table) Kind() Kind      { return t.kind }
func (t *Table) UID() uint64     { return t.uid }
func (t *Table) TID() uint32     { return t.tid }
func (t *Table) Name() string    { return t.name }
func (t *Table) SQL() string     { return t.sql }
func (t *Table) Super() *Table   { return t.pSuper }
func (t *Table) SuperUID() uint64 { return t.superUID }

// TagValues returns a defensive copy of the Child's tag-value row.
func (t *Table) TagValues() TagRow {
	if t.kind != KindChild {
		return nil
	}
	return t.tagRow.clone()
}

// Ref increments the reference count (spec §3 "Reference count",
// §5). Holders outside the registry must Ref before any call that may
// drop the registry lock, and Unref when done.
func (t *Table) Ref() {
	atomic.AddInt32(&t.refs, 1)
}

// Unref decrements the reference count. On the last reference it
// destroys the table: for a Child, it additionally Unrefs the Super
// (spec §3). Returns true if this call destroyed the table.
func (t *Table) Unref() bool {
	n := atomic.AddInt32(&t.refs, -1)
	if n > 0 {
		return false
	}
	if n < 0 {
		panic("meta: Table.Unref called more times than Ref")
	}
	if t.kind == KindChild && t.pSuper != nil {
		t.pSuper.Unref()
	}
	return true
}

// refCount reports the current reference count; used by tests, never
// by mutation logic.
func (t *Table) refCount() int32 {
	return atomic.LoadInt32(&t.refs)
}

// TableCfg is the builder-style configuration descriptor used to
// construct a Table (spec §4.1). It is a plain struct that holds
// whatever slices the caller sets; newTable copies the schemas and tag
// values it takes from it, and Go's GC removes the need for the
// borrow/duplicate/free bookkeeping of an ownership-tracking builder
// (spec §4.2).
type TableCfg struct {
	Kind Kind
	UID  uint64
	TID  uint32

	Name string

	Schema    *Schema
	TagSchema *Schema

	SuperName string
	SuperUID  uint64

	TagValues TagRow

	SQL string
}

// validate checks the field combinations required by spec §4.1's
// table, returning *InvalidCreateMessage on any violation.
func (c TableCfg) validate() error {
	switch c.Kind {
	case KindNormal, KindChild, KindStream:
	default:
		return errInvalidCreateMessage("kind must be Normal, Child, or Stream")
	}
	if c.UID == 0 {
		return errInvalidCreateMessage("uid is required")
	}
	if len(c.Name) == 0 {
		return errInvalidCreateMessage("name is required for non-super tables")
	}
	if len(c.Name) > MaxNameLen {
		return errInvalidCreateMessage("name exceeds MaxNameLen")
	}
	if c.Kind != KindChild && c.Schema == nil {
		return errInvalidCreateMessage("schema is required for non-child tables")
	}
	if c.Kind == KindChild {
		if c.TagSchema == nil {
			return errInvalidCreateMessage("tagSchema is required for Child create")
		}
		if len(c.SuperName) == 0 {
			return errInvalidCreateMessage("superName is required for Child create")
		}
		if c.SuperUID == InvalidSuperUID {
			return errInvalidCreateMessage("superUid must not be the invalid-super sentinel")
		}
	} else if c.TagSchema != nil {
		return errInvalidCreateMessage("tagSchema is only valid on Child create")
	}
	if c.Kind == KindStream && len(c.SQL) == 0 {
		return errInvalidCreateMessage("sql is required for Stream tables")
	}
	if c.Kind != KindStream && len(c.SQL) != 0 {
		return errInvalidCreateMessage("sql is only valid on Stream tables")
	}
	return nil
}

// newTable constructs a Table from cfg (spec §4.2). When asSuper is
// true, the kind is forced to Super, the identity comes from
// SuperName/SuperUID, tid is the sentinel, and a fresh tag-index is
// created over the declared tag schema's designated column.
func newTable(cfg TableCfg, asSuper bool) (*Table, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if asSuper {
		if cfg.TagSchema == nil || len(cfg.TagSchema.Cols) == 0 {
			return nil, errInvalidCreateMessage("tagSchema must declare at least the designated tag column")
		}
		if cfg.Schema == nil {
			return nil, errInvalidCreateMessage("schema is required when implicitly creating a super")
		}
		idx, err := newTagIndex(cfg.TagSchema.Cols[0])
		if err != nil {
			return nil, err
		}
		ts := cloneSchema(*cfg.TagSchema)
		return &Table{
			kind:      KindSuper,
			uid:       cfg.SuperUID,
			tid:       InvalidTID,
			name:      cfg.SuperName,
			schemas:   []Schema{cloneSchema(*cfg.Schema)},
			tagSchema: &ts,
			tagIndex:  idx,
			refs:      1,
		}, nil
	}

	t := &Table{
		kind: cfg.Kind,
		uid:  cfg.UID,
		tid:  cfg.TID,
		name: cfg.Name,
		refs: 1,
	}
	switch cfg.Kind {
	case KindChild:
		t.superUID = cfg.SuperUID
		t.tagRow = cfg.TagValues.clone()
	case KindStream:
		t.schemas = []Schema{cloneSchema(*cfg.Schema)}
		t.sql = cfg.SQL
	case KindNormal:
		t.schemas = []Schema{cloneSchema(*cfg.Schema)}
	}
	return t, nil
}

func cloneSchema(s Schema) Schema {
	cols := make([]Col, len(s.Cols))
	copy(cols, s.Cols)
	return Schema{Version: s.Version, Cols: cols}
}

// newestSchema returns the highest-version schema in the history, or
// ok=false if the table has none (only possible for a Child, whose
// schema is looked up through its Super).
func (t *Table) newestSchema() (Schema, bool) {
	if len(t.schemas) == 0 {
		return Schema{}, false
	}
	return t.schemas[len(t.schemas)-1], true
}

// schemaByVersion binary searches the (newest-last, strictly
// increasing) history for an exact version match (spec §4.3
// getSchemaByVersion).
func (t *Table) schemaByVersion(v int64) (Schema, bool) {
	lo, hi := 0, len(t.schemas)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case t.schemas[mid].Version == v:
			return t.schemas[mid], true
		case t.schemas[mid].Version < v:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return Schema{}, false
}

// appendSchema FIFO-evicts the oldest entry when history is full and
// appends newSchema, preserving newest-last / strictly-increasing
// ordering (spec §3 "Schema history", §4.3 updateTable).
func (t *Table) appendSchema(s Schema) {
	if len(t.schemas) >= MaxSchemasPerTable {
		t.schemas = t.schemas[1:]
	}
	t.schemas = append(t.schemas, cloneSchema(s))
}

// cols/rowBytes report the current schema's shape, used by the
// registry to maintain maxCols/maxRowBytes (spec §3 invariant 4).
func (t *Table) cols() int {
	s, ok := t.newestSchema()
	if !ok {
		return 0
	}
	return len(s.Cols)
}

func (t *Table) rowBytes() int {
	s, ok := t.newestSchema()
	if !ok {
		return 0
	}
	return s.RowBytes()
}
