// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

// Type identifies the wire/storage representation of a column value.
// Mirrors the teacher ts package's field-type catalog, trimmed to the
// fixed set a row/column store needs to size buffers (spec §4.1 schema
// field).
type Type uint8

const (
	TypeUnknown Type = 0
	TypeInt64   Type = 1
	TypeDouble  Type = 2
	TypeBool    Type = 3
	TypeString  Type = 4 // variable length, embedded length prefix
	TypeBinary  Type = 5 // variable length, embedded length prefix
	TypeTimestamp Type = 6
)

func (t Type) String() string {
	switch t {
	case TypeInt64:
		return "int64"
	case TypeDouble:
		return "double"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeBinary:
		return "binary"
	case TypeTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Col is a single column definition within a Schema or TagSchema.
type Col struct {
	ColId uint16
	Name  string
	Type  Type
	Bytes uint32 // storage width; for variable-length types, the max payload size
}

// Schema is one versioned column set, belonging to a non-child table
// (spec §3 "Schema history") or serving as a Super's tag-schema.
type Schema struct {
	Version int64
	Cols    []Col
}

// RowBytes is the total fixed storage width implied by this schema,
// summing each column's declared Bytes. Used to feed the registry's
// maxRowBytes running maximum (spec §3 invariant 4).
func (s Schema) RowBytes() int {
	n := 0
	for _, c := range s.Cols {
		n += int(c.Bytes)
	}
	return n
}

// ColByID finds a column by its ColId, or ok=false if absent.
func (s Schema) ColByID(colID uint16) (Col, bool) {
	for _, c := range s.Cols {
		if c.ColId == colID {
			return c, true
		}
	}
	return Col{}, false
}

// TagValue is one column's encoded value within a Child's tag-value
// row, keyed by column id (spec §3 "Tag values").
type TagValue struct {
	ColId uint16
	Data  []byte
}

// TagRow is the full set of tag values carried by a Child table.
type TagRow []TagValue

func (r TagRow) clone() TagRow {
	out := make(TagRow, len(r))
	for i, v := range r {
		data := make([]byte, len(v.Data))
		copy(data, v.Data)
		out[i] = TagValue{ColId: v.ColId, Data: data}
	}
	return out
}

// byID returns the value for colID, or ok=false if absent.
func (r TagRow) byID(colID uint16) (TagValue, bool) {
	for _, v := range r {
		if v.ColId == colID {
			return v, true
		}
	}
	return TagValue{}, false
}

// set replaces (or appends) the value for colID, returning the
// resulting row. A replacement writes into r's backing array in place;
// callers pass the table's own row, which TagValues only hands out as
// a copy.
func (r TagRow) set(colID uint16, data []byte) TagRow {
	for i := range r {
		if r[i].ColId == colID {
			r[i].Data = data
			return r
		}
	}
	return append(r, TagValue{ColId: colID, Data: data})
}
