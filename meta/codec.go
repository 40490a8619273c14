// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

import (
	"encoding/binary"
)

// EncodeTable serializes t per spec §4.4:
//
//	u8 kind, name, u64 uid, i32 tid
//	  if Child:   u64 superUid, kvRow tagValues
//	  else:       u8 numSchemas, numSchemas x schema
//	              if Super:  tagSchema
//	              if Stream: string sql
//
// All integers little-endian; strings are u16-length-prefixed, as the
// teacher's ts package encodes names and, unlike the §6 wire messages,
// this is an on-disk format private to this repository rather than a
// network-order message (spec §4.4 vs §6).
func EncodeTable(t *Table) ([]byte, error) {
	w := &wireBuilder{}
	w.u8(uint8(t.kind))
	w.str16(t.name)
	w.u64(t.uid)
	w.i32(int32(t.tid))

	switch t.kind {
	case KindChild:
		w.u64(t.superUID)
		w.tagBlock(t.tagRow)
	default:
		w.u8(uint8(len(t.schemas)))
		for _, s := range t.schemas {
			w.schema(s)
		}
		if t.kind == KindSuper {
			w.schema(*t.tagSchema)
		}
		if t.kind == KindStream {
			w.str16(t.sql)
		}
	}
	return w.buf, w.err
}

// DecodeTable mirrors EncodeTable. For a Super table it additionally
// eagerly constructs an empty tag-index (spec §4.4): the Child back-
// link (pSuper) is not set here — that is established by the reorg
// pass after all records are replayed (spec §4.5).
func DecodeTable(data []byte) (*Table, error) {
	r := &wireReaderLE{buf: data}
	t := &Table{refs: 1}
	t.kind = Kind(r.u8())
	t.name = r.str16()
	t.uid = r.u64()
	t.tid = uint32(r.i32())

	switch t.kind {
	case KindChild:
		t.superUID = r.u64()
		t.tagRow = r.tagBlock()
	default:
		numSchemas := r.u8()
		t.schemas = make([]Schema, numSchemas)
		for i := range t.schemas {
			t.schemas[i] = r.schema()
		}
		if t.kind == KindSuper {
			ts := r.schema()
			t.tagSchema = &ts
			if r.err == nil {
				idx, err := newTagIndex(ts.Cols[0])
				if err != nil {
					return nil, err
				}
				t.tagIndex = idx
			}
		}
		if t.kind == KindStream {
			t.sql = r.str16()
		}
	}

	if r.err != nil {
		return nil, errFileCorrupted("decode Table", r.err)
	}
	return t, nil
}

// wireBuilder / wireReaderLE are the little-endian counterparts of
// wire.go's big-endian wireReader, used only for the on-disk action
// log record format (spec §4.4).

type wireBuilder struct {
	buf []byte
	err error
}

func (w *wireBuilder) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *wireBuilder) i32(v int32)  { w.u32(uint32(v)) }
func (w *wireBuilder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *wireBuilder) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *wireBuilder) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *wireBuilder) i64(v int64) { w.u64(uint64(v)) }
func (w *wireBuilder) str16(s string) {
	w.u16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}
func (w *wireBuilder) bytes32(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}
func (w *wireBuilder) col(c Col) {
	w.u16(c.ColId)
	w.u8(uint8(c.Type))
	w.u32(c.Bytes)
	w.str16(c.Name)
}
func (w *wireBuilder) schema(s Schema) {
	w.i64(s.Version)
	w.u16(uint16(len(s.Cols)))
	for _, c := range s.Cols {
		w.col(c)
	}
}
func (w *wireBuilder) tagBlock(row TagRow) {
	w.u16(uint16(len(row)))
	for _, v := range row {
		w.u16(v.ColId)
		w.bytes32(v.Data)
	}
}

type wireReaderLE struct {
	buf []byte
	off int
	err error
}

func (r *wireReaderLE) need(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = errShortRead
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

var errShortRead = newErr(KindCorruption, "FileCorrupted", "short read decoding record")

func (r *wireReaderLE) u8() uint8 {
	b := r.need(1)
	if b == nil {
		return 0
	}
	return b[0]
}
func (r *wireReaderLE) i32() int32 { return int32(r.u32()) }
func (r *wireReaderLE) u32() uint32 {
	b := r.need(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}
func (r *wireReaderLE) u64() uint64 {
	b := r.need(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}
func (r *wireReaderLE) u16() uint16 {
	b := r.need(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}
func (r *wireReaderLE) i64() int64 { return int64(r.u64()) }

func (r *wireReaderLE) str16() string {
	n := r.u16()
	b := r.need(int(n))
	return string(b)
}
func (r *wireReaderLE) bytes32() []byte {
	n := r.u32()
	b := r.need(int(n))
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
func (r *wireReaderLE) col() Col {
	var c Col
	c.ColId = r.u16()
	c.Type = Type(r.u8())
	c.Bytes = r.u32()
	c.Name = r.str16()
	return c
}
func (r *wireReaderLE) schema() Schema {
	version := r.i64()
	numCols := r.u16()
	cols := make([]Col, numCols)
	for i := range cols {
		cols[i] = r.col()
	}
	return Schema{Version: version, Cols: cols}
}
func (r *wireReaderLE) tagBlock() TagRow {
	n := r.u16()
	row := make(TagRow, n)
	for i := range row {
		row[i].ColId = r.u16()
		row[i].Data = r.bytes32()
	}
	return row
}
