// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

import (
	"encoding/binary"
	"fmt"
)

// CreateTableMsg and UpdateTagValMsg are the inbound message formats
// delivered by the (out of scope) RPC transport, transported in
// network byte order per spec §6: "Fields: table kind, uid, tid/sid,
// version, numOfColumns, numOfTags, tagDataLen, then a contiguous
// block of column schemas followed by a contiguous tag-value block
// (and SQL string for Stream)."

// CreateTableMsg is the decoded, host-byte-order form of a create
// request.
type CreateTableMsg struct {
	Kind      Kind
	UID       uint64
	TID       uint32
	Name      string
	Schema    Schema
	TagSchema *Schema // set only when Kind == KindChild
	SuperName string
	SuperUID  uint64
	TagValues TagRow
	SQL string
}

// UpdateTagValMsg is the decoded, host-byte-order form of a tag-value
// update request (spec §4.3 updateTagValue).
type UpdateTagValMsg struct {
	UID      uint64
	TID      uint32
	TVersion int64
	ColId    uint16
	Type     Type
	Bytes    uint32
	Data     []byte
}

// DecodeCreateTableMsg byte-swaps a wire CreateTableMsg into host
// order and validates framing (not field combinations — that is
// TableCfg.validate's job once the message becomes a TableCfg).
func DecodeCreateTableMsg(buf []byte) (CreateTableMsg, error) {
	r := &wireReader{buf: buf}
	var msg CreateTableMsg
	msg.Kind = Kind(r.u8())
	msg.UID = r.u64()
	msg.TID = r.u32()
	version := r.i64()
	numCols := r.u16()
	numTags := r.u16()
	tagDataLen := r.u32()
	msg.Name = r.str16()

	cols := make([]Col, numCols)
	for i := range cols {
		cols[i] = r.col()
	}
	msg.Schema = Schema{Version: version, Cols: cols}

	if msg.Kind == KindChild {
		msg.SuperUID = r.u64()
		msg.SuperName = r.str16()
		tagCols := make([]Col, numTags)
		for i := range tagCols {
			tagCols[i] = r.col()
		}
		ts := Schema{Version: version, Cols: tagCols}
		msg.TagSchema = &ts

		tagBlock := r.bytesN(int(tagDataLen))
		tr, err := decodeTagBlock(tagBlock)
		if err != nil {
			return CreateTableMsg{}, err
		}
		msg.TagValues = tr
	}

	if msg.Kind == KindStream {
		msg.SQL = r.str16()
	}

	if r.err != nil {
		return CreateTableMsg{}, errFileCorrupted("decode CreateTableMsg", r.err)
	}
	return msg, nil
}

// DecodeUpdateTagValMsg byte-swaps a wire UpdateTagValMsg into host
// order.
func DecodeUpdateTagValMsg(buf []byte) (UpdateTagValMsg, error) {
	r := &wireReader{buf: buf}
	var msg UpdateTagValMsg
	msg.UID = r.u64()
	msg.TID = r.u32()
	msg.TVersion = r.i64()
	msg.ColId = r.u16()
	msg.Type = Type(r.u8())
	msg.Bytes = r.u32()
	dataLen := r.u32()
	msg.Data = r.bytesN(int(dataLen))
	if r.err != nil {
		return UpdateTagValMsg{}, errFileCorrupted("decode UpdateTagValMsg", r.err)
	}
	return msg, nil
}

// ToCfg converts a decoded CreateTableMsg into the TableCfg the
// registry's CreateTable expects.
func (msg CreateTableMsg) ToCfg() TableCfg {
	return TableCfg{
		Kind:      msg.Kind,
		UID:       msg.UID,
		TID:       msg.TID,
		Name:      msg.Name,
		Schema:    &msg.Schema,
		TagSchema: msg.TagSchema,
		SuperName: msg.SuperName,
		SuperUID:  msg.SuperUID,
		TagValues: msg.TagValues,
		SQL:       msg.SQL,
	}
}

func decodeTagBlock(buf []byte) (TagRow, error) {
	r := &wireReader{buf: buf}
	var row TagRow
	for r.remaining() > 0 {
		colID := r.u16()
		n := r.u32()
		data := r.bytesN(int(n))
		if r.err != nil {
			return nil, errFileCorrupted("decode tag value block", r.err)
		}
		row = append(row, TagValue{ColId: colID, Data: data})
	}
	return row, nil
}

// wireReader pulls fixed-width big-endian fields off buf, recording
// the first short-read error encountered (teacher-style "sticky err"
// accumulation, matching ts.Writer/ts.Encoder's w.err field).
type wireReader struct {
	buf []byte
	off int
	err error
}

func (r *wireReader) remaining() int { return len(r.buf) - r.off }

func (r *wireReader) need(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("short read: need %d bytes at offset %d, have %d", n, r.off, len(r.buf))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *wireReader) u8() uint8 {
	b := r.need(1)
	if b == nil {
		return 0
	}
	return b[0]
}
func (r *wireReader) u16() uint16 {
	b := r.need(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}
func (r *wireReader) u32() uint32 {
	b := r.need(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}
func (r *wireReader) u64() uint64 {
	b := r.need(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
func (r *wireReader) i64() int64 { return int64(r.u64()) }

func (r *wireReader) bytesN(n int) []byte {
	b := r.need(n)
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (r *wireReader) str16() string {
	n := r.u16()
	b := r.need(int(n))
	return string(b)
}

func (r *wireReader) col() Col {
	var c Col
	c.ColId = r.u16()
	c.Type = Type(r.u8())
	c.Bytes = r.u32()
	c.Name = r.str16()
	return c
}
