// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package actionlog implements the write-ahead action-log adapter
// between a meta.Meta registry and an external key-value log store
// (spec §4.4): framing records, checksumming them, and replaying a
// segment back into UpdateMeta/DropMeta calls at startup.
package actionlog

import (
	"context"
	"encoding/binary"
	"hash/crc32"
	"sync"

	"github.com/solidcoredata/vmeta/meta"
)

// Act identifies the kind of change a Record describes (spec §4.4).
type Act uint8

const (
	ActUpdateMeta Act = 1
	ActDropMeta   Act = 2
)

// Record is one framed action-log entry: an action tag, the affected
// table's uid, and an opaque payload (an encoded meta.Table for
// ActUpdateMeta, empty for ActDropMeta). A trailing CRC32 (IEEE
// polynomial, as the teacher's ts.Writer computes over each chunk) is
// appended on Marshal and verified on Unmarshal.
type Record struct {
	Act     Act
	UID     uint64
	Payload []byte
}

// Marshal frames r as Act(1) || UID(8) || len(Payload)(4) || Payload
// || CRC32(4), all little-endian, matching meta.EncodeTable's on-disk
// byte order (spec §4.4).
func (r Record) Marshal() []byte {
	buf := make([]byte, 0, 1+8+4+len(r.Payload)+4)
	buf = append(buf, byte(r.Act))
	var b8 [8]byte
	binary.LittleEndian.PutUint64(b8[:], r.UID)
	buf = append(buf, b8[:]...)
	var b4 [4]byte
	binary.LittleEndian.PutUint32(b4[:], uint32(len(r.Payload)))
	buf = append(buf, b4[:]...)
	buf = append(buf, r.Payload...)

	sum := crc32.ChecksumIEEE(buf)
	binary.LittleEndian.PutUint32(b4[:], sum)
	return append(buf, b4[:]...)
}

// Unmarshal reverses Marshal, rejecting a record whose trailing CRC32
// does not match (spec §7 Corruption).
func Unmarshal(buf []byte) (Record, error) {
	if len(buf) < 1+8+4+4 {
		return Record{}, errCorrupt("short record")
	}
	body := buf[:len(buf)-4]
	wantSum := binary.LittleEndian.Uint32(buf[len(buf)-4:])
	if crc32.ChecksumIEEE(body) != wantSum {
		return Record{}, errCorrupt("checksum mismatch")
	}

	r := Record{Act: Act(body[0])}
	r.UID = binary.LittleEndian.Uint64(body[1:9])
	n := binary.LittleEndian.Uint32(body[9:13])
	if uint32(len(body)-13) != n {
		return Record{}, errCorrupt("payload length mismatch")
	}
	r.Payload = append([]byte(nil), body[13:]...)
	return r, nil
}

func errCorrupt(msg string) error {
	return meta.NewCorruptionError("FileCorrupted", msg)
}

// Segment holds the not-yet-drained records for the current in-memory
// generation, drained by the (out of scope) commit path. The registry
// calls its emitter after releasing its own lock, so Segment guards
// its record list with its own mutex.
type Segment struct {
	mu      sync.Mutex
	records []Record
}

func (s *Segment) Append(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

func (s *Segment) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records
}

func (s *Segment) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = s.records[:0]
}

// Emitter adapts a Segment (plus whatever downstream sink the host
// wires in) to meta.ActionEmitter, framing every registry change into
// a Record (spec §4.4).
type Emitter struct {
	Segment *Segment
	// Sink receives each marshaled record immediately after it is
	// appended to Segment, e.g. a meta/store.Driver's LogStore.Append.
	// Nil means "buffer only", useful in registry-only tests.
	Sink func(payload []byte) error
}

func (e *Emitter) EmitUpdateMeta(ctx context.Context, t *meta.Table) error {
	payload, err := meta.EncodeTable(t)
	if err != nil {
		return err
	}
	r := Record{Act: ActUpdateMeta, UID: t.UID(), Payload: payload}
	e.Segment.Append(r)
	if e.Sink != nil {
		return e.Sink(r.Marshal())
	}
	return nil
}

func (e *Emitter) EmitDropMeta(ctx context.Context, uid uint64) error {
	r := Record{Act: ActDropMeta, UID: uid}
	e.Segment.Append(r)
	if e.Sink != nil {
		return e.Sink(r.Marshal())
	}
	return nil
}

// Replay drives the open-time restore/reorg sequence (spec §4.5):
// every record in order is either restored (ActUpdateMeta) or dropped
// (ActDropMeta) against reg, then reorg runs once to rebuild every
// Super's tag-index from the Child tables now present.
func Replay(reg *meta.Meta, records []Record, reorg func(*meta.Meta) error) error {
	for _, r := range records {
		switch r.Act {
		case ActUpdateMeta:
			t, err := meta.DecodeTable(r.Payload)
			if err != nil {
				return err
			}
			if err := reg.Restore(t); err != nil {
				return err
			}
		case ActDropMeta:
			if err := reg.RestoreDrop(r.UID); err != nil {
				return err
			}
		}
	}
	if reorg != nil {
		return reorg(reg)
	}
	return nil
}
