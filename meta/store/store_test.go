// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solidcoredata/vmeta/meta"
)

func tagSchema(version int64) *meta.Schema {
	return &meta.Schema{
		Version: version,
		Cols: []meta.Col{
			{ColId: 1, Name: "location", Type: meta.TypeString, Bytes: 64},
		},
	}
}

func rowSchema(version int64) *meta.Schema {
	return &meta.Schema{
		Version: version,
		Cols: []meta.Col{
			{ColId: 1, Name: "v", Type: meta.TypeInt64, Bytes: 8},
		},
	}
}

func encodedLocation(t *testing.T, s string) []byte {
	t.Helper()
	buf := make([]byte, 4+len(s))
	binary.LittleEndian.PutUint32(buf, uint32(len(s)))
	copy(buf[4:], s)
	return buf
}

func TestRestartRoundTrip(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()

	reg1 := meta.New(meta.Config{MaxTables: 64})
	d1 := New(Config{LogStore: backing, Path: "shard-1.log", Registry: reg1})
	require.NoError(t, d1.Open(ctx))
	reg1.SetEmitter(d1.Emitter())

	_, err := reg1.CreateTable(ctx, meta.TableCfg{
		Kind:      meta.KindChild,
		UID:       2,
		TID:       2,
		Name:      "sensor-reading",
		SuperName: "sensors",
		SuperUID:  1,
		Schema:    rowSchema(1),
		TagSchema: tagSchema(1),
		TagValues: meta.TagRow{{ColId: 1, Data: encodedLocation(t, "rack-1")}},
	})
	require.NoError(t, err)
	require.NoError(t, d1.Close(ctx))

	// Simulate a restart: fresh registry, same backing log store.
	reg2 := meta.New(meta.Config{MaxTables: 64})
	d2 := New(Config{LogStore: backing, Path: "shard-1.log", Registry: reg2})
	require.NoError(t, d2.Open(ctx))
	reg2.SetEmitter(d2.Emitter())

	child, ok := reg2.GetByUID(2)
	require.True(t, ok)
	assert.Equal(t, meta.KindChild, child.Kind())

	super, ok := reg2.GetByUID(1)
	require.True(t, ok)
	assert.Equal(t, meta.KindSuper, super.Kind())
	assert.Equal(t, child.Super(), super, "reorg must have linked the Child back to its Super")
}

func TestReorgFansOutAcrossSupers(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()

	reg1 := meta.New(meta.Config{MaxTables: 128})
	d1 := New(Config{LogStore: backing, Path: "multi.log", Registry: reg1})
	require.NoError(t, d1.Open(ctx))
	reg1.SetEmitter(d1.Emitter())

	for i, superUID := range []uint64{1, 1, 2, 2, 3} {
		uid := uint64(100 + i)
		_, err := reg1.CreateTable(ctx, meta.TableCfg{
			Kind:      meta.KindChild,
			UID:       uid,
			TID:       uint32(uid),
			Name:      "sensor-reading",
			SuperName: "super",
			SuperUID:  superUID,
			Schema:    rowSchema(1),
			TagSchema: tagSchema(1),
			TagValues: meta.TagRow{{ColId: 1, Data: encodedLocation(t, "x")}},
		})
		require.NoError(t, err)
	}
	require.NoError(t, d1.Close(ctx))

	reg2 := meta.New(meta.Config{MaxTables: 128})
	d2 := New(Config{LogStore: backing, Path: "multi.log", Registry: reg2})
	require.NoError(t, d2.Open(ctx))

	stats := reg2.Stats()
	assert.Equal(t, 3, stats.NumSupers)
	for i := range []int{0, 1, 2, 3, 4} {
		uid := uint64(100 + i)
		tbl, ok := reg2.GetByUID(uid)
		require.True(t, ok)
		assert.NotNil(t, tbl.Super())
	}
}
