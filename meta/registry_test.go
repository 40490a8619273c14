// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEncodedTagValue(t *testing.T, typ Type, v interface{}) []byte {
	t.Helper()
	coder, err := coderFor(typ)
	require.NoError(t, err)
	data, err := coder.encode(Col{Type: typ}, v)
	require.NoError(t, err)
	return data
}

func childCfg(t *testing.T, uid uint64, superUID uint64, location string) TableCfg {
	return TableCfg{
		Kind:      KindChild,
		UID:       uid,
		TID:       uint32(uid),
		Name:      "sensor-reading",
		SuperName: "sensors",
		SuperUID:  superUID,
		Schema:    strSchema(1),
		TagSchema: tagSchema(1),
		TagValues: TagRow{
			{ColId: 1, Data: newEncodedTagValue(t, TypeString, location)},
		},
	}
}

func TestCreateTableImplicitSuper(t *testing.T) {
	m := New(Config{MaxTables: 64})
	cfg := TableCfg{
		Kind:      KindChild,
		UID:       2,
		TID:       2,
		Name:      "sensor-reading",
		SuperName: "sensors",
		SuperUID:  1,
		Schema:    strSchema(1),
		TagSchema: tagSchema(1),
		TagValues: TagRow{{ColId: 1, Data: newEncodedTagValue(t, TypeString, "rack-1")}},
	}
	child, err := m.CreateTable(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, KindChild, child.Kind())

	super, ok := m.GetByUID(1)
	require.True(t, ok)
	assert.Equal(t, KindSuper, super.Kind())
	assert.Equal(t, "sensors", super.Name())

	ts, ok := m.GetTagSchema(child)
	require.True(t, ok)
	assert.Equal(t, int64(1), ts.Version)

	found, ok := super.tagIndex.lookup(newEncodedTagValue(t, TypeString, "rack-1"))
	require.True(t, ok)
	assert.Equal(t, child.UID(), found.UID())
}

func TestCreateTableDuplicateUIDRejected(t *testing.T) {
	m := New(Config{MaxTables: 64})
	cfg := TableCfg{Kind: KindNormal, UID: 10, TID: 10, Name: "t1", Schema: strSchema(1)}
	_, err := m.CreateTable(context.Background(), cfg)
	require.NoError(t, err)

	cfg2 := TableCfg{Kind: KindNormal, UID: 10, TID: 11, Name: "t2", Schema: strSchema(1)}
	_, err = m.CreateTable(context.Background(), cfg2)
	require.Error(t, err)
	merr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindAlreadyExists, merr.Kind)

	// Registry state must be unaffected by the rejected create.
	_, ok = m.GetByTID(11)
	assert.False(t, ok)
}

func TestUpdateTagValueMovesIndexKey(t *testing.T) {
	m := New(Config{MaxTables: 64})
	_, err := m.CreateTable(context.Background(), childCfg(t, 2, 1, "rack-1"))
	require.NoError(t, err)

	super, ok := m.GetByUID(1)
	require.True(t, ok)

	_, found := super.tagIndex.lookup(newEncodedTagValue(t, TypeString, "rack-1"))
	require.True(t, found)

	newData := newEncodedTagValue(t, TypeString, "rack-2")
	err = m.UpdateTagValue(context.Background(), UpdateTagValMsg{
		UID: 2, TID: 2, TVersion: 1, ColId: 1, Type: TypeString, Bytes: 64, Data: newData,
	})
	require.NoError(t, err)

	_, stillThere := super.tagIndex.lookup(newEncodedTagValue(t, TypeString, "rack-1"))
	assert.False(t, stillThere)
	movedChild, moved := super.tagIndex.lookup(newData)
	require.True(t, moved)
	assert.EqualValues(t, 2, movedChild.UID())
}

func TestUpdateTagValueStaleRejected(t *testing.T) {
	m := New(Config{MaxTables: 64})
	_, err := m.CreateTable(context.Background(), childCfg(t, 2, 1, "rack-1"))
	require.NoError(t, err)

	err = m.UpdateTagValue(context.Background(), UpdateTagValMsg{
		UID: 2, TID: 2, TVersion: 0, ColId: 1, Type: TypeString, Bytes: 64,
		Data: newEncodedTagValue(t, TypeString, "rack-2"),
	})
	require.Error(t, err)
	merr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindStaleVersion, merr.Kind)
}

func TestUpdateTagValueNewerVersionConsultsConfigFunc(t *testing.T) {
	m := New(Config{MaxTables: 64})
	called := false
	m.configFunc = func(ctx context.Context, shardID uint32, tid uint32) ([]byte, error) {
		called = true
		// A real transport would return a wire-encoded CreateTableMsg
		// (spec §6); this stub returns unparseable bytes, so the
		// bootstrap attempt fails with a decode error rather than
		// silently succeeding.
		return []byte{0xff}, nil
	}
	_, err := m.CreateTable(context.Background(), childCfg(t, 2, 1, "rack-1"))
	require.NoError(t, err)

	err = m.UpdateTagValue(context.Background(), UpdateTagValMsg{
		UID: 2, TID: 2, TVersion: 2, ColId: 2, Type: TypeInt64, Bytes: 8,
		Data: newEncodedTagValue(t, TypeInt64, int64(3)),
	})
	assert.Error(t, err)
	assert.True(t, called, "configFunc should be consulted when the incoming tag version is newer")
}

func TestDropTableRemovesChildrenFirst(t *testing.T) {
	m := New(Config{MaxTables: 64})
	_, err := m.CreateTable(context.Background(), childCfg(t, 2, 1, "rack-1"))
	require.NoError(t, err)
	_, err = m.CreateTable(context.Background(), childCfg(t, 3, 1, "rack-2"))
	require.NoError(t, err)

	super, ok := m.GetByUID(1)
	require.True(t, ok)
	assert.Equal(t, 2, super.tagIndex.len())

	require.NoError(t, m.DropTable(context.Background(), 1))

	_, ok = m.GetByUID(1)
	assert.False(t, ok)
	_, ok = m.GetByUID(2)
	assert.False(t, ok)
	_, ok = m.GetByUID(3)
	assert.False(t, ok)
}

func TestRangeAndStats(t *testing.T) {
	m := New(Config{MaxTables: 64})
	_, err := m.CreateTable(context.Background(), TableCfg{Kind: KindNormal, UID: 5, TID: 5, Name: "t", Schema: strSchema(1)})
	require.NoError(t, err)
	_, err = m.CreateTable(context.Background(), childCfg(t, 2, 1, "rack-1"))
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, 2, stats.NumTables) // normal table + child (super tracked separately)
	assert.Equal(t, 1, stats.NumSupers)

	seen := map[uint64]bool{}
	m.Range(func(tbl *Table) bool {
		seen[tbl.UID()] = true
		return true
	})
	assert.True(t, seen[5])
	assert.True(t, seen[2])
	assert.True(t, seen[1])
}
