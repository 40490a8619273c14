// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strSchema(version int64) *Schema {
	return &Schema{
		Version: version,
		Cols: []Col{
			{ColId: 1, Name: "v", Type: TypeInt64, Bytes: 8},
		},
	}
}

func tagSchema(version int64) *Schema {
	return &Schema{
		Version: version,
		Cols: []Col{
			{ColId: 1, Name: "location", Type: TypeString, Bytes: 64},
		},
	}
}

func TestTableCfgValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  TableCfg
		ok   bool
	}{
		{"normal ok", TableCfg{Kind: KindNormal, UID: 1, Name: "t", Schema: strSchema(1)}, true},
		{"missing uid", TableCfg{Kind: KindNormal, UID: 0, Name: "t", Schema: strSchema(1)}, false},
		{"missing name", TableCfg{Kind: KindNormal, UID: 1, Schema: strSchema(1)}, false},
		{"missing schema", TableCfg{Kind: KindNormal, UID: 1, Name: "t"}, false},
		{"child ok", TableCfg{Kind: KindChild, UID: 2, Name: "c", SuperName: "s", SuperUID: 9, TagSchema: tagSchema(1)}, true},
		{"child missing name", TableCfg{Kind: KindChild, UID: 2, SuperName: "s", SuperUID: 9, TagSchema: tagSchema(1)}, false},
		{"child missing tagschema", TableCfg{Kind: KindChild, UID: 2, Name: "c", SuperName: "s", SuperUID: 9}, false},
		{"child sentinel super", TableCfg{Kind: KindChild, UID: 2, Name: "c", SuperName: "s", SuperUID: InvalidSuperUID, TagSchema: tagSchema(1)}, false},
		{"normal with tagschema rejected", TableCfg{Kind: KindNormal, UID: 1, Name: "t", Schema: strSchema(1), TagSchema: tagSchema(1)}, false},
		{"stream needs sql", TableCfg{Kind: KindStream, UID: 3, Name: "cq", Schema: strSchema(1)}, false},
		{"stream ok", TableCfg{Kind: KindStream, UID: 3, Name: "cq", Schema: strSchema(1), SQL: "select 1"}, true},
		{"normal with sql rejected", TableCfg{Kind: KindNormal, UID: 1, Name: "t", Schema: strSchema(1), SQL: "select 1"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.validate()
			if c.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSchemaHistoryFIFO(t *testing.T) {
	tbl, err := newTable(TableCfg{Kind: KindNormal, UID: 1, Name: "t", Schema: strSchema(1)}, false)
	require.NoError(t, err)

	for v := int64(2); v <= int64(MaxSchemasPerTable+5); v++ {
		tbl.appendSchema(Schema{Version: v, Cols: strSchema(v).Cols})
	}
	assert.Len(t, tbl.schemas, MaxSchemasPerTable)
	oldest := tbl.schemas[0]
	assert.Equal(t, int64(6), oldest.Version) // versions 1..21 appended; the newest 16 (6..21) are kept

	newest, ok := tbl.newestSchema()
	require.True(t, ok)
	assert.Equal(t, int64(MaxSchemasPerTable+5), newest.Version)

	_, ok = tbl.schemaByVersion(1)
	assert.False(t, ok, "oldest version should have been evicted")

	got, ok := tbl.schemaByVersion(newest.Version)
	require.True(t, ok)
	assert.Equal(t, newest.Version, got.Version)
}

func TestRefCounting(t *testing.T) {
	super, err := newTable(TableCfg{Kind: KindChild, UID: 100, Name: "c", SuperName: "s", SuperUID: 1, Schema: strSchema(1), TagSchema: tagSchema(1)}, true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, super.refCount())

	super.Ref()
	assert.EqualValues(t, 2, super.refCount())
	assert.False(t, super.Unref())
	assert.EqualValues(t, 1, super.refCount())
	assert.True(t, super.Unref())
}

func TestUnrefPastZeroPanics(t *testing.T) {
	tbl, err := newTable(TableCfg{Kind: KindNormal, UID: 1, Name: "t", Schema: strSchema(1)}, false)
	require.NoError(t, err)
	require.True(t, tbl.Unref())
	assert.Panics(t, func() { tbl.Unref() })
}
