// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

import (
	"bytes"

	"github.com/google/btree"
)

// tagIndex is a Super table's secondary index on its designated tag
// column (spec §3 "Tag values", §4.3 addToIndex/removeFromIndex).
//
// The teacher's domain (ts package) has no analogous structure; this
// is grounded instead on the corpus's other metadata registries
// (tidb infoschema_v2.go, dolt root_val.go) which keep ordered
// secondary indexes as a google/btree BTreeG[T] with a custom less
// function, rather than a hand-rolled skip list. Per spec §9's design
// note, the key is stored in the node (as tagIndexEntry.key) even
// though the original C kept it out-of-node; the removal contract is
// unchanged: entries sharing a key form a contiguous run that must be
// scanned and identity-compared against the target Child.
type tagIndex struct {
	col Col
	bt  *btree.BTreeG[tagIndexEntry]
}

type tagIndexEntry struct {
	key   []byte
	child *Table
}

func tagIndexLess(a, b tagIndexEntry) bool {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	// Break ties by child identity (uid) so multiple children sharing
	// a tag value coexist as distinct tree entries (spec §4.3 note
	// that the count of matching nodes may exceed one). A nil child is a
	// search pivot and sorts before every real entry with the same key.
	if a.child == nil || b.child == nil {
		return a.child == nil && b.child != nil
	}
	return a.child.uid < b.child.uid
}

func newTagIndex(designated Col) (*tagIndex, error) {
	if _, err := coderFor(designated.Type); err != nil {
		return nil, err
	}
	return &tagIndex{
		col: designated,
		bt:  btree.NewG[tagIndexEntry](32, tagIndexLess),
	}, nil
}

func (idx *tagIndex) insert(key []byte, child *Table) {
	idx.bt.ReplaceOrInsert(tagIndexEntry{key: key, child: child})
}

// removeIdentity scans every entry whose key equals key, identity-
// compares against child, and deletes the first exact match. Reports
// whether a match was found (spec §4.3 removeFromIndex).
func (idx *tagIndex) removeIdentity(key []byte, child *Table) bool {
	var found tagIndexEntry
	ok := false
	lo := tagIndexEntry{key: key}
	idx.bt.AscendGreaterOrEqual(lo, func(e tagIndexEntry) bool {
		if !bytes.Equal(e.key, key) {
			return false
		}
		if e.child == child {
			found = e
			ok = true
			return false
		}
		return true
	})
	if !ok {
		return false
	}
	idx.bt.Delete(found)
	return true
}

// lookup returns the first child registered under key, or ok=false if
// none (spec §8 scenario 3: "probing the Super's tag-index for key").
func (idx *tagIndex) lookup(key []byte) (*Table, bool) {
	var found *Table
	lo := tagIndexEntry{key: key}
	idx.bt.AscendGreaterOrEqual(lo, func(e tagIndexEntry) bool {
		if !bytes.Equal(e.key, key) {
			return false
		}
		found = e.child
		return false
	})
	return found, found != nil
}

// len reports the number of (key, child) entries, which the spec's
// testable properties require to equal the number of Child tables
// pointing at this Super (spec §8).
func (idx *tagIndex) len() int {
	return idx.bt.Len()
}

// all returns every indexed child, in key order (spec §4.3 dropTable:
// "for every Child found [by iterating the tag-index]").
func (idx *tagIndex) all() []*Table {
	out := make([]*Table, 0, idx.bt.Len())
	idx.bt.Ascend(func(e tagIndexEntry) bool {
		out = append(out, e.child)
		return true
	})
	return out
}
