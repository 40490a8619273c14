// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package actionlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMarshalRoundTrip(t *testing.T) {
	r := Record{Act: ActUpdateMeta, UID: 42, Payload: []byte("hello")}
	buf := r.Marshal()

	got, err := Unmarshal(buf)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestUnmarshalRejectsCorruption(t *testing.T) {
	r := Record{Act: ActDropMeta, UID: 7}
	buf := r.Marshal()
	buf[0] ^= 0xff // flip every bit of the act byte, leaving the checksum stale

	_, err := Unmarshal(buf)
	assert.Error(t, err)
}

func TestSegmentAppendReset(t *testing.T) {
	var seg Segment
	seg.Append(Record{Act: ActUpdateMeta, UID: 1})
	seg.Append(Record{Act: ActDropMeta, UID: 1})
	assert.Len(t, seg.Records(), 2)
	seg.Reset()
	assert.Len(t, seg.Records(), 0)
}
