// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package meta

import (
	"encoding/binary"
	"fmt"
	"math"
)

// fieldCoder is modeled on the teacher ts package's FieldCoder: one
// implementation per Type, encoding a Go value into a fixed or
// length-prefixed byte slice and back. The teacher only needed Encode;
// the registry also needs Decode to serve GetTagValue (spec §4.3).
type fieldCoder interface {
	// bitSize returns the fixed storage width in bits, or 0 for a
	// variable-length type.
	bitSize() int64
	encode(col Col, value interface{}) ([]byte, error)
	decode(col Col, data []byte) (interface{}, error)
}

var coders = map[Type]fieldCoder{
	TypeInt64:     coderInt64{},
	TypeDouble:    coderDouble{},
	TypeBool:      coderBool{},
	TypeString:    coderString{},
	TypeBinary:    coderBinary{},
	TypeTimestamp: coderInt64{},
}

func coderFor(t Type) (fieldCoder, error) {
	c, ok := coders[t]
	if !ok {
		return nil, errInvalidArgumentf("unknown column type %d", t)
	}
	return c, nil
}

func errInvalidArgumentf(format string, args ...interface{}) *Error {
	return newErr(KindInvalidArgument, "InvalidArgument", fmt.Sprintf(format, args...))
}

type coderInt64 struct{}

func (coderInt64) bitSize() int64 { return 64 }
func (coderInt64) encode(col Col, value interface{}) ([]byte, error) {
	buf := make([]byte, 8)
	switch v := value.(type) {
	case int64:
		binary.LittleEndian.PutUint64(buf, uint64(v))
	case int:
		binary.LittleEndian.PutUint64(buf, uint64(v))
	default:
		return nil, errInvalidArgumentf("column %q: unsupported value type %T for int64", col.Name, value)
	}
	return buf, nil
}
func (coderInt64) decode(col Col, data []byte) (interface{}, error) {
	if len(data) < 8 {
		return nil, errFileCorrupted(fmt.Sprintf("column %q: short int64 payload", col.Name), nil)
	}
	return int64(binary.LittleEndian.Uint64(data)), nil
}

type coderDouble struct{}

func (coderDouble) bitSize() int64 { return 64 }
func (coderDouble) encode(col Col, value interface{}) ([]byte, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	default:
		return nil, errInvalidArgumentf("column %q: unsupported value type %T for double", col.Name, value)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
	return buf, nil
}
func (coderDouble) decode(col Col, data []byte) (interface{}, error) {
	if len(data) < 8 {
		return nil, errFileCorrupted(fmt.Sprintf("column %q: short double payload", col.Name), nil)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
}

type coderBool struct{}

func (coderBool) bitSize() int64 { return 8 }
func (coderBool) encode(col Col, value interface{}) ([]byte, error) {
	v, ok := value.(bool)
	if !ok {
		return nil, errInvalidArgumentf("column %q: unsupported value type %T for bool", col.Name, value)
	}
	if v {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}
func (coderBool) decode(col Col, data []byte) (interface{}, error) {
	if len(data) < 1 {
		return nil, errFileCorrupted(fmt.Sprintf("column %q: short bool payload", col.Name), nil)
	}
	return data[0] != 0, nil
}

// variable-length layout shared by string/binary: a uint32 length
// prefix strictly less than col.Bytes, followed by that many bytes
// (spec §4.3 GetTagValue precondition on embedded length).

type coderString struct{}

func (coderString) bitSize() int64 { return 0 }
func (coderString) encode(col Col, value interface{}) ([]byte, error) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return nil, errInvalidArgumentf("column %q: unsupported value type %T for string", col.Name, value)
	}
	return encodeVarLen(col, []byte(s))
}
func (coderString) decode(col Col, data []byte) (interface{}, error) {
	b, err := decodeVarLen(col, data)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type coderBinary struct{}

func (coderBinary) bitSize() int64 { return 0 }
func (coderBinary) encode(col Col, value interface{}) ([]byte, error) {
	v, ok := value.([]byte)
	if !ok {
		return nil, errInvalidArgumentf("column %q: unsupported value type %T for binary", col.Name, value)
	}
	return encodeVarLen(col, v)
}
func (coderBinary) decode(col Col, data []byte) (interface{}, error) {
	return decodeVarLen(col, data)
}

func encodeVarLen(col Col, payload []byte) ([]byte, error) {
	if col.Bytes > 0 && uint32(len(payload)) >= col.Bytes {
		return nil, errInvalidArgumentf("column %q: value length %d must be strictly less than schema width %d", col.Name, len(payload), col.Bytes)
	}
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	return buf, nil
}

func decodeVarLen(col Col, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, errFileCorrupted(fmt.Sprintf("column %q: short variable-length header", col.Name), nil)
	}
	n := binary.LittleEndian.Uint32(data)
	if col.Bytes > 0 && n >= col.Bytes {
		return nil, errFileCorrupted(fmt.Sprintf("column %q: embedded length %d not strictly less than schema width %d", col.Name, n, col.Bytes), nil)
	}
	if uint32(len(data)-4) < n {
		return nil, errFileCorrupted(fmt.Sprintf("column %q: payload shorter than embedded length", col.Name), nil)
	}
	return data[4 : 4+n], nil
}
