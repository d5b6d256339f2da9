// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package query

import (
	"encoding/binary"
	"math"

	"storj.io/docstore/pkg/document"
)

// Type tags of encoded tuple components. Their order matches Compare.
const (
	tagNull   = 0x01
	tagFalse  = 0x02
	tagTrue   = 0x03
	tagNumber = 0x04
	tagString = 0x05
	tagOther  = 0x06
)

// AppendValue appends the order-preserving encoding of v to buf.
// Encoded components are self-delimiting, so tuples can be concatenated.
func AppendValue(buf []byte, v any) []byte {
	switch rank(v) {
	case rankNull:
		return append(buf, tagNull)
	case rankFalse:
		return append(buf, tagFalse)
	case rankTrue:
		return append(buf, tagTrue)
	case rankNumber:
		bits := math.Float64bits(toFloat(v))
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		buf = append(buf, tagNumber)
		return binary.BigEndian.AppendUint64(buf, bits)
	case rankString:
		buf = append(buf, tagString)
		return appendEscaped(buf, v.(string))
	default:
		buf = append(buf, tagOther)
		return appendEscaped(buf, document.Canonical(v))
	}
}

func appendEscaped(buf []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if s[i] == 0x00 {
			buf = append(buf, 0x00, 0xff)
			continue
		}
		buf = append(buf, s[i])
	}
	return append(buf, 0x00, 0x01)
}

// Tuple encodes values in order.
func Tuple(values ...any) []byte {
	var buf []byte
	for _, v := range values {
		buf = AppendValue(buf, v)
	}
	return buf
}

// Tuples returns the encoded index tuples of obj for props. A property that
// reaches several values contributes one tuple per distinct value.
func Tuples(obj document.Object, props []string) [][]byte {
	tuples := [][]byte{nil}
	for _, prop := range props {
		var distinct []any
		seen := map[string]bool{}
		for _, v := range values(obj, prop) {
			canonical := document.Canonical(v)
			if seen[canonical] {
				continue
			}
			seen[canonical] = true
			distinct = append(distinct, v)
		}

		next := make([][]byte, 0, len(tuples)*len(distinct))
		for _, tuple := range tuples {
			for _, v := range distinct {
				next = append(next, AppendValue(append([]byte(nil), tuple...), v))
			}
		}
		tuples = next
	}
	return tuples
}
