// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package bitmap extracts the transient, uncompressed bitmap
// representation of a candidate column set: the distinct value tuples
// appearing across those columns and, for each tuple, the sorted set
// of rows at which it occurs. It exists only during compression -- the
// OLE/RLE encoders consume a Bitmap and discard it.
package bitmap

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/dchest/siphash"

	"github.com/sneller-compress/cmatrix/block"
)

// Bitmap is the exact, per-tuple row-index decomposition of a column
// set. Tuples and Rows are parallel slices; Rows[i] holds the sorted
// rows at which Tuples[i] occurs. The all-zero tuple is never present.
type Bitmap struct {
	Cols   []int
	Tuples [][]float64
	Rows   []*roaring.Bitmap
}

// NumTuples returns the number of distinct non-zero tuples.
func (b *Bitmap) NumTuples() int { return len(b.Tuples) }

// Cardinality is an alias for NumTuples matching the estimator's
// vocabulary (estimated cardinality k-hat).
func (b *Bitmap) Cardinality() int { return b.NumTuples() }

// NumNonZeroRows returns the total number of (tuple, row) pairs, i.e.
// the number of rows covered by some non-zero tuple.
func (b *Bitmap) NumNonZeroRows() int {
	n := 0
	for _, rb := range b.Rows {
		n += int(rb.GetCardinality())
	}
	return n
}

// tupleBucket groups candidate tuples by a 64-bit siphash fingerprint
// of their big-endian byte representation, avoiding an O(numTuples)
// scan on every incoming row; within a bucket, exact equality is
// still verified to account for hash collisions.
type tupleBucket struct {
	idx []int
}

// siphashK0/K1 are a fixed seed pair: only determinism within a single
// Extract call matters, not cross-process stability.
const siphashK0, siphashK1 uint64 = 0x9ae16a3b2f90404f, 0xc3a5c85c97cb3127

func tupleKey(buf []byte, tuple []float64) []byte {
	buf = buf[:0]
	for _, v := range tuple {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

func tuplesEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Extract builds the exact Bitmap for the given column positions over
// a transposed source block: transposed.Rows must equal len of the
// original column space and transposed.Cols must equal numRows, i.e.
// transposed.QuickGet(cols[i], r) yields the value of original column
// cols[i] at original row r. This layout keeps each column's scan
// contiguous, which matters most for sparse columns.
func Extract(cols []int, transposed *block.Matrix, numRows int) *Bitmap {
	rows := make([]int, numRows)
	for i := range rows {
		rows[i] = i
	}
	return ExtractAt(cols, transposed, rows)
}

// ExtractAt is Extract restricted to an explicit, possibly sparse, set
// of row positions -- used by the sample-based size estimator to scan
// only the fixed row sample chosen for one compression call.
func ExtractAt(cols []int, transposed *block.Matrix, rows []int) *Bitmap {
	b := &Bitmap{Cols: append([]int(nil), cols...)}
	buckets := make(map[uint64]*tupleBucket)
	var keybuf []byte
	tuple := make([]float64, len(cols))
	for _, r := range rows {
		allZero := true
		for i, c := range cols {
			v := transposed.QuickGet(c, r)
			tuple[i] = v
			if v != 0 {
				allZero = false
			}
		}
		if allZero {
			continue
		}
		keybuf = tupleKey(keybuf, tuple)
		h := siphash.Hash(siphashK0, siphashK1, keybuf)
		bucket := buckets[h]
		if bucket == nil {
			bucket = &tupleBucket{}
			buckets[h] = bucket
		}
		found := -1
		for _, idx := range bucket.idx {
			if tuplesEqual(b.Tuples[idx], tuple) {
				found = idx
				break
			}
		}
		if found < 0 {
			found = len(b.Tuples)
			b.Tuples = append(b.Tuples, append([]float64(nil), tuple...))
			b.Rows = append(b.Rows, roaring.New())
			bucket.idx = append(bucket.idx, found)
		}
		b.Rows[found].Add(uint32(r))
	}
	return b
}

// SortedRows returns the sorted row indices for tuple i as a plain
// int slice, suitable for feeding the OLE/RLE encoders. Roaring
// bitmaps already iterate in ascending order, so no extra sort step
// is required -- this satisfies invariant 3 (sorted, unique row lists)
// for free.
func (b *Bitmap) SortedRows(i int) []int {
	rb := b.Rows[i]
	out := make([]int, 0, rb.GetCardinality())
	it := rb.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}

// EstimatedRunCount returns the number of maximal runs of consecutive
// rows for tuple i, used by the exact size estimator's RLE projection.
func (b *Bitmap) EstimatedRunCount(i int) int {
	rows := b.SortedRows(i)
	if len(rows) == 0 {
		return 0
	}
	runs := 1
	for j := 1; j < len(rows); j++ {
		if rows[j] != rows[j-1]+1 {
			runs++
		}
	}
	return runs
}

// ColumnIndicesSorted reports whether cols is sorted ascending, an
// invariant every produced Bitmap and ColGroup must uphold.
func ColumnIndicesSorted(cols []int) bool {
	return sort.IntsAreSorted(cols)
}
