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

// Package colgroup implements the three column-group encodings a
// compressed matrix is built from: Offset-List (OLE), Run-Length (RLE),
// and Uncompressed. All three share the same capability set so the
// owning matrix can dispatch to them uniformly.
package colgroup

import (
	"fmt"

	"github.com/sneller-compress/cmatrix/block"
)

// Kind identifies which of the three encodings a ColGroup uses. The
// byte values match the wire format in spec section 6.
type Kind uint8

const (
	Uncompressed Kind = 0
	OLE          Kind = 1
	RLE          Kind = 2
)

func (k Kind) String() string {
	switch k {
	case Uncompressed:
		return "uncompressed"
	case OLE:
		return "ole"
	case RLE:
		return "rle"
	default:
		return fmt.Sprintf("colgroup.Kind(%d)", uint8(k))
	}
}

// ColGroup is the shared contract across all three column-group
// variants: a tagged-variant capability set rather than the class
// hierarchy the original implementation used.
type ColGroup interface {
	// Kind reports which encoding this group uses.
	Kind() Kind
	// Cols returns the sorted column indices this group covers. The
	// caller must not mutate the returned slice.
	Cols() []int
	// NumRows returns the row count of the matrix this group belongs to.
	NumRows() int

	// Get returns the value at (r, c); c must be one of Cols().
	Get(r, c int) float64

	// DecompressInto writes this group's columns into rows [rl, ru)
	// of dst.
	DecompressInto(dst *block.Matrix, rl, ru int)

	// CountNonZerosPerRow adds, for each row in [rl, ru), the number
	// of this group's columns that are non-zero at that row.
	CountNonZerosPerRow(counts []int, rl, ru int)

	// CountNonZerosPerCol adds, for each of this group's columns (in
	// Cols() order, i.e. counts must be sized len(Cols())), the number
	// of rows at which that column is non-zero.
	CountNonZerosPerCol(counts []int)

	// RightMultByVector computes out[r] (+)= sum_c A[r,c]*v[c] for
	// r in [rl, ru), where v is indexed by absolute column index.
	// Uncompressed groups overwrite out[r]; bitmap groups add to it.
	RightMultByVector(v []float64, out []float64, rl, ru int)

	// LeftMultByRowVector computes out[c] += sum_r vRow[r]*A[r,c] for
	// every c in Cols(). out is indexed by absolute column index.
	LeftMultByRowVector(vRow []float64, out []float64)

	// UnaryAggregate folds this group's contribution into acc
	// according to kind/idx over rows [rl, ru). acc must already be
	// seeded (kind.Seed()) by the caller and sized for idx: 1 element
	// for ReduceAll, NumRows() elements for ReduceRow, one element per
	// Cols() entry (in Cols() order) for ReduceCol.
	UnaryAggregate(kind block.AggKind, idx block.IndexFn, acc []float64, rl, ru int)

	// ScalarOperation applies op to every logical cell of this group
	// and returns the resulting group, per the spec 4.4 contract: if
	// op breaks implicit-zero semantics on a group with any
	// zero-implicit row, the result is an Uncompressed group instead.
	ScalarOperation(op block.ScalarOp) ColGroup

	// ShiftColIndices adds offset to every column index this group
	// covers, used by column append (cbind).
	ShiftColIndices(offset int)

	// EstimateInMemorySize estimates this group's resident memory use.
	EstimateInMemorySize() int64
	// ExactSizeOnDisk returns the exact number of bytes AppendTo emits.
	ExactSizeOnDisk() int64
	// AppendTo appends this group's serialized body (column index
	// list plus encoding-specific payload, NOT the kind byte) to buf.
	AppendTo(buf []byte) []byte
}

// ReadColGroup decodes one column group, including its leading kind
// byte, from data and returns the group plus the number of bytes
// consumed.
func ReadColGroup(data []byte, numRows int) (ColGroup, int, error) {
	if len(data) < 1 {
		return nil, 0, fmt.Errorf("colgroup: empty buffer")
	}
	kind := Kind(data[0])
	switch kind {
	case Uncompressed:
		g, n, err := readUncompressed(data[1:], numRows)
		return g, n + 1, err
	case OLE:
		g, n, err := readBitmapGroup(data[1:], numRows, OLE)
		return g, n + 1, err
	case RLE:
		g, n, err := readBitmapGroup(data[1:], numRows, RLE)
		return g, n + 1, err
	default:
		return nil, 0, fmt.Errorf("colgroup: unknown group type tag %d", kind)
	}
}

// WriteColGroup appends the kind byte followed by g.AppendTo to buf,
// i.e. the full wire representation spec section 6 describes.
func WriteColGroup(buf []byte, g ColGroup) []byte {
	buf = append(buf, byte(g.Kind()))
	return g.AppendTo(buf)
}
