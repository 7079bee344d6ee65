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

package colgroup

import (
	"math"
	"testing"

	"github.com/sneller-compress/cmatrix/bitmap"
	"github.com/sneller-compress/cmatrix/block"
	"github.com/sneller-compress/cmatrix/internal/cfg"
)

func buildTransposed(rows, cols int, at func(r, c int) float64) *block.Matrix {
	t := block.NewDense(cols, rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			t.QuickSet(c, r, at(r, c))
		}
	}
	return t
}

// twoColFixture builds a 5-row, 2-col matrix with two distinct
// non-zero tuples: (1,2) for rows {0,1,3} and (5,6) for row {4}; row 2
// is all-zero.
func twoColFixture() (tr *block.Matrix, rows int) {
	rows = 5
	vals := [][2]float64{{1, 2}, {1, 2}, {0, 0}, {1, 2}, {5, 6}}
	tr = buildTransposed(rows, 2, func(r, c int) float64 { return vals[r][c] })
	return tr, rows
}

// twoColFixtureAt is twoColFixture with its two columns placed at
// global column indices c0 < c1, so the transposed block has a row for
// each column index bitmap.Extract is asked to read.
func twoColFixtureAt(c0, c1 int) (tr *block.Matrix, rows int) {
	narrow, rows := twoColFixture()
	tr = block.NewDense(c1+1, rows)
	for r := 0; r < rows; r++ {
		tr.QuickSet(c0, r, narrow.QuickGet(0, r))
		tr.QuickSet(c1, r, narrow.QuickGet(1, r))
	}
	return tr, rows
}

func TestOLERoundTripAndGet(t *testing.T) {
	tr, rows := twoColFixtureAt(3, 7)
	b := bitmap.Extract([]int{3, 7}, tr, rows)
	g := NewOLEGroup(b, rows)

	buf := WriteColGroup(nil, g)
	got, n, err := ReadColGroup(buf, rows)
	if err != nil {
		t.Fatalf("ReadColGroup: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(buf))
	}
	if got.Kind() != OLE {
		t.Fatalf("got kind %v, want OLE", got.Kind())
	}
	for r := 0; r < rows; r++ {
		for _, c := range []int{3, 7} {
			want := g.Get(r, c)
			have := got.Get(r, c)
			if want != have {
				t.Fatalf("row %d col %d: got %v, want %v", r, c, have, want)
			}
		}
	}
}

func TestRLERoundTripAndGet(t *testing.T) {
	tr, rows := twoColFixtureAt(3, 7)
	b := bitmap.Extract([]int{3, 7}, tr, rows)
	g := NewRLEGroup(b, rows)

	buf := WriteColGroup(nil, g)
	got, _, err := ReadColGroup(buf, rows)
	if err != nil {
		t.Fatalf("ReadColGroup: %v", err)
	}
	if got.Kind() != RLE {
		t.Fatalf("got kind %v, want RLE", got.Kind())
	}
	if got.Get(0, 3) != 1 || got.Get(0, 7) != 2 {
		t.Fatalf("row 0 got (%v,%v), want (1,2)", got.Get(0, 3), got.Get(0, 7))
	}
	if got.Get(2, 3) != 0 {
		t.Fatalf("row 2 (all-zero tuple) got %v, want 0", got.Get(2, 3))
	}
	if got.Get(4, 3) != 5 || got.Get(4, 7) != 6 {
		t.Fatalf("row 4 got (%v,%v), want (5,6)", got.Get(4, 3), got.Get(4, 7))
	}
}

// TestRLEMultiSegmentRoundTrip exercises the segStart skip table
// across two BSZ segments, including a run that straddles the
// boundary and so gets split into two on-disk runs.
func TestRLEMultiSegmentRoundTrip(t *testing.T) {
	rows := cfg.BSZ + 20
	at := func(r, c int) float64 {
		vals := []float64{0, 0}
		switch {
		case r < 10:
			vals = []float64{1, 2}
		case r >= cfg.BSZ-5 && r < cfg.BSZ+5:
			vals = []float64{3, 4}
		}
		return vals[c]
	}
	tr := buildTransposed(rows, 2, at)
	b := bitmap.Extract([]int{0, 1}, tr, rows)
	g := NewRLEGroup(b, rows)

	buf := WriteColGroup(nil, g)
	got, n, err := ReadColGroup(buf, rows)
	if err != nil {
		t.Fatalf("ReadColGroup: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(buf))
	}
	for _, r := range []int{0, 9, 10, cfg.BSZ - 6, cfg.BSZ - 5, cfg.BSZ - 1, cfg.BSZ, cfg.BSZ + 4, cfg.BSZ + 5} {
		for c := 0; c < 2; c++ {
			want := at(r, c)
			have := got.Get(r, c)
			if want != have {
				t.Fatalf("row %d col %d: got %v, want %v", r, c, have, want)
			}
		}
	}
}

func TestDecompressInto(t *testing.T) {
	tr, rows := twoColFixture()
	b := bitmap.Extract([]int{0, 1}, tr, rows)
	g := NewOLEGroup(b, rows)

	dst := block.NewDense(rows, 2)
	g.DecompressInto(dst, 0, rows)
	for r := 0; r < rows; r++ {
		if dst.QuickGet(r, 0) != g.Get(r, 0) || dst.QuickGet(r, 1) != g.Get(r, 1) {
			t.Fatalf("row %d mismatch after decompress", r)
		}
	}
}

func TestRightMultByVector(t *testing.T) {
	tr, rows := twoColFixture()
	b := bitmap.Extract([]int{0, 1}, tr, rows)
	g := NewRLEGroup(b, rows)

	v := []float64{3, 4} // whole-matrix vector indexed by absolute column
	out := make([]float64, rows)
	g.RightMultByVector(v, out, 0, rows)
	want := []float64{1*3 + 2*4, 1*3 + 2*4, 0, 1*3 + 2*4, 5*3 + 6*4}
	for r := range want {
		if out[r] != want[r] {
			t.Fatalf("row %d: got %v, want %v", r, out[r], want[r])
		}
	}
}

func TestLeftMultByRowVector(t *testing.T) {
	tr, rows := twoColFixture()
	b := bitmap.Extract([]int{0, 1}, tr, rows)
	g := NewOLEGroup(b, rows)

	vRow := []float64{1, 1, 1, 1, 1}
	out := make([]float64, 2)
	g.LeftMultByRowVector(vRow, out)
	// column 0 sums to 1+1+0+1+5 = 8, column 1 sums to 2+2+0+2+6 = 12.
	if out[0] != 8 || out[1] != 12 {
		t.Fatalf("got %v, want [8 12]", out)
	}
}

func TestUnaryAggregateSumAndMinRow(t *testing.T) {
	tr, rows := twoColFixture()
	b := bitmap.Extract([]int{0, 1}, tr, rows)
	g := NewOLEGroup(b, rows)

	sumAcc := []float64{0}
	g.UnaryAggregate(block.AggSum, block.ReduceAll, sumAcc, 0, rows)
	if sumAcc[0] != 1+2+1+2+1+2+5+6 {
		t.Fatalf("got sum %v, want %v", sumAcc[0], 1+2+1+2+1+2+5+6)
	}

	rowAcc := make([]float64, rows)
	for i := range rowAcc {
		rowAcc[i] = block.AggMin.Seed()
	}
	g.UnaryAggregate(block.AggMin, block.ReduceRow, rowAcc, 0, rows)
	want := []float64{1, 1, math.MaxFloat64, 1, 5}
	for r, w := range want {
		if rowAcc[r] != w {
			t.Fatalf("row %d: got %v, want %v", r, rowAcc[r], w)
		}
	}
}

func TestScalarOperationPreservingZeroStaysBitmap(t *testing.T) {
	tr, rows := twoColFixture()
	b := bitmap.Extract([]int{0, 1}, tr, rows)
	g := NewOLEGroup(b, rows)

	doubled := g.ScalarOperation(block.ScalarOp{Name: "double", Fn: func(v float64) float64 { return v * 2 }})
	if doubled.Kind() != OLE {
		t.Fatalf("zero-preserving op should stay OLE, got %v", doubled.Kind())
	}
	if doubled.Get(0, 0) != 2 || doubled.Get(2, 0) != 0 {
		t.Fatalf("got (%v,%v), want (2,0)", doubled.Get(0, 0), doubled.Get(2, 0))
	}
}

func TestScalarOperationBreakingZeroMaterializes(t *testing.T) {
	tr, rows := twoColFixture()
	b := bitmap.Extract([]int{0, 1}, tr, rows)
	g := NewRLEGroup(b, rows)

	plusOne := g.ScalarOperation(block.ScalarOp{Name: "plus1", Fn: func(v float64) float64 { return v + 1 }})
	if plusOne.Kind() != Uncompressed {
		t.Fatalf("zero-breaking op must materialize, got %v", plusOne.Kind())
	}
	if plusOne.Get(2, 0) != 1 { // row 2 was implicitly zero, must now read as op(0)=1
		t.Fatalf("got %v, want 1", plusOne.Get(2, 0))
	}
	if plusOne.Get(0, 0) != 2 { // row 0 had value 1, must now read as op(1)=2
		t.Fatalf("got %v, want 2", plusOne.Get(0, 0))
	}
}

func TestUncompressedGroupRoundTrip(t *testing.T) {
	m := block.NewDense(4, 2)
	m.QuickSet(0, 0, 1)
	m.QuickSet(1, 1, 2)
	m.QuickSet(3, 0, 3)
	m.RecomputeNonZeros()
	g := NewUncompressedGroup([]int{5, 9}, m)

	buf := WriteColGroup(nil, g)
	got, n, err := ReadColGroup(buf, 4)
	if err != nil {
		t.Fatalf("ReadColGroup: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d, want %d", n, len(buf))
	}
	if got.Kind() != Uncompressed {
		t.Fatalf("got kind %v, want Uncompressed", got.Kind())
	}
	for r := 0; r < 4; r++ {
		if got.Get(r, 5) != g.Get(r, 5) || got.Get(r, 9) != g.Get(r, 9) {
			t.Fatalf("row %d mismatch", r)
		}
	}
}

func TestCountNonZerosPerRowAndCol(t *testing.T) {
	tr, rows := twoColFixture()
	b := bitmap.Extract([]int{0, 1}, tr, rows)
	g := NewOLEGroup(b, rows)

	rowCounts := make([]int, rows)
	g.CountNonZerosPerRow(rowCounts, 0, rows)
	want := []int{2, 2, 0, 2, 2}
	for r, w := range want {
		if rowCounts[r] != w {
			t.Fatalf("row %d: got %d, want %d", r, rowCounts[r], w)
		}
	}

	colCounts := make([]int, 2)
	g.CountNonZerosPerCol(colCounts)
	if colCounts[0] != 4 || colCounts[1] != 4 {
		t.Fatalf("got %v, want [4 4]", colCounts)
	}
}

func TestShiftColIndices(t *testing.T) {
	tr, rows := twoColFixture()
	b := bitmap.Extract([]int{0, 1}, tr, rows)
	g := NewOLEGroup(b, rows)
	g.ShiftColIndices(10)
	cols := g.Cols()
	if cols[0] != 10 || cols[1] != 11 {
		t.Fatalf("got %v, want [10 11]", cols)
	}
}
