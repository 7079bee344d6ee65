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

package bitmap

import (
	"testing"

	"github.com/sneller-compress/cmatrix/block"
)

// buildTransposed builds a transposed block (Rows=numCols, Cols=numRows)
// from a row-major original matrix description.
func buildTransposed(rows, cols int, at func(r, c int) float64) *block.Matrix {
	t := block.NewDense(cols, rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			t.QuickSet(c, r, at(r, c))
		}
	}
	return t
}

func TestExtractSkipsZeroTuple(t *testing.T) {
	// 4 rows, 2 cols, row 0 and 2 are all zero.
	vals := [][2]float64{{0, 0}, {1, 2}, {0, 0}, {1, 2}}
	tr := buildTransposed(4, 2, func(r, c int) float64 { return vals[r][c] })
	b := Extract([]int{0, 1}, tr, 4)
	if b.NumTuples() != 1 {
		t.Fatalf("got %d tuples, want 1", b.NumTuples())
	}
	if b.NumNonZeroRows() != 2 {
		t.Fatalf("got %d non-zero rows, want 2", b.NumNonZeroRows())
	}
	rows := b.SortedRows(0)
	if len(rows) != 2 || rows[0] != 1 || rows[1] != 3 {
		t.Fatalf("got rows %v, want [1 3]", rows)
	}
}

func TestExtractDistinctTuples(t *testing.T) {
	vals := [][1]float64{{1}, {2}, {1}, {3}, {2}}
	tr := buildTransposed(5, 1, func(r, c int) float64 { return vals[r][c] })
	b := Extract([]int{0}, tr, 5)
	if b.NumTuples() != 3 {
		t.Fatalf("got %d tuples, want 3", b.NumTuples())
	}
	total := 0
	for i := range b.Tuples {
		total += len(b.SortedRows(i))
	}
	if total != 5 {
		t.Fatalf("got %d total rows across tuples, want 5", total)
	}
}

func TestEstimatedRunCount(t *testing.T) {
	vals := [][1]float64{{1}, {1}, {0}, {1}, {1}, {1}}
	tr := buildTransposed(6, 1, func(r, c int) float64 { return vals[r][c] })
	b := Extract([]int{0}, tr, 6)
	if got := b.EstimatedRunCount(0); got != 2 {
		t.Fatalf("got %d runs, want 2", got)
	}
}
