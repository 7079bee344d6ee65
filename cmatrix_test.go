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

package cmatrix

import (
	"testing"

	"github.com/sneller-compress/cmatrix/block"
	"github.com/sneller-compress/cmatrix/colgroup"
)

// lowCardinalityMatrix builds a dense rows x cols matrix where every
// column only takes one of a handful of distinct values, the
// situation bitmap compression is meant for.
func lowCardinalityMatrix(rows, cols int) *block.Matrix {
	m := block.NewDense(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := float64((r + c) % 3) // values in {0, 1, 2}
			m.QuickSet(r, c, v)
		}
	}
	m.RecomputeNonZeros()
	return m
}

// denseContinuousMatrix builds a matrix where every cell is distinct,
// the case bitmap compression cannot help with.
func denseContinuousMatrix(rows, cols int) *block.Matrix {
	m := block.NewDense(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.QuickSet(r, c, float64(r*cols+c)+0.5)
		}
	}
	m.RecomputeNonZeros()
	return m
}

func assertRoundTrip(t *testing.T, orig *block.Matrix, cm *CompressedMatrix) {
	t.Helper()
	for r := 0; r < orig.Rows; r++ {
		for c := 0; c < orig.Cols; c++ {
			want := orig.QuickGet(r, c)
			if got := cm.Get(r, c); got != want {
				t.Fatalf("Get(%d,%d) = %v, want %v", r, c, got, want)
			}
		}
	}
	dec := Decompress(cm)
	for r := 0; r < orig.Rows; r++ {
		for c := 0; c < orig.Cols; c++ {
			want := orig.QuickGet(r, c)
			if got := dec.QuickGet(r, c); got != want {
				t.Fatalf("Decompress row %d col %d = %v, want %v", r, c, got, want)
			}
		}
	}
}

func TestCompressLowCardinalityRoundTrip(t *testing.T) {
	m := lowCardinalityMatrix(500, 6)
	cm, err := Compress(m)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	assertRoundTrip(t, m, cm)

	hasBitmap := false
	for _, g := range cm.Groups {
		if g.Kind() == colgroup.OLE || g.Kind() == colgroup.RLE {
			hasBitmap = true
		}
	}
	if !hasBitmap {
		t.Fatalf("expected at least one bitmap-encoded group for a low-cardinality matrix")
	}
}

func TestCompressDenseContinuousFallsBackToUncompressed(t *testing.T) {
	m := denseContinuousMatrix(50, 4)
	cm, err := Compress(m)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	assertRoundTrip(t, m, cm)
	for _, g := range cm.Groups {
		if g.Kind() != colgroup.Uncompressed {
			t.Fatalf("expected every group to be Uncompressed for a fully distinct matrix, got %v", g.Kind())
		}
	}
}

func TestCompressEmptyMatrix(t *testing.T) {
	m := block.NewDense(10, 3)
	cm, err := Compress(m)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if cm.NonZeros() != 0 {
		t.Fatalf("got nnz %d, want 0", cm.NonZeros())
	}
	assertRoundTrip(t, m, cm)
}

func TestCompressGroupsPartitionColumnsDisjointly(t *testing.T) {
	m := lowCardinalityMatrix(300, 8)
	cm, err := Compress(m)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	seen := make(map[int]bool)
	for _, g := range cm.Groups {
		for _, c := range g.Cols() {
			if seen[c] {
				t.Fatalf("column %d covered by more than one group", c)
			}
			seen[c] = true
		}
	}
	if len(seen) != m.Cols {
		t.Fatalf("groups cover %d columns, want %d", len(seen), m.Cols)
	}
}

func TestCompressionStatisticsReported(t *testing.T) {
	m := lowCardinalityMatrix(200, 6)
	cm, err := Compress(m)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if cm.Stats.NumColGroups != len(cm.Groups) {
		t.Fatalf("Stats.NumColGroups = %d, want %d", cm.Stats.NumColGroups, len(cm.Groups))
	}
	if cm.Stats.UncompressedSize <= 0 || cm.Stats.CompressedSize <= 0 {
		t.Fatalf("expected positive sizes, got %+v", cm.Stats)
	}
	if cm.Stats.Ratio <= 0 {
		t.Fatalf("expected a positive compression ratio, got %v", cm.Stats.Ratio)
	}
}

func TestCompressParallelMatchesSequential(t *testing.T) {
	m := lowCardinalityMatrix(400, 5)
	seq, err := Compress(m)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	for _, k := range []int{2, 4, 8} {
		par, err := CompressParallel(m, k)
		if err != nil {
			t.Fatalf("CompressParallel(k=%d): %v", k, err)
		}
		assertRoundTrip(t, m, par)
		if par.NonZeros() != seq.NonZeros() {
			t.Fatalf("k=%d: nnz %d, want %d", k, par.NonZeros(), seq.NonZeros())
		}
	}
}
