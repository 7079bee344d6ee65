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

package estim

import (
	"testing"

	"github.com/sneller-compress/cmatrix/bitmap"
	"github.com/sneller-compress/cmatrix/block"
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

func TestExactEstimatorLowCardinality(t *testing.T) {
	const R = 300
	vals := make([]float64, R)
	for i := range vals {
		vals[i] = float64(i % 3)
	}
	tr := buildTransposed(R, 1, func(r, c int) float64 { return vals[r] })
	e := NewExactEstimator(tr, R)
	info := e.Estimate([]int{0})
	if info.EstCardinality != 2 { // value 0 excluded (implicit zero)
		t.Fatalf("got cardinality %d, want 2", info.EstCardinality)
	}
	if info.MinSize() <= 0 {
		t.Fatalf("expected positive size, got %d", info.MinSize())
	}
}

func TestSizeInfoFromBitmapMatchesExact(t *testing.T) {
	const R = 100
	tr := buildTransposed(R, 1, func(r, c int) float64 {
		if r%2 == 0 {
			return 1
		}
		return 0
	})
	b := bitmap.Extract([]int{0}, tr, R)
	info := SizeInfoFromBitmap(b, R)
	if info.EstCardinality != 1 {
		t.Fatalf("got %d, want 1", info.EstCardinality)
	}
}

func TestSampleEstimatorSmallMatrixUsesAllRows(t *testing.T) {
	const R = 10
	tr := buildTransposed(R, 1, func(r, c int) float64 { return float64(r % 2) })
	e := NewSampleEstimator(tr, R)
	if len(e.sample) != R {
		t.Fatalf("expected full sample for small matrix, got %d rows", len(e.sample))
	}
}
