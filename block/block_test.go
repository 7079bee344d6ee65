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

package block

import "testing"

func TestDenseGetSet(t *testing.T) {
	m := NewDense(3, 2)
	m.QuickSet(1, 1, 4.5)
	if got := m.QuickGet(1, 1); got != 4.5 {
		t.Fatalf("got %v, want 4.5", got)
	}
	if got := m.QuickGet(0, 0); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
}

func TestSparseGetSetSort(t *testing.T) {
	m := NewSparse(2, 4)
	m.QuickSet(0, 3, 1)
	m.QuickSet(0, 1, 2)
	m.SortRows()
	if m.Row[0].Cols[0] != 1 || m.Row[0].Cols[1] != 3 {
		t.Fatalf("rows not sorted: %v", m.Row[0].Cols)
	}
	if got := m.QuickGet(0, 3); got != 1 {
		t.Fatalf("got %v want 1", got)
	}
}

func TestTransposeDense(t *testing.T) {
	m := NewDense(2, 3)
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			m.QuickSet(r, c, float64(r*3+c))
		}
	}
	tr := m.Transpose()
	if tr.Rows != 3 || tr.Cols != 2 {
		t.Fatalf("bad transposed shape %dx%d", tr.Rows, tr.Cols)
	}
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			if m.QuickGet(r, c) != tr.QuickGet(c, r) {
				t.Fatalf("transpose mismatch at (%d,%d)", r, c)
			}
		}
	}
}

func TestTransposeSparse(t *testing.T) {
	m := NewSparse(2, 3)
	m.QuickSet(0, 2, 7)
	m.QuickSet(1, 0, 9)
	m.SortRows()
	tr := m.Transpose()
	if tr.QuickGet(2, 0) != 7 || tr.QuickGet(0, 1) != 9 {
		t.Fatalf("sparse transpose mismatch")
	}
}

func TestRecomputeNonZeros(t *testing.T) {
	m := NewDense(2, 2)
	m.QuickSet(0, 0, 1)
	m.QuickSet(1, 1, 2)
	if n := m.RecomputeNonZeros(); n != 2 {
		t.Fatalf("got %d want 2", n)
	}
	if m.IsEmpty() {
		t.Fatalf("should not be empty")
	}
}

func TestScalarOp(t *testing.T) {
	m := NewDense(1, 3)
	m.Dense = []float64{1, 2, 3}
	m.Apply(ScalarOp{Name: "double", Fn: func(v float64) float64 { return v * 2 }})
	want := []float64{2, 4, 6}
	for i, v := range want {
		if m.Dense[i] != v {
			t.Fatalf("index %d: got %v want %v", i, m.Dense[i], v)
		}
	}
}

func TestUnaryAggregateSumRow(t *testing.T) {
	m := NewDense(2, 2)
	m.Dense = []float64{1, 2, 3, 4}
	out := m.UnaryAggregate(AggSum, ReduceRow)
	if out.Dense[0] != 3 || out.Dense[1] != 7 {
		t.Fatalf("got %v", out.Dense)
	}
}

func TestUnaryAggregateMinAll(t *testing.T) {
	m := NewDense(2, 2)
	m.Dense = []float64{5, -1, 3, 2}
	out := m.UnaryAggregate(AggMin, ReduceAll)
	if out.Dense[0] != -1 {
		t.Fatalf("got %v want -1", out.Dense[0])
	}
}

func TestBlockSerializeRoundTripDense(t *testing.T) {
	m := NewDense(3, 2)
	for i := range m.Dense {
		m.Dense[i] = float64(i) * 1.5
	}
	m.RecomputeNonZeros()
	buf := m.AppendTo(nil)
	if int64(len(buf)) != m.ExactSizeOnDisk() {
		t.Fatalf("size mismatch: got %d want %d", len(buf), m.ExactSizeOnDisk())
	}
	got, n, err := ReadMatrix(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d, want %d", n, len(buf))
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 2; c++ {
			if m.QuickGet(r, c) != got.QuickGet(r, c) {
				t.Fatalf("mismatch at (%d,%d)", r, c)
			}
		}
	}
}

func TestBlockSerializeRoundTripSparse(t *testing.T) {
	m := NewSparse(3, 3)
	m.QuickSet(0, 2, 5)
	m.QuickSet(2, 0, 9)
	m.SortRows()
	m.RecomputeNonZeros()
	buf := m.AppendTo(nil)
	got, _, err := ReadMatrix(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.QuickGet(0, 2) != 5 || got.QuickGet(2, 0) != 9 {
		t.Fatalf("sparse round trip mismatch")
	}
}
