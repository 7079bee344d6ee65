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

// Package block implements the uncompressed collaborator that the
// compressed matrix representation decompresses into and delegates to:
// a plain dense-or-sparse numeric matrix with the small operator set
// the compression pipeline and the decompress-then-delegate fallback
// path both need.
package block

import "sort"

// Matrix is a dense-or-sparse R x C numeric matrix. It plays the role
// spec.md assumes of an "uncompressed block" collaborator: allocation,
// cell access, transpose, and a minimal operator set.
type Matrix struct {
	Rows, Cols int
	Sparse     bool

	// Dense holds Rows*Cols values in row-major order. Non-nil only
	// when Sparse is false.
	Dense []float64

	// Row holds one SparseRow per row. Non-nil only when Sparse is
	// true.
	Row []SparseRow

	nnz int64
}

// SparseRow is a single sparse row: parallel Cols/Vals slices, kept
// sorted by Cols ascending once Sort has been called.
type SparseRow struct {
	Cols []int32
	Vals []float64
}

// NewDense allocates a zeroed dense matrix.
func NewDense(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Dense: make([]float64, rows*cols)}
}

// NewSparse allocates an empty sparse matrix with no rows populated.
func NewSparse(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Sparse: true, Row: make([]SparseRow, rows)}
}

// AllocateRow preallocates capacity for nnz non-zeros in sparse row r.
// Used to avoid repeated reallocation while column groups decompress
// into this block one offset at a time.
func (m *Matrix) AllocateRow(r, nnz int) {
	if !m.Sparse {
		return
	}
	m.Row[r].Cols = make([]int32, 0, nnz)
	m.Row[r].Vals = make([]float64, 0, nnz)
}

// QuickGet returns the value at (r, c).
func (m *Matrix) QuickGet(r, c int) float64 {
	if !m.Sparse {
		return m.Dense[r*m.Cols+c]
	}
	row := &m.Row[r]
	for i, rc := range row.Cols {
		if int(rc) == c {
			return row.Vals[i]
		}
	}
	return 0
}

// QuickSet sets the value at (r, c). For sparse rows this appends;
// callers that fill a row out of column order must call Sort before
// relying on QuickGet or serialization.
func (m *Matrix) QuickSet(r, c int, v float64) {
	if !m.Sparse {
		m.Dense[r*m.Cols+c] = v
		return
	}
	row := &m.Row[r]
	row.Cols = append(row.Cols, int32(c))
	row.Vals = append(row.Vals, v)
}

// NonZeros returns the non-zero count last computed by RecomputeNonZeros.
func (m *Matrix) NonZeros() int64 { return m.nnz }

// SetNonZeros overrides the cached non-zero count, used when a caller
// already knows the exact value (e.g. the compression pipeline).
func (m *Matrix) SetNonZeros(nnz int64) { m.nnz = nnz }

// RecomputeNonZeros rescans the block and updates the cached count.
func (m *Matrix) RecomputeNonZeros() int64 {
	var n int64
	if !m.Sparse {
		for _, v := range m.Dense {
			if v != 0 {
				n++
			}
		}
	} else {
		for i := range m.Row {
			for _, v := range m.Row[i].Vals {
				if v != 0 {
					n++
				}
			}
		}
	}
	m.nnz = n
	return n
}

// IsEmpty reports whether the block has no non-zero entries.
func (m *Matrix) IsEmpty() bool { return m.nnz == 0 }

// SortRows sorts every sparse row by column index ascending. Required
// before QuickGet's linear scan becomes a meaningful ordering guarantee
// and before serialization, matching the original's sortSparseRows.
func (m *Matrix) SortRows() {
	if !m.Sparse {
		return
	}
	for i := range m.Row {
		row := &m.Row[i]
		sort.Sort((*rowSort)(row))
	}
}

type rowSort SparseRow

func (r *rowSort) Len() int           { return len(r.Cols) }
func (r *rowSort) Less(i, j int) bool { return r.Cols[i] < r.Cols[j] }
func (r *rowSort) Swap(i, j int) {
	r.Cols[i], r.Cols[j] = r.Cols[j], r.Cols[i]
	r.Vals[i], r.Vals[j] = r.Vals[j], r.Vals[i]
}

// Transpose returns a new Cols x Rows matrix, always materialized in
// the same sparse/dense form as the receiver.
func (m *Matrix) Transpose() *Matrix {
	out := &Matrix{Rows: m.Cols, Cols: m.Rows, Sparse: m.Sparse}
	if !m.Sparse {
		out.Dense = make([]float64, m.Rows*m.Cols)
		for r := 0; r < m.Rows; r++ {
			for c := 0; c < m.Cols; c++ {
				out.Dense[c*out.Cols+r] = m.Dense[r*m.Cols+c]
			}
		}
	} else {
		out.Row = make([]SparseRow, out.Rows)
		counts := make([]int, out.Rows)
		for r := range m.Row {
			for _, c := range m.Row[r].Cols {
				counts[c]++
			}
		}
		for c, n := range counts {
			out.Row[c].Cols = make([]int32, 0, n)
			out.Row[c].Vals = make([]float64, 0, n)
		}
		for r := range m.Row {
			row := &m.Row[r]
			for i, c := range row.Cols {
				out.Row[c].Cols = append(out.Row[c].Cols, int32(r))
				out.Row[c].Vals = append(out.Row[c].Vals, row.Vals[i])
			}
		}
	}
	out.nnz = m.nnz
	return out
}

// Col extracts column c into a dense R x 1 vector.
func (m *Matrix) Col(c int) []float64 {
	out := make([]float64, m.Rows)
	if !m.Sparse {
		for r := 0; r < m.Rows; r++ {
			out[r] = m.Dense[r*m.Cols+c]
		}
		return out
	}
	for r := range m.Row {
		row := &m.Row[r]
		for i, rc := range row.Cols {
			if int(rc) == c {
				out[r] = row.Vals[i]
				break
			}
		}
	}
	return out
}
