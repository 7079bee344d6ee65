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
	"encoding/binary"
	"fmt"

	"github.com/sneller-compress/cmatrix/block"
)

// uncompressedGroup is the fallback variant: a plain block.Matrix
// holding exactly the columns this group covers, column-local (block
// column j corresponds to global column cols[j]). Every column that
// the co-coder or the cleanup phase decides not to bitmap-encode ends
// up here, along with any bitmap group whose scalar operation breaks
// implicit-zero semantics.
type uncompressedGroup struct {
	cols  []int
	block *block.Matrix
}

// NewUncompressedGroup wraps m, an R x len(cols) block, as a group
// covering the given global column indices.
func NewUncompressedGroup(cols []int, m *block.Matrix) ColGroup {
	return &uncompressedGroup{cols: append([]int(nil), cols...), block: m}
}

func (g *uncompressedGroup) Kind() Kind   { return Uncompressed }
func (g *uncompressedGroup) Cols() []int  { return g.cols }
func (g *uncompressedGroup) NumRows() int { return g.block.Rows }

func (g *uncompressedGroup) colPos(c int) int {
	for i, gc := range g.cols {
		if gc == c {
			return i
		}
	}
	return -1
}

func (g *uncompressedGroup) Get(r, c int) float64 {
	pos := g.colPos(c)
	if pos < 0 {
		return 0
	}
	return g.block.QuickGet(r, pos)
}

func (g *uncompressedGroup) DecompressInto(dst *block.Matrix, rl, ru int) {
	for r := rl; r < ru; r++ {
		for pos, c := range g.cols {
			v := g.block.QuickGet(r, pos)
			if v != 0 {
				dst.QuickSet(r, c, v)
			}
		}
	}
}

func (g *uncompressedGroup) CountNonZerosPerRow(counts []int, rl, ru int) {
	for r := rl; r < ru; r++ {
		for pos := range g.cols {
			if g.block.QuickGet(r, pos) != 0 {
				counts[r]++
			}
		}
	}
}

// CountNonZerosPerCol adds, for each of this group's columns (in its
// own local index order), the number of non-zero rows it has.
func (g *uncompressedGroup) CountNonZerosPerCol(counts []int) {
	for pos := range g.cols {
		for r := 0; r < g.block.Rows; r++ {
			if g.block.QuickGet(r, pos) != 0 {
				counts[pos]++
			}
		}
	}
}

// RightMultByVector overwrites out[r] rather than adding to it: the
// owning CompressedMatrix runs every Uncompressed group before any
// bitmap group, so bitmap groups can safely accumulate afterward.
func (g *uncompressedGroup) RightMultByVector(v []float64, out []float64, rl, ru int) {
	for r := rl; r < ru; r++ {
		var s float64
		for pos, c := range g.cols {
			s += g.block.QuickGet(r, pos) * v[c]
		}
		out[r] = s
	}
}

func (g *uncompressedGroup) LeftMultByRowVector(vRow []float64, out []float64) {
	for pos, c := range g.cols {
		var s float64
		for r := 0; r < g.block.Rows; r++ {
			s += vRow[r] * g.block.QuickGet(r, pos)
		}
		out[c] += s
	}
}

func (g *uncompressedGroup) UnaryAggregate(kind block.AggKind, idx block.IndexFn, acc []float64, rl, ru int) {
	switch idx {
	case block.ReduceAll:
		for r := rl; r < ru; r++ {
			for pos := range g.cols {
				acc[0] = kind.Contribute(acc[0], g.block.QuickGet(r, pos))
			}
		}
	case block.ReduceRow:
		for r := rl; r < ru; r++ {
			rowAcc := kind.Seed()
			for pos := range g.cols {
				rowAcc = kind.Contribute(rowAcc, g.block.QuickGet(r, pos))
			}
			acc[r] = kind.Combine(acc[r], rowAcc)
		}
	case block.ReduceCol:
		for r := rl; r < ru; r++ {
			for pos := range g.cols {
				acc[pos] = kind.Contribute(acc[pos], g.block.QuickGet(r, pos))
			}
		}
	}
}

func (g *uncompressedGroup) ScalarOperation(op block.ScalarOp) ColGroup {
	out := &block.Matrix{Rows: g.block.Rows, Cols: g.block.Cols, Sparse: g.block.Sparse}
	if g.block.Sparse {
		out.Row = make([]block.SparseRow, g.block.Rows)
		for r := 0; r < g.block.Rows; r++ {
			for pos := range g.cols {
				v := op.Fn(g.block.QuickGet(r, pos))
				if v != 0 || !op.PreservesZero() {
					out.QuickSet(r, pos, v)
				}
			}
		}
	} else {
		out.Dense = make([]float64, g.block.Rows*g.block.Cols)
		for i, v := range g.block.Dense {
			out.Dense[i] = op.Fn(v)
		}
	}
	out.RecomputeNonZeros()
	return &uncompressedGroup{cols: append([]int(nil), g.cols...), block: out}
}

func (g *uncompressedGroup) ShiftColIndices(offset int) {
	for i := range g.cols {
		g.cols[i] += offset
	}
}

func (g *uncompressedGroup) EstimateInMemorySize() int64 {
	if g.block.Sparse {
		n := int64(0)
		for i := range g.block.Row {
			n += int64(len(g.block.Row[i].Cols)) * 12
		}
		return n + 64
	}
	return int64(len(g.block.Dense))*8 + 64
}

func (g *uncompressedGroup) ExactSizeOnDisk() int64 {
	return 4 + int64(len(g.cols))*4 + g.block.ExactSizeOnDisk()
}

func (g *uncompressedGroup) AppendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(g.cols)))
	for _, c := range g.cols {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(c))
	}
	return g.block.AppendTo(buf)
}

// AsSingleUncompressed reports whether g is the uncompressed variant
// and, if so, returns the dense/sparse sub-matrix it wraps directly --
// letting a caller that already knows a matrix holds exactly one group
// bypass the generic per-group dispatch loop entirely.
func AsSingleUncompressed(g ColGroup) (*block.Matrix, bool) {
	u, ok := g.(*uncompressedGroup)
	if !ok {
		return nil, false
	}
	return u.block, true
}

func readUncompressed(data []byte, numRows int) (ColGroup, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("colgroup: short buffer reading numCols")
	}
	numCols := int(binary.LittleEndian.Uint32(data))
	pos := 4
	cols := make([]int, numCols)
	for i := range cols {
		if len(data)-pos < 4 {
			return nil, 0, fmt.Errorf("colgroup: short buffer reading col index")
		}
		cols[i] = int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
	}
	m, n, err := block.ReadMatrix(data[pos:])
	if err != nil {
		return nil, 0, err
	}
	pos += n
	if m.Rows != numRows {
		return nil, 0, fmt.Errorf("colgroup: uncompressed block has %d rows, want %d", m.Rows, numRows)
	}
	return &uncompressedGroup{cols: cols, block: m}, pos, nil
}
