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
	"sort"

	"github.com/sneller-compress/cmatrix/block"
	"github.com/sneller-compress/cmatrix/colgroup"
	"github.com/sneller-compress/cmatrix/internal/cfg"
	"github.com/sneller-compress/cmatrix/internal/workpool"
)

// rowChunks splits [0, rows) into up to k ranges, each rounded up to a
// multiple of cfg.BSZ where possible so a chunk boundary tends to fall
// on a bitmap group's own segment boundary.
func rowChunks(rows, k int) [][2]int {
	if k <= 1 || rows == 0 {
		return [][2]int{{0, rows}}
	}
	size := (rows + k - 1) / k
	if size > cfg.BSZ {
		size = ((size + cfg.BSZ - 1) / cfg.BSZ) * cfg.BSZ
	}
	var chunks [][2]int
	for rl := 0; rl < rows; rl += size {
		ru := rl + size
		if ru > rows {
			ru = rows
		}
		chunks = append(chunks, [2]int{rl, ru})
	}
	return chunks
}

// groupChunks assigns m.Groups round-robin into up to k buckets.
func groupChunks(groups []colgroup.ColGroup, k int) [][]colgroup.ColGroup {
	if k <= 1 || len(groups) == 0 {
		return [][]colgroup.ColGroup{groups}
	}
	if k > len(groups) {
		k = len(groups)
	}
	buckets := make([][]colgroup.ColGroup, k)
	for i, g := range groups {
		buckets[i%k] = append(buckets[i%k], g)
	}
	return buckets
}

// Decompress materializes m as a dense block.Matrix using a single
// goroutine.
func Decompress(m *CompressedMatrix) *block.Matrix {
	return decompress(m, 1)
}

// DecompressParallel is Decompress with row ranges spread across up
// to k goroutines.
func DecompressParallel(m *CompressedMatrix, k int) *block.Matrix {
	return decompress(m, k)
}

func decompress(m *CompressedMatrix, k int) *block.Matrix {
	if blk, ok := m.singleUncompressedBlock(); ok {
		return cloneUncompressedBlock(blk)
	}
	dst := block.NewDense(m.Rows, m.Cols)
	chunks := rowChunks(m.Rows, k)
	_ = workpool.RunEach(k, chunks, func(ch [2]int) error {
		for _, g := range m.Groups {
			g.DecompressInto(dst, ch[0], ch[1])
		}
		return nil
	})
	dst.SetNonZeros(m.nnz)
	return dst
}

// RightMultByVector computes A*v for v of length m.Cols, using a
// single goroutine.
func RightMultByVector(m *CompressedMatrix, v []float64) ([]float64, error) {
	return rightMultByVector(m, v, 1)
}

// RightMultByVectorParallel is RightMultByVector with row ranges
// spread across up to k goroutines.
func RightMultByVectorParallel(m *CompressedMatrix, v []float64, k int) ([]float64, error) {
	return rightMultByVector(m, v, k)
}

func rightMultByVector(m *CompressedMatrix, v []float64, k int) ([]float64, error) {
	if len(v) != m.Cols {
		return nil, invariantf("right-multiply vector has length %d, want %d", len(v), m.Cols)
	}
	out := make([]float64, m.Rows)
	if m.nnz == 0 {
		return out, nil
	}
	if blk, ok := m.singleUncompressedBlock(); ok {
		chunks := rowChunks(m.Rows, k)
		err := workpool.RunEach(k, chunks, func(ch [2]int) error {
			for r := ch[0]; r < ch[1]; r++ {
				var s float64
				for c := 0; c < m.Cols; c++ {
					s += blk.QuickGet(r, c) * v[c]
				}
				out[r] = s
			}
			return nil
		})
		if err != nil {
			return nil, workerErrorf(err, "rightMultByVector")
		}
		return out, nil
	}
	chunks := rowChunks(m.Rows, k)
	err := workpool.RunEach(k, chunks, func(ch [2]int) error {
		// Uncompressed groups overwrite out[r] and must run before any
		// bitmap group adds to it. CBind can leave more than one
		// Uncompressed group; every one after the first writes into
		// scratch, which is then added to out.
		var scratch []float64
		first := true
		for _, g := range m.Groups {
			if g.Kind() != colgroup.Uncompressed {
				continue
			}
			if first {
				g.RightMultByVector(v, out, ch[0], ch[1])
				first = false
				continue
			}
			if scratch == nil {
				scratch = make([]float64, m.Rows)
			}
			g.RightMultByVector(v, scratch, ch[0], ch[1])
			for r := ch[0]; r < ch[1]; r++ {
				out[r] += scratch[r]
			}
		}
		for _, g := range m.Groups {
			if g.Kind() != colgroup.Uncompressed {
				g.RightMultByVector(v, out, ch[0], ch[1])
			}
		}
		return nil
	})
	if err != nil {
		return nil, workerErrorf(err, "rightMultByVector")
	}
	return out, nil
}

// LeftMultByVector computes vRow*A for vRow of length m.Rows, using a
// single goroutine.
func LeftMultByVector(m *CompressedMatrix, vRow []float64) ([]float64, error) {
	return leftMultByVector(m, vRow, 1)
}

// LeftMultByVectorParallel is LeftMultByVector with one task per
// column group spread across up to k goroutines -- safe because
// groups own disjoint columns.
func LeftMultByVectorParallel(m *CompressedMatrix, vRow []float64, k int) ([]float64, error) {
	return leftMultByVector(m, vRow, k)
}

func leftMultByVector(m *CompressedMatrix, vRow []float64, k int) ([]float64, error) {
	if len(vRow) != m.Rows {
		return nil, invariantf("left-multiply vector has length %d, want %d", len(vRow), m.Rows)
	}
	out := make([]float64, m.Cols)
	if blk, ok := m.singleUncompressedBlock(); ok {
		err := workpool.Run(k, m.Cols, func(c int) error {
			var s float64
			for r := 0; r < m.Rows; r++ {
				s += vRow[r] * blk.QuickGet(r, c)
			}
			out[c] = s
			return nil
		})
		if err != nil {
			return nil, workerErrorf(err, "leftMultByVector")
		}
		return out, nil
	}
	err := workpool.Run(k, len(m.Groups), func(i int) error {
		m.Groups[i].LeftMultByRowVector(vRow, out)
		return nil
	})
	if err != nil {
		return nil, workerErrorf(err, "leftMultByVector")
	}
	return out, nil
}

// MMChain computes X^T (w ⊙ (X*v)), reusing the right- and
// left-multiply kernels and an elementwise multiply by w in between.
// It has no group-dispatch loop of its own, so it inherits the
// single-uncompressed-group fast path from whichever of those two
// kernels it calls.
func MMChain(m *CompressedMatrix, v, w []float64) ([]float64, error) {
	return mmChain(m, v, w, 1)
}

// MMChainParallel is MMChain with both underlying multiplies run with
// up to k goroutines.
func MMChainParallel(m *CompressedMatrix, v, w []float64, k int) ([]float64, error) {
	return mmChain(m, v, w, k)
}

func mmChain(m *CompressedMatrix, v, w []float64, k int) ([]float64, error) {
	if len(w) != m.Rows {
		return nil, invariantf("mm-chain weight vector has length %d, want %d", len(w), m.Rows)
	}
	if m.nnz == 0 {
		return make([]float64, m.Cols), nil
	}
	t, err := rightMultByVector(m, v, k)
	if err != nil {
		return nil, err
	}
	for i := range t {
		t[i] *= w[i]
	}
	return leftMultByVector(m, t, k)
}

// TSMM computes X^T X (m.Cols x m.Cols), by decompressing one column
// at a time and left-multiplying every group by it.
func TSMM(m *CompressedMatrix) (*block.Matrix, error) {
	return tsmm(m, 1)
}

// TSMMParallel is TSMM with the outer column loop spread across up to
// k goroutines; each goroutine owns disjoint output rows.
func TSMMParallel(m *CompressedMatrix, k int) (*block.Matrix, error) {
	return tsmm(m, k)
}

func tsmm(m *CompressedMatrix, k int) (*block.Matrix, error) {
	out := block.NewDense(m.Cols, m.Cols)
	if m.nnz == 0 {
		return out, nil
	}
	if blk, ok := m.singleUncompressedBlock(); ok {
		err := workpool.Run(k, m.Cols, func(i int) error {
			for j := 0; j < m.Cols; j++ {
				var s float64
				for r := 0; r < m.Rows; r++ {
					s += blk.QuickGet(r, i) * blk.QuickGet(r, j)
				}
				out.QuickSet(i, j, s)
			}
			return nil
		})
		if err != nil {
			return nil, workerErrorf(err, "tsmm")
		}
		out.RecomputeNonZeros()
		return out, nil
	}
	err := workpool.Run(k, m.Cols, func(c int) error {
		vcol := m.column(c)
		row := make([]float64, m.Cols)
		for _, g := range m.Groups {
			g.LeftMultByRowVector(vcol, row)
		}
		for j, v := range row {
			out.QuickSet(c, j, v)
		}
		return nil
	})
	if err != nil {
		return nil, workerErrorf(err, "tsmm")
	}
	out.RecomputeNonZeros()
	return out, nil
}

// TSMMRight would compute X*X^T (m.Rows x m.Rows), the right-side
// transpose-self-multiply. It is named as a Non-goal and is the
// canonical Unsupported example: unlike an operation this package
// doesn't list but will still decompress-and-delegate, right-side TSMM
// is refused outright and surfaces to the caller rather than silently
// succeeding against a decompressed copy.
func TSMMRight(m *CompressedMatrix) (*block.Matrix, error) {
	return nil, &UnsupportedError{
		Op:  "TSMMRight",
		Msg: "right-side transpose-self-multiply; decompress and call block.Matrix directly if you need this",
	}
}

// column decompresses column c alone via its owning group.
func (m *CompressedMatrix) column(c int) []float64 {
	out := make([]float64, m.Rows)
	g := m.groupFor(c)
	if g == nil {
		return out
	}
	for r := 0; r < m.Rows; r++ {
		out[r] = g.Get(r, c)
	}
	return out
}

// UnaryAggregate reduces m according to kind/idx, using a single
// goroutine.
func UnaryAggregate(m *CompressedMatrix, kind block.AggKind, idx block.IndexFn) (*block.Matrix, error) {
	return unaryAggregate(m, kind, idx, 1)
}

// UnaryAggregateParallel is UnaryAggregate with work spread across up
// to k goroutines once m's on-disk size clears
// cfg.MinParAggThreshold.
func UnaryAggregateParallel(m *CompressedMatrix, kind block.AggKind, idx block.IndexFn, k int) (*block.Matrix, error) {
	return unaryAggregate(m, kind, idx, k)
}

func unaryAggregate(m *CompressedMatrix, kind block.AggKind, idx block.IndexFn, k int) (*block.Matrix, error) {
	if k < 1 {
		k = 1
	}
	if k > 1 && m.exactSizeOnDisk() < cfg.MinParAggThreshold {
		k = 1
	}

	if blk, ok := m.singleUncompressedBlock(); ok {
		return aggregateUncompressed(blk, kind, idx), nil
	}

	var result *block.Matrix
	var err error
	switch idx {
	case block.ReduceAll:
		result, err = aggregateReduceAll(m, kind, k)
	case block.ReduceRow:
		result, err = aggregateReduceRow(m, kind, k)
	case block.ReduceCol:
		result, err = aggregateReduceCol(m, kind, k)
	default:
		return nil, invariantf("unknown IndexFn %d", idx)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// aggregateUncompressed is unaryAggregate's single-uncompressed-group
// fast path: every cell of blk is explicit (an Uncompressed group
// never has implicit zeros the way a bitmap group does), so no
// nnz-based zero correction is needed -- a plain visit over every
// (r, c) already includes every zero the matrix actually holds.
func aggregateUncompressed(blk *block.Matrix, kind block.AggKind, idx block.IndexFn) *block.Matrix {
	switch idx {
	case block.ReduceAll:
		acc := kind.Seed()
		for r := 0; r < blk.Rows; r++ {
			for c := 0; c < blk.Cols; c++ {
				acc = kind.Contribute(acc, blk.QuickGet(r, c))
			}
		}
		out := block.NewDense(1, 1)
		out.Dense[0] = acc
		out.RecomputeNonZeros()
		return out
	case block.ReduceRow:
		out := block.NewDense(blk.Rows, 1)
		for r := 0; r < blk.Rows; r++ {
			acc := kind.Seed()
			for c := 0; c < blk.Cols; c++ {
				acc = kind.Contribute(acc, blk.QuickGet(r, c))
			}
			out.Dense[r] = acc
		}
		out.RecomputeNonZeros()
		return out
	default: // block.ReduceCol
		out := block.NewDense(1, blk.Cols)
		for c := 0; c < blk.Cols; c++ {
			acc := kind.Seed()
			for r := 0; r < blk.Rows; r++ {
				acc = kind.Contribute(acc, blk.QuickGet(r, c))
			}
			out.Dense[c] = acc
		}
		out.RecomputeNonZeros()
		return out
	}
}

func aggregateReduceAll(m *CompressedMatrix, kind block.AggKind, k int) (*block.Matrix, error) {
	buckets := groupChunks(m.Groups, k)
	partials := make([]float64, len(buckets))
	err := workpool.Run(k, len(buckets), func(i int) error {
		acc := kind.Seed()
		for _, g := range buckets[i] {
			sub := []float64{acc}
			g.UnaryAggregate(kind, block.ReduceAll, sub, 0, m.Rows)
			acc = sub[0]
		}
		partials[i] = acc
		return nil
	})
	if err != nil {
		return nil, workerErrorf(err, "unaryAggregate(ReduceAll)")
	}
	acc := kind.Seed()
	for _, p := range partials {
		acc = kind.Combine(acc, p)
	}
	if kind == block.AggMin || kind == block.AggMax {
		if m.nnz < int64(m.Rows)*int64(m.Cols) {
			acc = kind.Combine(acc, 0)
		}
	}
	out := block.NewDense(1, 1)
	out.Dense[0] = acc
	out.RecomputeNonZeros()
	return out, nil
}

func aggregateReduceRow(m *CompressedMatrix, kind block.AggKind, k int) (*block.Matrix, error) {
	buckets := groupChunks(m.Groups, k)
	partials := make([][]float64, len(buckets))
	err := workpool.Run(k, len(buckets), func(i int) error {
		acc := make([]float64, m.Rows)
		for r := range acc {
			acc[r] = kind.Seed()
		}
		for _, g := range buckets[i] {
			g.UnaryAggregate(kind, block.ReduceRow, acc, 0, m.Rows)
		}
		partials[i] = acc
		return nil
	})
	if err != nil {
		return nil, workerErrorf(err, "unaryAggregate(ReduceRow)")
	}
	acc := make([]float64, m.Rows)
	for r := range acc {
		acc[r] = kind.Seed()
	}
	for _, p := range partials {
		for r, v := range p {
			acc[r] = kind.Combine(acc[r], v)
		}
	}
	if kind == block.AggMin || kind == block.AggMax {
		rowNnz := make([]int, m.Rows)
		for _, g := range m.Groups {
			g.CountNonZerosPerRow(rowNnz, 0, m.Rows)
		}
		for r := range acc {
			if rowNnz[r] < m.Cols {
				acc[r] = kind.Combine(acc[r], 0)
			}
		}
	}
	out := block.NewDense(m.Rows, 1)
	out.Dense = acc
	out.RecomputeNonZeros()
	return out, nil
}

func aggregateReduceCol(m *CompressedMatrix, kind block.AggKind, k int) (*block.Matrix, error) {
	chunks := rowChunks(m.Rows, k)
	partials := make([][]float64, len(chunks))
	err := workpool.RunEach(k, chunks, func(ch [2]int) error {
		i := sort.Search(len(chunks), func(j int) bool { return chunks[j][0] >= ch[0] })
		acc := make([]float64, m.Cols)
		for c := range acc {
			acc[c] = kind.Seed()
		}
		for _, g := range m.Groups {
			sub := make([]float64, len(g.Cols()))
			for j := range sub {
				sub[j] = kind.Seed()
			}
			g.UnaryAggregate(kind, block.ReduceCol, sub, ch[0], ch[1])
			for j, c := range g.Cols() {
				acc[c] = kind.Combine(acc[c], sub[j])
			}
		}
		partials[i] = acc
		return nil
	})
	if err != nil {
		return nil, workerErrorf(err, "unaryAggregate(ReduceCol)")
	}
	acc := make([]float64, m.Cols)
	for c := range acc {
		acc[c] = kind.Seed()
	}
	for _, p := range partials {
		for c, v := range p {
			acc[c] = kind.Combine(acc[c], v)
		}
	}
	if kind == block.AggMin || kind == block.AggMax {
		colNnz := make([]int, m.Cols)
		for _, g := range m.Groups {
			sub := make([]int, len(g.Cols()))
			g.CountNonZerosPerCol(sub)
			for j, c := range g.Cols() {
				colNnz[c] += sub[j]
			}
		}
		for c := range acc {
			if colNnz[c] < m.Rows {
				acc[c] = kind.Combine(acc[c], 0)
			}
		}
	}
	out := block.NewDense(1, m.Cols)
	out.Dense = acc
	out.RecomputeNonZeros()
	return out, nil
}

// ScalarOperation applies op to every cell and returns the resulting
// CompressedMatrix; each group decides independently whether it can
// stay bitmap-encoded or must materialize as Uncompressed (colgroup's
// ScalarOperation contract).
func ScalarOperation(m *CompressedMatrix, op block.ScalarOp) *CompressedMatrix {
	if blk, ok := m.singleUncompressedBlock(); ok {
		result := cloneUncompressedBlock(blk)
		result.Apply(op)
		result.RecomputeNonZeros()
		return &CompressedMatrix{
			Rows:   m.Rows,
			Cols:   m.Cols,
			Groups: []colgroup.ColGroup{colgroup.NewUncompressedGroup(identityCols(m.Cols), result)},
			nnz:    result.NonZeros(),
		}
	}
	groups := make([]colgroup.ColGroup, len(m.Groups))
	for i, g := range m.Groups {
		groups[i] = g.ScalarOperation(op)
	}
	out := &CompressedMatrix{Rows: m.Rows, Cols: m.Cols, Groups: groups}
	if op.PreservesZero() {
		out.nnz = m.nnz // a zero-preserving op cannot turn a zero cell non-zero, so m.nnz is an upper bound
	} else {
		out.nnz = int64(m.Rows) * int64(m.Cols)
	}
	return out
}

// CBind appends other's columns after m's. other is always a plain
// block and is always compressed first; an already-compressed matrix
// is not accepted as other. No re-co-coding is attempted: other's
// groups are kept as-is with their column indices shifted.
func CBind(m *CompressedMatrix, other *block.Matrix) (*CompressedMatrix, error) {
	if other.Rows != m.Rows {
		return nil, invariantf("cbind row count mismatch: %d vs %d", other.Rows, m.Rows)
	}
	rhs, err := Compress(other)
	if err != nil {
		return nil, err
	}
	groups := make([]colgroup.ColGroup, 0, len(m.Groups)+len(rhs.Groups))
	groups = append(groups, m.Groups...)
	for _, g := range rhs.Groups {
		g.ShiftColIndices(m.Cols)
		groups = append(groups, g)
	}
	return &CompressedMatrix{
		Rows:   m.Rows,
		Cols:   m.Cols + other.Cols,
		Groups: groups,
		nnz:    m.nnz + other.NonZeros(),
	}, nil
}
