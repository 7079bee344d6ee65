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

// Package cmatrix implements a column-group compressed in-memory
// matrix representation: a matrix is classified, columns that share
// enough of a joint value distribution are co-coded, and the
// resulting groups are bitmap-encoded (OLE or RLE) or left
// uncompressed, whichever is smaller. Linear-algebra kernels operate
// directly on the compressed groups without fully decompressing the
// matrix; a kernel that cannot support an operation on the compressed
// form at all returns an UnsupportedError rather than guessing at a
// fallback.
package cmatrix

import (
	"container/heap"
	"sort"
	"time"

	"github.com/sneller-compress/cmatrix/bitmap"
	"github.com/sneller-compress/cmatrix/block"
	"github.com/sneller-compress/cmatrix/cocode"
	"github.com/sneller-compress/cmatrix/colgroup"
	"github.com/sneller-compress/cmatrix/estim"
	"github.com/sneller-compress/cmatrix/internal/cfg"
	"github.com/sneller-compress/cmatrix/internal/workpool"
)

// CompressedMatrix is an R x C matrix represented as a disjoint set of
// column groups, each covering a distinct subset of the C columns.
type CompressedMatrix struct {
	Rows, Cols int
	Groups     []colgroup.ColGroup
	nnz        int64
	Stats      CompressionStatistics
}

// NumRows and NumCols report the logical dimensions.
func (m *CompressedMatrix) NumRows() int { return m.Rows }
func (m *CompressedMatrix) NumCols() int { return m.Cols }

// NonZeros returns the cached non-zero count.
func (m *CompressedMatrix) NonZeros() int64 { return m.nnz }

// Get returns the value at (r, c) by locating the owning group via
// binary search over each group's sorted column list, mirroring the
// original implementation's quickGetValue.
func (m *CompressedMatrix) Get(r, c int) float64 {
	g := m.groupFor(c)
	if g == nil {
		return 0
	}
	return g.Get(r, c)
}

func (m *CompressedMatrix) groupFor(c int) colgroup.ColGroup {
	for _, g := range m.Groups {
		cols := g.Cols()
		i := sort.SearchInts(cols, c)
		if i < len(cols) && cols[i] == c {
			return g
		}
	}
	return nil
}

// singleUncompressedBlock reports whether m compressed to exactly one
// Uncompressed group and, if so, returns its backing block directly.
// Every kernel checks this first so the common dense-continuous-matrix
// case (scenario seed 2) calls straight into the block instead of
// going through the generic per-group dispatch loop.
func (m *CompressedMatrix) singleUncompressedBlock() (*block.Matrix, bool) {
	if len(m.Groups) != 1 {
		return nil, false
	}
	return colgroup.AsSingleUncompressed(m.Groups[0])
}

// cloneUncompressedBlock copies src into a fresh dense block, used by
// the single-uncompressed-group fast paths so a caller can't mutate
// the group's own backing storage through the returned result.
func cloneUncompressedBlock(src *block.Matrix) *block.Matrix {
	out := block.NewDense(src.Rows, src.Cols)
	for r := 0; r < src.Rows; r++ {
		for c := 0; c < src.Cols; c++ {
			if v := src.QuickGet(r, c); v != 0 {
				out.QuickSet(r, c, v)
			}
		}
	}
	out.SetNonZeros(src.NonZeros())
	return out
}

// Compress builds a CompressedMatrix from m using a single goroutine.
func Compress(m *block.Matrix) (*CompressedMatrix, error) {
	return compress(m, 1)
}

// CompressParallel is Compress with classify and encode work spread
// across up to k goroutines.
func CompressParallel(m *block.Matrix, k int) (*CompressedMatrix, error) {
	return compress(m, k)
}

func compress(m *block.Matrix, k int) (*CompressedMatrix, error) {
	if k < 1 {
		k = 1
	}
	numRows, numCols := m.Rows, m.Cols
	result := &CompressedMatrix{Rows: numRows, Cols: numCols, nnz: m.NonZeros()}

	if m.IsEmpty() {
		result.Groups = []colgroup.ColGroup{
			colgroup.NewUncompressedGroup(identityCols(numCols), block.NewDense(numRows, numCols)),
		}
		return result, nil
	}

	var trans *block.Matrix
	if cfg.TransposeInput {
		trans = m.Transpose()
	} else {
		trans = m
	}

	t0 := time.Now()
	infos, err := classify(trans, numRows, numCols, k)
	if err != nil {
		return nil, err
	}
	classifyTime := time.Since(t0)

	var candidates, direct []cocode.ColumnInfo
	for _, info := range infos {
		if info.Ratio > 1 {
			candidates = append(candidates, info)
		} else {
			direct = append(direct, info)
		}
	}

	t1 := time.Now()
	sampleEst := estim.NewSampleEstimator(trans, numRows)
	plan := cocode.Plan(sampleEst, candidates)
	coCodeTime := time.Since(t1)

	t2 := time.Now()
	infoByCol := make(map[int]cocode.ColumnInfo, len(infos))
	for _, info := range infos {
		infoByCol[info.Col] = info
	}
	groups, leftover, err := encodeGroups(trans, numRows, plan, infoByCol, k)
	if err != nil {
		return nil, err
	}
	encodeTime := time.Since(t2)

	t3 := time.Now()
	for _, info := range direct {
		leftover = append(leftover, info.Col)
	}
	if len(leftover) > 0 {
		sort.Ints(leftover)
		groups = append(groups, cleanupGroup(trans, numRows, leftover))
	}
	cleanupTime := time.Since(t3)

	result.Groups = groups
	result.Stats = CompressionStatistics{
		ClassifyTime:   classifyTime,
		CoCodeTime:     coCodeTime,
		EncodeTime:     encodeTime,
		CleanupTime:    cleanupTime,
		NumColGroups:   len(groups),
	}
	result.Stats.UncompressedSize = uncompressedDiskBytes(numRows, numCols)
	result.Stats.CompressedSize = result.exactSizeOnDisk()
	if result.Stats.CompressedSize > 0 {
		result.Stats.Ratio = float64(result.Stats.UncompressedSize) / float64(result.Stats.CompressedSize)
	}
	return result, nil
}

func identityCols(n int) []int {
	cols := make([]int, n)
	for i := range cols {
		cols[i] = i
	}
	return cols
}

// classify computes, for every column, its estimated bitmap
// cardinality and compression ratio (uncompressed bytes over the
// smaller of the OLE/RLE sample estimate), using up to k goroutines.
func classify(trans *block.Matrix, numRows, numCols, k int) ([]cocode.ColumnInfo, error) {
	est := estim.NewSampleEstimator(trans, numRows)
	infos := make([]cocode.ColumnInfo, numCols)
	singleUncompressed := uncompressedDiskBytes(numRows, 1)
	err := workpool.Run(k, numCols, func(c int) error {
		info := est.Estimate([]int{c})
		size := info.MinSize()
		ratio := float64(singleUncompressed) / float64(maxInt64(1, size))
		infos[c] = cocode.ColumnInfo{Col: c, Cardinality: info.EstCardinality, Size: size, Ratio: ratio}
		return nil
	})
	if err != nil {
		return nil, workerErrorf(err, "classify")
	}
	return infos, nil
}

// colRatioHeap is a min-heap over ColumnInfo ordered by ascending
// Ratio, so Pop always yields the worst remaining column -- the
// refinement loop's eviction candidate.
type colRatioHeap []cocode.ColumnInfo

func (h colRatioHeap) Len() int            { return len(h) }
func (h colRatioHeap) Less(i, j int) bool  { return h[i].Ratio < h[j].Ratio }
func (h colRatioHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *colRatioHeap) Push(x interface{}) { *h = append(*h, x.(cocode.ColumnInfo)) }
func (h *colRatioHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// encodeGroups builds one bitmap column group per planned group,
// refining (evicting its worst-ratio column) until the group's exact
// bitmap size beats storing it uncompressed or the group runs empty.
// Evicted and emptied-out columns are returned as leftover, destined
// for the single cleanup Uncompressed group.
func encodeGroups(trans *block.Matrix, numRows int, plan [][]int, infoByCol map[int]cocode.ColumnInfo, k int) ([]colgroup.ColGroup, []int, error) {
	type outcome struct {
		group    colgroup.ColGroup
		leftover []int
	}
	outcomes := make([]outcome, len(plan))
	err := workpool.Run(k, len(plan), func(i int) error {
		g, left := encodeOneGroup(trans, numRows, plan[i], infoByCol)
		outcomes[i] = outcome{group: g, leftover: left}
		return nil
	})
	if err != nil {
		return nil, nil, workerErrorf(err, "encode")
	}
	var groups []colgroup.ColGroup
	var leftover []int
	for _, o := range outcomes {
		if o.group != nil {
			groups = append(groups, o.group)
		}
		leftover = append(leftover, o.leftover...)
	}
	return groups, leftover, nil
}

func encodeOneGroup(trans *block.Matrix, numRows int, cols []int, infoByCol map[int]cocode.ColumnInfo) (colgroup.ColGroup, []int) {
	h := make(colRatioHeap, 0, len(cols))
	remaining := make(map[int]bool, len(cols))
	for _, c := range cols {
		h = append(h, infoByCol[c])
		remaining[c] = true
	}
	heap.Init(&h)

	var evicted []int
	for len(remaining) > 0 {
		active := activeCols(cols, remaining)
		b := bitmap.Extract(active, trans, numRows)
		info := estim.SizeInfoFromBitmap(b, numRows)
		uncSize := uncompressedDiskBytes(numRows, len(active))
		if info.MinSize() < uncSize {
			if info.RLESize <= info.OLESize {
				return colgroup.NewRLEGroup(b, numRows), evicted
			}
			return colgroup.NewOLEGroup(b, numRows), evicted
		}
		// evict the worst-ratio remaining column and try again.
		for h.Len() > 0 {
			worst := heap.Pop(&h).(cocode.ColumnInfo)
			if remaining[worst.Col] {
				delete(remaining, worst.Col)
				evicted = append(evicted, worst.Col)
				break
			}
		}
		if h.Len() == 0 && len(remaining) > 0 {
			// heap exhausted without draining remaining (should not
			// happen since h was seeded from cols); bail out safely.
			for c := range remaining {
				evicted = append(evicted, c)
			}
			remaining = nil
		}
	}
	return nil, evicted
}

func activeCols(cols []int, remaining map[int]bool) []int {
	out := make([]int, 0, len(remaining))
	for _, c := range cols {
		if remaining[c] {
			out = append(out, c)
		}
	}
	sort.Ints(out)
	return out
}

func cleanupGroup(trans *block.Matrix, numRows int, cols []int) colgroup.ColGroup {
	m := block.NewDense(numRows, len(cols))
	for pos, c := range cols {
		for r := 0; r < numRows; r++ {
			v := trans.QuickGet(c, r)
			if v != 0 {
				m.QuickSet(r, pos, v)
			}
		}
	}
	m.RecomputeNonZeros()
	return colgroup.NewUncompressedGroup(cols, m)
}

func uncompressedDiskBytes(numRows, numCols int) int64 {
	return 17 + int64(numRows)*int64(numCols)*8
}

func (m *CompressedMatrix) exactSizeOnDisk() int64 {
	var n int64 = 1 + 4 + 4 + 8 + 4
	for _, g := range m.Groups {
		n += 1 + g.ExactSizeOnDisk()
	}
	return n
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
