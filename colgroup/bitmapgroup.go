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
	"sort"

	"github.com/sneller-compress/cmatrix/bitmap"
	"github.com/sneller-compress/cmatrix/block"
	"github.com/sneller-compress/cmatrix/compr"
	"github.com/sneller-compress/cmatrix/internal/cfg"
)

// streamCodec is the compressor applied to OLE/RLE offset/run-length
// stream bytes before they hit disk -- the part of a bitmap group's
// serialized form that holds the most compressible redundancy (runs of
// small integers). s2 is chosen over zstd for its much higher
// decode throughput, matching the random-access Get/DecompressInto
// pattern these groups are read back under.
var streamCodec = compr.Compression("s2")
var streamDecodec = compr.Decompression("s2")

// appendCompressedStream appends stream to buf as a u32 uncompressed
// length, a u32 compressed length, and the compressed bytes.
func appendCompressedStream(buf, stream []byte) []byte {
	packed := streamCodec.Compress(stream, nil)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(stream)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(packed)))
	buf = append(buf, packed...)
	return buf
}

// readCompressedStream reads the layout appendCompressedStream writes
// and returns the decompressed stream plus the number of bytes consumed
// from data.
func readCompressedStream(data []byte) (stream []byte, n int, err error) {
	pos := 0
	if len(data)-pos < 8 {
		return nil, 0, fmt.Errorf("colgroup: short buffer reading stream lengths")
	}
	rawLen := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	packedLen := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	if len(data)-pos < packedLen {
		return nil, 0, fmt.Errorf("colgroup: short buffer reading compressed stream")
	}
	packed := data[pos : pos+packedLen]
	pos += packedLen
	stream = make([]byte, rawLen)
	if rawLen > 0 {
		if err := streamDecodec.Decompress(packed, stream); err != nil {
			return nil, 0, fmt.Errorf("colgroup: decompressing stream: %w", err)
		}
	}
	return stream, pos, nil
}

// bitmapGroup is the in-memory representation shared by OLEGroup and
// RLEGroup. Both encode the same data -- distinct value tuples plus,
// for each tuple, the sorted rows at which it occurs -- and differ
// only in how that row list is serialized to bytes. Keeping one core
// implementation and two thin serializers avoids duplicating the
// get/decompress/multiply/aggregate logic across two nearly-identical
// classes the way the original split OLE and RLE into separate types.
type bitmapGroup struct {
	cols    []int
	numRows int
	tuples  [][]float64
	offsets [][]int32 // sorted ascending row indices per tuple
	skip    [][]int32 // skip[i][s] = first index into offsets[i] with row >= s*BSZ; len(skip[i]) == numSegments+1
	nnzIn   []int     // non-zero count within each tuple
}

func numSegments(numRows int) int {
	if numRows == 0 {
		return 0
	}
	return (numRows + cfg.BSZ - 1) / cfg.BSZ
}

func buildSkipTable(offsets []int32, numRows int) []int32 {
	segs := numSegments(numRows)
	skip := make([]int32, segs+1)
	pos := 0
	for s := 0; s <= segs; s++ {
		bound := int32(s * cfg.BSZ)
		for pos < len(offsets) && offsets[pos] < bound {
			pos++
		}
		skip[s] = int32(pos)
	}
	return skip
}

// newBitmapGroup builds the shared core from an extracted Bitmap.
func newBitmapGroup(b *bitmap.Bitmap, numRows int) *bitmapGroup {
	g := &bitmapGroup{
		cols:    append([]int(nil), b.Cols...),
		numRows: numRows,
		tuples:  make([][]float64, b.NumTuples()),
		offsets: make([][]int32, b.NumTuples()),
		skip:    make([][]int32, b.NumTuples()),
		nnzIn:   make([]int, b.NumTuples()),
	}
	for i := range g.tuples {
		g.tuples[i] = append([]float64(nil), b.Tuples[i]...)
		rows := b.SortedRows(i)
		offs := make([]int32, len(rows))
		for j, r := range rows {
			offs[j] = int32(r)
		}
		g.offsets[i] = offs
		g.skip[i] = buildSkipTable(offs, numRows)
		nnz := 0
		for _, v := range g.tuples[i] {
			if v != 0 {
				nnz++
			}
		}
		g.nnzIn[i] = nnz
	}
	return g
}

func (g *bitmapGroup) Cols() []int  { return g.cols }
func (g *bitmapGroup) NumRows() int { return g.numRows }

func (g *bitmapGroup) colPos(c int) int {
	for i, gc := range g.cols {
		if gc == c {
			return i
		}
	}
	return -1
}

// rowRange returns [lo, hi) positions into g.offsets[i] covering rows
// in [rl, ru), using the skip table to seed the binary search instead
// of scanning from the start of the tuple's row list.
func (g *bitmapGroup) rowRange(i, rl, ru int) (int, int) {
	offs := g.offsets[i]
	skip := g.skip[i]
	segLo := rl / cfg.BSZ
	if segLo >= len(skip) {
		segLo = len(skip) - 1
	}
	start := int(skip[segLo])
	lo := start + sort.Search(len(offs)-start, func(k int) bool { return int(offs[start+k]) >= rl })

	segHi := ru / cfg.BSZ
	if segHi >= len(skip) {
		segHi = len(skip) - 1
	}
	hiStart := int(skip[segHi])
	hi := hiStart + sort.Search(len(offs)-hiStart, func(k int) bool { return int(offs[hiStart+k]) >= ru })
	return lo, hi
}

func (g *bitmapGroup) Get(r, c int) float64 {
	pos := g.colPos(c)
	if pos < 0 {
		return 0
	}
	for i, offs := range g.offsets {
		j := sort.Search(len(offs), func(k int) bool { return int(offs[k]) >= r })
		if j < len(offs) && int(offs[j]) == r {
			return g.tuples[i][pos]
		}
	}
	return 0
}

func (g *bitmapGroup) DecompressInto(dst *block.Matrix, rl, ru int) {
	for i, offs := range g.offsets {
		lo, hi := g.rowRange(i, rl, ru)
		tuple := g.tuples[i]
		for _, off := range offs[lo:hi] {
			r := int(off)
			for pos, c := range g.cols {
				dst.QuickSet(r, c, tuple[pos])
			}
		}
	}
}

func (g *bitmapGroup) CountNonZerosPerRow(counts []int, rl, ru int) {
	for i, offs := range g.offsets {
		if g.nnzIn[i] == 0 {
			continue
		}
		lo, hi := g.rowRange(i, rl, ru)
		for _, off := range offs[lo:hi] {
			counts[int(off)] += g.nnzIn[i]
		}
	}
}

func (g *bitmapGroup) CountNonZerosPerCol(counts []int) {
	for i, tuple := range g.tuples {
		n := len(g.offsets[i])
		for pos, v := range tuple {
			if v != 0 {
				counts[pos] += n
			}
		}
	}
}

func (g *bitmapGroup) RightMultByVector(v []float64, out []float64, rl, ru int) {
	for i, offs := range g.offsets {
		tuple := g.tuples[i]
		var s float64
		for pos, c := range g.cols {
			s += tuple[pos] * v[c]
		}
		if s == 0 {
			continue
		}
		lo, hi := g.rowRange(i, rl, ru)
		for _, off := range offs[lo:hi] {
			out[int(off)] += s
		}
	}
}

func (g *bitmapGroup) LeftMultByRowVector(vRow []float64, out []float64) {
	for i, offs := range g.offsets {
		var s float64
		for _, off := range offs {
			s += vRow[int(off)]
		}
		if s == 0 {
			continue
		}
		tuple := g.tuples[i]
		for pos, c := range g.cols {
			out[c] += s * tuple[pos]
		}
	}
}

func (g *bitmapGroup) UnaryAggregate(kind block.AggKind, idx block.IndexFn, acc []float64, rl, ru int) {
	switch idx {
	case block.ReduceAll:
		for i := range g.offsets {
			lo, hi := g.rowRange(i, rl, ru)
			count := hi - lo
			if count == 0 {
				continue
			}
			tuple := g.tuples[i]
			switch kind {
			case block.AggSum:
				for _, v := range tuple {
					acc[0] += float64(count) * v
				}
			case block.AggSumSq:
				for _, v := range tuple {
					acc[0] += float64(count) * v * v
				}
			default:
				for _, v := range tuple {
					acc[0] = kind.Contribute(acc[0], v)
				}
			}
		}
	case block.ReduceRow:
		for i, offs := range g.offsets {
			lo, hi := g.rowRange(i, rl, ru)
			if lo == hi {
				continue
			}
			tupleScalar := kind.Seed()
			for _, v := range g.tuples[i] {
				tupleScalar = kind.Contribute(tupleScalar, v)
			}
			for _, off := range offs[lo:hi] {
				acc[int(off)] = kind.Combine(acc[int(off)], tupleScalar)
			}
		}
	case block.ReduceCol:
		for i := range g.offsets {
			lo, hi := g.rowRange(i, rl, ru)
			count := hi - lo
			if count == 0 {
				continue
			}
			tuple := g.tuples[i]
			for pos, v := range tuple {
				switch kind {
				case block.AggSum:
					acc[pos] += float64(count) * v
				case block.AggSumSq:
					acc[pos] += float64(count) * v * v
				default:
					acc[pos] = kind.Combine(acc[pos], v)
				}
			}
		}
	}
}

func (g *bitmapGroup) ShiftColIndices(offset int) {
	for i := range g.cols {
		g.cols[i] += offset
	}
}

func (g *bitmapGroup) EstimateInMemorySize() int64 {
	var n int64 = 64
	for i := range g.tuples {
		n += int64(len(g.tuples[i])) * 8
		n += int64(len(g.offsets[i])) * 4
		n += int64(len(g.skip[i])) * 4
	}
	return n
}

// scalarApply runs op over every tuple value and returns the mapped
// tuples -- shared by OLEGroup.ScalarOperation and
// RLEGroup.ScalarOperation.
func (g *bitmapGroup) scalarApply(op block.ScalarOp) [][]float64 {
	out := make([][]float64, len(g.tuples))
	for i, tuple := range g.tuples {
		mapped := make([]float64, len(tuple))
		for j, v := range tuple {
			mapped[j] = op.Fn(v)
		}
		out[i] = mapped
	}
	return out
}

// materializeUncompressed rebuilds this group as a fully dense
// Uncompressed group under op, used when op does not preserve zero and
// the implicit zeros of rows this group's tuples do not cover must
// become explicit.
func (g *bitmapGroup) materializeUncompressed(op block.ScalarOp) *uncompressedGroup {
	m := block.NewDense(g.numRows, len(g.cols))
	fill := op.Fn(0)
	if fill != 0 {
		for i := range m.Dense {
			m.Dense[i] = fill
		}
	}
	for i, offs := range g.offsets {
		tuple := g.tuples[i]
		for _, off := range offs {
			r := int(off)
			for pos := range g.cols {
				m.QuickSet(r, pos, op.Fn(tuple[pos]))
			}
		}
	}
	m.RecomputeNonZeros()
	return &uncompressedGroup{cols: append([]int(nil), g.cols...), block: m}
}
