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
	"math"

	"github.com/sneller-compress/cmatrix/bitmap"
	"github.com/sneller-compress/cmatrix/block"
	"github.com/sneller-compress/cmatrix/internal/cfg"
)

// RLEGroup is the run-length encoding: for every distinct tuple and
// every BSZ-row segment it appears in, the stream holds its maximal
// runs of consecutive rows as 16-bit (gap, runlen) pairs, gap being
// the segment-relative distance from the end of the previous run.
// The multi-segment layout mirrors OLEGroup's: a segStart skip table
// gives the byte offset of each tuple's entry in each segment.
type RLEGroup struct {
	*bitmapGroup
}

// NewRLEGroup wraps an extracted Bitmap as a run-length column group.
func NewRLEGroup(b *bitmap.Bitmap, numRows int) *RLEGroup {
	return &RLEGroup{newBitmapGroup(b, numRows)}
}

func (g *RLEGroup) Kind() Kind { return RLE }

func (g *RLEGroup) ScalarOperation(op block.ScalarOp) ColGroup {
	if !op.PreservesZero() {
		return g.materializeUncompressed(op)
	}
	tuples := g.scalarApply(op)
	nnzIn := make([]int, len(tuples))
	for i, tuple := range tuples {
		nnz := 0
		for _, v := range tuple {
			if v != 0 {
				nnz++
			}
		}
		nnzIn[i] = nnz
	}
	return &RLEGroup{&bitmapGroup{
		cols: append([]int(nil), g.cols...), numRows: g.numRows,
		tuples: tuples, offsets: g.offsets, skip: g.skip, nnzIn: nnzIn,
	}}
}

// runsOf returns the sorted offsets offs as maximal (startRow, length)
// runs of consecutive rows.
func runsOf(offs []int32) [][2]int32 {
	var out [][2]int32
	for i := 0; i < len(offs); {
		j := i + 1
		for j < len(offs) && offs[j] == offs[j-1]+1 {
			j++
		}
		out = append(out, [2]int32{offs[i], int32(j - i)})
		i = j
	}
	return out
}

// rleStream encodes, for tuple i and every non-empty BSZ segment, one
// (u16 numRuns-1, numRuns*(u16 gap, u16 runlen-1)) entry -- gap and
// runlen are segment-relative, mirroring oleStream's per-segment
// layout. numRuns and runlen both get the count-1 treatment because a
// segment can hold up to BSZ rows, which overflows a raw uint16; gap
// needs no such adjustment since a segment-relative position already
// fits in [0, BSZ-1]. segStart records the byte offset in stream
// where each tuple's segment-s entry begins, or -1 if that tuple has
// no rows in that segment.
func rleStream(g *bitmapGroup) (stream []byte, segStart []int32) {
	segs := numSegments(g.numRows)
	segStart = make([]int32, len(g.offsets)*segs)
	for i := range segStart {
		segStart[i] = -1
	}
	for t, offs := range g.offsets {
		for s := 0; s < segs; s++ {
			lo, hi := g.rowRange(t, s*cfg.BSZ, (s+1)*cfg.BSZ)
			if hi <= lo {
				continue
			}
			segStart[t*segs+s] = int32(len(stream))
			base := int32(s * cfg.BSZ)
			runs := runsOf(offs[lo:hi])
			stream = binary.LittleEndian.AppendUint16(stream, uint16(len(runs)-1))
			prevEnd := int32(0)
			for _, run := range runs {
				start := run[0] - base
				gap := start - prevEnd
				stream = binary.LittleEndian.AppendUint16(stream, uint16(gap))
				stream = binary.LittleEndian.AppendUint16(stream, uint16(run[1]-1))
				prevEnd = start + run[1]
			}
		}
	}
	return stream, segStart
}

func (g *RLEGroup) AppendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(g.cols)))
	for _, c := range g.cols {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(c))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(g.tuples)))
	for _, tuple := range g.tuples {
		for _, v := range tuple {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	stream, segStart := rleStream(g.bitmapGroup)
	buf = appendCompressedStream(buf, stream)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(segStart)))
	for _, v := range segStart {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
	}
	return buf
}

func (g *RLEGroup) ExactSizeOnDisk() int64 {
	return int64(len(g.AppendTo(nil)))
}

func decodeRLE(stream []byte, segStart []int32, numTuples, numRows int) ([][]int32, error) {
	segs := numSegments(numRows)
	if len(segStart) != numTuples*segs {
		return nil, fmt.Errorf("colgroup: RLE skip table length %d, want %d", len(segStart), numTuples*segs)
	}
	offsets := make([][]int32, numTuples)
	for t := 0; t < numTuples; t++ {
		var rows []int32
		for s := 0; s < segs; s++ {
			start := segStart[t*segs+s]
			if start < 0 {
				continue
			}
			pos := int(start)
			if len(stream)-pos < 2 {
				return nil, fmt.Errorf("colgroup: short RLE stream reading numRuns")
			}
			numRuns := int(binary.LittleEndian.Uint16(stream[pos:])) + 1
			pos += 2
			base := int32(s * cfg.BSZ)
			row := int32(0)
			for i := 0; i < numRuns; i++ {
				if len(stream)-pos < 4 {
					return nil, fmt.Errorf("colgroup: short RLE stream reading run")
				}
				gap := int32(binary.LittleEndian.Uint16(stream[pos:]))
				pos += 2
				length := int32(binary.LittleEndian.Uint16(stream[pos:])) + 1
				pos += 2
				row += gap
				for k := int32(0); k < length; k++ {
					rows = append(rows, base+row+k)
				}
				row += length
			}
		}
		offsets[t] = rows
	}
	return offsets, nil
}
