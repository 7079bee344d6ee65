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

// OLEGroup is the offset-list encoding: for every distinct tuple and
// every BSZ-row segment it appears in, the stream holds the count of
// rows in that segment followed by their segment-relative offsets.
type OLEGroup struct {
	*bitmapGroup
}

// NewOLEGroup wraps an extracted Bitmap as an offset-list column group.
func NewOLEGroup(b *bitmap.Bitmap, numRows int) *OLEGroup {
	return &OLEGroup{newBitmapGroup(b, numRows)}
}

func (g *OLEGroup) Kind() Kind { return OLE }

func (g *OLEGroup) ScalarOperation(op block.ScalarOp) ColGroup {
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
	return &OLEGroup{&bitmapGroup{
		cols: append([]int(nil), g.cols...), numRows: g.numRows,
		tuples: tuples, offsets: g.offsets, skip: g.skip, nnzIn: nnzIn,
	}}
}

// oleStream encodes, for tuple i, one (u16 count, count*u16 offset)
// entry per non-empty BSZ segment. segStart records the byte offset in
// stream where each tuple's segment-s entry begins, or -1 if that
// tuple has no rows in that segment.
func oleStream(g *bitmapGroup) (stream []byte, segStart []int32) {
	segs := numSegments(g.numRows)
	segStart = make([]int32, len(g.tuples)*segs)
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
			// count is in [1, BSZ] (BSZ == 1<<16 overflows a uint16), so
			// store count-1 and recover count on decode.
			stream = binary.LittleEndian.AppendUint16(stream, uint16(hi-lo-1))
			base := int32(s * cfg.BSZ)
			for _, off := range offs[lo:hi] {
				stream = binary.LittleEndian.AppendUint16(stream, uint16(off-base))
			}
		}
	}
	return stream, segStart
}

func (g *OLEGroup) AppendTo(buf []byte) []byte {
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
	stream, segStart := oleStream(g.bitmapGroup)
	buf = appendCompressedStream(buf, stream)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(segStart)))
	for _, v := range segStart {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
	}
	return buf
}

func (g *OLEGroup) ExactSizeOnDisk() int64 {
	return int64(len(g.AppendTo(nil)))
}

func readBitmapGroup(data []byte, numRows int, kind Kind) (ColGroup, int, error) {
	pos := 0
	if len(data)-pos < 4 {
		return nil, 0, fmt.Errorf("colgroup: short buffer reading numCols")
	}
	numCols := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	cols := make([]int, numCols)
	for i := range cols {
		cols[i] = int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
	}
	if len(data)-pos < 4 {
		return nil, 0, fmt.Errorf("colgroup: short buffer reading numTuples")
	}
	numTuples := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	tuples := make([][]float64, numTuples)
	for i := range tuples {
		tuple := make([]float64, numCols)
		for j := range tuple {
			tuple[j] = math.Float64frombits(binary.LittleEndian.Uint64(data[pos:]))
			pos += 8
		}
		tuples[i] = tuple
	}
	stream, n, err := readCompressedStream(data[pos:])
	if err != nil {
		return nil, 0, err
	}
	pos += n
	if len(data)-pos < 4 {
		return nil, 0, fmt.Errorf("colgroup: short buffer reading table length")
	}
	tableLen := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	table := make([]int32, tableLen)
	for i := range table {
		table[i] = int32(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
	}

	g := &bitmapGroup{cols: cols, numRows: numRows, tuples: tuples, nnzIn: make([]int, numTuples)}
	for i, tuple := range tuples {
		nnz := 0
		for _, v := range tuple {
			if v != 0 {
				nnz++
			}
		}
		g.nnzIn[i] = nnz
	}

	switch kind {
	case OLE:
		g.offsets, err = decodeOLE(stream, table, numTuples, numRows)
	case RLE:
		g.offsets, err = decodeRLE(stream, table, numTuples, numRows)
	}
	if err != nil {
		return nil, 0, err
	}
	g.skip = make([][]int32, numTuples)
	for i, offs := range g.offsets {
		g.skip[i] = buildSkipTable(offs, numRows)
	}

	if kind == OLE {
		return &OLEGroup{g}, pos, nil
	}
	return &RLEGroup{g}, pos, nil
}

func decodeOLE(stream []byte, segStart []int32, numTuples, numRows int) ([][]int32, error) {
	segs := numSegments(numRows)
	if len(segStart) != numTuples*segs {
		return nil, fmt.Errorf("colgroup: OLE skip table length %d, want %d", len(segStart), numTuples*segs)
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
				return nil, fmt.Errorf("colgroup: short OLE stream reading count")
			}
			count := int(binary.LittleEndian.Uint16(stream[pos:])) + 1
			pos += 2
			base := int32(s * cfg.BSZ)
			for i := 0; i < count; i++ {
				if len(stream)-pos < 2 {
					return nil, fmt.Errorf("colgroup: short OLE stream reading offset")
				}
				rows = append(rows, base+int32(binary.LittleEndian.Uint16(stream[pos:])))
				pos += 2
			}
		}
		offsets[t] = rows
	}
	return offsets, nil
}
