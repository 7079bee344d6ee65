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

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AppendTo appends the binary encoding of m to buf and returns the
// result. The format is little-endian throughout: a sparse flag, the
// dimensions, the non-zero count, and then either Rows*Cols float64s
// (dense) or, per row, a count followed by that many (col, val) pairs
// (sparse).
func (m *Matrix) AppendTo(buf []byte) []byte {
	if m.Sparse {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Rows))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Cols))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.nnz))
	if !m.Sparse {
		for _, v := range m.Dense {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
		return buf
	}
	for i := range m.Row {
		row := &m.Row[i]
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(row.Cols)))
		for j, c := range row.Cols {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(c))
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(row.Vals[j]))
		}
	}
	return buf
}

// ExactSizeOnDisk returns the exact number of bytes AppendTo will add.
func (m *Matrix) ExactSizeOnDisk() int64 {
	n := int64(1 + 4 + 4 + 8)
	if !m.Sparse {
		return n + int64(len(m.Dense))*8
	}
	for i := range m.Row {
		n += 4 + int64(len(m.Row[i].Cols))*(4+8)
	}
	return n
}

// ReadMatrix decodes a Matrix written by AppendTo starting at data[0]
// and returns the matrix plus the number of bytes consumed.
func ReadMatrix(data []byte) (*Matrix, int, error) {
	if len(data) < 17 {
		return nil, 0, fmt.Errorf("block: short buffer, need 17 header bytes, have %d", len(data))
	}
	sparse := data[0] != 0
	rows := int(binary.LittleEndian.Uint32(data[1:]))
	cols := int(binary.LittleEndian.Uint32(data[5:]))
	nnz := int64(binary.LittleEndian.Uint64(data[9:]))
	pos := 17
	m := &Matrix{Rows: rows, Cols: cols, Sparse: sparse, nnz: nnz}
	if !sparse {
		need := rows * cols * 8
		if len(data)-pos < need {
			return nil, 0, fmt.Errorf("block: need %d dense bytes, have %d", need, len(data)-pos)
		}
		m.Dense = make([]float64, rows*cols)
		for i := range m.Dense {
			m.Dense[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[pos:]))
			pos += 8
		}
		return m, pos, nil
	}
	m.Row = make([]SparseRow, rows)
	for r := 0; r < rows; r++ {
		if len(data)-pos < 4 {
			return nil, 0, fmt.Errorf("block: short buffer reading row %d count", r)
		}
		n := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		need := n * (4 + 8)
		if len(data)-pos < need {
			return nil, 0, fmt.Errorf("block: need %d bytes for row %d, have %d", need, r, len(data)-pos)
		}
		row := SparseRow{Cols: make([]int32, n), Vals: make([]float64, n)}
		for i := 0; i < n; i++ {
			row.Cols[i] = int32(binary.LittleEndian.Uint32(data[pos:]))
			pos += 4
			row.Vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[pos:]))
			pos += 8
		}
		m.Row[r] = row
		pos += 0
	}
	return m, pos, nil
}
