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
	"encoding/binary"

	"github.com/sneller-compress/cmatrix/block"
	"github.com/sneller-compress/cmatrix/colgroup"
)

// AppendTo appends the binary encoding of m to buf: a leading
// "compressed" flag (always true for a CompressedMatrix), dimensions,
// non-zero count, group count, and then each group's kind byte plus
// its own serialized body.
func (m *CompressedMatrix) AppendTo(buf []byte) []byte {
	buf = append(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Rows))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Cols))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.nnz))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.Groups)))
	for _, g := range m.Groups {
		buf = colgroup.WriteColGroup(buf, g)
	}
	return buf
}

// ExactSizeOnDisk returns the exact number of bytes AppendTo will add.
func (m *CompressedMatrix) ExactSizeOnDisk() int64 {
	return m.exactSizeOnDisk()
}

// Read decodes a CompressedMatrix written by AppendTo. If the leading
// flag byte is zero, the rest is read via block.ReadMatrix instead and
// wrapped as a single Uncompressed group, so Read also accepts a zero
// byte followed by block.Matrix.AppendTo output. Output of
// block.Matrix.AppendTo without that leading byte is not accepted.
func Read(data []byte) (*CompressedMatrix, int, error) {
	if len(data) < 1 {
		return nil, 0, ioErrorf(errEOF, "reading compressed flag")
	}
	compressed := data[0] != 0
	if !compressed {
		m, n, err := block.ReadMatrix(data[1:])
		if err != nil {
			return nil, 0, ioErrorf(err, "reading uncompressed payload")
		}
		return &CompressedMatrix{
			Rows: m.Rows, Cols: m.Cols, nnz: m.NonZeros(),
			Groups: []colgroup.ColGroup{colgroup.NewUncompressedGroup(identityCols(m.Cols), m)},
		}, n + 1, nil
	}
	pos := 1
	if len(data)-pos < 20 {
		return nil, 0, ioErrorf(errEOF, "reading header")
	}
	rows := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	cols := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	nnz := int64(binary.LittleEndian.Uint64(data[pos:]))
	pos += 8
	numGroups := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4

	groups := make([]colgroup.ColGroup, numGroups)
	for i := 0; i < numGroups; i++ {
		g, n, err := colgroup.ReadColGroup(data[pos:], rows)
		if err != nil {
			return nil, 0, ioErrorf(err, "reading group %d", i)
		}
		groups[i] = g
		pos += n
	}
	return &CompressedMatrix{Rows: rows, Cols: cols, nnz: nnz, Groups: groups}, pos, nil
}

type eofMarker struct{}

func (eofMarker) Error() string { return "unexpected end of buffer" }

var errEOF = eofMarker{}
