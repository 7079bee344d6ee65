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

// Package cfg holds the handful of process-wide constants this module
// is configured by. There is no runtime config surface: no CLI flags,
// no environment variables, no config files.
package cfg

const (
	// BSZ is the row-block (segment) size used to build OLE/RLE skip
	// tables: 2^16 rows.
	BSZ = 1 << 16

	// TransposeInput controls whether compress() works against a
	// transposed copy of the input so that per-column scans during
	// bitmap extraction are contiguous.
	TransposeInput = true

	// MaterializeZeros is always false: implicit zeros are never
	// stored as an explicit tuple unless a scalar op forces it, in
	// which case the resulting group is no longer bitmap-encoded.
	MaterializeZeros = false

	// MinParAggThreshold is the serialized-size cutoff above which a
	// threaded unary aggregate bothers splitting work across groups
	// or row ranges: 16 MiB.
	MinParAggThreshold = 16 * 1024 * 1024

	// SampleRows is the number of rows drawn into the fixed sample
	// used for every sample-based size estimate within one compress()
	// call.
	SampleRows = 2000

	// CoCodeCardinalityCeiling bounds the product of per-column
	// cardinalities the co-coder will pack into a single group, to
	// keep the joint tuple cardinality of a group manageable.
	CoCodeCardinalityCeiling = 8192
)
