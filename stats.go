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

import "time"

// CompressionStatistics reports what one Compress/CompressParallel
// call did: per-phase timings plus the size comparison that backs the
// reported compression ratio.
type CompressionStatistics struct {
	ClassifyTime time.Duration
	CoCodeTime   time.Duration
	EncodeTime   time.Duration
	CleanupTime  time.Duration

	// UncompressedSize and CompressedSize are both the exact
	// on-disk byte counts AppendTo would emit for the dense
	// uncompressed form and for the actual compressed form.
	UncompressedSize int64
	CompressedSize   int64
	Ratio            float64
	NumColGroups     int
}
