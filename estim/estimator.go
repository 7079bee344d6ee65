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

// Package estim projects the compressed size of a candidate column set
// before it is actually encoded, either from a fixed row sample or
// (for the recompress-and-check step) from the exact bitmap.
package estim

import (
	"math"

	"github.com/sneller-compress/cmatrix/bitmap"
	"github.com/sneller-compress/cmatrix/block"
	"github.com/sneller-compress/cmatrix/internal/cfg"
)

// SizeInfo is the projected compressed size of one candidate column
// group, under both encodings.
type SizeInfo struct {
	EstCardinality int
	RLESize        int64
	OLESize        int64
}

// MinSize returns the smaller of the two encoding sizes -- the size
// that would actually be used were this group compressed now.
func (s SizeInfo) MinSize() int64 {
	if s.RLESize < s.OLESize {
		return s.RLESize
	}
	return s.OLESize
}

// Estimator estimates SizeInfo for candidate column sets of
// a single transposed source block. Constructing an Estimator fixes
// its row sample (if any) so every estimate made from it during one
// compression call is consistent with every other.
type Estimator struct {
	transposed *block.Matrix
	numRows    int
	sample     []int // nil selects the exact (full-scan) estimator
}

// NewSampleEstimator builds a sample-based estimator over a fixed
// stride sample of up to cfg.SampleRows rows, chosen once so that
// every subsequent Estimate call during this compression is based on
// the same sample.
func NewSampleEstimator(transposed *block.Matrix, numRows int) *Estimator {
	return &Estimator{transposed: transposed, numRows: numRows, sample: strideSample(numRows, cfg.SampleRows)}
}

// NewExactEstimator builds an estimator that scans every row; it is a
// drop-in replacement for the sample-based estimator when exactness
// matters more than speed.
func NewExactEstimator(transposed *block.Matrix, numRows int) *Estimator {
	return &Estimator{transposed: transposed, numRows: numRows}
}

// IsSampleBased reports whether this estimator projects from a
// sample rather than scanning every row.
func (e *Estimator) IsSampleBased() bool { return e.sample != nil }

func strideSample(numRows, want int) []int {
	if numRows <= want {
		out := make([]int, numRows)
		for i := range out {
			out[i] = i
		}
		return out
	}
	stride := (numRows + want - 1) / want
	if stride < 1 {
		stride = 1
	}
	out := make([]int, 0, want)
	for r := 0; r < numRows; r += stride {
		out = append(out, r)
	}
	return out
}

// Estimate returns the projected SizeInfo for the given
// column positions (indices into the original column space).
func (e *Estimator) Estimate(cols []int) SizeInfo {
	if e.sample == nil {
		b := bitmap.Extract(cols, e.transposed, e.numRows)
		return SizeInfoFromBitmap(b, e.numRows)
	}
	b := bitmap.ExtractAt(cols, e.transposed, e.sample)
	return scaleSampleSizeInfo(b, len(e.sample), e.numRows)
}

// SizeInfoFromBitmap computes the exact SizeInfo implied by
// an already-extracted bitmap over numRows total rows. This is the
// function the compression pipeline calls after building the exact
// bitmap for a candidate group in phase 3, so the projected and actual
// sizes used to pick an encoding come from the same formula.
func SizeInfoFromBitmap(b *bitmap.Bitmap, numRows int) SizeInfo {
	kHat := b.NumTuples()
	nnzRows := b.NumNonZeroRows()
	segs := numSegments(numRows)
	runs := 0
	for i := range b.Tuples {
		runs += b.EstimatedRunCount(i)
	}
	return SizeInfo{
		EstCardinality: kHat,
		OLESize:        oleBytes(kHat, nnzRows, segs),
		RLESize:        rleBytes(kHat, runs),
	}
}

func scaleSampleSizeInfo(b *bitmap.Bitmap, sampleRows, numRows int) SizeInfo {
	kHat := b.NumTuples()
	scale := float64(numRows) / float64(sampleRows)
	nnzRowsFull := int(math.Ceil(float64(b.NumNonZeroRows()) * scale))
	runs := 0
	for i := range b.Tuples {
		runs += b.EstimatedRunCount(i)
	}
	runsFull := int(math.Ceil(float64(runs) * scale))
	segs := numSegments(numRows)
	return SizeInfo{
		EstCardinality: kHat,
		OLESize:        oleBytes(kHat, nnzRowsFull, segs),
		RLESize:        rleBytes(kHat, runsFull),
	}
}

func numSegments(numRows int) int {
	return int(math.Ceil(float64(numRows) / float64(cfg.BSZ)))
}

// oleBytes implements the spec 4.1 projection:
// 16*k-hat + 2*nnzRows + 2*(k-hat * ceil(R/BSZ)) segment-header overhead.
func oleBytes(kHat, nnzRows, segs int) int64 {
	return 16*int64(kHat) + 2*int64(nnzRows) + 2*int64(kHat)*int64(segs)
}

// rleBytes implements the spec 4.1 projection: 16*k-hat + 4*runs.
func rleBytes(kHat, runs int) int64 {
	return 16*int64(kHat) + 4*int64(runs)
}
