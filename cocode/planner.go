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

// Package cocode partitions a set of bitmap-compressible columns into
// co-coded groups: columns that share enough of a joint value
// distribution that encoding them together pays for itself.
package cocode

import (
	"sort"

	"github.com/sneller-compress/cmatrix/estim"
	"github.com/sneller-compress/cmatrix/internal/cfg"
)

// ColumnInfo is what the co-coder needs to know about one
// bitmap-compressible column: its index, its estimated cardinality,
// its estimated compressed size alone, and its compression ratio
// (uncompressed size over compressed size).
type ColumnInfo struct {
	Col         int
	Cardinality int
	Size        int64
	Ratio       float64
}

// Estimator is the subset of *estim.Estimator the planner needs: a way
// to ask "how big would this joint column set compress to". Expressed
// as an interface so tests can supply a fake without a real block.
type Estimator interface {
	Estimate(cols []int) estim.SizeInfo
}

// Plan partitions cols (by ColumnInfo) into co-coded groups. Columns
// are first ordered by ascending cardinality, ties broken by
// descending compression ratio, then greedily packed: a column joins
// the current group only if doing so keeps the group's cardinality
// product under cfg.CoCodeCardinalityCeiling and the estimator
// predicts the joint group compresses smaller than encoding every
// member column on its own.
func Plan(est Estimator, infos []ColumnInfo) [][]int {
	if len(infos) == 0 {
		return nil
	}
	ordered := append([]ColumnInfo(nil), infos...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Cardinality != ordered[j].Cardinality {
			return ordered[i].Cardinality < ordered[j].Cardinality
		}
		return ordered[i].Ratio > ordered[j].Ratio
	})

	var groups [][]int
	i := 0
	for i < len(ordered) {
		group := []int{ordered[i].Col}
		cardProduct := ordered[i].Cardinality
		sumSingle := ordered[i].Size
		j := i + 1
		for j < len(ordered) {
			candProduct := cardProduct * ordered[j].Cardinality
			if candProduct > cfg.CoCodeCardinalityCeiling {
				break
			}
			trial := append(append([]int(nil), group...), ordered[j].Col)
			sort.Ints(trial)
			jointSize := est.Estimate(trial).MinSize()
			if jointSize >= sumSingle+ordered[j].Size {
				break
			}
			group = trial
			cardProduct = candProduct
			sumSingle += ordered[j].Size
			j++
		}
		sort.Ints(group)
		groups = append(groups, group)
		i = j
	}
	return groups
}
