package core

// topsis.go implements the Technique for Order of Preference by Similarity to
// Ideal Solution.
//
// For a matrix X of rows (alternatives) by criteria:
//
//	r_ij = x_ij / sqrt(sum_i x_ij^2)        vector normalisation
//	v_ij = w_j * r_ij                       weighting
//	A+_j = max_i v_ij  (min for "-")        ideal best
//	A-_j = min_i v_ij  (max for "-")        ideal worst
//	S+_i = ||v_i - A+||, S-_i = ||v_i - A-||
//	C_i  = S-_i / (S+_i + S-_i)             closeness coefficient
//
// Rows are ranked by descending C_i. Tied scores share the best rank of the
// group and the next rank skips accordingly (1, 2, 2, 4).

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Impact is the direction in which a criterion is preferred.
type Impact int

const (
	// Beneficial criteria are better when larger ("+").
	Beneficial Impact = iota + 1
	// NonBeneficial criteria are better when smaller ("-").
	NonBeneficial
)

func (i Impact) String() string {
	switch i {
	case Beneficial:
		return "+"
	case NonBeneficial:
		return "-"
	default:
		return "?"
	}
}

var impactSymbols = map[string]Impact{
	"+": Beneficial,
	"-": NonBeneficial,
}

var (
	// ErrWeightNotNumeric is returned by ParseWeights for a token that is not a number.
	ErrWeightNotNumeric = errors.New("Error: Weights must be numeric.")

	// ErrWeightNegative is returned by ParseWeights for a negative weight.
	ErrWeightNegative = errors.New("Error: Weights must be non-negative.")
)

// ParseWeights splits a comma-delimited weights string into values.
func ParseWeights(s string) ([]float64, error) {
	tokens := strings.Split(s, ",")
	weights := make([]float64, len(tokens))
	for i, tok := range tokens {
		w, ok := ParseNumber(tok)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrWeightNotNumeric, strings.TrimSpace(tok))
		}
		if w < 0 {
			return nil, ErrWeightNegative
		}
		weights[i] = w
	}
	return weights, nil
}

// ParseImpacts splits a comma-delimited impacts string. Unknown tokens map to
// the zero Impact; Validate rejects them before ranking.
func ParseImpacts(s string) []Impact {
	tokens := strings.Split(s, ",")
	impacts := make([]Impact, len(tokens))
	for i, tok := range tokens {
		impacts[i] = impactSymbols[strings.TrimSpace(tok)]
	}
	return impacts
}

// Ranking holds one score and rank per dataset row, in row order.
type Ranking struct {
	Scores []float64
	Ranks  []int
}

// Best returns the index of the first row ranked 1, or -1 for an empty ranking.
func (r *Ranking) Best() int {
	for i, rank := range r.Ranks {
		if rank == 1 {
			return i
		}
	}
	return -1
}

// Rank scores every row of ds. The dataset must have passed Validate with
// matching weight and impact counts.
//
// Columns are divided by their largest magnitude before squaring and weights
// by the largest weight. Neither changes the closeness coefficient, and every
// weighted cell stays within [-1, 1], so no sum of squares can overflow.
func Rank(ds *Dataset, weights []float64, impacts []Impact) (*Ranking, error) {
	n := ds.CriteriaCount()
	if len(weights) != n || len(impacts) != n {
		return nil, fmt.Errorf("rank: %d weights and %d impacts for %d criteria", len(weights), len(impacts), n)
	}

	m := ds.RowCount()
	matrix := make([][]float64, m)
	for i, row := range ds.Rows {
		matrix[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			v, ok := ParseNumber(row[j+1])
			if !ok {
				return nil, fmt.Errorf("rank: row %d column %q: %q is not a finite number", i+1, ds.Header[j+1], row[j+1])
			}
			matrix[i][j] = v
		}
	}

	var maxWeight float64
	for _, w := range weights {
		maxWeight = math.Max(maxWeight, w)
	}

	for j := 0; j < n; j++ {
		var scale float64
		for i := 0; i < m; i++ {
			scale = math.Max(scale, math.Abs(matrix[i][j]))
		}
		if scale == 0 || maxWeight == 0 {
			for i := 0; i < m; i++ {
				matrix[i][j] = 0
			}
			continue
		}

		var sumSq float64
		for i := 0; i < m; i++ {
			x := matrix[i][j] / scale
			sumSq += x * x
		}
		norm := math.Sqrt(sumSq)
		w := weights[j] / maxWeight
		for i := 0; i < m; i++ {
			matrix[i][j] = w * (matrix[i][j] / scale) / norm
		}
	}

	best := make([]float64, n)
	worst := make([]float64, n)
	for j := 0; j < n; j++ {
		hi, lo := math.Inf(-1), math.Inf(1)
		for i := 0; i < m; i++ {
			hi = math.Max(hi, matrix[i][j])
			lo = math.Min(lo, matrix[i][j])
		}
		switch impacts[j] {
		case Beneficial:
			best[j], worst[j] = hi, lo
		case NonBeneficial:
			best[j], worst[j] = lo, hi
		default:
			return nil, fmt.Errorf("rank: invalid impact for column %q", ds.Header[j+1])
		}
	}

	scores := make([]float64, m)
	for i := 0; i < m; i++ {
		var dBest, dWorst float64
		for j := 0; j < n; j++ {
			dBest += (matrix[i][j] - best[j]) * (matrix[i][j] - best[j])
			dWorst += (matrix[i][j] - worst[j]) * (matrix[i][j] - worst[j])
		}
		dBest, dWorst = math.Sqrt(dBest), math.Sqrt(dWorst)
		if total := dBest + dWorst; total > 0 {
			scores[i] = dWorst / total
		}
		if math.IsNaN(scores[i]) || math.IsInf(scores[i], 0) {
			return nil, fmt.Errorf("rank: row %d has a non-finite score", i+1)
		}
	}

	return &Ranking{
		Scores: scores,
		Ranks:  competitionRanks(scores),
	}, nil
}

// competitionRanks assigns 1 to the highest score. Equal scores share a rank.
func competitionRanks(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	ranks := make([]int, len(scores))
	for pos, idx := range order {
		if pos > 0 && scores[idx] == scores[order[pos-1]] {
			ranks[idx] = ranks[order[pos-1]]
			continue
		}
		ranks[idx] = pos + 1
	}
	return ranks
}
