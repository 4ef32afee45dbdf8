package retrieval

// Score normalization converts backend-native scores to a common [0,1]
// similarity scale. Both functions are pure and never fail on well-formed
// input.

// DistanceToSimilarity converts a raw vector distance d >= 0 to a similarity
// in (0,1] via 1/(1+d). Monotonically decreasing: farther means less similar.
func DistanceToSimilarity(d float64) float64 {
	if d < 0 {
		d = 0
	}
	return 1.0 / (1.0 + d)
}

// RankToScore converts a 0-indexed rank position from the keyword backend's
// ordered output to a proxy score 1/(r+1). The keyword backend exposes no
// calibrated score, so rank is the only usable signal. This puts keyword
// scores on a steeper curve than vector similarities; treat it as a tunable
// default rather than a calibrated scale.
func RankToScore(rank int) float64 {
	if rank < 0 {
		rank = 0
	}
	return 1.0 / float64(rank+1)
}

// KeywordRankScorer maps a 0-indexed keyword rank to a [0,1] score. The fuser
// accepts a custom scorer so the rank-based default can be recalibrated
// without touching fusion.
type KeywordRankScorer func(rank int) float64
