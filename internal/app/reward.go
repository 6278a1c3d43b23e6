package app

// Stars maps a raw score to the tiered 0-3 star rating. total must be positive;
// every category ships at least one question.
func Stars(score, total int) int {
	if total <= 0 {
		panic("app: star rating requires a positive question total")
	}
	// integer comparison of score/total against the percentage thresholds
	switch pct := score * 100; {
	case pct >= 90*total:
		return 3
	case pct >= 70*total:
		return 2
	case pct >= 50*total:
		return 1
	default:
		return 0
	}
}
