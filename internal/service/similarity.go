package service

// jaroWinkler computes the Jaro-Winkler similarity between two strings,
// between 0.0 and 1.0. Inputs are expected to be normalized already.
func jaroWinkler(s1, s2 string) float64 {
	if len(s1) == 0 || len(s2) == 0 {
		return 0.0
	}
	if s1 == s2 {
		return 1.0
	}

	s1Len := len(s1)
	s2Len := len(s2)

	window := s1Len
	if s2Len > window {
		window = s2Len
	}
	window = window/2 - 1
	if window < 0 {
		window = 0
	}

	s1Matches := make([]bool, s1Len)
	s2Matches := make([]bool, s2Len)

	matches := 0
	for i := 0; i < s1Len; i++ {
		start := i - window
		if start < 0 {
			start = 0
		}
		end := i + window + 1
		if end > s2Len {
			end = s2Len
		}
		for j := start; j < end; j++ {
			if s2Matches[j] || s1[i] != s2[j] {
				continue
			}
			s1Matches[i] = true
			s2Matches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := 0; i < s1Len; i++ {
		if !s1Matches[i] {
			continue
		}
		for !s2Matches[k] {
			k++
		}
		if s1[i] != s2[k] {
			transpositions++
		}
		k++
	}

	jaro := (float64(matches)/float64(s1Len) +
		float64(matches)/float64(s2Len) +
		float64(matches-transpositions/2)/float64(matches)) / 3.0

	// Winkler boost for a shared prefix, capped at 4 characters.
	prefix := 0
	maxPrefix := 4
	if s1Len < maxPrefix {
		maxPrefix = s1Len
	}
	if s2Len < maxPrefix {
		maxPrefix = s2Len
	}
	for i := 0; i < maxPrefix; i++ {
		if s1[i] != s2[i] {
			break
		}
		prefix++
	}

	return jaro + float64(prefix)*0.1*(1.0-jaro)
}

// bestMatch returns the candidate with the highest similarity to the term
// and that similarity. Ties keep the first candidate in slice order so the
// result is deterministic.
func bestMatch(term string, candidates []string) (string, float64) {
	best := ""
	bestScore := 0.0
	for _, cand := range candidates {
		if score := jaroWinkler(term, cand); score > bestScore {
			best = cand
			bestScore = score
		}
	}
	return best, bestScore
}
