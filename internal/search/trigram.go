package search

// Trigram similarity is the Dice coefficient over 3-character sliding
// windows of the lower-cased, space-padded strings. It tolerates typos and
// small edits without a full-text index.

// trigrams returns the set of 3-rune windows of s, padded with one space on
// each side so word boundaries contribute their own trigrams.
func trigrams(s string) map[string]bool {
	runes := []rune(" " + s + " ")
	if len(runes) < 3 {
		return nil
	}
	set := make(map[string]bool, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = true
	}
	return set
}

// diceSimilarity returns 2·|A∩B| / (|A|+|B|) for the trigram sets of a and
// b. Both inputs are expected to be lower-cased already. Returns 1 for two
// equal strings and 0 when either has no trigrams.
func diceSimilarity(a, b string) float64 {
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		if a == b && a != "" {
			return 1
		}
		return 0
	}

	shared := 0
	for t := range ta {
		if tb[t] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}
