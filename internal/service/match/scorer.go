package match

// Scorer computes an alignment score in [0, 1] between the rolling
// transcript window and a slice of reference words. The production
// scoring formula is pluggable; the hub only depends on this contract.
type Scorer interface {
	Score(window, reference []string) float64
}

// OverlapScorer is the default scoring strategy: the fraction of
// reference words found in the window in order, with a small bonus for
// contiguous runs so scattered single-word hits score low.
type OverlapScorer struct{}

// Score implements Scorer.
func (OverlapScorer) Score(window, reference []string) float64 {
	if len(reference) == 0 || len(window) == 0 {
		return 0
	}

	matched := 0
	longestRun := 0
	run := 0
	wi := 0

	for _, ref := range reference {
		found := false
		for j := wi; j < len(window); j++ {
			if window[j] == ref {
				// Contiguity: a hit directly after the previous one
				// extends the run.
				if j == wi && run > 0 || run == 0 {
					run++
				} else {
					run = 1
				}
				if run > longestRun {
					longestRun = run
				}
				wi = j + 1
				found = true
				break
			}
		}
		if found {
			matched++
		} else {
			run = 0
		}
	}

	coverage := float64(matched) / float64(len(reference))
	contiguity := float64(longestRun) / float64(len(reference))

	// Weighted blend: coverage dominates, contiguity breaks ties between
	// scattered and phrase-shaped matches.
	return 0.7*coverage + 0.3*contiguity
}

// tailWords returns at most n words from the end of the reference text.
func tailWords(words []string, n int) []string {
	if n <= 0 || len(words) <= n {
		return words
	}
	return words[len(words)-n:]
}

// headWords returns at most n words from the start of the reference text.
func headWords(words []string, n int) []string {
	if n <= 0 || len(words) <= n {
		return words
	}
	return words[:n]
}
