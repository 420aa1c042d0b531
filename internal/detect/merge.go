// Package detect joins the deterministic and probabilistic reference
// detectors into the hybrid detection pipeline.
//
// [Merge] reconciles the two candidate lists of one fragment. [Pipeline]
// drives both detectors for each finalized transcript fragment: the parser
// result is emitted immediately, the language-model result follows as a
// second wave once it arrives, and a [Cooldown] keeps a repeated reference
// from flooding the review queue.
package detect

import "github.com/MrWong99/versecue/internal/scripture"

// Merge returns the deduplicated union of deterministic and probabilistic
// candidates. Deterministic candidates come first in their original order,
// followed by the probabilistic candidates whose key was not already seen.
// Candidates below floor are dropped; deterministic candidates carry
// confidence 1.0 and always clear it.
func Merge(deterministic, probabilistic []scripture.Candidate, floor float64) []scripture.Candidate {
	out := make([]scripture.Candidate, 0, len(deterministic)+len(probabilistic))
	seen := make(map[string]struct{}, cap(out))

	add := func(c scripture.Candidate) {
		if !(c.Confidence >= floor) {
			return
		}
		key := c.Key
		if key == "" {
			key = c.Reference.Key()
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		c.Key = key
		out = append(out, c)
	}

	for _, c := range deterministic {
		add(c)
	}
	for _, c := range probabilistic {
		add(c)
	}
	return out
}
