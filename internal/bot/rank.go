package bot

import (
	"cmp"
	"slices"
	"strings"
)

// Standing is a score with its leaderboard position.
type Standing struct {
	Rank  int
	Score Score
	// Tied is set when another standing shares Rank.
	Tied bool
}

// RankScores orders scores by points (high first), then by who reached their
// total first, then by user ID, and assigns competition ranks: equal points
// share a rank and the next distinct total skips ahead (1, 2, 2, 4).
func RankScores(scores []Score) []Standing {
	sorted := slices.Clone(scores)
	slices.SortFunc(sorted, func(a, b Score) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		if c := a.ReachedAt.Compare(b.ReachedAt); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})

	out := make([]Standing, len(sorted))
	for i, s := range sorted {
		rank := i + 1
		if i > 0 && s.Points == sorted[i-1].Points {
			rank = out[i-1].Rank
			out[i-1].Tied = true
			out[i].Tied = true
		}
		out[i].Rank = rank
		out[i].Score = s
	}
	return out
}

// FindStanding returns the standing for userID.
func FindStanding(standings []Standing, userID string) (Standing, bool) {
	for _, s := range standings {
		if s.Score.UserID == userID {
			return s, true
		}
	}
	return Standing{}, false
}
