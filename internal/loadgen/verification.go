package loadgen

import (
	"context"
	"fmt"
	"net/http"
)

// verifyRepeatability submits the same portfolio twice and checks that
// the scores match. Equal uploads must score equally regardless of which
// worker answers.
func verifyRepeatability(ctx context.Context, c *client, sub submission, stats *Stats) error {
	first, firstResp, err := c.assess(ctx, sub.portfolio, sub.parameters)
	if err != nil {
		return err
	}
	second, secondResp, err := c.assess(ctx, sub.portfolio, sub.parameters)
	if err != nil {
		return err
	}
	if first != http.StatusOK || second != http.StatusOK {
		return fmt.Errorf("repeat check got statuses %d and %d", first, second)
	}

	stats.RepeatChecked++
	if !sameScores(firstResp, secondResp) {
		stats.RepeatMismatch++
	}
	return nil
}

// sameScores compares two responses ignoring the correlation identifier.
func sameScores(a, b *assessResponse) bool {
	if a.Coverage != b.Coverage || len(a.Scores) != len(b.Scores) {
		return false
	}
	for i := range a.Scores {
		if a.Scores[i] != b.Scores[i] {
			return false
		}
	}
	return true
}
