// Package evalset loads labeled trigger queries and splits them into
// train and test sets.
package evalset

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
)

// Item is one labeled query: should the skill trigger for it?
type Item struct {
	Query         string `json:"query"`
	ShouldTrigger bool   `json:"should_trigger"`
}

var ErrEmpty = errors.New("eval set is empty")

// Load reads a JSON array of items.
func Load(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading eval set %s: %w", path, err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parsing eval set %s: %w", path, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	for i, it := range items {
		if it.Query == "" {
			return nil, fmt.Errorf("eval set %s: item %d has an empty query", path, i)
		}
	}
	return items, nil
}

// Counts returns how many items should and should not trigger.
func Counts(items []Item) (positive, negative int) {
	for _, it := range items {
		if it.ShouldTrigger {
			positive++
		} else {
			negative++
		}
	}
	return positive, negative
}

// Split partitions items into train and test, separately within the
// should-trigger and should-not-trigger groups so both sets keep the label
// balance. Each non-empty group holds out max(1, floor(n*holdout)) items.
// The result depends only on (items, holdout, seed). A holdout of 0
// returns every item as train and no test set.
func Split(items []Item, holdout float64, seed int64) (train, test []Item, err error) {
	if holdout < 0 || holdout >= 1 {
		return nil, nil, fmt.Errorf("holdout must be in [0, 1), got %v", holdout)
	}
	if holdout == 0 {
		return append([]Item(nil), items...), nil, nil
	}

	var pos, neg []Item
	for _, it := range items {
		if it.ShouldTrigger {
			pos = append(pos, it)
		} else {
			neg = append(neg, it)
		}
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(pos), func(i, j int) { pos[i], pos[j] = pos[j], pos[i] })
	rng.Shuffle(len(neg), func(i, j int) { neg[i], neg[j] = neg[j], neg[i] })

	nPos := testShare(len(pos), holdout)
	nNeg := testShare(len(neg), holdout)

	test = append(append(test, pos[:nPos]...), neg[:nNeg]...)
	train = append(append(train, pos[nPos:]...), neg[nNeg:]...)
	return train, test, nil
}

func testShare(n int, holdout float64) int {
	if n == 0 {
		return 0
	}
	k := int(float64(n) * holdout)
	if k < 1 {
		k = 1
	}
	return k
}
