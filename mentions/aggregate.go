package mentions

import (
	"fmt"
	"sort"
	"strings"
)

// Aggregate counts exact (trimmed, case-sensitive) entity names and returns the
// topN most frequent. Equal counts keep the order of first appearance.
// Near-duplicates such as "Apple" and "Apple Inc." are counted separately.
func Aggregate(names []string, topN int) (RankedTable, error) {
	if topN <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTopN, topN)
	}
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, seen := counts[name]; !seen {
			order = append(order, name)
		}
		counts[name]++
	}

	table := make(RankedTable, len(order))
	for i, name := range order {
		table[i] = FrequencyEntry{Name: name, Count: counts[name]}
	}
	sort.SliceStable(table, func(i, j int) bool {
		return table[i].Count > table[j].Count
	})
	if len(table) > topN {
		table = table[:topN]
	}
	return table, nil
}

// AggregateMatches flattens per-record matches and aggregates them.
func AggregateMatches(matches [][]EntityMatch, topN int) (RankedTable, error) {
	return Aggregate(Flatten(matches), topN)
}
