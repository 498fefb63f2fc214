package aggregator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"sales-insights-go/internal/ids"
	"sales-insights-go/internal/types"
)

type callGroup struct {
	CallID string
	Rows   []types.FlatRow
}

// groupByCall buckets rows by normalized call id, in order of first appearance.
// Rows without a call id cannot be joined anywhere and are left out.
func groupByCall(rows []types.FlatRow) []callGroup {
	index := map[string]int{}
	var groups []callGroup
	for _, r := range rows {
		id := ids.Normalize(r.CallID)
		if id == "" {
			continue
		}
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, callGroup{CallID: id})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	}
	return groups
}

// counter tallies string occurrences and remembers first-seen order.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter { return &counter{counts: map[string]int{}} }

func (c *counter) Add(s string) {
	if _, ok := c.counts[s]; !ok {
		c.order = append(c.order, s)
	}
	c.counts[s]++
}

func (c *counter) Len() int { return len(c.order) }

// MostCommon returns up to n values by descending count. Ties keep first-seen order.
func (c *counter) MostCommon(n int) []string {
	out := append([]string(nil), c.order...)
	sort.SliceStable(out, func(i, j int) bool { return c.counts[out[i]] > c.counts[out[j]] })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Mode is the most common value with ties broken by first appearance.
func (c *counter) Mode() string {
	top := c.MostCommon(1)
	if len(top) == 0 {
		return ""
	}
	return top[0]
}

// ModeSmallest is the most common value with ties broken by the smallest value.
func (c *counter) ModeSmallest() string {
	best, bestN := "", 0
	for _, s := range c.order {
		n := c.counts[s]
		if n > bestN || (n == bestN && s < best) {
			best, bestN = s, n
		}
	}
	return best
}

func distinctNonEmpty(vals []string) int {
	seen := map[string]struct{}{}
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

type attribute struct {
	Name  string
	Value string
}

// parseAttributes decodes a JSON attribute object, sorted by name.
func parseAttributes(raw string) ([]attribute, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	out := make([]attribute, 0, len(m))
	for k, v := range m {
		out = append(out, attribute{Name: k, Value: attrValue(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func attrValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64, bool:
		return fmt.Sprint(t)
	}
	b, _ := json.Marshal(v)
	return string(b)
}
