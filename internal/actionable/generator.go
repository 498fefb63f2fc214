// Package actionable turns the buyer/seller intent matrix and the call-level
// table into short action cards for the sales team.
package actionable

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"sales-insights-go/internal/types"
)

const maxCallIDs = 10

type ActionCard struct {
	Segment string   `json:"segment"`
	Insight string   `json:"insight"`
	Action  string   `json:"action"`
	Impact  string   `json:"impact"`
	Calls   int      `json:"calls"`
	Percent float64  `json:"percent"`
	CallIDs []string `json:"call_ids,omitempty"`
	Top     []string `json:"top_products,omitempty"`
}

type playbook struct {
	segment string
	buyer   string
	seller  string
	insight string
	action  string
	impact  string
}

// Misaligned segments come first: they are where a change of behaviour pays.
var playbooks = []playbook{
	{
		segment: "missed_opportunity", buyer: types.IntentHigh, seller: types.IntentLow,
		insight: "Ready buyers met a disengaged seller",
		action:  "Coach these sellers to quote early and negotiate; alert them on high-intent leads",
		impact:  "Recover conversions from buyers who were ready to purchase",
	},
	{
		segment: "over_invested", buyer: types.IntentLow, seller: types.IntentHigh,
		insight: "Sellers negotiated hard with low-intent buyers",
		action:  "Qualify buyers before quoting; route price-only enquiries to a nurture flow",
		impact:  "Free seller time for buyers who will convert",
	},
	{
		segment: "aligned_deal", buyer: types.IntentHigh, seller: types.IntentHigh,
		insight: "Both sides engaged and prices moved",
		action:  "Prioritize follow-up on these calls to close the order",
		impact:  "Highest near-term conversion",
	},
	{
		segment: "cold_call", buyer: types.IntentLow, seller: types.IntentLow,
		insight: "Neither side showed buying or selling intent",
		action:  "Review lead matching for these products and categories",
		impact:  "Fewer wasted calls",
	},
}

// Generate returns one card per non-empty segment of the matrix plus a
// ShipWith card when there are delivery leads. An empty matrix yields a
// single card saying so.
func Generate(calls []types.CallLevelRecord, m types.ConfusionMatrix) []ActionCard {
	total := m.Total()
	if total == 0 {
		return []ActionCard{{
			Segment: "none",
			Insight: "No calls with both buyer and seller labels yet",
			Action:  "Monitor and collect more data",
			Impact:  "Low immediate intervention",
		}}
	}

	pct := m.Percentages()
	var cards []ActionCard
	for _, pb := range playbooks {
		n := m.Cell(pb.seller, pb.buyer)
		if n == 0 {
			continue
		}
		seg := SegmentCalls(calls, pb.buyer, pb.seller)
		cards = append(cards, ActionCard{
			Segment: pb.segment,
			Insight: fmt.Sprintf("%s (buyer %s, seller %s): %d of %d calls", pb.insight, pb.buyer, pb.seller, n, total),
			Action:  pb.action,
			Impact:  pb.impact,
			Calls:   n,
			Percent: pct[index(pb.seller)][index(pb.buyer)],
			CallIDs: callIDs(seg),
			Top:     TopProducts(seg, 5),
		})
	}
	if card, ok := ShipWithCard(calls); ok {
		cards = append(cards, card)
	}
	return cards
}

func index(label string) int {
	if label == types.IntentHigh {
		return 0
	}
	return 1
}

// SegmentCalls filters calls to one (buyer label, seller label) cell.
func SegmentCalls(calls []types.CallLevelRecord, buyerLabel, sellerLabel string) []types.CallLevelRecord {
	var out []types.CallLevelRecord
	for _, c := range calls {
		if c.BuyerIntentLabel == buyerLabel && c.SellerIntentLabel == sellerLabel {
			out = append(out, c)
		}
	}
	return out
}

// ShipWithLeads are calls where the buyer arranges delivery and the seller
// was not known to deliver to the buyer.
func ShipWithLeads(calls []types.CallLevelRecord) []types.CallLevelRecord {
	var out []types.CallLevelRecord
	for _, c := range calls {
		if norm(c.DeliveryResponsibility) != "buyer" {
			continue
		}
		switch norm(c.SellerDeliversToBuyerLocation) {
		case "no", "unknown", "nan", "":
			out = append(out, c)
		}
	}
	return out
}

func ShipWithCard(calls []types.CallLevelRecord) (ActionCard, bool) {
	leads := ShipWithLeads(calls)
	if len(leads) == 0 {
		return ActionCard{}, false
	}
	pct := math.Round(float64(len(leads))/float64(len(calls))*10000) / 100
	return ActionCard{
		Segment: "shipwith",
		Insight: fmt.Sprintf("%d calls where the buyer handles delivery and the seller does not deliver", len(leads)),
		Action:  "Generate ShipWith intent for these buyers",
		Impact:  "Logistics revenue on orders that would ship anyway",
		Calls:   len(leads),
		Percent: pct,
		CallIDs: callIDs(leads),
		Top:     TopProducts(leads, 5),
	}, true
}

// TopProducts returns up to n product names by call count, ties in first-seen order.
func TopProducts(calls []types.CallLevelRecord, n int) []string {
	counts := map[string]int{}
	var order []string
	for _, c := range calls {
		name := strings.TrimSpace(c.ProductName)
		if name == "" {
			continue
		}
		if counts[name] == 0 {
			order = append(order, name)
		}
		counts[name]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	return order
}

func callIDs(calls []types.CallLevelRecord) []string {
	var out []string
	for _, c := range calls {
		if len(out) == maxCallIDs {
			break
		}
		out = append(out, c.CallID)
	}
	return out
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
