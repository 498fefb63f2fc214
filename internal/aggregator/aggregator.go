// Package aggregator turns flattened extraction rows into the seller, buyer,
// category, seller-profile and call-level tables.
package aggregator

import (
	"sales-insights-go/internal/ids"
	"sales-insights-go/internal/logger"
	"sales-insights-go/internal/types"
)

type Options struct {
	TopSpecs   int
	SellerType SellerTypeRules
}

func DefaultOptions() Options {
	return Options{TopSpecs: 5, SellerType: DefaultSellerTypeRules()}
}

// Tables is the full set of derived tables for one run. Each stage only reads
// the outputs of the stages before it.
type Tables struct {
	Flat           []types.FlatRow
	Sellers        []types.SellerLevelRecord
	Buyers         []types.BuyerLevelRecord
	Categories     []types.CategoryLevelRecord
	SellerProfiles []types.SellerAggregateRecord
	Calls          []types.CallLevelRecord
	Matrix         types.ConfusionMatrix
}

// StageCount is what one aggregation stage reports on completion.
type StageCount struct {
	Stage   string `json:"stage"`
	Input   int    `json:"input"`
	Output  int    `json:"output"`
	Skipped int    `json:"skipped"`
}

// Aggregate runs every aggregation stage in order over the flattened rows.
func Aggregate(rows []types.FlatRow, resolver *ids.Resolver, opts Options, log *logger.Logger) (Tables, []StageCount) {
	t := Tables{Flat: rows}
	calls := len(groupByCall(rows))

	t.Sellers = SellerLevel(rows, resolver)
	t.Buyers = BuyerLevel(rows, resolver)
	t.Categories = CategoryLevel(rows, t.Sellers, resolver, opts.TopSpecs)
	t.SellerProfiles = SellerProfiles(t.Sellers, t.Buyers, opts.SellerType)
	t.Calls, t.Matrix = CallLevel(t.Sellers, t.Buyers)

	counts := []StageCount{
		{Stage: "seller_level", Input: len(rows), Output: len(t.Sellers), Skipped: len(rows) - rowsWithCall(rows)},
		{Stage: "buyer_level", Input: len(rows), Output: len(t.Buyers), Skipped: len(rows) - rowsWithCall(rows)},
		{Stage: "category_level", Input: len(t.Sellers), Output: len(t.Categories)},
		{Stage: "seller_profile", Input: len(t.Sellers), Output: len(t.SellerProfiles), Skipped: len(t.Sellers) - sellersWithID(t.Sellers)},
		{Stage: "call_level", Input: calls, Output: len(t.Calls), Skipped: calls - len(t.Calls)},
	}
	for _, c := range counts {
		log.WithField("stage", c.Stage).
			WithField("input", c.Input).
			WithField("output", c.Output).
			WithField("skipped", c.Skipped).
			Info("aggregation stage complete")
	}
	log.WithField("matrix", t.Matrix.Counts).Debug("confusion matrix built")
	return t, counts
}

func rowsWithCall(rows []types.FlatRow) int {
	n := 0
	for _, r := range rows {
		if ids.Normalize(r.CallID) != "" {
			n++
		}
	}
	return n
}

func sellersWithID(sellers []types.SellerLevelRecord) int {
	n := 0
	for _, s := range sellers {
		if s.SellerID != "" {
			n++
		}
	}
	return n
}
