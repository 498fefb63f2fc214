package aggregator

import (
	"strings"

	"sales-insights-go/internal/ids"
	"sales-insights-go/internal/types"
)

// Seller type labels.
const (
	SellerWholesale = "wholesale"
	SellerRetail    = "retail"
	SellerMixed     = "mixed/unknown"
)

// SellerTypeRules holds the thresholds of the seller_type classifier.
type SellerTypeRules struct {
	WholesaleAbovePercent float64
	RetailBelowPercent    float64
	RetailMinBuyers       int
}

func DefaultSellerTypeRules() SellerTypeRules {
	return SellerTypeRules{WholesaleAbovePercent: 50, RetailBelowPercent: 10, RetailMinBuyers: 5}
}

// Classify returns wholesale when the bulk share is above the wholesale
// threshold, retail when it is below the retail threshold and the seller has
// more than RetailMinBuyers buyers, and mixed/unknown otherwise.
func (r SellerTypeRules) Classify(volumeMix float64, uniqueBuyers int) string {
	switch {
	case volumeMix > r.WholesaleAbovePercent:
		return SellerWholesale
	case volumeMix < r.RetailBelowPercent && uniqueBuyers > r.RetailMinBuyers:
		return SellerRetail
	}
	return SellerMixed
}

type profileRow struct {
	types.SellerLevelRecord
	BuyerID    string
	VolumeType string
}

// SellerProfiles aggregates seller-level records per seller. Buyer id and
// requirement volume type are attached by a left join on call id. Records
// without a seller id are not profiled.
func SellerProfiles(sellers []types.SellerLevelRecord, buyers []types.BuyerLevelRecord, rules SellerTypeRules) []types.SellerAggregateRecord {
	byCall := make(map[string]types.BuyerLevelRecord, len(buyers))
	for _, b := range buyers {
		id := ids.Normalize(b.CallID)
		if _, dup := byCall[id]; !dup {
			byCall[id] = b
		}
	}

	index := map[string]int{}
	var groups [][]profileRow
	var sellerIDs []string
	for _, s := range sellers {
		sellerID := strings.TrimSpace(s.SellerID)
		if sellerID == "" {
			continue
		}
		row := profileRow{SellerLevelRecord: s}
		if b, ok := byCall[ids.Normalize(s.CallID)]; ok {
			row.BuyerID = b.BuyerID
			row.VolumeType = b.RequirementVolumeType
		}
		i, ok := index[sellerID]
		if !ok {
			i = len(groups)
			index[sellerID] = i
			sellerIDs = append(sellerIDs, sellerID)
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], row)
	}

	out := make([]types.SellerAggregateRecord, 0, len(groups))
	for i, g := range groups {
		out = append(out, profileRecord(sellerIDs[i], g, rules))
	}
	return out
}

func profileRecord(sellerID string, g []profileRow, rules SellerTypeRules) types.SellerAggregateRecord {
	var (
		callIDs, productIDs, buyerIDs []string
		initials, finals, discounts   []float64
		moqValues, moqPrices          []float64
		sentiment, revisions          []float64
		negotiated, bulk              int
	)
	products := newCounter()
	for _, r := range g {
		callIDs = append(callIDs, r.CallID)
		productIDs = append(productIDs, r.ProductID)
		buyerIDs = append(buyerIDs, r.BuyerID)
		if name := strings.TrimSpace(r.ProductName); name != "" {
			products.Add(name)
		}
		sentiment = append(sentiment, SentimentScore(r.SellerSentiment))
		initials = append(initials, collect(r.InitialPrice)...)
		finals = append(finals, collect(r.FinalPrice)...)
		discounts = append(discounts, collect(r.DiscountPercent)...)
		revisions = append(revisions, float64(r.NumberOfPriceRevisions))
		if r.NegotiationFlag == "yes" {
			negotiated++
		}
		if v, ok := ParseMoney(r.MOQValue); ok {
			moqValues = append(moqValues, v)
		}
		if v, ok := ParseMoney(r.MOQPrice); ok {
			moqPrices = append(moqPrices, v)
		}
		if isBulk(r.VolumeType) {
			bulk++
		}
	}

	uniqueBuyers := distinctNonEmpty(buyerIDs)
	volumeMix := percent(bulk, len(g))
	rec := types.SellerAggregateRecord{
		SellerID:               sellerID,
		TotalCalls:             distinctNonEmpty(callIDs),
		UniqueProducts:         distinctNonEmpty(productIDs),
		UniqueBuyers:           uniqueBuyers,
		SellerType:             rules.Classify(volumeMix, uniqueBuyers),
		DominantProduct:        products.ModeSmallest(),
		MedianInitialPrice:     median(initials),
		MedianFinalPrice:       median(finals),
		AvgDiscountPercent:     meanRounded(discounts),
		NegotiationRatePercent: percent(negotiated, len(g)),
		PriceVariance:          sampleVariance(finals),
		MedianMOQValue:         median(moqValues),
		MedianMOQPrice:         median(moqPrices),
		VolumeMixIndicator:     volumeMix,
	}
	if m, ok := mean(sentiment); ok {
		rec.AvgSellerSentimentNum = round2(m)
	}
	if m, ok := mean(revisions); ok {
		rec.NumberOfPriceRevisionsAvg = round2(m)
	}
	rec.SellerMinimumPrice, rec.SellerMaximumPrice = minMax(finals)
	return rec
}

func isBulk(volumeType string) bool {
	v := strings.ToLower(volumeType)
	return strings.Contains(v, "wholesale") || strings.Contains(v, "bulk")
}
