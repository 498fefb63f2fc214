package aggregator

import (
	"strings"

	"sales-insights-go/internal/ids"
	"sales-insights-go/internal/types"
)

type productKey struct {
	CallID    string
	ProductID string
}

type categoryKey struct {
	ProductName      string
	ProductID        string
	ProductKW        string
	BusinessCategory string
}

type joinedProduct struct {
	Source types.FlatRow
	Seller types.SellerLevelRecord
	Buyer  string
}

// CategoryLevel rolls seller metrics up to product identity. The first source
// row of every (call, product) pair is inner-joined to the seller table on
// (call id, product id); pairs without a seller record are left out.
func CategoryLevel(rows []types.FlatRow, sellers []types.SellerLevelRecord, resolver *ids.Resolver, topSpecs int) []types.CategoryLevelRecord {
	bySeller := make(map[productKey]types.SellerLevelRecord, len(sellers))
	for _, s := range sellers {
		k := productKey{CallID: ids.Normalize(s.CallID), ProductID: strings.TrimSpace(s.ProductID)}
		if _, dup := bySeller[k]; !dup {
			bySeller[k] = s
		}
	}

	seen := map[productKey]bool{}
	index := map[categoryKey]int{}
	var keys []categoryKey
	var groups [][]joinedProduct
	for _, r := range rows {
		callID := ids.Normalize(r.CallID)
		pk := productKey{CallID: callID, ProductID: strings.TrimSpace(r.ProductID)}
		if callID == "" || seen[pk] {
			continue
		}
		seen[pk] = true

		s, ok := bySeller[pk]
		if !ok {
			continue
		}
		parties := resolver.Resolve(callID, ids.Parties{SellerID: r.SellerID, BuyerID: r.BuyerID})

		ck := categoryKey{ProductName: r.ProductName, ProductID: r.ProductID, ProductKW: r.ProductKW, BusinessCategory: r.BusinessCategory}
		i, ok := index[ck]
		if !ok {
			i = len(groups)
			index[ck] = i
			keys = append(keys, ck)
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], joinedProduct{Source: r, Seller: s, Buyer: parties.BuyerID})
	}

	out := make([]types.CategoryLevelRecord, 0, len(groups))
	for i, g := range groups {
		out = append(out, categoryRecord(keys[i], g, topSpecs))
	}
	return out
}

func categoryRecord(k categoryKey, g []joinedProduct, topSpecs int) types.CategoryLevelRecord {
	var (
		callIDs, sellerIDs, buyerIDs []string
		initials, finals, discounts  []float64
		buyerScores, sellerScores    []float64
		negotiated                   int
	)
	specs := newCounter()
	quantities := newCounter()
	for _, j := range g {
		callIDs = append(callIDs, j.Seller.CallID)
		sellerIDs = append(sellerIDs, j.Seller.SellerID)
		buyerIDs = append(buyerIDs, j.Buyer)
		initials = append(initials, collect(j.Seller.InitialPrice)...)
		finals = append(finals, collect(j.Seller.FinalPrice)...)
		discounts = append(discounts, collect(j.Seller.DiscountPercent)...)
		if j.Seller.NegotiationFlag == "yes" {
			negotiated++
		}
		if attrs, err := parseAttributes(j.Source.VariantAttributes); err == nil {
			for _, a := range attrs {
				specs.Add(a.Name + ":" + a.Value)
			}
		}
		v, u := strings.TrimSpace(j.Source.QuantityRequiredValue), strings.TrimSpace(j.Source.QuantityRequiredUnit)
		if v != "" && u != "" {
			quantities.Add(v + " " + u)
		}
		buyerScores = append(buyerScores, SentimentScore(j.Source.BuyerSentiment))
		sellerScores = append(sellerScores, SentimentScore(j.Source.SellerSentiment))
	}

	calls := distinctNonEmpty(callIDs)
	rec := types.CategoryLevelRecord{
		ProductName:            k.ProductName,
		ProductID:              k.ProductID,
		ProductKW:              k.ProductKW,
		BusinessCategory:       k.BusinessCategory,
		CallCount:              calls,
		UniqueSellerCount:      distinctOr(sellerIDs, calls),
		UniqueBuyerCount:       distinctOr(buyerIDs, calls),
		MedianInitialPrice:     median(initials),
		MedianFinalPrice:       median(finals),
		AvgDiscountPercent:     meanRounded(discounts),
		NegotiationRatePercent: percent(negotiated, len(g)),
		TopRequestedSpecs:      specs.MostCommon(topSpecs),
		MostCommonQuantity:     quantities.Mode(),
	}
	if m, ok := mean(buyerScores); ok {
		rec.BuyerSentimentAvg = round2(m)
	}
	if m, ok := mean(sellerScores); ok {
		rec.SellerSentimentAvg = round2(m)
	}
	rec.PriceRangeLow, rec.PriceRangeHigh = minMax(finals)
	return rec
}

// distinctOr counts distinct non-empty ids, or returns fallback when none are known.
func distinctOr(vals []string, fallback int) int {
	if n := distinctNonEmpty(vals); n > 0 {
		return n
	}
	return fallback
}
