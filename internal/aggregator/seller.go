package aggregator

import (
	"strings"

	"sales-insights-go/internal/ids"
	"sales-insights-go/internal/types"
)

// SellerLevel derives one seller-facing record per call. Prices are collected
// in row order; the first is the opening price and the last the closing one.
func SellerLevel(rows []types.FlatRow, resolver *ids.Resolver) []types.SellerLevelRecord {
	groups := groupByCall(rows)
	out := make([]types.SellerLevelRecord, 0, len(groups))
	for _, g := range groups {
		out = append(out, sellerRecord(g, resolver))
	}
	return out
}

func sellerRecord(g callGroup, resolver *ids.Resolver) types.SellerLevelRecord {
	first := g.Rows[0]
	parties := resolver.Resolve(g.CallID, ids.Parties{SellerID: first.SellerID, BuyerID: first.BuyerID})

	var prices []float64
	var currencies []string
	priceTypes := newCounter()
	for _, r := range g.Rows {
		v, ok := ParseMoney(r.PriceValue)
		if !ok {
			continue
		}
		prices = append(prices, v)
		currencies = append(currencies, strings.TrimSpace(r.PriceCurrency))
		if pt := strings.TrimSpace(r.PriceType); pt != "" {
			priceTypes.Add(pt)
		}
	}

	rec := types.SellerLevelRecord{
		CallID:                        g.CallID,
		SellerID:                      parties.SellerID,
		ProductID:                     first.ProductID,
		ProductName:                   first.ProductName,
		ProductKW:                     first.ProductKW,
		PriceCurrency:                 first.MOQCurrency,
		MOQValue:                      first.MOQValue,
		MOQUnit:                       first.MOQUnit,
		MOQPrice:                      first.MOQPrice,
		UnitPrice:                     first.UnitPrice,
		PriceType:                     priceTypes.Mode(),
		OtherConditionsNotes:          first.OtherConditionsNotes,
		OtherConditionsPaymentTerms:   first.OtherConditionsPaymentTerms,
		DeliveryResponsibility:        first.DeliveryResponsibility,
		SellerDeliversToBuyerLocation: first.SellerDeliversToBuyerLocation,
		SellerSentiment:               first.SellerSentiment,
		NegotiationFlag:               "no",
	}
	if len(prices) > 0 {
		rec.InitialPrice = ptr(prices[0])
		rec.FinalPrice = ptr(prices[len(prices)-1])
		rec.PriceCurrency = currencies[0]
	}
	if len(prices) > 2 {
		rec.IntermediatePrices = append([]float64(nil), prices[1:len(prices)-1]...)
	}
	rec.DiscountPercent = DiscountPercent(rec.InitialPrice, rec.FinalPrice)

	distinct := distinctPrices(prices)
	if distinct > 1 {
		rec.NumberOfPriceRevisions = distinct
		if rec.DiscountPercent != nil && *rec.DiscountPercent > 0 {
			rec.NegotiationFlag = "yes"
		}
	}
	return rec
}

// DiscountPercent is round(((initial-final)/initial)*100, 2). It is nil when
// either price is missing or the opening price is not positive.
func DiscountPercent(initial, final *float64) *float64 {
	if initial == nil || final == nil || *initial <= 0 {
		return nil
	}
	return ptr(round2((*initial - *final) / *initial * 100))
}

func distinctPrices(prices []float64) int {
	seen := make(map[float64]struct{}, len(prices))
	for _, p := range prices {
		seen[p] = struct{}{}
	}
	return len(seen)
}
