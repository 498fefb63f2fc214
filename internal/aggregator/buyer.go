package aggregator

import (
	"strings"

	"sales-insights-go/internal/ids"
	"sales-insights-go/internal/types"
)

// BuyerLevel derives one buyer-facing record per call from the call's first
// row, which carries the same call-level fields as every other row.
func BuyerLevel(rows []types.FlatRow, resolver *ids.Resolver) []types.BuyerLevelRecord {
	groups := groupByCall(rows)
	out := make([]types.BuyerLevelRecord, 0, len(groups))
	for _, g := range groups {
		first := g.Rows[0]
		parties := resolver.Resolve(g.CallID, ids.Parties{SellerID: first.SellerID, BuyerID: first.BuyerID})

		rec := types.BuyerLevelRecord{
			CallID:                  g.CallID,
			BuyerID:                 parties.BuyerID,
			ProductID:               first.ProductID,
			ProductName:             first.ProductName,
			QuantityRequired:        quantityString(first.QuantityRequiredValue, first.QuantityRequiredUnit),
			RequirementVolumeType:   first.RequirementVolumeType,
			BuyerRequirementType:    first.BuyerRequirementType,
			BusinessCategory:        first.BusinessCategory,
			VariantAttributesFlat:   flattenAttributes(first.VariantAttributes),
			AppliesToSpecifications: first.AppliesToSpecifications,
			IntentForPurchase:       first.IntentForPurchase,
			BuyerSentiment:          first.BuyerSentiment,
			IsSellerDealsInProduct:  first.IsSellerDealsInProduct,
			DeliveryLocation:        first.DeliveryLocation,
		}
		if v, ok := ParseMoney(first.UnitPrice); ok {
			rec.PriceExpectation = ptr(v)
		}
		rec.IsHighIntent = IsHighIntent(first.IntentForPurchase, first.BuyerSentiment, anyPrice(g.Rows))
		out = append(out, rec)
	}
	return out
}

// IsHighIntent holds when a purchase intent was stated, the buyer was positive
// or neutral, and the call carried at least one usable price.
func IsHighIntent(intent, buyerSentiment string, pricePresent bool) bool {
	intent = strings.TrimSpace(intent)
	if intent == "" || intent == "unknown" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(buyerSentiment)) {
	case "positive", "neutral":
	default:
		return false
	}
	return pricePresent
}

func anyPrice(rows []types.FlatRow) bool {
	for _, r := range rows {
		if _, ok := ParseMoney(r.PriceValue); ok {
			return true
		}
	}
	return false
}

func quantityString(value, unit string) string {
	return strings.TrimSpace(strings.TrimSpace(value) + " " + strings.TrimSpace(unit))
}

// flattenAttributes renders a JSON attribute object as "name:value" pairs
// joined by ";". Input that is not a JSON object passes through unchanged.
func flattenAttributes(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	attrs, err := parseAttributes(raw)
	if err != nil {
		return raw
	}
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		parts = append(parts, a.Name+":"+a.Value)
	}
	return strings.Join(parts, ";")
}
