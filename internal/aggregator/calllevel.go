package aggregator

import (
	"strings"

	"sales-insights-go/internal/ids"
	"sales-insights-go/internal/types"
)

// BuyerIntentLabel is High exactly when the buyer was classified high intent.
func BuyerIntentLabel(isHighIntent bool) string {
	if isHighIntent {
		return types.IntentHigh
	}
	return types.IntentLow
}

// SellerIntentLabel is High when the seller sounded positive and negotiated.
func SellerIntentLabel(sellerSentiment, negotiationFlag string) string {
	if strings.Contains(strings.ToLower(sellerSentiment), "positive") &&
		strings.EqualFold(strings.TrimSpace(negotiationFlag), "yes") {
		return types.IntentHigh
	}
	return types.IntentLow
}

// CallLevel inner-joins seller and buyer records on call id, labels both
// sides, and cross-tabulates the labels. Calls missing from either table get
// no label and are not counted.
func CallLevel(sellers []types.SellerLevelRecord, buyers []types.BuyerLevelRecord) ([]types.CallLevelRecord, types.ConfusionMatrix) {
	byCall := make(map[string][]types.BuyerLevelRecord, len(buyers))
	for _, b := range buyers {
		id := ids.Normalize(b.CallID)
		byCall[id] = append(byCall[id], b)
	}

	var matrix types.ConfusionMatrix
	var out []types.CallLevelRecord
	for _, s := range sellers {
		callID := ids.Normalize(s.CallID)
		for _, b := range byCall[callID] {
			rec := types.CallLevelRecord{
				CallID:                        callID,
				BuyerID:                       b.BuyerID,
				SellerID:                      s.SellerID,
				BuyerIntentLabel:              BuyerIntentLabel(b.IsHighIntent),
				SellerIntentLabel:             SellerIntentLabel(s.SellerSentiment, s.NegotiationFlag),
				BuyerSentiment:                b.BuyerSentiment,
				SellerSentiment:               s.SellerSentiment,
				IsHighIntent:                  b.IsHighIntent,
				NegotiationFlag:               s.NegotiationFlag,
				ProductName:                   s.ProductName,
				FinalPrice:                    s.FinalPrice,
				DeliveryResponsibility:        s.DeliveryResponsibility,
				SellerDeliversToBuyerLocation: s.SellerDeliversToBuyerLocation,
			}
			matrix.Add(rec.SellerIntentLabel, rec.BuyerIntentLabel)
			out = append(out, rec)
		}
	}
	return out, matrix
}
