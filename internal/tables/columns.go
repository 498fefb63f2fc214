package tables

import (
	"strconv"
	"strings"

	"sales-insights-go/internal/types"
)

// File names of the persisted tables. Renaming a file or a column breaks the
// dashboard that reads them.
const (
	FlatFile          = "extracted_products.csv"
	SellerFile        = "seller_level.csv"
	BuyerFile         = "buyer_level.csv"
	CategoryFile      = "category_product_level.csv"
	SellerProfileFile = "seller_aggregated.csv"
	CallLevelFile     = "call_level_insight.csv"
	ConfusionFile     = "buyer_seller_intent_confusion_matrix.csv"
	WorkbookFile      = "insights.xlsx"
)

var FlatColumns = []string{
	"call_id", "seller_id", "buyer_id",
	"product_id", "product_name", "product_kw", "variant_attributes",
	"quantity_required_value", "quantity_required_unit",
	"moq_value", "moq_unit", "moq_price", "moq_currency",
	"price_value", "price_currency", "price_type",
	"applies_to_quantity_min", "applies_to_quantity_max", "applies_to_quantity_unit",
	"applies_to_specifications", "unit_price",
	"other_conditions_basis", "other_conditions_payment_terms", "other_conditions_notes",
	"moq_applies_value", "moq_applies_unit",
	"final_quoted_seller_price", "delivery_responsibility", "seller_delivers_to_buyer_location", "delivery_location",
	"Buyer Requirement Type", "requirement_volume_type", "Is_Seller_deals_in_product",
	"Buyer Sentiment", "Seller Sentiment", "Buyer Type", "Business Category", "Intent for purchase",
}

func flatValues(r types.FlatRow) []string {
	return []string{
		r.CallID, r.SellerID, r.BuyerID,
		r.ProductID, r.ProductName, r.ProductKW, r.VariantAttributes,
		r.QuantityRequiredValue, r.QuantityRequiredUnit,
		r.MOQValue, r.MOQUnit, r.MOQPrice, r.MOQCurrency,
		r.PriceValue, r.PriceCurrency, r.PriceType,
		r.AppliesToQuantityMin, r.AppliesToQuantityMax, r.AppliesToQuantityUnit,
		r.AppliesToSpecifications, r.UnitPrice,
		r.OtherConditionsBasis, r.OtherConditionsPaymentTerms, r.OtherConditionsNotes,
		r.MOQAppliesValue, r.MOQAppliesUnit,
		r.FinalQuotedSellerPrice, r.DeliveryResponsibility, r.SellerDeliversToBuyerLocation, r.DeliveryLocation,
		r.BuyerRequirementType, r.RequirementVolumeType, r.IsSellerDealsInProduct,
		r.BuyerSentiment, r.SellerSentiment, r.BuyerType, r.BusinessCategory, r.IntentForPurchase,
	}
}

func flatFromRecord(get func(string) string) types.FlatRow {
	return types.FlatRow{
		CallID:                        get("call_id"),
		SellerID:                      get("seller_id"),
		BuyerID:                       get("buyer_id"),
		ProductID:                     get("product_id"),
		ProductName:                   get("product_name"),
		ProductKW:                     get("product_kw"),
		VariantAttributes:             get("variant_attributes"),
		QuantityRequiredValue:         get("quantity_required_value"),
		QuantityRequiredUnit:          get("quantity_required_unit"),
		MOQValue:                      get("moq_value"),
		MOQUnit:                       get("moq_unit"),
		MOQPrice:                      get("moq_price"),
		MOQCurrency:                   get("moq_currency"),
		PriceValue:                    get("price_value"),
		PriceCurrency:                 get("price_currency"),
		PriceType:                     get("price_type"),
		AppliesToQuantityMin:          get("applies_to_quantity_min"),
		AppliesToQuantityMax:          get("applies_to_quantity_max"),
		AppliesToQuantityUnit:         get("applies_to_quantity_unit"),
		AppliesToSpecifications:       get("applies_to_specifications"),
		UnitPrice:                     get("unit_price"),
		OtherConditionsBasis:          get("other_conditions_basis"),
		OtherConditionsPaymentTerms:   get("other_conditions_payment_terms"),
		OtherConditionsNotes:          get("other_conditions_notes"),
		MOQAppliesValue:               get("moq_applies_value"),
		MOQAppliesUnit:                get("moq_applies_unit"),
		FinalQuotedSellerPrice:        get("final_quoted_seller_price"),
		DeliveryResponsibility:        get("delivery_responsibility"),
		SellerDeliversToBuyerLocation: get("seller_delivers_to_buyer_location"),
		DeliveryLocation:              get("delivery_location"),
		BuyerRequirementType:          get("Buyer Requirement Type"),
		RequirementVolumeType:         get("requirement_volume_type"),
		IsSellerDealsInProduct:        get("Is_Seller_deals_in_product"),
		BuyerSentiment:                get("Buyer Sentiment"),
		SellerSentiment:               get("Seller Sentiment"),
		BuyerType:                     get("Buyer Type"),
		BusinessCategory:              get("Business Category"),
		IntentForPurchase:             get("Intent for purchase"),
	}
}

var SellerColumns = []string{
	"call_id", "seller_id", "product_id", "product_name", "product_kw",
	"initial_price", "intermediate_price", "final_price", "discount_percent", "price_currency",
	"moq_value", "moq_unit", "moq_price", "unit_price", "price_type",
	"other_conditions_notes", "other_conditions_payment_terms",
	"delivery_responsibility", "seller_delivers_to_buyer_location",
	"seller_sentiment", "negotiation_flag", "number_of_price_revisions", "notes",
}

func sellerValues(r types.SellerLevelRecord) []string {
	return []string{
		r.CallID, r.SellerID, r.ProductID, r.ProductName, r.ProductKW,
		num(r.InitialPrice), FormatPrices(r.IntermediatePrices), num(r.FinalPrice), num(r.DiscountPercent), r.PriceCurrency,
		r.MOQValue, r.MOQUnit, r.MOQPrice, r.UnitPrice, r.PriceType,
		r.OtherConditionsNotes, r.OtherConditionsPaymentTerms,
		r.DeliveryResponsibility, r.SellerDeliversToBuyerLocation,
		r.SellerSentiment, r.NegotiationFlag, strconv.Itoa(r.NumberOfPriceRevisions), r.Notes,
	}
}

var BuyerColumns = []string{
	"call_id", "buyer_id", "product_id", "product_name", "quantity_required",
	"requirement_volume_type", "Buyer_Requirement_Type", "business_category",
	"variant_attributes_flat", "applies_to_specifications", "Intent_for_purchase",
	"buyer_sentiment", "Is_Seller_deals_in_product", "delivery_location",
	"price_expectation", "is_high_intent", "notes",
}

func buyerValues(r types.BuyerLevelRecord) []string {
	return []string{
		r.CallID, r.BuyerID, r.ProductID, r.ProductName, r.QuantityRequired,
		r.RequirementVolumeType, r.BuyerRequirementType, r.BusinessCategory,
		r.VariantAttributesFlat, r.AppliesToSpecifications, r.IntentForPurchase,
		r.BuyerSentiment, r.IsSellerDealsInProduct, r.DeliveryLocation,
		num(r.PriceExpectation), strconv.FormatBool(r.IsHighIntent), r.Notes,
	}
}

var CategoryColumns = []string{
	"product_name", "product_id", "product_kw", "business_category",
	"call_count", "unique_seller_count", "unique_buyer_count",
	"median_initial_price", "median_final_price", "avg_discount_percent", "negotiation_rate_percent",
	"top_requested_specs", "most_common_quantity", "buyer_sentiment_avg", "seller_sentiment_avg",
	"price_range_low", "price_range_high",
}

func categoryValues(r types.CategoryLevelRecord) []string {
	return []string{
		r.ProductName, r.ProductID, r.ProductKW, r.BusinessCategory,
		strconv.Itoa(r.CallCount), strconv.Itoa(r.UniqueSellerCount), strconv.Itoa(r.UniqueBuyerCount),
		num(r.MedianInitialPrice), num(r.MedianFinalPrice), num(r.AvgDiscountPercent), flt(r.NegotiationRatePercent),
		strings.Join(r.TopRequestedSpecs, "|"), r.MostCommonQuantity, flt(r.BuyerSentimentAvg), flt(r.SellerSentimentAvg),
		num(r.PriceRangeLow), num(r.PriceRangeHigh),
	}
}

var SellerProfileColumns = []string{
	"seller_id", "total_calls", "unique_products", "unique_buyers", "seller_type", "dominant_product",
	"avg_seller_sentiment_num", "median_initial_price", "median_final_price", "avg_discount_percent",
	"negotiation_rate_percent", "number_of_price_revisions_avg", "price_variance",
	"seller_minimum_price", "seller_maximum_price", "median_moq_value", "median_moq_price", "volume_mix_indicator",
}

func sellerProfileValues(r types.SellerAggregateRecord) []string {
	return []string{
		r.SellerID, strconv.Itoa(r.TotalCalls), strconv.Itoa(r.UniqueProducts), strconv.Itoa(r.UniqueBuyers), r.SellerType, r.DominantProduct,
		flt(r.AvgSellerSentimentNum), num(r.MedianInitialPrice), num(r.MedianFinalPrice), num(r.AvgDiscountPercent),
		flt(r.NegotiationRatePercent), flt(r.NumberOfPriceRevisionsAvg), num(r.PriceVariance),
		num(r.SellerMinimumPrice), num(r.SellerMaximumPrice), num(r.MedianMOQValue), num(r.MedianMOQPrice), flt(r.VolumeMixIndicator),
	}
}

var CallLevelColumns = []string{
	"call_id", "buyer_id", "seller_id", "Buyer_Intent_Label", "Seller_Intent_Label",
	"buyer_sentiment", "seller_sentiment", "is_high_intent", "negotiation_flag",
	"product_name", "final_price", "delivery_responsibility", "seller_delivers_to_buyer_location",
}

func callLevelValues(r types.CallLevelRecord) []string {
	return []string{
		r.CallID, r.BuyerID, r.SellerID, r.BuyerIntentLabel, r.SellerIntentLabel,
		r.BuyerSentiment, r.SellerSentiment, strconv.FormatBool(r.IsHighIntent), r.NegotiationFlag,
		r.ProductName, num(r.FinalPrice), r.DeliveryResponsibility, r.SellerDeliversToBuyerLocation,
	}
}

// ConfusionColumns heads the matrix table: row label, then one column per buyer label.
var ConfusionColumns = []string{"Seller_Intent_Label", types.IntentHigh, types.IntentLow}

func confusionValues(m types.ConfusionMatrix) [][]string {
	out := make([][]string, 0, 2)
	for i, label := range types.IntentLabels {
		out = append(out, []string{label, strconv.Itoa(m.Counts[i][0]), strconv.Itoa(m.Counts[i][1])})
	}
	return out
}

// FormatPrices renders an ordered price sequence for display, joined by "|".
func FormatPrices(prices []float64) string {
	parts := make([]string, len(prices))
	for i, p := range prices {
		parts[i] = flt(p)
	}
	return strings.Join(parts, "|")
}

func num(p *float64) string {
	if p == nil {
		return ""
	}
	return flt(*p)
}

func flt(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
