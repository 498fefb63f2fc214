package types

// CallRecord is one row of the raw calls input.
type CallRecord struct {
	CallID        string `json:"call_id"`
	CallerID      string `json:"caller_id"`
	ReceiverID    string `json:"receiver_id"`
	RecordingURL  string `json:"recording_url,omitempty"`
	Transcription string `json:"transcription,omitempty"`
}

// FlatRow is one (call, product, price entry) row of a flattened extraction.
// Values are kept as extracted; money parsing happens during aggregation.
type FlatRow struct {
	CallID   string `json:"call_id"`
	SellerID string `json:"seller_id"`
	BuyerID  string `json:"buyer_id"`

	ProductID             string `json:"product_id"`
	ProductName           string `json:"product_name"`
	ProductKW             string `json:"product_kw"`
	VariantAttributes     string `json:"variant_attributes"`
	QuantityRequiredValue string `json:"quantity_required_value"`
	QuantityRequiredUnit  string `json:"quantity_required_unit"`
	MOQValue              string `json:"moq_value"`
	MOQUnit               string `json:"moq_unit"`
	MOQPrice              string `json:"moq_price"`
	MOQCurrency           string `json:"moq_currency"`

	PriceValue                  string `json:"price_value"`
	PriceCurrency               string `json:"price_currency"`
	PriceType                   string `json:"price_type"`
	AppliesToQuantityMin        string `json:"applies_to_quantity_min"`
	AppliesToQuantityMax        string `json:"applies_to_quantity_max"`
	AppliesToQuantityUnit       string `json:"applies_to_quantity_unit"`
	AppliesToSpecifications     string `json:"applies_to_specifications"`
	UnitPrice                   string `json:"unit_price"`
	OtherConditionsBasis        string `json:"other_conditions_basis"`
	OtherConditionsPaymentTerms string `json:"other_conditions_payment_terms"`
	OtherConditionsNotes        string `json:"other_conditions_notes"`
	MOQAppliesValue             string `json:"moq_applies_value"`
	MOQAppliesUnit              string `json:"moq_applies_unit"`

	FinalQuotedSellerPrice        string `json:"final_quoted_seller_price"`
	DeliveryResponsibility        string `json:"delivery_responsibility"`
	SellerDeliversToBuyerLocation string `json:"seller_delivers_to_buyer_location"`
	DeliveryLocation              string `json:"delivery_location"`

	BuyerRequirementType   string `json:"buyer_requirement_type"`
	RequirementVolumeType  string `json:"requirement_volume_type"`
	IsSellerDealsInProduct string `json:"is_seller_deals_in_product"`
	BuyerSentiment         string `json:"buyer_sentiment"`
	SellerSentiment        string `json:"seller_sentiment"`
	BuyerType              string `json:"buyer_type"`
	BusinessCategory       string `json:"business_category"`
	IntentForPurchase      string `json:"intent_for_purchase"`
}

// Intent labels used by the call-level classifier.
const (
	IntentHigh = "High"
	IntentLow  = "Low"
)

// IntentLabels is the fixed row and column order of the confusion matrix.
var IntentLabels = [2]string{IntentHigh, IntentLow}

type SellerLevelRecord struct {
	CallID                        string    `json:"call_id"`
	SellerID                      string    `json:"seller_id"`
	ProductID                     string    `json:"product_id"`
	ProductName                   string    `json:"product_name"`
	ProductKW                     string    `json:"product_kw"`
	InitialPrice                  *float64  `json:"initial_price"`
	IntermediatePrices            []float64 `json:"intermediate_price"`
	FinalPrice                    *float64  `json:"final_price"`
	DiscountPercent               *float64  `json:"discount_percent"`
	PriceCurrency                 string    `json:"price_currency"`
	MOQValue                      string    `json:"moq_value"`
	MOQUnit                       string    `json:"moq_unit"`
	MOQPrice                      string    `json:"moq_price"`
	UnitPrice                     string    `json:"unit_price"`
	PriceType                     string    `json:"price_type"`
	OtherConditionsNotes          string    `json:"other_conditions_notes"`
	OtherConditionsPaymentTerms   string    `json:"other_conditions_payment_terms"`
	DeliveryResponsibility        string    `json:"delivery_responsibility"`
	SellerDeliversToBuyerLocation string    `json:"seller_delivers_to_buyer_location"`
	SellerSentiment               string    `json:"seller_sentiment"`
	NegotiationFlag               string    `json:"negotiation_flag"`
	NumberOfPriceRevisions        int       `json:"number_of_price_revisions"`
	Notes                         string    `json:"notes"`
}

type BuyerLevelRecord struct {
	CallID                  string   `json:"call_id"`
	BuyerID                 string   `json:"buyer_id"`
	ProductID               string   `json:"product_id"`
	ProductName             string   `json:"product_name"`
	QuantityRequired        string   `json:"quantity_required"`
	RequirementVolumeType   string   `json:"requirement_volume_type"`
	BuyerRequirementType    string   `json:"Buyer_Requirement_Type"`
	BusinessCategory        string   `json:"business_category"`
	VariantAttributesFlat   string   `json:"variant_attributes_flat"`
	AppliesToSpecifications string   `json:"applies_to_specifications"`
	IntentForPurchase       string   `json:"Intent_for_purchase"`
	BuyerSentiment          string   `json:"buyer_sentiment"`
	IsSellerDealsInProduct  string   `json:"Is_Seller_deals_in_product"`
	DeliveryLocation        string   `json:"delivery_location"`
	PriceExpectation        *float64 `json:"price_expectation"`
	IsHighIntent            bool     `json:"is_high_intent"`
	Notes                   string   `json:"notes"`
}

type CategoryLevelRecord struct {
	ProductName            string   `json:"product_name"`
	ProductID              string   `json:"product_id"`
	ProductKW              string   `json:"product_kw"`
	BusinessCategory       string   `json:"business_category"`
	CallCount              int      `json:"call_count"`
	UniqueSellerCount      int      `json:"unique_seller_count"`
	UniqueBuyerCount       int      `json:"unique_buyer_count"`
	MedianInitialPrice     *float64 `json:"median_initial_price"`
	MedianFinalPrice       *float64 `json:"median_final_price"`
	AvgDiscountPercent     *float64 `json:"avg_discount_percent"`
	NegotiationRatePercent float64  `json:"negotiation_rate_percent"`
	TopRequestedSpecs      []string `json:"top_requested_specs"`
	MostCommonQuantity     string   `json:"most_common_quantity"`
	BuyerSentimentAvg      float64  `json:"buyer_sentiment_avg"`
	SellerSentimentAvg     float64  `json:"seller_sentiment_avg"`
	PriceRangeLow          *float64 `json:"price_range_low"`
	PriceRangeHigh         *float64 `json:"price_range_high"`
}

type SellerAggregateRecord struct {
	SellerID                  string   `json:"seller_id"`
	TotalCalls                int      `json:"total_calls"`
	UniqueProducts            int      `json:"unique_products"`
	UniqueBuyers              int      `json:"unique_buyers"`
	SellerType                string   `json:"seller_type"`
	DominantProduct           string   `json:"dominant_product"`
	AvgSellerSentimentNum     float64  `json:"avg_seller_sentiment_num"`
	MedianInitialPrice        *float64 `json:"median_initial_price"`
	MedianFinalPrice          *float64 `json:"median_final_price"`
	AvgDiscountPercent        *float64 `json:"avg_discount_percent"`
	NegotiationRatePercent    float64  `json:"negotiation_rate_percent"`
	NumberOfPriceRevisionsAvg float64  `json:"number_of_price_revisions_avg"`
	PriceVariance             *float64 `json:"price_variance"`
	SellerMinimumPrice        *float64 `json:"seller_minimum_price"`
	SellerMaximumPrice        *float64 `json:"seller_maximum_price"`
	MedianMOQValue            *float64 `json:"median_moq_value"`
	MedianMOQPrice            *float64 `json:"median_moq_price"`
	VolumeMixIndicator        float64  `json:"volume_mix_indicator"`
}

type CallLevelRecord struct {
	CallID                        string   `json:"call_id"`
	BuyerID                       string   `json:"buyer_id"`
	SellerID                      string   `json:"seller_id"`
	BuyerIntentLabel              string   `json:"Buyer_Intent_Label"`
	SellerIntentLabel             string   `json:"Seller_Intent_Label"`
	BuyerSentiment                string   `json:"buyer_sentiment"`
	SellerSentiment               string   `json:"seller_sentiment"`
	IsHighIntent                  bool     `json:"is_high_intent"`
	NegotiationFlag               string   `json:"negotiation_flag"`
	ProductName                   string   `json:"product_name"`
	FinalPrice                    *float64 `json:"final_price"`
	DeliveryResponsibility        string   `json:"delivery_responsibility"`
	SellerDeliversToBuyerLocation string   `json:"seller_delivers_to_buyer_location"`
}

// ConfusionMatrix cross-tabulates Seller_Intent_Label (rows) against
// Buyer_Intent_Label (columns), both in IntentLabels order.
type ConfusionMatrix struct {
	Counts [2][2]int `json:"counts"`
}
