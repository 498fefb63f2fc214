// internal/types/extraction.go
package types

import (
	"bytes"
	"encoding/json"
	"strings"
)

// --------------------------------------------
// Scalar leaf of an LLM extraction
// --------------------------------------------

// Scalar is a leaf value the model may emit as a string, a number, a bool or
// null. Numbers keep their literal text so "1,200" and 1200 survive as written.
type Scalar struct {
	Value string
	Valid bool
}

// S builds a valid Scalar, handy in tests and fixtures.
func S(v string) Scalar { return Scalar{Value: v, Valid: true} }

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*s = Scalar{}
	case b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = Scalar{Value: v, Valid: true}
	default:
		// numbers, bools, and the odd nested value kept as compact text
		var buf bytes.Buffer
		if err := json.Compact(&buf, b); err != nil {
			return err
		}
		*s = Scalar{Value: buf.String(), Valid: true}
	}
	return nil
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// String returns the value, or "" for null.
func (s Scalar) String() string {
	if !s.Valid {
		return ""
	}
	return s.Value
}

// Empty reports whether the value is null or blank.
func (s Scalar) Empty() bool { return strings.TrimSpace(s.String()) == "" }

// ============================================================
//  CallExtraction: the per-call structure returned by the LLM.
//  Every nested object is a pointer so a missing block is nil
//  rather than an error.
// ============================================================

type CallExtraction struct {
	BuyerProfile *BuyerProfile              `json:"buyer_profile"`
	CallInsights *CallInsights              `json:"call_insights"`
	Requirement  *RequirementClassification `json:"buyer_requirement_classification"`
	Products     []ProductDiscussion        `json:"products_discussed"`
}

type BuyerProfile struct {
	BuyerType         Scalar `json:"buyer_type"`
	BusinessCategory  Scalar `json:"business_category"`
	IntentForPurchase Scalar `json:"intent_for_purchase"`
}

type CallInsights struct {
	BuyerSentiment  *Labeled `json:"buyer_sentiment"`
	SellerSentiment *Labeled `json:"seller_sentiment"`
}

// Labeled wraps the {"value": ...} objects the model uses for categorical answers.
// A bare scalar in place of the object is accepted as the value.
type Labeled struct {
	Value Scalar `json:"value"`
}

func (l *Labeled) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '{' {
		return l.Value.UnmarshalJSON(b)
	}
	var raw struct {
		Value Scalar `json:"value"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	l.Value = raw.Value
	return nil
}

// Label returns the categorical value of l, or "" when l is nil.
func (l *Labeled) Label() string {
	if l == nil {
		return ""
	}
	return l.Value.String()
}

type RequirementClassification struct {
	RequirementType       Scalar `json:"requirement_type"`
	RequirementVolumeType Scalar `json:"requirement_volume_type"`
}

// --------------------------------------------
// Products and their negotiation trail
// --------------------------------------------

type ProductDiscussion struct {
	ProductID              Scalar           `json:"product_id"`
	ProductName            Scalar           `json:"product_name"`
	ProductKW              Scalar           `json:"product_kw"`
	Specifications         *Specifications  `json:"specifications"`
	QuantityRequired       *Quantity        `json:"quantity_required"`
	MOQ                    *MOQ             `json:"moq"`
	FinalQuotedSellerPrice Scalar           `json:"final_quoted_seller_price"`
	DeliveryTerms          *DeliveryTerms   `json:"delivery_terms"`
	SellerDealsInProduct   *Labeled         `json:"seller_deals_in_product"`
	PricesDiscussed        *PricesDiscussed `json:"prices_discussed"`
}

type Specifications struct {
	Attributes []SpecAttribute `json:"attributes"`
}

type SpecAttribute struct {
	Name  Scalar `json:"name"`
	Value Scalar `json:"value"`
}

type Quantity struct {
	Value Scalar `json:"value"`
	Unit  Scalar `json:"unit"`
}

type MOQ struct {
	Value    Scalar `json:"value"`
	Unit     Scalar `json:"unit"`
	Price    Scalar `json:"price"`
	Currency Scalar `json:"currency"`
}

type DeliveryTerms struct {
	Responsibility                Scalar `json:"responsibility"`
	SellerDeliversToBuyerLocation Scalar `json:"seller_delivers_to_buyer_location"`
	DeliveryLocation              Scalar `json:"delivery_location"`
}

type PricesDiscussed struct {
	PriceEntries []PriceEntry `json:"price_entries"`
}

type PriceEntry struct {
	PriceValue              Scalar           `json:"price_value"`
	Currency                Scalar           `json:"currency"`
	PriceType               Scalar           `json:"price_type"`
	UnitPrice               Scalar           `json:"unit_price"`
	AppliesToQuantity       *QuantityRange   `json:"applies_to_quantity"`
	AppliesToSpecifications *SpecScope       `json:"applies_to_specifications"`
	MOQApplies              *Quantity        `json:"moq_applies"`
	OtherConditions         *OtherConditions `json:"other_conditions"`
}

type QuantityRange struct {
	MinQuantity Scalar `json:"min_quantity"`
	MaxQuantity Scalar `json:"max_quantity"`
	Unit        Scalar `json:"unit"`
}

type SpecScope struct {
	RelatedSpecAttributes []SpecAttribute `json:"related_spec_attributes"`
}

type OtherConditions struct {
	Basis                    Scalar `json:"basis"`
	PaymentTerms             Scalar `json:"payment_terms"`
	AdditionalConditionNotes Scalar `json:"additional_condition_notes"`
}
