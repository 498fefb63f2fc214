package extractor

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

const systemPrompt = "You are an expert B2B call analyzer. Extract structured insights. " +
	"CRITICAL: You must extract EVERY price mentioned (market price, initial quote, final quote, etc.) " +
	"as a separate entry in 'prices_discussed'. Do not summarize. Respond ONLY with valid JSON."

const transcriptMarker = "\n\n# TRANSCRIPTION TO ANALYZE:\n\n"

// DefaultTemplate is used when no prompt file is configured.
const DefaultTemplate = `You analyze a recorded phone call between a B2B buyer and a seller on a marketplace.
Read the transcription and fill in the JSON object below. Use only what was said on the call.
When a value was not discussed, use null. Do not invent numbers.

Rules:
1. List every product that was discussed in "products_discussed", one object per product.
2. Inside each product, list EVERY price that was mentioned in "prices_discussed.price_entries",
   in the order it was said: market references, first quotes, counter offers and the final quote
   are all separate entries. Never merge or summarize prices.
3. "price_value" is the number only, without currency symbols or thousands separators.
4. "price_type" is one of: market_price, initial_quote, counter_offer, revised_quote, final_quote, other.
5. Sentiments are one of: positive, neutral, negative.
6. "intent_for_purchase" is one of: new_purchase, repeat_purchase, upgrade, price_enquiry, unknown.
7. "requirement_volume_type" is one of: retail, wholesale, bulk, unknown.

SCHEMA (return ONLY this JSON object):
{
  "buyer_profile": {
    "buyer_type": "",
    "business_category": "",
    "intent_for_purchase": ""
  },
  "call_insights": {
    "buyer_sentiment": {"value": ""},
    "seller_sentiment": {"value": ""}
  },
  "buyer_requirement_classification": {
    "requirement_type": "",
    "requirement_volume_type": ""
  },
  "products_discussed": [
    {
      "product_id": "",
      "product_name": "",
      "product_kw": "",
      "specifications": {"attributes": [{"name": "", "value": ""}]},
      "quantity_required": {"value": null, "unit": ""},
      "moq": {"value": null, "unit": "", "price": null, "currency": ""},
      "final_quoted_seller_price": null,
      "delivery_terms": {
        "responsibility": "",
        "seller_delivers_to_buyer_location": "",
        "delivery_location": ""
      },
      "seller_deals_in_product": {"value": ""},
      "prices_discussed": {
        "price_entries": [
          {
            "price_value": null,
            "currency": "",
            "price_type": "",
            "unit_price": "",
            "applies_to_quantity": {"min_quantity": null, "max_quantity": null, "unit": ""},
            "applies_to_specifications": {"related_spec_attributes": [{"name": "", "value": ""}]},
            "moq_applies": {"value": null, "unit": ""},
            "other_conditions": {"basis": "", "payment_terms": "", "additional_condition_notes": ""}
          }
        ]
      }
    }
  ]
}`

// LoadTemplate reads the prompt template from path, or returns DefaultTemplate
// when path is empty.
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return DefaultTemplate, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "extractor: read prompt %s", path)
	}
	t := strings.TrimSpace(string(b))
	if t == "" {
		return "", eris.Errorf("extractor: prompt %s is empty", path)
	}
	return t, nil
}

// BuildPrompt appends the transcript to the template under a fixed marker.
func BuildPrompt(template, transcript string) string {
	return template + transcriptMarker + transcript
}
