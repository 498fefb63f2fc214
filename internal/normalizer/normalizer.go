// Package normalizer flattens a call's nested extraction into price-entry rows.
package normalizer

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"sales-insights-go/internal/types"
)

// CallMeta identifies the call an extraction belongs to.
type CallMeta struct {
	CallID   string
	SellerID string
	BuyerID  string
}

// Placeholder is the degenerate row emitted for a call whose extraction could
// not be used. Only the identifiers are set.
func Placeholder(meta CallMeta) types.FlatRow {
	return types.FlatRow{CallID: meta.CallID, SellerID: meta.SellerID, BuyerID: meta.BuyerID}
}

// FlattenJSON decodes raw extraction JSON and flattens it. A payload that does
// not decode yields the single placeholder row together with the decode error.
func FlattenJSON(raw []byte, meta CallMeta) ([]types.FlatRow, error) {
	var ext types.CallExtraction
	if err := json.Unmarshal(raw, &ext); err != nil {
		return []types.FlatRow{Placeholder(meta)}, eris.Wrap(err, "normalizer: decode extraction")
	}
	return Flatten(&ext, meta), nil
}

// CallRow is the row carrying only the call-level attributes of ext, with
// every product and price field empty.
func CallRow(ext *types.CallExtraction, meta CallMeta) types.FlatRow {
	row := Placeholder(meta)
	if ext == nil {
		return row
	}
	if bp := ext.BuyerProfile; bp != nil {
		row.BuyerType = bp.BuyerType.String()
		row.BusinessCategory = bp.BusinessCategory.String()
		row.IntentForPurchase = bp.IntentForPurchase.String()
	}
	if ci := ext.CallInsights; ci != nil {
		row.BuyerSentiment = ci.BuyerSentiment.Label()
		row.SellerSentiment = ci.SellerSentiment.Label()
	}
	if rc := ext.Requirement; rc != nil {
		row.BuyerRequirementType = rc.RequirementType.String()
		row.RequirementVolumeType = rc.RequirementVolumeType.String()
	}
	return row
}

// Flatten emits one row per (product, price entry). A product without price
// entries still yields one row with the price fields left empty. Call-level
// attributes are copied onto every row.
func Flatten(ext *types.CallExtraction, meta CallMeta) []types.FlatRow {
	if ext == nil {
		return nil
	}
	base := CallRow(ext, meta)

	var rows []types.FlatRow
	for i := range ext.Products {
		product := productRow(base, &ext.Products[i])

		var entries []types.PriceEntry
		if pd := ext.Products[i].PricesDiscussed; pd != nil {
			entries = pd.PriceEntries
		}
		if len(entries) == 0 {
			rows = append(rows, product)
			continue
		}
		for j := range entries {
			rows = append(rows, withPrice(product, &entries[j]))
		}
	}
	return rows
}

func productRow(base types.FlatRow, p *types.ProductDiscussion) types.FlatRow {
	row := base
	row.ProductID = p.ProductID.String()
	row.ProductName = p.ProductName.String()
	row.ProductKW = p.ProductKW.String()
	row.VariantAttributes = variantAttributes(p.Specifications)
	if q := p.QuantityRequired; q != nil {
		row.QuantityRequiredValue = q.Value.String()
		row.QuantityRequiredUnit = q.Unit.String()
	}
	if m := p.MOQ; m != nil {
		row.MOQValue = m.Value.String()
		row.MOQUnit = m.Unit.String()
		row.MOQPrice = m.Price.String()
		row.MOQCurrency = m.Currency.String()
	}
	row.FinalQuotedSellerPrice = p.FinalQuotedSellerPrice.String()
	if d := p.DeliveryTerms; d != nil {
		row.DeliveryResponsibility = d.Responsibility.String()
		row.SellerDeliversToBuyerLocation = d.SellerDeliversToBuyerLocation.String()
		row.DeliveryLocation = d.DeliveryLocation.String()
	}
	row.IsSellerDealsInProduct = p.SellerDealsInProduct.Label()
	return row
}

func withPrice(product types.FlatRow, e *types.PriceEntry) types.FlatRow {
	row := product
	row.PriceValue = e.PriceValue.String()
	row.PriceCurrency = e.Currency.String()
	row.PriceType = e.PriceType.String()
	row.UnitPrice = e.UnitPrice.String()
	if q := e.AppliesToQuantity; q != nil {
		row.AppliesToQuantityMin = q.MinQuantity.String()
		row.AppliesToQuantityMax = q.MaxQuantity.String()
		row.AppliesToQuantityUnit = q.Unit.String()
	}
	if s := e.AppliesToSpecifications; s != nil {
		parts := make([]string, 0, len(s.RelatedSpecAttributes))
		for _, a := range s.RelatedSpecAttributes {
			parts = append(parts, a.Name.String()+": "+a.Value.String())
		}
		row.AppliesToSpecifications = strings.Join(parts, "; ")
	}
	if m := e.MOQApplies; m != nil {
		row.MOQAppliesValue = m.Value.String()
		row.MOQAppliesUnit = m.Unit.String()
	}
	if c := e.OtherConditions; c != nil {
		row.OtherConditionsBasis = c.Basis.String()
		row.OtherConditionsPaymentTerms = c.PaymentTerms.String()
		row.OtherConditionsNotes = c.AdditionalConditionNotes.String()
	}
	return row
}

// variantAttributes encodes the product's named specifications as a JSON
// object. Attributes missing a name or a value are dropped and a repeated
// name keeps its last value.
func variantAttributes(specs *types.Specifications) string {
	attrs := map[string]string{}
	if specs != nil {
		for _, a := range specs.Attributes {
			if a.Name.Empty() || a.Value.Empty() {
				continue
			}
			attrs[a.Name.String()] = a.Value.String()
		}
	}
	b, _ := json.Marshal(attrs)
	return string(b)
}
