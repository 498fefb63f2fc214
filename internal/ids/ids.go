// Package ids canonicalizes call and party identifiers so every table joins on
// the same key.
package ids

import (
	"sort"
	"strconv"
	"strings"
)

// Normalize turns a raw identifier into its canonical join key: surrounding
// whitespace and embedded commas are removed, and a float rendering of an
// integral id ("12345.0", "1.2345e+04") collapses to its integer digits.
func Normalize(raw string) string {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if s == "" {
		return ""
	}
	if strings.EqualFold(s, "nan") || strings.EqualFold(s, "none") || strings.EqualFold(s, "null") {
		return ""
	}
	if !strings.ContainsAny(s, ".eE") {
		return s
	}
	if whole, frac, ok := strings.Cut(s, "."); ok && isDigits(whole) && strings.Trim(frac, "0") == "" {
		return whole
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return s
	}
	return strconv.FormatInt(int64(f), 10)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Parties are the seller and buyer behind one call.
type Parties struct {
	SellerID string `json:"seller_id"`
	BuyerID  string `json:"buyer_id"`
}

// Resolver maps a call id to its parties using the auxiliary reference table.
// The zero value resolves every call from the fallback ids alone.
type Resolver struct {
	byCall map[string]Parties
}

// NewResolver indexes reference entries by normalized call id. When several
// raw ids normalize to the same call, the entry whose raw id sorts last wins.
func NewResolver(entries map[string]Parties) *Resolver {
	raws := make([]string, 0, len(entries))
	for raw := range entries {
		raws = append(raws, raw)
	}
	sort.Strings(raws)

	r := &Resolver{byCall: make(map[string]Parties, len(entries))}
	for _, raw := range raws {
		p := entries[raw]
		key := Normalize(raw)
		if key == "" {
			continue
		}
		r.byCall[key] = Parties{SellerID: Normalize(p.SellerID), BuyerID: Normalize(p.BuyerID)}
	}
	return r
}

// Len reports how many calls the reference table covers.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byCall)
}

// Lookup returns the reference entry for a call, if any.
func (r *Resolver) Lookup(callID string) (Parties, bool) {
	if r == nil {
		return Parties{}, false
	}
	p, ok := r.byCall[Normalize(callID)]
	return p, ok
}

// Resolve returns the parties for a call. Calls missing from the reference
// table fall back to the ids embedded in the extraction, else "".
func (r *Resolver) Resolve(callID string, fallback Parties) Parties {
	if p, ok := r.Lookup(callID); ok {
		return p
	}
	return Parties{SellerID: Normalize(fallback.SellerID), BuyerID: Normalize(fallback.BuyerID)}
}
