// Package sanitize rewrites exported records so a snapshot carries no
// secrets and no marketplace-specific identifiers.
package sanitize

import (
	"strings"

	"github.com/Sternrassler/oc-marketplace-export/pkg/catalog"
	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
)

const (
	// RedactedMessage replaces sensitive field values.
	RedactedMessage = "REDACTED BY OC SEEDING"

	// MarketplaceIDPlaceholder replaces the exporting marketplace's id.
	MarketplaceIDPlaceholder = "{MARKETPLACE_ID}"
)

// Sandbox and staging marketplaces were created with the environment
// appended to the production id.
var environmentSuffixes = []string{"_Sandbox", "_Staging"}

// NormalizeMarketplaceID strips the environment suffixes, "_Sandbox" first
// and then "_Staging".
func NormalizeMarketplaceID(id string) string {
	for _, suffix := range environmentSuffixes {
		id = strings.TrimSuffix(id, suffix)
	}
	return id
}

// Redact overwrites every present, non-null field named in res.RedactFields.
// Absent fields are not created.
func Redact(res *catalog.Resource, records []*record.Record) {
	if len(res.RedactFields) == 0 {
		return
	}
	for _, r := range records {
		for _, field := range res.RedactFields {
			v, ok := r.Get(field)
			if !ok || v.IsNull() {
				continue
			}
			r.Set(field, record.String(RedactedMessage))
		}
	}
}

// PlaceholdMarketplaceID replaces res.OwnerIDField with the placeholder
// when it names the exporting marketplace. Both sides are normalized, so
// "org1", "org1_Sandbox" and "org1_Staging" all match each other. Values
// owned by another marketplace are left alone.
func PlaceholdMarketplaceID(res *catalog.Resource, marketplaceID string, records []*record.Record) {
	if res.OwnerIDField == "" || marketplaceID == "" {
		return
	}
	target := NormalizeMarketplaceID(marketplaceID)
	for _, r := range records {
		v, ok := r.Get(res.OwnerIDField)
		if !ok {
			continue
		}
		owner, ok := v.Text()
		if !ok {
			continue
		}
		if NormalizeMarketplaceID(owner) == target {
			r.Set(res.OwnerIDField, record.String(MarketplaceIDPlaceholder))
		}
	}
}

// Stamp sets field to value on every record.
func Stamp(records []*record.Record, field, value string) {
	if field == "" {
		return
	}
	for _, r := range records {
		r.Set(field, record.String(value))
	}
}

// Transform applies res.DownloadTransform, if declared, in order. A
// transform returning nil keeps the original record.
func Transform(res *catalog.Resource, records []*record.Record) []*record.Record {
	if res.DownloadTransform == nil {
		return records
	}
	out := make([]*record.Record, len(records))
	for i, r := range records {
		if t := res.DownloadTransform(r); t != nil {
			out[i] = t
		} else {
			out[i] = r
		}
	}
	return out
}
