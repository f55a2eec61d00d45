package sanitize

import (
	"testing"

	"github.com/Sternrassler/oc-marketplace-export/pkg/catalog"
	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
)

func textField(t *testing.T, r *record.Record, field string) string {
	t.Helper()
	v, ok := r.Get(field)
	if !ok {
		t.Fatalf("field %s is absent", field)
	}
	s, ok := v.Text()
	if !ok {
		t.Fatalf("field %s is %s, not string", field, v.Kind())
	}
	return s
}

func TestNormalizeMarketplaceID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "org1", want: "org1"},
		{in: "org1_Sandbox", want: "org1"},
		{in: "org1_Staging", want: "org1"},
		{in: "org1_Production", want: "org1_Production"},
		{in: "org1_Sandbox_Staging", want: "org1_Sandbox"},
		{in: "org1_Staging_Sandbox", want: "org1"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeMarketplaceID(tt.in); got != tt.want {
				t.Errorf("NormalizeMarketplaceID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	res := &catalog.Resource{Name: "ApiClients", RedactFields: []string{"ClientSecret", "HashKey"}}
	present := record.FromPairs("ID", "c1", "ClientSecret", "s3cret", "HashKey", nil)
	absent := record.FromPairs("ID", "c2")

	Redact(res, []*record.Record{present, absent})

	if got := textField(t, present, "ClientSecret"); got != RedactedMessage {
		t.Errorf("ClientSecret = %q, want %q", got, RedactedMessage)
	}
	if v, _ := present.Get("HashKey"); !v.IsNull() {
		t.Error("null HashKey should stay null")
	}
	if absent.Has("ClientSecret") || absent.Has("HashKey") {
		t.Error("Redact must not create absent fields")
	}
	if got := textField(t, present, "ID"); got != "c1" {
		t.Errorf("ID = %q, want c1", got)
	}
}

func TestPlaceholdMarketplaceID(t *testing.T) {
	res := &catalog.Resource{Name: "Products", OwnerIDField: "OwnerID"}

	tests := []struct {
		name          string
		marketplaceID string
		owner         any
		want          any
	}{
		{name: "exact match", marketplaceID: "org1", owner: "org1", want: MarketplaceIDPlaceholder},
		{name: "sandbox owner", marketplaceID: "org1", owner: "org1_Sandbox", want: MarketplaceIDPlaceholder},
		{name: "sandbox marketplace", marketplaceID: "org1_Sandbox", owner: "org1", want: MarketplaceIDPlaceholder},
		{name: "staging marketplace", marketplaceID: "org1_Staging", owner: "org1_Staging", want: MarketplaceIDPlaceholder},
		{name: "other tenant", marketplaceID: "org1", owner: "supplier42", want: "supplier42"},
		{name: "null owner", marketplaceID: "org1", owner: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := record.FromPairs("ID", "p1", "OwnerID", tt.owner)
			PlaceholdMarketplaceID(res, tt.marketplaceID, []*record.Record{r})

			v, _ := r.Get("OwnerID")
			if tt.want == nil {
				if !v.IsNull() {
					t.Errorf("OwnerID = %s, want null", v.Kind())
				}
				return
			}
			if got, _ := v.Text(); got != tt.want {
				t.Errorf("OwnerID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlaceholdMarketplaceID_Idempotent(t *testing.T) {
	res := &catalog.Resource{Name: "Products", OwnerIDField: "OwnerID"}
	once := []*record.Record{
		record.FromPairs("OwnerID", "org1"),
		record.FromPairs("OwnerID", "org1_Sandbox"),
		record.FromPairs("OwnerID", "other"),
		record.FromPairs("Name", "no owner"),
	}
	PlaceholdMarketplaceID(res, "org1_Sandbox", once)

	twice := make([]*record.Record, len(once))
	for i, r := range once {
		twice[i] = r.Clone()
	}
	PlaceholdMarketplaceID(res, "org1_Sandbox", twice)

	for i := range once {
		if !once[i].Equal(twice[i]) {
			t.Errorf("record %d changed on second pass: %s vs %s", i, once[i], twice[i])
		}
	}
}

func TestPlaceholdMarketplaceID_NoOwnerField(t *testing.T) {
	res := &catalog.Resource{Name: "Buyers"}
	r := record.FromPairs("OwnerID", "org1")
	PlaceholdMarketplaceID(res, "org1", []*record.Record{r})
	if got := textField(t, r, "OwnerID"); got != "org1" {
		t.Errorf("OwnerID = %q, want untouched", got)
	}
}

func TestStamp(t *testing.T) {
	records := []*record.Record{record.FromPairs("ID", "v1"), record.FromPairs("ID", "v2", "ProductID", "stale")}
	Stamp(records, "ProductID", "p1")
	for _, r := range records {
		if got := textField(t, r, "ProductID"); got != "p1" {
			t.Errorf("ProductID = %q, want p1", got)
		}
	}
}

func TestTransform(t *testing.T) {
	records := []*record.Record{record.FromPairs("ID", "1", "Drop", true)}

	same := Transform(&catalog.Resource{Name: "X"}, records)
	if len(same) != 1 || same[0] != records[0] {
		t.Error("no transform should return the input")
	}

	res := &catalog.Resource{Name: "X", DownloadTransform: catalog.DropFields("Drop")}
	out := Transform(res, records)
	if out[0].Has("Drop") {
		t.Error("transform was not applied")
	}

	nilRes := &catalog.Resource{Name: "X", DownloadTransform: func(*record.Record) *record.Record { return nil }}
	if out := Transform(nilRes, records); out[0] != records[0] {
		t.Error("nil transform result should keep the record")
	}
}
