package catalog

import (
	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
)

// Fields the platform computes on read. They are dropped so a snapshot can
// be seeded back without write conflicts.
var (
	userComputedFields      = []string{"AvailableRoles", "DateCreated", "PasswordLastSetDate", "LastActive"}
	categoryComputedFields  = []string{"ChildCount"}
	promotionComputedFields = []string{"RedemptionCount"}
)

// DropFields returns a transform that removes the named fields.
func DropFields(fields ...string) Transform {
	return func(r *record.Record) *record.Record {
		for _, f := range fields {
			r.Delete(f)
		}
		return r
	}
}

// HasVariants reports whether a product declares at least one variant.
func HasVariants(product *record.Record) bool {
	v, ok := product.Get("VariantCount")
	if !ok {
		return false
	}
	n, ok := v.Int64()
	return ok && n > 0
}

// Default returns the marketplace directory in export order.
func Default() *Graph {
	g, err := New(
		&Resource{Name: "SecurityProfiles", Path: "securityprofiles"},
		&Resource{Name: "ImpersonationConfigs", Path: "impersonationconfig"},
		&Resource{Name: "OpenIdConnects", Path: "openidconnects", RedactFields: []string{"ConnectClientSecret"}},
		&Resource{Name: "AdminUsers", Path: "adminusers", DownloadTransform: DropFields(userComputedFields...)},
		&Resource{Name: "AdminUserGroups", Path: "usergroups"},
		&Resource{Name: "AdminAddresses", Path: "addresses"},
		&Resource{Name: "MessageSenders", Path: "messagesenders", RedactFields: []string{"SharedKey"}},
		&Resource{Name: "ApiClients", Path: "apiclients", RedactFields: []string{"ClientSecret"}},
		&Resource{Name: "Incrementors", Path: "incrementors"},
		&Resource{Name: "Webhooks", Path: "webhooks", RedactFields: []string{"HashKey"}},
		&Resource{Name: "IntegrationEvents", Path: "integrationEvents", RedactFields: []string{"HashKey"}},
		&Resource{Name: "XpIndices", Path: "xpindices"},
		&Resource{Name: "Locales", Path: "locales", OwnerIDField: "OwnerID"},

		&Resource{
			Name: "Buyers",
			Path: "buyers",
			Children: []string{
				"Users", "UserGroups", "Addresses", "CostCenters",
				"CreditCards", "SpendingAccounts", "ApprovalRules",
			},
		},
		&Resource{Name: "Users", Path: "buyers/{0}/users", IsChild: true, ParentRefField: "BuyerID", DownloadTransform: DropFields(userComputedFields...)},
		&Resource{Name: "UserGroups", Path: "buyers/{0}/usergroups", IsChild: true, ParentRefField: "BuyerID"},
		&Resource{Name: "Addresses", Path: "buyers/{0}/addresses", IsChild: true, ParentRefField: "BuyerID"},
		&Resource{Name: "CostCenters", Path: "buyers/{0}/costcenters", IsChild: true, ParentRefField: "BuyerID"},
		&Resource{Name: "CreditCards", Path: "buyers/{0}/creditcards", IsChild: true, ParentRefField: "BuyerID"},
		&Resource{Name: "SpendingAccounts", Path: "buyers/{0}/spendingaccounts", IsChild: true, ParentRefField: "BuyerID"},
		&Resource{Name: "ApprovalRules", Path: "buyers/{0}/approvalrules", IsChild: true, ParentRefField: "BuyerID"},

		&Resource{Name: "Catalogs", Path: "catalogs", OwnerIDField: "OwnerID", Children: []string{"Categories"}},
		&Resource{
			Name:              "Categories",
			Path:              "catalogs/{0}/categories",
			Query:             map[string]string{"depth": "all"},
			IsChild:           true,
			ParentRefField:    "CatalogID",
			DownloadTransform: DropFields(categoryComputedFields...),
		},

		&Resource{Name: "Suppliers", Path: "suppliers", Children: []string{"SupplierUsers", "SupplierUserGroups", "SupplierAddresses"}},
		&Resource{Name: "SupplierUsers", Path: "suppliers/{0}/users", IsChild: true, ParentRefField: "SupplierID", DownloadTransform: DropFields(userComputedFields...)},
		&Resource{Name: "SupplierUserGroups", Path: "suppliers/{0}/usergroups", IsChild: true, ParentRefField: "SupplierID"},
		&Resource{Name: "SupplierAddresses", Path: "suppliers/{0}/addresses", IsChild: true, ParentRefField: "SupplierID"},

		&Resource{Name: "Specs", Path: "specs", OwnerIDField: "OwnerID", Children: []string{"SpecOptions"}},
		&Resource{Name: "SpecOptions", Path: "specs/{0}/options", IsChild: true, ParentRefField: "SpecID"},
		&Resource{Name: "PriceSchedules", Path: "priceschedules", OwnerIDField: "OwnerID"},

		&Resource{Name: Products, Path: "products", OwnerIDField: "OwnerID", Children: []string{Variants, "InventoryRecords"}},
		&Resource{
			Name:             Variants,
			Path:             "products/{0}/variants",
			IsChild:          true,
			ParentRefField:   ProductIDField,
			Children:         []string{VariantInventoryRecords},
			ShouldFetchChild: HasVariants,
		},
		&Resource{Name: "InventoryRecords", Path: "products/{0}/inventoryrecords", IsChild: true, ParentRefField: ProductIDField, OwnerIDField: "OwnerID"},
		&Resource{Name: VariantInventoryRecords, Path: "products/{0}/variants/{1}/inventoryrecords", IsChild: true, OwnerIDField: "OwnerID"},
		&Resource{Name: "ProductFacets", Path: "productfacets"},
		&Resource{Name: "Promotions", Path: "promotions", OwnerIDField: "OwnerID", DownloadTransform: DropFields(promotionComputedFields...)},
	)
	if err != nil {
		panic(err)
	}
	return g
}
