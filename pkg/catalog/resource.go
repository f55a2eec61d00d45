// Package catalog declares the resource dependency graph walked by the
// extractor: which list endpoints exist, how they nest, and which fields
// need sanitizing on export.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
)

// Resource kinds with behavior hard-wired into the extractor.
const (
	Products                = "Products"
	Variants                = "Variants"
	VariantInventoryRecords = "VariantInventoryRecords"
)

// Fields stamped onto variant inventory records.
const (
	ProductIDField = "ProductID"
	VariantIDField = "VariantID"
)

// ErrUnknownResource is returned when a declared child cannot be resolved.
var ErrUnknownResource = errors.New("unknown resource")

// ChildPredicate decides whether a child is listed under a parent record.
type ChildPredicate func(parent *record.Record) bool

// Transform normalizes a record after sanitization.
type Transform func(r *record.Record) *record.Record

// Resource describes one list endpoint. Descriptors are immutable once a
// graph is built.
type Resource struct {
	// Name is the unique resource type name.
	Name string

	// Path is the list route relative to the API version root. Scope ids
	// replace {0}, {1}, ... in order, e.g. "products/{0}/variants".
	Path string

	// Query holds static query parameters sent with every page request.
	Query map[string]string

	// IsChild marks resources reachable only through a parent.
	IsChild bool

	// Children lists child resource names in expansion order.
	Children []string

	// ParentRefField is stamped with the parent's ID on child records.
	ParentRefField string

	// RedactFields are replaced by the redaction marker when present.
	RedactFields []string

	// OwnerIDField holds a marketplace id that gets placeholder substitution.
	OwnerIDField string

	// ShouldFetchChild gates listing this resource under a parent. Nil
	// means always.
	ShouldFetchChild ChildPredicate

	// DownloadTransform runs after sanitization. Nil means none.
	DownloadTransform Transform
}

// ShouldFetch applies the child predicate.
func (r *Resource) ShouldFetch(parent *record.Record) bool {
	if r.ShouldFetchChild == nil {
		return true
	}
	return r.ShouldFetchChild(parent)
}

// Route expands Path with the given scope ids, path-escaped.
func (r *Resource) Route(scopeIDs ...string) (string, error) {
	route := r.Path
	for i, id := range scopeIDs {
		placeholder := fmt.Sprintf("{%d}", i)
		if !strings.Contains(route, placeholder) {
			return "", fmt.Errorf("resource %s: route %q has no slot for scope id %d", r.Name, r.Path, i)
		}
		route = strings.ReplaceAll(route, placeholder, url.PathEscape(id))
	}
	if strings.Contains(route, "{") {
		return "", fmt.Errorf("resource %s: route %q needs more than %d scope ids", r.Name, r.Path, len(scopeIDs))
	}
	return route, nil
}
