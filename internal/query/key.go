package query

import (
	"net/url"
	"strings"
)

// Kind is a resource type. Every cached read is tagged with one.
type Kind string

const (
	KindProfile          Kind = "profile"
	KindProducts         Kind = "products"
	KindProduct          Kind = "product"
	KindCategories       Kind = "categories"
	KindSubCategories    Kind = "subcategories"
	KindSubSubCategories Kind = "subsubcategories"
	KindOrders           Kind = "orders"
	KindOrder            Kind = "order"
	KindUserOrders       Kind = "user-orders"
	KindUsers            Kind = "users"
	KindReport           Kind = "report"
	KindReports          Kind = "reports"
	KindBrandStats       Kind = "brand-stats"
	KindStats            Kind = "stats"
	KindOutOfStock       Kind = "out-of-stock"
	KindLowStock         Kind = "low-stock"
)

// Kinds lists every known resource kind.
var Kinds = []Kind{
	KindProfile, KindProducts, KindProduct, KindCategories, KindSubCategories,
	KindSubSubCategories, KindOrders, KindOrder, KindUserOrders, KindUsers,
	KindReport, KindReports, KindBrandStats, KindStats, KindOutOfStock, KindLowStock,
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Key identifies one cache entry: a resource kind, an optional resource id
// and canonicalised parameters.
type Key struct {
	Kind   Kind
	ID     string
	Params string
}

// NewKey builds a key. params are encoded sorted by name, so two value sets
// with the same content always produce the same key.
func NewKey(kind Kind, id string, params url.Values) Key {
	return Key{Kind: kind, ID: id, Params: params.Encode()}
}

// KeyOf is NewKey without parameters.
func KeyOf(kind Kind, id string) Key {
	return Key{Kind: kind, ID: id}
}

func (k Key) String() string {
	var b strings.Builder
	b.WriteString(string(k.Kind))
	if k.ID != "" {
		b.WriteByte('/')
		b.WriteString(k.ID)
	}
	if k.Params != "" {
		b.WriteByte('?')
		b.WriteString(k.Params)
	}
	return b.String()
}

// Target selects the entries an invalidation applies to. Key matches
// exactly one entry, Kind matches every entry of that kind.
type Target interface {
	matches(Key) bool
}

func (k Key) matches(other Key) bool { return k == other }

func (k Kind) matches(key Key) bool { return key.Kind == k }
