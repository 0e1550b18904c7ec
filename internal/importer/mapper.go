package importer

import (
	"math"
	"strconv"
	"strings"
)

// Map validates a raw row and resolves its category/brand cells against
// the supplied lookups, producing either a creation payload or a row
// error. Pure function: no I/O, no side effects, no mutation of lookups.
func Map(row RawRow, lookups Lookups) RowOutcome {
	name := cell(row, "name")
	nameAr := cell(row, "namear")

	label := name
	if label == "" {
		label = nameAr
	}
	if label == "" {
		label = cell(row, "sku")
	}

	// Required-field checks short-circuit before any lookup is attempted.
	if name == "" && nameAr == "" {
		return errorOutcome(row.Number, label, "product name is required")
	}

	// ParseFloat accepts "NaN" and "Inf"; neither is a sellable price.
	priceStr := cell(row, "price")
	price, err := strconv.ParseFloat(priceStr, 64)
	if priceStr == "" || err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return errorOutcome(row.Number, label, "valid price is required")
	}

	// English name falls back to the localized one so bilingual catalogs
	// with only the localized column still import.
	productName := name
	if productName == "" {
		productName = nameAr
	}

	stock := 0
	if s := cell(row, "stock"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			stock = parsed
		}
	}

	sku := cell(row, "sku")

	product := &MappedProduct{
		Name:        productName,
		Price:       price,
		SKU:         sku,
		ProductID:   cell(row, "productid"),
		Barcode:     cell(row, "barcode"),
		Stock:       stock,
		CategoryID:  resolveCategory(cell(row, "category"), lookups.Categories),
		BrandID:     resolveBrand(cell(row, "brand"), cell(row, "brandcode"), lookups.Brands),
		IsAvailable: true,
		IsPublished: true,
		Variants: []Variant{
			{Name: "Default", Price: price, Stock: stock, SKU: sku},
		},
	}

	return RowOutcome{Kind: OutcomeSuccess, Row: row.Number, Product: product}
}

// resolveCategory matches the cell case-insensitively against a lookup
// entry's name or localized name. First match wins. No match leaves the
// product uncategorized rather than failing the row.
func resolveCategory(value string, categories []CategoryRef) string {
	if value == "" {
		return ""
	}
	for _, cat := range categories {
		if strings.EqualFold(cat.Name, value) || strings.EqualFold(cat.LocalizedName, value) {
			return cat.ID
		}
	}
	return ""
}

// resolveBrand tries three conditions in order: English name match,
// localized name match, then explicit brand-code match. An earlier
// condition wins over a later one even when both match different entries.
func resolveBrand(name, code string, brands []BrandRef) string {
	if name != "" {
		for _, b := range brands {
			if strings.EqualFold(b.Name, name) {
				return b.ID
			}
		}
		for _, b := range brands {
			if strings.EqualFold(b.LocalizedName, name) {
				return b.ID
			}
		}
	}
	if code != "" {
		for _, b := range brands {
			if strings.EqualFold(b.Code, code) {
				return b.ID
			}
		}
	}
	return ""
}

// cell returns the trimmed value of a normalized column, tolerating rows
// where the column is absent entirely. Numeric cells already arrive
// stringified by the reader, so text and number cells coerce identically.
func cell(row RawRow, key string) string {
	return strings.TrimSpace(row.Cells[key])
}

func errorOutcome(rowNum int, label, message string) RowOutcome {
	return RowOutcome{
		Kind: OutcomeError,
		Row:  rowNum,
		Err:  &RowError{Row: rowNum, Product: label, Error: message},
	}
}
