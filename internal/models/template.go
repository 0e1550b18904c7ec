package models

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // string, number
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity  string                 `json:"entity"`
	Version string                 `json:"version"`
	Columns []ImportTemplateColumn `json:"columns"`
}

// ProductImportColumns returns the column definitions for product import
func ProductImportColumns() []ImportTemplateColumn {
	return []ImportTemplateColumn{
		{Name: "name", Description: "Product name in English (this or nameAr is required)", Required: false, Type: "string", Example: "Blue Cotton T-Shirt"},
		{Name: "nameAr", Description: "Localized product name (this or name is required)", Required: false, Type: "string", Example: ""},
		{Name: "price", Description: "Product price, must be a positive number", Required: true, Type: "number", Example: "29.99"},
		{Name: "sku", Description: "Product SKU", Required: false, Type: "string", Example: "TSH-BLU-001"},
		{Name: "productId", Description: "External product identifier", Required: false, Type: "string", Example: ""},
		{Name: "barcode", Description: "Product barcode", Required: false, Type: "string", Example: ""},
		{Name: "stock", Description: "Initial stock quantity (defaults to 0)", Required: false, Type: "number", Example: "10"},
		{Name: "category", Description: "Category name - matched case-insensitively against English or localized names; unmatched rows import uncategorized", Required: false, Type: "string", Example: "Electronics"},
		{Name: "brand", Description: "Brand name - matched against English then localized names", Required: false, Type: "string", Example: "Acme"},
		{Name: "brandCode", Description: "Brand code - used when no brand name matches", Required: false, Type: "string", Example: "ACM"},
	}
}

// ProductImportTemplate returns the template definition for products
func ProductImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "products",
		Version: "1.0",
		Columns: ProductImportColumns(),
	}
}
