package domain

import "fmt"

// Category holds the taxonomy bounds every enquiry and record is addressed
// with. The bazaar is divided into categories, sub categories and sub sub
// categories; a tradable item class is one (cat, sub, subsub) triple with
// all three components 1-based.
type Category struct {
	Categories       int
	SubCategories    int
	SubSubCategories int
}

// DefaultCategory mirrors the stock taxonomy: 5 categories of 18 sub
// categories with 9 sub sub categories each.
var DefaultCategory = Category{
	Categories:       5,
	SubCategories:    18,
	SubSubCategories: 9,
}

// Contains reports whether the triple addresses a valid cell.
func (c Category) Contains(cat, sub, subsub int) bool {
	return cat >= 1 && cat <= c.Categories &&
		sub >= 1 && sub <= c.SubCategories &&
		subsub >= 1 && subsub <= c.SubSubCategories
}

// ContainsSub reports whether (cat, sub) addresses a valid sub category.
// Aggregate queries pass subsub <= 0 and are validated with this.
func (c Category) ContainsSub(cat, sub int) bool {
	return cat >= 1 && cat <= c.Categories && sub >= 1 && sub <= c.SubCategories
}

// Cells returns the number of cells per enquiry type.
func (c Category) Cells() int {
	return c.Categories * c.SubCategories * c.SubSubCategories
}

// Code renders the triple as the zero-padded concatenated category code
// used by the record archive, e.g. (1, 12, 3) -> "011203".
func (c Category) Code(cat, sub, subsub int) string {
	return fmt.Sprintf("%02d%02d%02d", cat, sub, subsub)
}
