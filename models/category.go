package models

import (
	"fmt"
	"strings"
)

// Category partitions photos into galleries. Stored values are upper case.
type Category string

const (
	CategoryJeju    Category = "JEJU"
	CategorySapporo Category = "SAPPORO"
)

// Categories lists every known category in navigation order.
var Categories = []Category{CategoryJeju, CategorySapporo}

var categoryLabels = map[Category]string{
	CategoryJeju:    "Jeju",
	CategorySapporo: "Sapporo",
}

// ParseCategory normalizes s (any case, surrounding space ignored) and checks
// it against the known set.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Slug is the lower-case path segment used in gallery routes.
func (c Category) Slug() string {
	return strings.ToLower(string(c))
}

func (c Category) Label() string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}
