package prompts

import (
	"fmt"
	"strings"
)

// Category classifies a node template. The set is closed.
type Category int

const (
	CategoryCore Category = iota
	CategoryVow
	CategoryContext
	CategoryFeature
	CategoryTools
	CategoryRuntime
	CategoryCustom
)

type categoryInfo struct {
	name     string
	lockable bool
}

// categoryTable carries the static data for every variant. Only core and vow
// templates may be safety-locked.
var categoryTable = [...]categoryInfo{
	CategoryCore:    {name: "core", lockable: true},
	CategoryVow:     {name: "vow", lockable: true},
	CategoryContext: {name: "context"},
	CategoryFeature: {name: "feature"},
	CategoryTools:   {name: "tools"},
	CategoryRuntime: {name: "runtime"},
	CategoryCustom:  {name: "custom"},
}

// AllCategories returns every category in declaration order.
func AllCategories() []Category {
	out := make([]Category, len(categoryTable))
	for i := range categoryTable {
		out[i] = Category(i)
	}
	return out
}

// Valid reports whether c is one of the declared variants.
func (c Category) Valid() bool {
	return c >= 0 && int(c) < len(categoryTable)
}

// Lockable reports whether templates of this category may carry the lock bit.
func (c Category) Lockable() bool {
	if !c.Valid() {
		return false
	}
	return categoryTable[c].lockable
}

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryTable[c].name
}

// ParseCategory maps a category name to its variant.
func ParseCategory(s string) (Category, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, info := range categoryTable {
		if info.name == name {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("prompts: unknown category %q", s)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("prompts: invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
