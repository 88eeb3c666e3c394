package model

// CategoryIndex is the in-memory set of category strings currently present
// on any live entry. It is recomputed wholesale on init and on a category
// rename, and maintained incrementally on insert/edit.
type CategoryIndex struct {
	set map[string]struct{}
}

// NewCategoryIndex builds an index from an initial slice of categories.
func NewCategoryIndex(categories []string) *CategoryIndex {
	idx := &CategoryIndex{set: make(map[string]struct{}, len(categories))}
	for _, c := range categories {
		idx.set[c] = struct{}{}
	}
	return idx
}

// Add inserts category into the index. It returns true if the index
// changed (the category was not already present).
func (c *CategoryIndex) Add(category string) bool {
	if _, ok := c.set[category]; ok {
		return false
	}
	c.set[category] = struct{}{}
	return true
}

// Remove deletes category from the index. It returns true if the index
// changed (the category was present).
func (c *CategoryIndex) Remove(category string) bool {
	if _, ok := c.set[category]; !ok {
		return false
	}
	delete(c.set, category)
	return true
}

// Contains reports whether category is currently present.
func (c *CategoryIndex) Contains(category string) bool {
	_, ok := c.set[category]
	return ok
}

// Reset replaces the index contents wholesale, as done after an
// edit-category rename that needs a full recomputation.
func (c *CategoryIndex) Reset(categories []string) {
	c.set = make(map[string]struct{}, len(categories))
	for _, cat := range categories {
		c.set[cat] = struct{}{}
	}
}

// Slice returns the categories currently in the index, in no particular
// order.
func (c *CategoryIndex) Slice() []string {
	out := make([]string, 0, len(c.set))
	for cat := range c.set {
		out = append(out, cat)
	}
	return out
}

// Len reports the number of distinct categories.
func (c *CategoryIndex) Len() int {
	return len(c.set)
}
