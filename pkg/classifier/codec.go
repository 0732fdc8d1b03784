package classifier

import "slices"

// LabelCodec maps identity labels to dense class indices. Classes are the
// sorted distinct labels seen by Fit, so the mapping does not depend on
// sample order.
type LabelCodec struct {
	classes []string
}

// NewLabelCodec returns a codec fitted to labels.
func NewLabelCodec(labels []string) *LabelCodec {
	c := &LabelCodec{}
	c.Fit(labels)
	return c
}

// Fit replaces the known classes with the distinct values of labels.
func (c *LabelCodec) Fit(labels []string) {
	classes := slices.Clone(labels)
	slices.Sort(classes)
	c.classes = slices.Compact(classes)
}

// Encode returns the class index of label.
func (c *LabelCodec) Encode(label string) (int, bool) {
	return slices.BinarySearch(c.classes, label)
}

// Decode returns the label of class index i.
func (c *LabelCodec) Decode(i int) (string, bool) {
	if i < 0 || i >= len(c.classes) {
		return "", false
	}
	return c.classes[i], true
}

// Classes returns a copy of the known labels in index order.
func (c *LabelCodec) Classes() []string {
	return slices.Clone(c.classes)
}

// Len returns the number of classes.
func (c *LabelCodec) Len() int {
	return len(c.classes)
}
