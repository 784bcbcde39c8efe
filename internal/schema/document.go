package schema

// Field is one value of a document field.
type Field struct {
	Name      string
	Value     string
	Treatment Treatment
}

// Document is an index document before it is handed to the store. A field
// name may repeat; each value is indexed separately.
type Document struct {
	ID     string
	Fields []Field
}

// NewDocument creates a document of the given kind.
func NewDocument(id, kind string) *Document {
	d := &Document{ID: id}
	d.Add(DocKind, kind, Keyword)
	return d
}

// Add appends a field value.
func (d *Document) Add(name, value string, t Treatment) {
	d.Fields = append(d.Fields, Field{Name: name, Value: value, Treatment: t})
}

// Values returns every value of name, in insertion order.
func (d *Document) Values(name string) []string {
	var out []string
	for _, f := range d.Fields {
		if f.Name == name {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has reports whether the document carries name.
func (d *Document) Has(name string) bool {
	for _, f := range d.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Kind returns the document kind.
func (d *Document) Kind() string {
	if v := d.Values(DocKind); len(v) > 0 {
		return v[0]
	}
	return ""
}
