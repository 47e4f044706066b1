package models

// Product field names.
const (
	FieldTitle = "title"
	FieldPrice = "price"
	FieldImage = "image"
)

// Product is a best-effort record inferred from a product-like element.
// Empty fields were not found on the page.
type Product struct {
	Title string `json:"title,omitempty"`
	Price string `json:"price,omitempty"`
	Image string `json:"image,omitempty"`
}

// Set assigns value to the named field. Unknown names are ignored.
func (p *Product) Set(field, value string) {
	switch field {
	case FieldTitle:
		p.Title = value
	case FieldPrice:
		p.Price = value
	case FieldImage:
		p.Image = value
	}
}

// Get returns the value of the named field.
func (p Product) Get(field string) string {
	switch field {
	case FieldTitle:
		return p.Title
	case FieldPrice:
		return p.Price
	case FieldImage:
		return p.Image
	}
	return ""
}

// Fields lists the populated field names in title, price, image order.
func (p Product) Fields() []string {
	var fields []string
	for _, f := range []string{FieldTitle, FieldPrice, FieldImage} {
		if p.Get(f) != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// IsEmpty reports whether no field is populated.
func (p Product) IsEmpty() bool {
	return p.Title == "" && p.Price == "" && p.Image == ""
}
