package prompt

import (
	"strings"
)

const (
	DefaultTemplateID = "standard"
	ProductListingID  = "product-listing"

	titlePlaceholder       = "{{TITLE}}"
	descriptionPlaceholder = "{{DESCRIPTION}}"

	defaultProductRequest = "Please analyze this product image and generate content."
)

// Template is one immutable appraisal persona.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Text        string `json:"-"`
}

var catalog = []Template{
	{ID: "standard", Name: "Standard Appraisal", Description: "General purpose appraisal for most items", Text: standardText},
	{ID: "antique", Name: "Antique Appraisal", Description: "Furniture, silver, ceramics and other antiques", Text: antiqueText},
	{ID: "art", Name: "Art Appraisal", Description: "Artwork of any period and medium", Text: artText},
	{ID: "collectible", Name: "Collectible Appraisal", Description: "Memorabilia, toys, coins and stamps", Text: collectibleText},
	{ID: "fine-art", Name: "Fine Art Appraisal", Description: "Specialized for paintings, drawings, and prints", Text: fineArtText},
	{ID: ProductListingID, Name: "Product Listing", Description: "Title, description and value range for e-commerce import", Text: productListingText},
}

var byID = func() map[string]Template {
	m := make(map[string]Template, len(catalog))
	for _, t := range catalog {
		m[t.ID] = t
	}
	return m
}()

// List returns every template in catalog order.
func List() []Template {
	out := make([]Template, len(catalog))
	copy(out, catalog)
	return out
}

// Known reports whether id names a catalog template.
func Known(id string) bool {
	_, ok := byID[strings.TrimSpace(id)]
	return ok
}

// Resolve looks up id, falling back to the standard template.
func Resolve(id string) Template {
	if t, ok := byID[strings.TrimSpace(id)]; ok {
		return t
	}
	return byID[DefaultTemplateID]
}

// Item carries the optional user-supplied details for an appraisal.
type Item struct {
	Title       string
	Description string
}

// Build returns the prompt text for a template and item.
func Build(templateID string, item Item) string {
	text := Resolve(templateID).Text
	title := strings.TrimSpace(item.Title)
	description := strings.TrimSpace(item.Description)

	if strings.Contains(text, titlePlaceholder) || strings.Contains(text, descriptionPlaceholder) {
		return strings.NewReplacer(titlePlaceholder, title, descriptionPlaceholder, description).Replace(text)
	}
	if title == "" && description == "" {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nAdditional Item Information:")
	if title != "" {
		b.WriteString("\nTitle: ")
		b.WriteString(title)
	}
	if description != "" {
		b.WriteString("\nDescription: ")
		b.WriteString(description)
	}
	return b.String()
}

// ProductContext is optional seller knowledge sent with each batch image.
type ProductContext struct {
	Brand    string `json:"brand,omitempty"`
	Material string `json:"material,omitempty"`
	Period   string `json:"period,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Prompt renders the user message for a product listing request.
func (c ProductContext) Prompt() string {
	var b strings.Builder
	line := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			b.WriteString(label)
			b.WriteString(": ")
			b.WriteString(value)
			b.WriteString("\n")
		}
	}
	line("Brand", c.Brand)
	line("Material", c.Material)
	line("Period/Era", c.Period)
	line("Additional Notes", c.Notes)
	if b.Len() == 0 {
		return defaultProductRequest
	}
	return b.String()
}
