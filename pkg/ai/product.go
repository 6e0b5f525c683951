package ai

import (
	"encoding/json"
	"regexp"
	"strings"

	"appraiserai/pkg/domain"
)

const (
	DefaultProductTitle       = "Untitled Product"
	DefaultProductDescription = "No description available."
	DefaultProductPriceRange  = "Value unknown"
)

var (
	fencedJSONPattern  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	titleLinePattern   = regexp.MustCompile(`(?i)Title:\s*([^\n]+)`)
	descriptionPattern = regexp.MustCompile(`(?is)Description:\s*([^#]+)`)
	valueRangePattern  = regexp.MustCompile(`(?i)Value Range:\s*([^\n]+)`)
	priceRangePattern  = regexp.MustCompile(`(?i)Price Range:\s*([^\n]+)`)
)

// ParseProductContent reads the title, description and price range out of a
// product listing response. JSON (optionally in a code fence) is preferred;
// labelled lines are the fallback. Missing fields get placeholder values.
func ParseProductContent(text string) domain.ProductContent {
	payload := text
	if m := fencedJSONPattern.FindStringSubmatch(text); len(m) == 2 {
		payload = m[1]
	}
	var parsed struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		PriceRange  string `json:"priceRange"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &parsed); err == nil {
		return withDefaults(domain.ProductContent{
			Title:       parsed.Title,
			Description: parsed.Description,
			PriceRange:  parsed.PriceRange,
		})
	}

	var out domain.ProductContent
	if m := titleLinePattern.FindStringSubmatch(text); len(m) == 2 {
		out.Title = m[1]
	}
	if m := descriptionPattern.FindStringSubmatch(text); len(m) == 2 {
		out.Description = m[1]
	}
	if m := valueRangePattern.FindStringSubmatch(text); len(m) == 2 {
		out.PriceRange = m[1]
	} else if m := priceRangePattern.FindStringSubmatch(text); len(m) == 2 {
		out.PriceRange = m[1]
	}
	return withDefaults(out)
}

func withDefaults(c domain.ProductContent) domain.ProductContent {
	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	c.PriceRange = strings.TrimSpace(c.PriceRange)
	if c.Title == "" {
		c.Title = DefaultProductTitle
	}
	if c.Description == "" {
		c.Description = DefaultProductDescription
	}
	if c.PriceRange == "" {
		c.PriceRange = DefaultProductPriceRange
	}
	return c
}
