package ai

import "testing"

func TestParseProductContentFencedJSON(t *testing.T) {
	text := "Here you go:\n```json\n{\"title\":\"Art Deco Brass Lamp\",\"description\":\"A 1930s lamp.\",\"priceRange\":\"$125-$175\"}\n```"
	got := ParseProductContent(text)
	if got.Title != "Art Deco Brass Lamp" || got.Description != "A 1930s lamp." || got.PriceRange != "$125-$175" {
		t.Fatalf("unexpected content: %+v", got)
	}
}

func TestParseProductContentDefaultsMissingKeys(t *testing.T) {
	got := ParseProductContent(`{"title":"Teapot"}`)
	if got.Title != "Teapot" || got.Description != DefaultProductDescription || got.PriceRange != DefaultProductPriceRange {
		t.Fatalf("unexpected content: %+v", got)
	}
}

func TestParseProductContentLabelledFallback(t *testing.T) {
	text := "Title: Silver Pocket Watch\nPrice Range: $300-$450\n"
	got := ParseProductContent(text)
	if got.Title != "Silver Pocket Watch" || got.PriceRange != "$300-$450" || got.Description != DefaultProductDescription {
		t.Fatalf("unexpected content: %+v", got)
	}

	got = ParseProductContent("Value Range: $10-$20\nPrice Range: $99")
	if got.PriceRange != "$10-$20" {
		t.Fatalf("Value Range should win, got %q", got.PriceRange)
	}
}

func TestParseProductContentNothingUsable(t *testing.T) {
	got := ParseProductContent("I cannot help with that.")
	if got.Title != DefaultProductTitle || got.Description != DefaultProductDescription || got.PriceRange != DefaultProductPriceRange {
		t.Fatalf("unexpected content: %+v", got)
	}
}
