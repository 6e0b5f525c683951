package prompt

import (
	"strings"
	"testing"
)

func TestResolveFallsBackToStandard(t *testing.T) {
	for _, id := range []string{"", "  ", "unknown", "STANDARD", "watches"} {
		if got := Resolve(id).ID; got != DefaultTemplateID {
			t.Fatalf("Resolve(%q) = %q, want standard", id, got)
		}
	}
	if got := Resolve(" antique ").ID; got != "antique" {
		t.Fatalf("Resolve(antique) = %q", got)
	}
}

func TestBuildWithoutItemReturnsTemplate(t *testing.T) {
	if got := Build("art", Item{}); got != artText {
		t.Fatal("expected bare template text")
	}
}

func TestBuildAppendsItemBlock(t *testing.T) {
	got := Build("nope", Item{Title: "Victorian Teapot", Description: "Silver, hallmarked"})
	if !strings.HasPrefix(got, standardText) {
		t.Fatal("expected standard template prefix")
	}
	want := "\n\nAdditional Item Information:\nTitle: Victorian Teapot\nDescription: Silver, hallmarked"
	if !strings.HasSuffix(got, want) {
		t.Fatalf("unexpected item block: %q", got[len(standardText):])
	}

	titleOnly := Build("standard", Item{Title: "Clock"})
	if strings.Contains(titleOnly, "Description:") {
		t.Fatalf("empty description should be omitted: %q", titleOnly[len(standardText):])
	}
}

func TestListIsStableAndCopied(t *testing.T) {
	first := List()
	if len(first) != 6 || first[0].ID != DefaultTemplateID || first[len(first)-1].ID != ProductListingID {
		t.Fatalf("unexpected catalog: %+v", first)
	}
	first[0].ID = "mutated"
	if List()[0].ID != DefaultTemplateID {
		t.Fatal("List must not expose the catalog")
	}
	for _, tmpl := range List() {
		if strings.TrimSpace(tmpl.Text) == "" || !Known(tmpl.ID) {
			t.Fatalf("template %q is incomplete", tmpl.ID)
		}
	}
}

func TestProductContextPrompt(t *testing.T) {
	if got := (ProductContext{}).Prompt(); got != defaultProductRequest {
		t.Fatalf("empty context = %q", got)
	}
	got := ProductContext{Brand: "Wedgwood", Period: "1890s"}.Prompt()
	if got != "Brand: Wedgwood\nPeriod/Era: 1890s\n" {
		t.Fatalf("context prompt = %q", got)
	}
}
