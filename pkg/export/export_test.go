package export

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"appraiserai/pkg/domain"
)

func sampleAppraisal() domain.Appraisal {
	return domain.Appraisal{
		ID:            "a-42",
		Title:         "Victorian Teapot",
		TemplateID:    "antique",
		AppraisalText: "1. ITEM IDENTIFICATION\nSilver teapot <c. 1880> & stand\n",
		CreatedAt:     time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestTextExport(t *testing.T) {
	a := sampleAppraisal()
	out := string(Text(a))
	if !strings.HasPrefix(out, "Victorian Teapot\n================\n") {
		t.Fatalf("unexpected heading: %q", out)
	}
	if !strings.Contains(out, "Appraisal type: Antique Appraisal\n") || !strings.Contains(out, "Date: March 14, 2026 09:30 UTC\n") {
		t.Fatalf("missing metadata: %q", out)
	}
	if !strings.HasSuffix(out, "Silver teapot <c. 1880> & stand\n") {
		t.Fatalf("missing body: %q", out)
	}
	if TextFilename(a) != "appraisal-a-42.txt" {
		t.Fatalf("filename = %q", TextFilename(a))
	}
}

func TestPrintHTMLEscapesText(t *testing.T) {
	out, err := PrintHTML(sampleAppraisal())
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	html := string(out)
	if !strings.HasPrefix(html, "<!DOCTYPE html>") || !strings.Contains(html, "window.print()") {
		t.Fatalf("not a standalone print document: %s", html)
	}
	if !strings.Contains(html, "&lt;c. 1880&gt; &amp; stand") {
		t.Fatalf("appraisal text not escaped: %s", html)
	}
}

func TestUntitledAppraisalGetsTimestampTitle(t *testing.T) {
	a := sampleAppraisal()
	a.Title = ""
	if got := strings.SplitN(string(Text(a)), "\n", 2)[0]; got != "Appraisal 2026-03-14 09:30:00" {
		t.Fatalf("title = %q", got)
	}
}

func products() []domain.BatchItem {
	return []domain.BatchItem{
		{Name: "lamp.jpg", Title: `The "Aurora" Brass Table Lamp`, Description: "Art Deco, c. 1930.", PriceRange: "$125-$175"},
		{Name: "vase.png", Title: "Vase", Description: "Blue glaze", PriceRange: "Value unknown"},
		{Name: "clock.jpg", Title: "Mantel Clock", Description: `Says "tick"`, PriceRange: "about $80 to $95"},
	}
}

func TestCSVRowsAndQuoting(t *testing.T) {
	items := products()
	out := string(CSV(items, Options{}))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != len(items)+1 {
		t.Fatalf("expected %d lines, got %d: %q", len(items)+1, len(lines), out)
	}
	if lines[0] != "post_title,post_content,regular_price,images" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != `"The ""Aurora"" Brass Table Lamp","Art Deco, c. 1930.",125,lamp.jpg` {
		t.Fatalf("row 1 = %q", lines[1])
	}
	if lines[2] != `"Vase","Blue glaze",,vase.png` {
		t.Fatalf("row 2 = %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], `"Mantel Clock","Says ""tick""",80,`) {
		t.Fatalf("row 3 = %q", lines[3])
	}
}

func TestCSVAdvancedColumns(t *testing.T) {
	opts := Options{Advanced: true, IncludeSKU: true, IncludeCategories: true, IncludeTags: true, Category: "Antiques > Lighting"}
	lines := strings.Split(strings.TrimSuffix(string(CSV(products(), opts)), "\n"), "\n")
	if lines[0] != "post_title,post_content,regular_price,images,sku,categories,tags" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], `,PROD-001,"Antiques > Lighting","""Aurora"",Brass,Table"`) {
		t.Fatalf("row 1 = %q", lines[1])
	}
	if !strings.HasSuffix(lines[3], `,PROD-003,"Antiques > Lighting","Mantel,Clock"`) {
		t.Fatalf("row 3 = %q", lines[3])
	}

	simple := strings.SplitN(string(CSV(products(), Options{IncludeSKU: true})), "\n", 2)[0]
	if simple != "post_title,post_content,regular_price,images" {
		t.Fatalf("optional columns need Advanced, got %q", simple)
	}
}

func TestZipBundlesCSVAndImages(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'}
	webp := append([]byte("RIFF\x00\x00\x00\x00WEBPVP8 "), make([]byte, 8)...)
	items := products()[:2]
	items[0].Optimized = jpeg
	items[1].Original = webp

	out, err := Zip(items, Options{}, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	names := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		names[f.Name] = data
	}
	if len(names) != 3 {
		t.Fatalf("unexpected entries: %v", len(names))
	}
	if !bytes.Equal(names["product-image-01.jpg"], jpeg) || !bytes.Equal(names["product-image-02.webp"], webp) {
		t.Fatalf("image entries missing: %v", names)
	}
	csv := string(names[CSVFilename])
	if !strings.Contains(csv, ",product-image-01.jpg\n") || !strings.Contains(csv, ",product-image-02.webp\n") {
		t.Fatalf("csv should reference archive names: %q", csv)
	}
}

func TestPriceAndTags(t *testing.T) {
	if Price("$1,200-$1,500") != "1" {
		t.Fatalf("price takes the digits right after the first $, got %q", Price("$1,200-$1,500"))
	}
	if Price("no price") != "" {
		t.Fatal("expected empty price")
	}
	if Tags("A Very Old Oak Chest of Drawers") != "Very,Chest,Drawers" {
		t.Fatalf("tags = %q", Tags("A Very Old Oak Chest of Drawers"))
	}
}
