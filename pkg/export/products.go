package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"appraiserai/pkg/domain"
)

const (
	CSVFilename = "product-content.csv"
	ZipFilename = "product-content-and-images.zip"
)

var firstDollarAmount = regexp.MustCompile(`\$(\d+)`)

// Options selects the optional WooCommerce columns.
// SKU, category and tag columns are only written when Advanced is set.
type Options struct {
	Advanced          bool
	IncludeSKU        bool
	IncludeCategories bool
	IncludeTags       bool
	Category          string
}

// Header returns the CSV header columns for opts.
func (o Options) Header() []string {
	cols := []string{"post_title", "post_content", "regular_price", "images"}
	if o.Advanced {
		if o.IncludeSKU {
			cols = append(cols, "sku")
		}
		if o.IncludeCategories {
			cols = append(cols, "categories")
		}
		if o.IncludeTags {
			cols = append(cols, "tags")
		}
	}
	return cols
}

// CSV renders one row per item with the item name in the images column.
func CSV(items []domain.BatchItem, opts Options) []byte {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	return writeCSV(items, names, opts)
}

// Price returns the digits of the first "$<digits>" in a price range, or "".
func Price(priceRange string) string {
	if m := firstDollarAmount.FindStringSubmatch(priceRange); len(m) == 2 {
		return m[1]
	}
	return ""
}

// SKU numbers products PROD-001, PROD-002, ... by position.
func SKU(index int) string {
	return fmt.Sprintf("PROD-%03d", index+1)
}

// Tags takes the first three title words longer than three characters.
func Tags(title string) string {
	tags := make([]string, 0, 3)
	for _, word := range strings.Split(title, " ") {
		if len([]rune(word)) > 3 {
			tags = append(tags, word)
			if len(tags) == 3 {
				break
			}
		}
	}
	return strings.Join(tags, ",")
}

// writeCSV always quotes title, description, category and tags.
func writeCSV(items []domain.BatchItem, imageNames []string, opts Options) []byte {
	var b bytes.Buffer
	b.WriteString(strings.Join(opts.Header(), ","))
	b.WriteString("\n")
	for i, item := range items {
		row := []string{
			quote(item.Title),
			quote(item.Description),
			Price(item.PriceRange),
			quoteIfNeeded(imageNames[i]),
		}
		if opts.Advanced {
			if opts.IncludeSKU {
				row = append(row, SKU(i))
			}
			if opts.IncludeCategories {
				row = append(row, quote(opts.Category))
			}
			if opts.IncludeTags {
				row = append(row, quote(Tags(item.Title)))
			}
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteString("\n")
	}
	return b.Bytes()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return quote(s)
	}
	return s
}

// ImageName is the archive entry name for the item at index.
func ImageName(index int, data []byte) string {
	ext := "jpg"
	if http.DetectContentType(data) == "image/webp" {
		ext = "webp"
	}
	return fmt.Sprintf("product-image-%02d.%s", index+1, ext)
}

// Zip bundles the CSV with the processed images. The CSV images column
// points at the archive entry names.
func Zip(items []domain.BatchItem, opts Options, now time.Time) ([]byte, error) {
	names := make([]string, len(items))
	images := make([][]byte, len(items))
	for i, item := range items {
		data := item.Optimized
		if len(data) == 0 {
			data = item.Original
		}
		images[i] = data
		if len(data) > 0 {
			names[i] = ImageName(i, data)
		}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := writeEntry(zw, CSVFilename, writeCSV(items, names, opts), now); err != nil {
		return nil, err
	}
	for i, data := range images {
		if len(data) == 0 {
			continue
		}
		if err := writeEntry(zw, names[i], data, now); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish zip: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, now time.Time) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
