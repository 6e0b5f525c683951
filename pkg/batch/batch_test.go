package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"appraiserai/pkg/ai"
	"appraiserai/pkg/domain"
	"appraiserai/pkg/imaging"
	"appraiserai/pkg/prompt"
)

type fakeVision struct {
	mu       sync.Mutex
	calls    []ai.VisionRequest
	inFlight int
	maxSeen  int
	results  []string
	errs     []error
	onCall   func(n int)
}

func (f *fakeVision) Describe(ctx context.Context, req ai.VisionRequest) (ai.VisionResult, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, req)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if f.onCall != nil {
		f.onCall(n)
	}
	time.Sleep(time.Millisecond)
	if n < len(f.errs) && f.errs[n] != nil {
		return ai.VisionResult{}, f.errs[n]
	}
	if err := ctx.Err(); err != nil {
		return ai.VisionResult{}, err
	}
	text := `{"title":"Item","description":"desc","priceRange":"$10-$20"}`
	if n < len(f.results) {
		text = f.results[n]
	}
	return ai.VisionResult{Text: text}, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestProcessorRunsSequentiallyAndContinuesAfterFailure(t *testing.T) {
	vision := &fakeVision{
		results: []string{"```json\n{\"title\":\"Brass Lamp\",\"description\":\"Art Deco\",\"priceRange\":\"$125-$175\"}\n```"},
		errs:    []error{nil, &ai.Error{Kind: ai.KindUpstream, Message: "Invalid image data", Err: ai.ErrUpstream}},
	}
	p := NewProcessor(vision, imaging.NewNormalizer(50, 85), imaging.DefaultMaxUploadBytes)
	uploads := []Upload{
		{Name: "lamp.png", Data: pngBytes(t, 200, 100)},
		{Name: "vase.png", Data: pngBytes(t, 10, 10)},
		{Name: "broken.png", Data: []byte("not an image")},
		{Name: "clock.png", Data: pngBytes(t, 10, 10)},
	}
	items, err := p.Process(context.Background(), uploads, prompt.ProductContext{Brand: "Tiffany"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	if items[0].Title != "Brass Lamp" || items[0].PriceRange != "$125-$175" || items[0].Error != "" {
		t.Fatalf("item 0 = %+v", items[0])
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(items[0].Optimized)); err != nil || cfg.Width != 50 {
		t.Fatalf("item 0 not normalized: %+v %v", cfg, err)
	}
	if items[1].Error != "Invalid image data" {
		t.Fatalf("item 1 error = %q", items[1].Error)
	}
	if items[2].Error == "" || len(items[2].Optimized) != 0 {
		t.Fatalf("item 2 should fail normalization: %+v", items[2])
	}
	if items[3].Error != "" || items[3].Title != "Item" {
		t.Fatalf("item 3 = %+v", items[3])
	}
	if vision.maxSeen != 1 {
		t.Fatalf("expected strictly sequential calls, saw %d concurrent", vision.maxSeen)
	}
	if len(vision.calls) != 3 {
		t.Fatalf("expected 3 vision calls, got %d", len(vision.calls))
	}
	first := vision.calls[0]
	if first.System != prompt.Resolve(prompt.ProductListingID).Text || first.Prompt != "Brand: Tiffany\n" || first.Temperature != productTemperature {
		t.Fatalf("unexpected request: %+v", first)
	}
	if strings.HasPrefix(first.ImageBase64, "data:") {
		t.Fatal("image must be sent without data URL prefix")
	}
	seen := map[string]bool{}
	for _, item := range items {
		if item.ID == "" || seen[item.ID] {
			t.Fatalf("item ids must be unique: %+v", items)
		}
		seen[item.ID] = true
	}
}

func TestProcessorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	vision := &fakeVision{onCall: func(n int) {
		if n == 0 {
			cancel()
		}
	}}
	p := NewProcessor(vision, imaging.NewNormalizer(0, 0), 0)
	uploads := []Upload{
		{Name: "a.png", Data: pngBytes(t, 4, 4)},
		{Name: "b.png", Data: pngBytes(t, 4, 4)},
		{Name: "c.png", Data: pngBytes(t, 4, 4)},
	}
	items, err := p.Process(ctx, uploads, prompt.ProductContext{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(items) != 0 || len(vision.calls) != 1 {
		t.Fatalf("expected loop to stop after first call: items=%d calls=%d", len(items), len(vision.calls))
	}
}

func TestProcessorRejectsOversizedUpload(t *testing.T) {
	vision := &fakeVision{}
	p := NewProcessor(vision, imaging.NewNormalizer(0, 0), 16)
	items, err := p.Process(context.Background(), []Upload{{Name: "big.png", Data: pngBytes(t, 40, 40)}}, prompt.ProductContext{})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(items[0].Error, imaging.ErrTooLarge.Error()) || len(vision.calls) != 0 {
		t.Fatalf("expected size rejection without vision call: %+v", items[0])
	}
}

func TestRegenerate(t *testing.T) {
	vision := &fakeVision{results: []string{"Title: Pocket Watch\nValue Range: $300"}}
	p := NewProcessor(vision, imaging.NewNormalizer(0, 0), 0)
	item, err := p.Regenerate(context.Background(), domain.BatchItem{ID: "i-1", Optimized: []byte{1, 2, 3}, Editing: true, Error: "old"}, prompt.ProductContext{})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if item.Title != "Pocket Watch" || item.PriceRange != "$300" || item.Editing || item.Error != "" {
		t.Fatalf("unexpected item: %+v", item)
	}
	if _, err := p.Regenerate(context.Background(), domain.BatchItem{ID: "i-2"}, prompt.ProductContext{}); ai.KindOf(err) != ai.KindInvalidInput {
		t.Fatalf("expected invalid input for item without image, got %v", err)
	}
}

func sampleBatch() domain.Batch {
	return domain.Batch{
		ID:      "b-1",
		OwnerID: "u-1",
		Items: []domain.BatchItem{
			{ID: "i-1", Name: "lamp.jpg", Original: []byte("orig"), Optimized: []byte("opt"), MIMEType: "image/jpeg", Title: "Lamp", PriceRange: "$10"},
			{ID: "i-2", Name: "vase.jpg", Error: "failed"},
		},
		CreatedAt: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

func TestApplyEdit(t *testing.T) {
	orig := sampleBatch()
	title, editing := "  Brass Lamp ", true
	updated, item, err := ApplyEdit(orig, "i-1", Edit{Title: &title, Editing: &editing})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if item.Title != "Brass Lamp" || !item.Editing || item.PriceRange != "$10" {
		t.Fatalf("item = %+v", item)
	}
	if updated.Items[0].Title != "Brass Lamp" || orig.Items[0].Title != "Lamp" {
		t.Fatal("ApplyEdit must not mutate the input batch")
	}
	if _, _, err := ApplyEdit(orig, "nope", Edit{}); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestRedisSessionStoreRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisSessionStore(client, "", time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, sampleBatch()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Get(ctx, "b-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got.Items[0].Original) != "orig" || string(got.Items[0].Optimized) != "opt" || got.Items[1].Error != "failed" {
		t.Fatalf("round trip lost data: %+v", got.Items)
	}
	if ttl := mr.TTL("appraiser:batch:b-1"); ttl != time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, err := store.Get(ctx, "b-1"); ok || err != nil {
		t.Fatalf("expected expiry: ok=%v err=%v", ok, err)
	}
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	store := NewMemorySessionStore(time.Minute)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.Save(ctx, sampleBatch()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "b-1"); !ok {
		t.Fatal("expected batch before expiry")
	}
	now = now.Add(time.Minute)
	if _, ok, _ := store.Get(ctx, "b-1"); ok {
		t.Fatal("expected batch to expire")
	}
	if err := store.Delete(ctx, "b-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
