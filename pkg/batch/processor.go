package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"appraiserai/internal/util"
	"appraiserai/pkg/ai"
	"appraiserai/pkg/domain"
	"appraiserai/pkg/imaging"
	"appraiserai/pkg/prompt"
)

const productTemperature = 0.7

// Upload is one raw image submitted to a batch.
type Upload struct {
	Name string
	Data []byte
}

// Processor normalizes batch images and drafts listing copy for each one.
type Processor struct {
	vision         ai.VisionGenerator
	normalizer     imaging.Normalizer
	maxUploadBytes int64
}

func NewProcessor(vision ai.VisionGenerator, normalizer imaging.Normalizer, maxUploadBytes int64) *Processor {
	return &Processor{vision: vision, normalizer: normalizer, maxUploadBytes: maxUploadBytes}
}

// Process handles uploads strictly one at a time, in order. A failed item
// keeps its error message and the loop moves on; cancelling ctx stops the
// loop and returns the items finished so far together with ctx's error.
func (p *Processor) Process(ctx context.Context, uploads []Upload, pc prompt.ProductContext) ([]domain.BatchItem, error) {
	if p.vision == nil {
		return nil, errors.New("batch processor requires a vision generator")
	}
	logger := util.LoggerFromContext(ctx)
	items := make([]domain.BatchItem, 0, len(uploads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1)
	for i, up := range uploads {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()
			item := p.processOne(gctx, up, pc)
			if errors.Is(gctx.Err(), context.Canceled) || errors.Is(gctx.Err(), context.DeadlineExceeded) {
				return gctx.Err()
			}
			items = append(items, item)
			if item.Error != "" {
				logger.Warn("batch item failed", "index", i, "name", up.Name, "err", item.Error)
			} else {
				logger.Info("batch item processed", "index", i, "name", up.Name, "duration_ms", time.Since(started).Milliseconds())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return items, err
	}
	if err := ctx.Err(); err != nil {
		return items, err
	}
	return items, nil
}

// Regenerate drafts new copy for an existing item from its stored image.
func (p *Processor) Regenerate(ctx context.Context, item domain.BatchItem, pc prompt.ProductContext) (domain.BatchItem, error) {
	data := item.Optimized
	if len(data) == 0 {
		data = item.Original
	}
	if len(data) == 0 {
		return item, ai.InvalidInput("item has no image")
	}
	content, err := p.describe(ctx, data, pc)
	if err != nil {
		return item, err
	}
	item.Title, item.Description, item.PriceRange = content.Title, content.Description, content.PriceRange
	item.Error = ""
	item.Editing = false
	return item, nil
}

func (p *Processor) processOne(ctx context.Context, up Upload, pc prompt.ProductContext) domain.BatchItem {
	item := domain.BatchItem{
		ID:       util.NewID(),
		Name:     up.Name,
		Original: up.Data,
	}
	if err := imaging.CheckSize(up.Data, p.maxUploadBytes); err != nil {
		item.Error = err.Error()
		return item
	}
	img, err := p.normalizer.Normalize(up.Data)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	item.Optimized = img.Data
	item.MIMEType = img.MIMEType

	content, err := p.describe(ctx, img.Data, pc)
	if err != nil {
		item.Error = ai.MessageOf(err)
		return item
	}
	item.Title, item.Description, item.PriceRange = content.Title, content.Description, content.PriceRange
	return item
}

func (p *Processor) describe(ctx context.Context, jpeg []byte, pc prompt.ProductContext) (domain.ProductContent, error) {
	res, err := p.vision.Describe(ctx, ai.VisionRequest{
		System:      prompt.Resolve(prompt.ProductListingID).Text,
		Prompt:      pc.Prompt(),
		ImageBase64: imaging.Image{Data: jpeg}.Base64(),
		MIMEType:    imaging.OutputMIMEType,
		Temperature: productTemperature,
	})
	if err != nil {
		return domain.ProductContent{}, fmt.Errorf("describe product: %w", err)
	}
	return ai.ParseProductContent(res.Text), nil
}
