package app

import (
	"context"
	"errors"
	"fmt"

	"appraiserai/internal/util"
	"appraiserai/pkg/batch"
	"appraiserai/pkg/domain"
	"appraiserai/pkg/export"
	"appraiserai/pkg/prompt"
)

// CreateBatch processes uploads one by one and keeps the result as a
// short-lived session. A cancelled request still stores the finished items.
func (a *App) CreateBatch(ctx context.Context, user domain.User, uploads []batch.Upload, pc prompt.ProductContext) (domain.Batch, error) {
	if len(uploads) == 0 {
		return domain.Batch{}, ErrNoImages
	}
	if len(uploads) > a.maxBatchImages {
		return domain.Batch{}, fmt.Errorf("%w (max %d)", ErrTooManyImages, a.maxBatchImages)
	}
	items, procErr := a.processor.Process(ctx, uploads, pc)
	b := domain.Batch{
		ID:        util.NewID(),
		OwnerID:   user.ID,
		Items:     items,
		CreatedAt: a.now().UTC(),
	}
	if len(items) > 0 {
		if err := a.batches.Save(context.WithoutCancel(ctx), b); err != nil {
			return domain.Batch{}, fmt.Errorf("save batch: %w", err)
		}
	}
	if procErr != nil {
		return b, procErr
	}
	util.LoggerFromContext(ctx).Info("batch processed", "batch_id", b.ID, "items", len(items))
	return b, nil
}

// GetBatch returns a batch owned by user.
func (a *App) GetBatch(ctx context.Context, user domain.User, id string) (domain.Batch, error) {
	b, ok, err := a.batches.Get(ctx, id)
	if err != nil {
		return domain.Batch{}, err
	}
	if !ok {
		return domain.Batch{}, ErrNotFound
	}
	if b.OwnerID != user.ID && !user.IsAdmin() {
		return domain.Batch{}, ErrForbidden
	}
	return b, nil
}

// UpdateBatchItem applies a user edit to one item.
func (a *App) UpdateBatchItem(ctx context.Context, user domain.User, batchID, itemID string, e batch.Edit) (domain.BatchItem, error) {
	b, err := a.GetBatch(ctx, user, batchID)
	if err != nil {
		return domain.BatchItem{}, err
	}
	b, item, err := batch.ApplyEdit(b, itemID, e)
	if errors.Is(err, batch.ErrItemNotFound) {
		return domain.BatchItem{}, ErrNotFound
	}
	if err != nil {
		return domain.BatchItem{}, err
	}
	if err := a.batches.Save(ctx, b); err != nil {
		return domain.BatchItem{}, fmt.Errorf("save batch: %w", err)
	}
	return item, nil
}

// RegenerateBatchItem drafts fresh copy for one item.
func (a *App) RegenerateBatchItem(ctx context.Context, user domain.User, batchID, itemID string, pc prompt.ProductContext) (domain.BatchItem, error) {
	b, err := a.GetBatch(ctx, user, batchID)
	if err != nil {
		return domain.BatchItem{}, err
	}
	for i := range b.Items {
		if b.Items[i].ID != itemID {
			continue
		}
		item, err := a.processor.Regenerate(ctx, b.Items[i], pc)
		if err != nil {
			return domain.BatchItem{}, err
		}
		items := make([]domain.BatchItem, len(b.Items))
		copy(items, b.Items)
		items[i] = item
		b.Items = items
		if err := a.batches.Save(ctx, b); err != nil {
			return domain.BatchItem{}, fmt.Errorf("save batch: %w", err)
		}
		return item, nil
	}
	return domain.BatchItem{}, ErrNotFound
}

// DeleteBatch discards a batch session.
func (a *App) DeleteBatch(ctx context.Context, user domain.User, id string) error {
	if _, err := a.GetBatch(ctx, user, id); err != nil {
		return err
	}
	return a.batches.Delete(ctx, id)
}

// ExportBatchCSV renders the batch as a product import CSV.
func (a *App) ExportBatchCSV(ctx context.Context, user domain.User, id string, opts export.Options) ([]byte, error) {
	b, err := a.GetBatch(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return export.CSV(exportable(b.Items), opts), nil
}

// ExportBatchZip bundles the CSV with the optimized images.
func (a *App) ExportBatchZip(ctx context.Context, user domain.User, id string, opts export.Options) ([]byte, error) {
	b, err := a.GetBatch(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return export.Zip(exportable(b.Items), opts, a.now())
}

// exportable drops items that never produced content.
func exportable(items []domain.BatchItem) []domain.BatchItem {
	out := make([]domain.BatchItem, 0, len(items))
	for _, item := range items {
		if item.Error != "" && item.Title == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
