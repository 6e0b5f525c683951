package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	"appraiserai/internal/util"
	"appraiserai/pkg/ai"
	"appraiserai/pkg/auth"
	"appraiserai/pkg/batch"
	"appraiserai/pkg/credential"
	"appraiserai/pkg/domain"
	"appraiserai/pkg/imaging"
	"appraiserai/pkg/prompt"
	"appraiserai/pkg/storage"
	"appraiserai/pkg/store"
)

const sourceImageName = "source.jpg"

var itemNamePattern = regexp.MustCompile(`(?i)ITEM IDENTIFICATION[:\s]*(.+?)(?:\n|$)`)

// Config holds the collaborators of the core application.
type Config struct {
	Store          store.Store
	Objects        storage.ObjectStore
	Vision         ai.VisionGenerator
	Credentials    credential.Provider
	Tokens         *auth.TokenIssuer
	Batches        batch.SessionStore
	Normalizer     imaging.Normalizer
	MaxUploadBytes int64
	MaxBatchImages int
	PresignExpiry  time.Duration
	Now            func() time.Time
}

// App is the core application service wiring together storage, the vision
// client and domain logic.
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	vision         ai.VisionGenerator
	creds          credential.Provider
	tokens         *auth.TokenIssuer
	batches        batch.SessionStore
	processor      *batch.Processor
	normalizer     imaging.Normalizer
	maxUploadBytes int64
	maxBatchImages int
	presignExpiry  time.Duration
	now            func() time.Time
}

// New validates cfg and constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if cfg.Vision == nil {
		return nil, errors.New("vision generator required")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("credential provider required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token issuer required")
	}
	if cfg.Batches == nil {
		cfg.Batches = batch.NewMemorySessionStore(batch.DefaultSessionTTL)
	}
	if cfg.Normalizer.MaxWidth == 0 {
		cfg.Normalizer = imaging.NewNormalizer(0, 0)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = imaging.DefaultMaxUploadBytes
	}
	if cfg.MaxBatchImages <= 0 {
		cfg.MaxBatchImages = 50
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		vision:         cfg.Vision,
		creds:          cfg.Credentials,
		tokens:         cfg.Tokens,
		batches:        cfg.Batches,
		processor:      batch.NewProcessor(cfg.Vision, cfg.Normalizer, cfg.MaxUploadBytes),
		normalizer:     cfg.Normalizer,
		maxUploadBytes: cfg.MaxUploadBytes,
		maxBatchImages: cfg.MaxBatchImages,
		presignExpiry:  cfg.PresignExpiry,
		now:            cfg.Now,
	}, nil
}

// Templates lists the appraisal prompt templates.
func (a *App) Templates() []prompt.Template {
	return prompt.List()
}

// AppraiseInput is one appraisal request.
type AppraiseInput struct {
	Image       []byte
	Title       string
	Description string
	TemplateID  string
	Save        bool
}

// AppraiseResult carries the appraisal and whether it was persisted.
type AppraiseResult struct {
	Appraisal domain.Appraisal `json:"appraisal"`
	Saved     bool             `json:"saved"`
}

// Appraise runs normalize, prompt, vision and, when requested, persist.
func (a *App) Appraise(ctx context.Context, user domain.User, in AppraiseInput) (AppraiseResult, error) {
	logger := util.LoggerFromContext(ctx)
	if len(in.Image) == 0 {
		return AppraiseResult{}, ai.InvalidInput(ErrImageRequired.Error())
	}
	// unknown ids fall back to the standard template
	templateID := prompt.Resolve(in.TemplateID).ID
	if err := imaging.CheckSize(in.Image, a.maxUploadBytes); err != nil {
		return AppraiseResult{}, ai.InvalidInput(err.Error())
	}
	img, err := a.normalizer.Normalize(in.Image)
	if err != nil {
		return AppraiseResult{}, ai.InvalidInput(err.Error())
	}

	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	started := a.now()
	res, err := a.vision.Describe(ctx, ai.VisionRequest{
		Prompt:      prompt.Build(templateID, prompt.Item{Title: title, Description: description}),
		ImageBase64: img.Base64(),
		MIMEType:    img.MIMEType,
	})
	if err != nil {
		logger.Warn("appraisal failed", "template_id", templateID, "kind", ai.KindOf(err), "err", err)
		return AppraiseResult{}, err
	}
	logger.Info("appraisal generated",
		"template_id", templateID,
		"model", res.Model,
		"total_tokens", res.Usage.TotalTokens,
		"duration_ms", a.now().Sub(started).Milliseconds(),
	)

	now := a.now().UTC()
	if title == "" {
		title = ItemName(res.Text, now)
	}
	appraisal := domain.Appraisal{
		OwnerID:       user.ID,
		Title:         title,
		Description:   description,
		TemplateID:    templateID,
		AppraisalText: res.Text,
		Usage:         res.Usage,
		CreatedAt:     now,
	}
	if !in.Save {
		return AppraiseResult{Appraisal: appraisal}, nil
	}

	appraisal.ID = util.NewID()
	if err := a.store.SaveAppraisal(appraisal); err != nil {
		logger.Error("save appraisal failed", "err", err)
		return AppraiseResult{}, ai.Persistence(err)
	}
	appraisal.ImageKey = a.saveImage(ctx, appraisal.ID, img)
	return AppraiseResult{Appraisal: appraisal, Saved: true}, nil
}

// saveImage stores the normalized image and links it to the record. Failures
// are logged and the record is kept without an image.
func (a *App) saveImage(ctx context.Context, appraisalID string, img imaging.Image) string {
	logger := util.LoggerFromContext(ctx)
	key := storage.AppraisalImageKey(appraisalID, sourceImageName)
	if err := a.objects.Put(ctx, key, bytes.NewReader(img.Data), int64(len(img.Data)), img.MIMEType); err != nil {
		logger.Warn("store appraisal image failed", "appraisal_id", appraisalID, "err", err)
		return ""
	}
	if err := a.store.SetAppraisalImage(appraisalID, key); err != nil {
		logger.Warn("link appraisal image failed", "appraisal_id", appraisalID, "err", err)
		_ = a.objects.Delete(ctx, key)
		return ""
	}
	return key
}

// ItemName picks a display name from the appraisal text, falling back to a
// timestamped default.
func ItemName(text string, now time.Time) string {
	if m := itemNamePattern.FindStringSubmatch(text); len(m) == 2 {
		name := strings.Trim(strings.TrimSpace(m[1]), "*#:- ")
		if name != "" {
			return name
		}
	}
	return "Appraisal " + now.Format(time.DateTime)
}

// ListAppraisals returns appraisals visible to user, newest first.
func (a *App) ListAppraisals(user domain.User, limit int) ([]domain.Appraisal, error) {
	if user.IsAdmin() {
		return a.store.ListAppraisals(limit)
	}
	return a.store.ListAppraisalsByOwner(user.ID, limit)
}

// GetAppraisal returns one appraisal the user may see.
func (a *App) GetAppraisal(user domain.User, id string) (domain.Appraisal, error) {
	appraisal, ok, err := a.store.GetAppraisal(id)
	if err != nil {
		return domain.Appraisal{}, err
	}
	if !ok {
		return domain.Appraisal{}, ErrNotFound
	}
	if !user.CanManage(appraisal) {
		return domain.Appraisal{}, ErrForbidden
	}
	return appraisal, nil
}

// DeleteAppraisal removes a record the user owns (or any record for admins),
// then its image on a best-effort basis.
func (a *App) DeleteAppraisal(ctx context.Context, user domain.User, id string) error {
	appraisal, err := a.GetAppraisal(user, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteAppraisal(id); err != nil {
		return err
	}
	if appraisal.ImageKey != "" {
		if err := a.objects.Delete(ctx, appraisal.ImageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			util.LoggerFromContext(ctx).Warn("delete appraisal image failed", "appraisal_id", id, "err", err)
		}
	}
	return nil
}

// AppraisalStats summarises the user's appraisals, or all of them for admins.
func (a *App) AppraisalStats(user domain.User) (domain.AppraisalStats, error) {
	owner := user.ID
	if user.IsAdmin() {
		owner = ""
	}
	return a.store.AppraisalStats(owner, a.now())
}

// ImageLocation is where an appraisal image can be fetched from. URL is set
// when the object store can presign; otherwise Body streams the content.
type ImageLocation struct {
	URL         string
	Body        io.ReadCloser
	ContentType string
}

// AppraisalImage resolves the stored image of an appraisal.
func (a *App) AppraisalImage(ctx context.Context, user domain.User, id string) (ImageLocation, error) {
	appraisal, err := a.GetAppraisal(user, id)
	if err != nil {
		return ImageLocation{}, err
	}
	if appraisal.ImageKey == "" {
		return ImageLocation{}, ErrNotFound
	}
	url, err := a.objects.URL(ctx, appraisal.ImageKey, a.presignExpiry)
	if err != nil {
		return ImageLocation{}, err
	}
	if url != "" {
		return ImageLocation{URL: url}, nil
	}
	body, contentType, err := a.objects.Get(ctx, appraisal.ImageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return ImageLocation{}, ErrNotFound
	}
	if err != nil {
		return ImageLocation{}, err
	}
	return ImageLocation{Body: body, ContentType: contentType}, nil
}
