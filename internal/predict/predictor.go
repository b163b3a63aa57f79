// Package predict derives per-tag spending predictions from loaded
// transactions. Predictions are a soft, non-authoritative cache: the
// orchestrator suppresses persistence failures from this package and the rest
// of the system never depends on a prediction being present.
package predict

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"moneta/internal/core"
	"moneta/internal/docstore"
)

type Predictor struct {
	store docstore.Store

	// WindowMonths bounds how far back observed months contribute.
	WindowMonths int

	now func() time.Time
}

// Prediction is the persisted estimate for one tag's next-month spend.
type Prediction struct {
	TagID          core.TagID
	PredictedCents int64
	SampleMonths   int
	GeneratedAt    time.Time
}

func New(store docstore.Store, windowMonths int) *Predictor {
	return &Predictor{store: store, WindowMonths: windowMonths, now: time.Now}
}

// Refresh recomputes the per-tag mean monthly expense over the trailing
// window and persists one prediction document per tag. The first persistence
// failure aborts and is returned; the caller decides whether to suppress it.
func (p *Predictor) Refresh(ctx context.Context, transactions []core.Transaction) error {
	windowStart, err := monthStart(p.now().AddDate(0, -p.WindowMonths, 0))
	if err != nil {
		return err
	}

	type bucket struct {
		cents  int64
		months map[string]struct{}
	}
	perTag := make(map[core.TagID]*bucket)

	for _, t := range transactions {
		if t.Type != core.Expense || t.Date.IsZero() || t.Date.Time.Before(windowStart) {
			continue
		}
		month := t.Date.Format("2006-01")
		for _, tagID := range t.Tags {
			b, ok := perTag[tagID]
			if !ok {
				b = &bucket{months: make(map[string]struct{})}
				perTag[tagID] = b
			}
			b.cents += t.Amount.Cents
			b.months[month] = struct{}{}
		}
	}

	generated := p.now().UTC()
	for tagID, b := range perTag {
		months := len(b.months)
		doc := docstore.Document{
			"tag_id":          string(tagID),
			"predicted_cents": b.cents / int64(months),
			"sample_months":   int64(months),
			"generated_at":    generated.Format(time.RFC3339),
		}
		if err := p.store.Save(ctx, docstore.CollectionPredictions, string(tagID), doc); err != nil {
			return fmt.Errorf("persist prediction for tag %s: %w", tagID, err)
		}
	}

	slog.InfoContext(ctx, "Predictions refreshed",
		"tags", len(perTag),
		"window_months", p.WindowMonths)
	return nil
}

// For reads back the stored prediction for one tag.
func (p *Predictor) For(ctx context.Context, tagID core.TagID) (Prediction, error) {
	doc, err := p.store.Get(ctx, docstore.CollectionPredictions, string(tagID))
	if err != nil {
		return Prediction{}, fmt.Errorf("load prediction for tag %s: %w", tagID, err)
	}
	generated, _ := time.Parse(time.RFC3339, doc.String("generated_at"))
	return Prediction{
		TagID:          core.TagID(doc.String("tag_id")),
		PredictedCents: doc.Int64("predicted_cents"),
		SampleMonths:   int(doc.Int64("sample_months")),
		GeneratedAt:    generated,
	}, nil
}

// monthStart truncates t to the first day of its month. A zero input means
// the window base could not be derived at all.
func monthStart(t time.Time) (time.Time, error) {
	if t.IsZero() {
		return time.Time{}, fmt.Errorf("%w: cannot derive start of month from zero time", core.ErrInitialization)
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
}
