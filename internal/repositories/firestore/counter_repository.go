package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/adunni-couture/api/internal/platform/firestore"
	"github.com/adunni-couture/api/internal/repositories"
)

const countersCollection = "counters"

// counterDoc is the persisted shape of a named sequence. Ceiling is optional;
// a nil ceiling means the sequence never runs out.
type counterDoc struct {
	Value     int64     `firestore:"value"`
	Step      int64     `firestore:"step"`
	Ceiling   *int64    `firestore:"ceiling,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CounterRepository hands out order and invoice sequence numbers from
// Firestore, using transactions so concurrent checkouts never share a value.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDoc]
}

func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDoc](provider, countersCollection),
	}, nil
}

// Next increments the named counter and returns its new value. A zero step
// falls back to the counter's stored step, then to 1.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step < 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}

	var issued int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			issued, err = seedCounter(tx, ref, step)
			return err
		}
		if err != nil {
			return err
		}

		var doc counterDoc
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("decode counter %s: %w", id, err)
		}

		increment := effectiveStep(step, doc.Step)
		next := doc.Value + increment
		if doc.Ceiling != nil && next > *doc.Ceiling {
			return repositories.NewCounterError(repositories.CounterErrorExhausted, fmt.Sprintf("counter %s exceeded max value %d", id, *doc.Ceiling), nil)
		}

		doc.Value = next
		doc.Step = increment
		doc.UpdatedAt = time.Now().UTC()
		if err := tx.Set(ref, doc, firestore.MergeAll); err != nil {
			return err
		}
		issued = next
		return nil
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return issued, nil
}

// Configure adjusts the step, ceiling, or current value of a named counter.
// Zero-value fields are left untouched.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if r == nil || r.provider == nil {
		return errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}

	patch := map[string]any{"updatedAt": time.Now().UTC()}
	if cfg.Step > 0 {
		patch["step"] = cfg.Step
	}
	if cfg.MaxValue != nil {
		patch["ceiling"] = *cfg.MaxValue
	}
	if cfg.InitialValue != nil {
		patch["value"] = *cfg.InitialValue
	}

	ref, err := r.counters.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, patch, firestore.MergeAll); err != nil {
		return pfirestore.WrapError("counters.configure", err)
	}
	return nil
}

// seedCounter creates the document on first use, issuing the first value.
func seedCounter(tx *firestore.Transaction, ref *firestore.DocumentRef, step int64) (int64, error) {
	increment := effectiveStep(step, 0)
	doc := counterDoc{
		Value:     increment,
		Step:      increment,
		UpdatedAt: time.Now().UTC(),
	}
	if err := tx.Create(ref, doc); err != nil {
		return 0, err
	}
	return doc.Value, nil
}

func effectiveStep(requested, stored int64) int64 {
	if requested > 0 {
		return requested
	}
	if stored > 0 {
		return stored
	}
	return 1
}
