package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"mealflow/internal/workflow/models"
	"mealflow/internal/workflow/registry"
	"mealflow/internal/workflow/service"
	"mealflow/pkg/sentinel"
)

// Executor is the slice of the transition executor the cycle needs.
type Executor interface {
	Get(ctx context.Context, ref models.Ref) (models.Entity, error)
	Execute(ctx context.Context, ref models.Ref, transitionName string, actor models.Actor, payload models.Payload) (models.Entity, error)
}

// FlagStore persists the open correction request of an entity.
type FlagStore interface {
	Save(ctx context.Context, flags ReviewFlags) error
	// Get returns sentinel.ErrNotFound when no correction is open.
	Get(ctx context.Context, ref models.Ref) (ReviewFlags, error)
	Clear(ctx context.Context, ref models.Ref) error
	// Rounds returns how many correction rounds the entity has been through.
	Rounds(ctx context.Context, ref models.Ref) (int, error)
}

// RecordStore gives the cycle access to the governed record's sub-parts and
// the reviewer's per-part answers. The concrete document tables belong to
// their own domains; this is the seam the engine needs.
type RecordStore interface {
	MergeFields(ctx context.Context, ref models.Ref, values map[string]string) error
	SetAnswer(ctx context.Context, ref models.Ref, field string, verdict Verdict) error
	// ClearAnswers removes the reviewer's recorded answers for the given
	// sub-parts only; untouched parts keep their verdicts.
	ClearAnswers(ctx context.Context, ref models.Ref, fields []string) error
	Answers(ctx context.Context, ref models.Ref) (map[string]Verdict, error)
}

// Service drives correction cycles for every kind whose graph declares one.
type Service struct {
	executor Executor
	registry *registry.Registry
	runner   service.TxRunner
	flags    FlagStore
	records  RecordStore
	logger   *slog.Logger
}

// New constructs the correction service.
func New(executor Executor, reg *registry.Registry, runner service.TxRunner, flags FlagStore, records RecordStore, logger *slog.Logger) (*Service, error) {
	if executor == nil {
		return nil, fmt.Errorf("correction: executor is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("correction: registry is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("correction: tx runner is required")
	}
	if flags == nil {
		return nil, fmt.Errorf("correction: flag store is required")
	}
	if records == nil {
		return nil, fmt.Errorf("correction: record store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{executor: executor, registry: reg, runner: runner, flags: flags, records: records, logger: logger}, nil
}

// RequestCorrection flags the listed sub-parts for fixing and moves the entity
// into its correction state. Parts listed as OK get an APPROVED answer
// recorded; flagged parts get NEEDS_FIX. Everything happens in one atomic
// unit with the transition's status write and audit entry.
func (s *Service) RequestCorrection(ctx context.Context, ref models.Ref, actor models.Actor, justification string, fieldsOK, fieldsForFix []string) (models.Entity, error) {
	shape, err := s.shape(ref.Kind)
	if err != nil {
		return models.Entity{}, err
	}
	if len(fieldsForFix) == 0 {
		return models.Entity{}, models.NewTransitionError(
			models.ErrValidationFailed, ref, shape.RequestTransition, "",
			"at least one sub-part must be flagged for fixing")
	}

	var entity models.Entity
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		entity, err = s.executor.Execute(ctx, ref, shape.RequestTransition, actor, models.Payload{
			Justification: justification,
		})
		if err != nil {
			return err
		}
		for _, field := range fieldsOK {
			if err := s.records.SetAnswer(ctx, ref, field, VerdictApproved); err != nil {
				return fmt.Errorf("record approved answer: %w", err)
			}
		}
		for _, field := range fieldsForFix {
			if err := s.records.SetAnswer(ctx, ref, field, VerdictNeedsFix); err != nil {
				return fmt.Errorf("record needs-fix answer: %w", err)
			}
		}
		rounds, err := s.flags.Rounds(ctx, ref)
		if err != nil {
			return fmt.Errorf("count correction rounds: %w", err)
		}
		return s.flags.Save(ctx, ReviewFlags{
			Ref:            ref,
			ApprovedFields: fieldsOK,
			FlaggedFields:  fieldsForFix,
			Round:          rounds + 1,
			RequestedAt:    entity.LastTransitionAtOrCreated(),
		})
	})
	if err != nil {
		return models.Entity{}, err
	}
	s.logger.InfoContext(ctx, "correction requested",
		"kind", ref.Kind, "entity", ref.UUID, "flagged", len(fieldsForFix))
	return entity, nil
}

// Resubmit merges the corrected values into the canonical record and sends
// the entity back to analysis. The submitted field set must cover the flagged
// set exactly: a missing flagged field is IncompleteCorrection, a field not
// flagged is FrozenFieldEdited. The guarded transition runs before any record
// write, so a rejected resubmission leaves the record and the open correction
// untouched even without a surrounding SQL transaction. The reviewer's answers
// for the corrected sub-parts are cleared in the same unit, so a re-review
// starts blank there while untouched verdicts survive.
func (s *Service) Resubmit(ctx context.Context, ref models.Ref, actor models.Actor, values map[string]string) (models.Entity, error) {
	shape, err := s.shape(ref.Kind)
	if err != nil {
		return models.Entity{}, err
	}
	entity, err := s.executor.Get(ctx, ref)
	if err != nil {
		return models.Entity{}, fmt.Errorf("load %s %s: %w", ref.Kind, ref.UUID, err)
	}
	if entity.Status != shape.CorrectionState {
		return models.Entity{}, models.NewTransitionError(
			models.ErrWrongPriorState, ref, shape.ResubmitTransition, entity.Status,
			"no correction is open for this entity")
	}
	flags, err := s.flags.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Entity{}, models.NewTransitionError(
				models.ErrWrongPriorState, ref, shape.ResubmitTransition, entity.Status,
				"no correction is open for this entity")
		}
		return models.Entity{}, fmt.Errorf("load correction flags: %w", err)
	}

	for _, field := range flags.FlaggedFields {
		if _, ok := values[field]; !ok {
			return models.Entity{}, models.NewTransitionError(
				models.ErrIncompleteCorrection, ref, shape.ResubmitTransition, entity.Status,
				fmt.Sprintf("flagged field %q is missing from the resubmission", field))
		}
	}
	for field := range values {
		if !flags.Flagged(field) {
			return models.Entity{}, models.NewTransitionError(
				models.ErrFrozenFieldEdited, ref, shape.ResubmitTransition, entity.Status,
				fmt.Sprintf("field %q is not open for editing", field))
		}
	}

	var updated models.Entity
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		updated, err = s.executor.Execute(ctx, ref, shape.ResubmitTransition, actor, models.Payload{
			Fields: values,
		})
		if err != nil {
			return err
		}
		if err := s.records.MergeFields(ctx, ref, values); err != nil {
			return fmt.Errorf("merge corrected fields: %w", err)
		}
		if err := s.records.ClearAnswers(ctx, ref, sortedKeys(values)); err != nil {
			return fmt.Errorf("clear reviewer answers: %w", err)
		}
		if err := s.flags.Clear(ctx, ref); err != nil {
			return fmt.Errorf("clear correction flags: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Entity{}, err
	}
	s.logger.InfoContext(ctx, "correction resubmitted",
		"kind", ref.Kind, "entity", ref.UUID, "fields", len(values))
	return updated, nil
}

// Status reports the cycle position of an entity: round count, whether the
// upcoming analysis is the first one, open flags, and whether every recorded
// answer is an approval. The aggregate is recomputed from the answers on
// every read, never cached, so it can not go stale against a resubmission.
func (s *Service) Status(ctx context.Context, ref models.Ref) (Status, error) {
	rounds, err := s.flags.Rounds(ctx, ref)
	if err != nil {
		return Status{}, fmt.Errorf("count correction rounds: %w", err)
	}
	answers, err := s.records.Answers(ctx, ref)
	if err != nil {
		return Status{}, fmt.Errorf("load reviewer answers: %w", err)
	}
	status := Status{
		Round:         rounds,
		FirstAnalysis: rounds == 0,
		FullyApproved: len(answers) > 0,
	}
	for _, verdict := range answers {
		if verdict != VerdictApproved {
			status.FullyApproved = false
			break
		}
	}
	flags, err := s.flags.Get(ctx, ref)
	if err == nil {
		status.FlaggedFields = flags.FlaggedFields
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return Status{}, fmt.Errorf("load correction flags: %w", err)
	}
	return status, nil
}

func (s *Service) shape(kind models.EntityKind) (registry.CorrectionShape, error) {
	machine, err := s.registry.Machine(kind)
	if err != nil {
		return registry.CorrectionShape{}, err
	}
	if machine.Correction.RequestTransition == "" {
		return registry.CorrectionShape{}, fmt.Errorf("kind %s has no correction cycle", kind)
	}
	return machine.Correction, nil
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
