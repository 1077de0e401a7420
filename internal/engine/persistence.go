package engine

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"benchline/internal/activity"
	"benchline/internal/domain"
	"benchline/internal/repo"
	"benchline/internal/submission"
)

// workStore applies session transitions to the database. Every method is a
// single transaction that includes its activity entries.
type workStore struct {
	e *Engine
}

var _ submission.Persistence = workStore{}

func (w workStore) Start(ctx context.Context, ref submission.Ref, startedAt string) error {
	e := w.e
	return e.withTx(ctx, func(tx *sql.Tx) error {
		t, err := e.Repo.GetTrackingTx(ctx, tx, ref.OrderID, ref.Department)
		if err != nil {
			return err
		}
		if err := e.Repo.StartTrackingTx(ctx, tx, t.ID, startedAt); err != nil {
			return fmt.Errorf("start %s: %w", ref.Department, err)
		}
		if err := e.Repo.UpsertSubmissionTx(ctx, tx, t.ID, domain.NewWorkSubmission(), startedAt); err != nil {
			return err
		}
		// Starting unassigned work claims it for the actor.
		if t.AssignedWorkerID == nil && ref.ActorID != "" {
			actor := ref.ActorID
			if err := e.Repo.AssignWorkerTx(ctx, tx, t.ID, &actor); err != nil {
				return err
			}
			if err := e.Activity.Record(ctx, tx, ref.OrderID, ref.Department, domain.ActionWorkerAssigned, ref.ActorID, activity.Metadata{"from": nil, "to": actor}); err != nil {
				return err
			}
		}
		if err := e.Repo.TouchOrderTx(ctx, tx, ref.OrderID, startedAt); err != nil {
			return err
		}
		return e.Activity.Record(ctx, tx, ref.OrderID, ref.Department, domain.ActionWorkStarted, ref.ActorID, nil)
	})
}

func (w workStore) Save(ctx context.Context, ref submission.Ref, sub *domain.WorkSubmission, trigger submission.Trigger) error {
	e := w.e
	return e.withTx(ctx, func(tx *sql.Tx) error {
		t, err := e.Repo.GetTrackingTx(ctx, tx, ref.OrderID, ref.Department)
		if err != nil {
			return err
		}
		if t.Status != domain.StatusInProgress {
			return fmt.Errorf("save %s draft while %s: %w", ref.Department, t.Status, repo.ErrConflict)
		}
		ts := e.timestamp()
		if sub.LastSavedAt != nil {
			ts = *sub.LastSavedAt
		}
		if err := e.Repo.UpsertSubmissionTx(ctx, tx, t.ID, sub, ts); err != nil {
			return err
		}
		if err := e.Repo.TouchOrderTx(ctx, tx, ref.OrderID, ts); err != nil {
			return err
		}
		return e.Activity.Record(ctx, tx, ref.OrderID, ref.Department, domain.ActionDraftSaved, ref.ActorID, activity.Metadata{
			"trigger": string(trigger),
			"fields":  len(sub.FormData),
			"photos":  len(sub.UploadedPhotos),
			"files":   len(sub.UploadedFiles),
		})
	})
}

// Complete stores the final submission, closes the tracking record and moves the
// order to its next department, all or nothing.
func (w workStore) Complete(ctx context.Context, ref submission.Ref, sub *domain.WorkSubmission, completedAt string) error {
	e := w.e
	var from, to domain.Department
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		o, err := e.Repo.GetOrderTx(ctx, tx, ref.OrderID)
		if err != nil {
			return err
		}
		if o.CurrentDepartment != ref.Department {
			return fmt.Errorf("order %s is at %s, not %s: %w", o.Reference, o.CurrentDepartment, ref.Department, repo.ErrConflict)
		}
		t, ok := o.TrackingFor(ref.Department)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotReached, ref.Department)
		}
		if err := e.Repo.UpsertSubmissionTx(ctx, tx, t.ID, sub, completedAt); err != nil {
			return err
		}
		if err := e.Repo.CompleteTrackingTx(ctx, tx, t.ID, completedAt); err != nil {
			return fmt.Errorf("complete %s: %w", ref.Department, err)
		}
		t.Status = domain.StatusCompleted
		t.CompletedAt = &completedAt

		adv, err := e.Pipeline.Advance(&o)
		if err != nil {
			return err
		}
		from, to = adv.From, adv.To
		if adv.Created != nil {
			if err := e.Repo.InsertTrackingTx(ctx, tx, *adv.Created); err != nil {
				return fmt.Errorf("insert tracking: %w", err)
			}
		}
		if err := e.Repo.UpdateOrderProgressTx(ctx, tx, o.ID, adv.To, completedAt); err != nil {
			return err
		}

		if err := e.Activity.Record(ctx, tx, o.ID, adv.From, domain.ActionWorkCompleted, ref.ActorID, activity.Metadata{
			"photos": len(sub.UploadedPhotos),
			"files":  len(sub.UploadedFiles),
		}); err != nil {
			return err
		}
		if err := e.Activity.Record(ctx, tx, o.ID, adv.From, domain.ActionStageExited, ref.ActorID, nil); err != nil {
			return err
		}
		if err := e.Activity.Record(ctx, tx, o.ID, adv.From, domain.ActionDepartmentAdvanced, ref.ActorID, activity.Metadata{
			"from": string(adv.From),
			"to":   string(adv.To),
		}); err != nil {
			return err
		}
		if adv.Finished {
			return e.Activity.Record(ctx, tx, o.ID, "", domain.ActionOrderFinished, ref.ActorID, nil)
		}
		return e.Activity.Record(ctx, tx, o.ID, adv.To, domain.ActionStageEntered, ref.ActorID, nil)
	})
	if err != nil {
		return err
	}
	e.Log.Info("department completed",
		zap.String("order_id", ref.OrderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor_id", ref.ActorID))
	return nil
}
