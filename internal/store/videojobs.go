// Package store persists video job records: storyboard video variants and
// character videos. It is passive storage consulted by the handlers and the
// status poller.
package store

import (
	"context"
	"time"

	"storyflow/internal/domain"
	"storyflow/internal/infra"
	"storyflow/internal/sqlinline"
)

// VideoJobs reads and writes the two job record tables through the marked
// SQL runner.
type VideoJobs struct {
	SQL infra.SQLExecutor
}

func NewVideoJobs(sql infra.SQLExecutor) *VideoJobs {
	return &VideoJobs{SQL: sql}
}

// CreatePending inserts a new record in the pending state, before the
// external submission is attempted. TokenCost is captured now so the refund
// amount is fixed even if pricing changes later.
func (s *VideoJobs) CreatePending(ctx context.Context, kind domain.VideoJobKind, id, userID string, tokenCost int) error {
	query := sqlinline.QInsertStoryboardVariant
	if kind == domain.KindCharacterVideo {
		query = sqlinline.QInsertCharacterVideo
	}
	_, err := s.SQL.Exec(ctx, query, id, userID, tokenCost)
	return err
}

// MarkSubmitted stores the external task id and moves the record to
// generating.
func (s *VideoJobs) MarkSubmitted(ctx context.Context, kind domain.VideoJobKind, id, taskID string) error {
	query := sqlinline.QMarkVariantSubmitted
	if kind == domain.KindCharacterVideo {
		query = sqlinline.QMarkCharacterSubmitted
	}
	_, err := s.SQL.Exec(ctx, query, id, taskID)
	return err
}

// ApplyUpdate writes one poll observation. Nil fields keep their stored
// values; finished_at is only ever set once a terminal state is reached.
func (s *VideoJobs) ApplyUpdate(ctx context.Context, kind domain.VideoJobKind, id string, upd domain.VideoStatusUpdate) error {
	query := sqlinline.QUpdateVariantStatus
	if kind == domain.KindCharacterVideo {
		query = sqlinline.QUpdateCharacterStatus
	}
	_, err := s.SQL.Exec(ctx, query,
		id,
		string(upd.Status),
		upd.Progress,
		upd.VideoURL,
		upd.ThumbnailURL,
		upd.FailReason,
		upd.Finished,
	)
	return err
}

// Billing returns the owner and the token cost recorded at submission time.
func (s *VideoJobs) Billing(ctx context.Context, kind domain.VideoJobKind, id string) (string, int, error) {
	query := sqlinline.QVariantBilling
	if kind == domain.KindCharacterVideo {
		query = sqlinline.QCharacterBilling
	}
	var userID string
	var tokenCost int
	if err := s.SQL.QueryRow(ctx, query, id).Scan(&userID, &tokenCost); err != nil {
		if infra.IsNoRows(err) {
			return "", 0, domain.ErrNotFound
		}
		return "", 0, err
	}
	return userID, tokenCost, nil
}

// Unfinished lists every record still waiting on the external API: status
// queued or generating with a non-null task id, across both kinds.
func (s *VideoJobs) Unfinished(ctx context.Context) ([]domain.PendingPoll, error) {
	var pending []domain.PendingPoll

	collect := func(query string, kind domain.VideoJobKind) error {
		rows, err := s.SQL.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p domain.PendingPoll
			if err := rows.Scan(&p.TargetID, &p.TaskID); err != nil {
				return err
			}
			p.Kind = kind
			pending = append(pending, p)
		}
		return rows.Err()
	}

	if err := collect(sqlinline.QUnfinishedVariants, domain.KindStoryboardVariant); err != nil {
		return nil, err
	}
	if err := collect(sqlinline.QUnfinishedCharacters, domain.KindCharacterVideo); err != nil {
		return nil, err
	}
	return pending, nil
}

// Get fetches one record scoped to its owner.
func (s *VideoJobs) Get(ctx context.Context, kind domain.VideoJobKind, id, userID string) (*domain.VideoJob, error) {
	query := sqlinline.QGetVariant
	if kind == domain.KindCharacterVideo {
		query = sqlinline.QGetCharacterVideo
	}
	row := s.SQL.QueryRow(ctx, query, id, userID)

	var job domain.VideoJob
	var status string
	var finishedAt *time.Time
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.TokenCost,
		&job.TaskID,
		&status,
		&job.Progress,
		&job.VideoURL,
		&job.ThumbnailURL,
		&job.FailReason,
		&job.StartedAt,
		&finishedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Kind = kind
	job.Status = domain.VideoStatus(status)
	job.FinishedAt = finishedAt
	return &job, nil
}
