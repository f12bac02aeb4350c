package database

import (
	"context"
	"database/sql"
	stderrors "errors"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
	"github.com/meetsmatch/matchengine/internal/matching"
)

const (
	upsertDecisionSQL = `INSERT INTO swipe_decisions (actor_id, target_id, disposition, decided_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (actor_id, target_id) DO UPDATE
SET disposition = excluded.disposition, decided_at = excluded.decided_at`

	selectDecisionSQL = `SELECT actor_id, target_id, disposition, decided_at
FROM swipe_decisions WHERE actor_id = ? AND target_id = ?`
)

// DecisionStore keeps the latest swipe decision per ordered pair.
type DecisionStore struct {
	db *DB
}

func NewDecisionStore(db *DB) *DecisionStore {
	return &DecisionStore{db: db}
}

func (s *DecisionStore) Put(ctx context.Context, decision matching.SwipeDecision) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(upsertDecisionSQL),
		decision.ActorID,
		decision.TargetID,
		string(decision.Disposition),
		decision.DecidedAt.UTC(),
	)
	if err != nil {
		return apperrors.NewStorageUnavailableError("put decision", err)
	}
	return nil
}

func (s *DecisionStore) Get(ctx context.Context, actorID, targetID string) (matching.SwipeDecision, bool, error) {
	var (
		decision    matching.SwipeDecision
		disposition string
	)
	err := s.db.QueryRowContext(ctx, s.db.Rebind(selectDecisionSQL), actorID, targetID).Scan(
		&decision.ActorID,
		&decision.TargetID,
		&disposition,
		&decision.DecidedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return matching.SwipeDecision{}, false, nil
	}
	if err != nil {
		return matching.SwipeDecision{}, false, apperrors.NewStorageUnavailableError("get decision", err)
	}
	decision.Disposition = matching.Disposition(disposition)
	decision.DecidedAt = decision.DecidedAt.UTC()
	return decision, true, nil
}
