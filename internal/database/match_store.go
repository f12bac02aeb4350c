package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
	"github.com/meetsmatch/matchengine/internal/matching"
)

const (
	insertMatchSQL = `INSERT INTO matches (id, pair_key, party_a, party_b, status, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (pair_key) DO NOTHING`

	insertChannelSQL = `INSERT INTO channels (id, match_id, match_pair_key, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (match_pair_key) DO NOTHING`

	matchColumns   = `id, pair_key, party_a, party_b, status, created_at`
	channelColumns = `id, match_id, match_pair_key, created_at`
)

// MatchStore persists matches and their channels. The UNIQUE constraints on
// matches.pair_key and channels.match_pair_key decide concurrent inserts.
type MatchStore struct {
	db *DB
}

func NewMatchStore(db *DB) *MatchStore {
	return &MatchStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *MatchStore) CreateMatch(ctx context.Context, match matching.Match, channel matching.Channel) (bool, error) {
	created := false
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.db.Rebind(insertMatchSQL),
			match.ID,
			string(match.PairKey),
			match.PartyA,
			match.PartyB,
			string(match.Status),
			match.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert match rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, s.db.Rebind(insertChannelSQL),
			channel.ID,
			channel.MatchID,
			string(channel.MatchPairKey),
			channel.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert channel: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return false, apperrors.NewStorageUnavailableError("create match", err)
	}
	return created, nil
}

func (s *MatchStore) CreateChannel(ctx context.Context, channel matching.Channel) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(insertChannelSQL),
		channel.ID,
		channel.MatchID,
		string(channel.MatchPairKey),
		channel.CreatedAt.UTC(),
	)
	if err != nil {
		return false, apperrors.NewStorageUnavailableError("create channel", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewStorageUnavailableError("create channel", err)
	}
	return n > 0, nil
}

func (s *MatchStore) FindMatch(ctx context.Context, key matching.PairKey) (matching.Match, bool, error) {
	query := s.db.Rebind(`SELECT ` + matchColumns + ` FROM matches WHERE pair_key = ?`)
	return s.queryMatch(ctx, "find match", query, string(key))
}

func (s *MatchStore) GetMatchByID(ctx context.Context, matchID string) (matching.Match, bool, error) {
	query := s.db.Rebind(`SELECT ` + matchColumns + ` FROM matches WHERE id = ?`)
	return s.queryMatch(ctx, "get match", query, matchID)
}

func (s *MatchStore) FindChannel(ctx context.Context, key matching.PairKey) (matching.Channel, bool, error) {
	query := s.db.Rebind(`SELECT ` + channelColumns + ` FROM channels WHERE match_pair_key = ?`)
	return s.queryChannel(ctx, "find channel", query, string(key))
}

func (s *MatchStore) GetChannelByID(ctx context.Context, channelID string) (matching.Channel, bool, error) {
	query := s.db.Rebind(`SELECT ` + channelColumns + ` FROM channels WHERE id = ?`)
	return s.queryChannel(ctx, "get channel", query, channelID)
}

func (s *MatchStore) ListMatchesByParty(ctx context.Context, partyID string, limit int) ([]matching.Match, error) {
	query := s.db.Rebind(`SELECT ` + matchColumns + ` FROM matches
WHERE party_a = ? OR party_b = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, partyID, partyID, limit)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("list matches", err)
	}
	defer rows.Close()

	matches := make([]matching.Match, 0)
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, apperrors.NewStorageUnavailableError("list matches", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageUnavailableError("list matches", err)
	}
	return matches, nil
}

func (s *MatchStore) queryMatch(ctx context.Context, operation, query string, arg string) (matching.Match, bool, error) {
	match, err := scanMatch(s.db.QueryRowContext(ctx, query, arg))
	if stderrors.Is(err, sql.ErrNoRows) {
		return matching.Match{}, false, nil
	}
	if err != nil {
		return matching.Match{}, false, apperrors.NewStorageUnavailableError(operation, err)
	}
	return match, true, nil
}

func (s *MatchStore) queryChannel(ctx context.Context, operation, query string, arg string) (matching.Channel, bool, error) {
	var (
		channel matching.Channel
		key     string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&channel.ID,
		&channel.MatchID,
		&key,
		&channel.CreatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return matching.Channel{}, false, nil
	}
	if err != nil {
		return matching.Channel{}, false, apperrors.NewStorageUnavailableError(operation, err)
	}
	channel.MatchPairKey = matching.PairKey(key)
	channel.CreatedAt = channel.CreatedAt.UTC()
	return channel, true, nil
}

func scanMatch(row rowScanner) (matching.Match, error) {
	var (
		match  matching.Match
		key    string
		status string
	)
	if err := row.Scan(
		&match.ID,
		&key,
		&match.PartyA,
		&match.PartyB,
		&status,
		&match.CreatedAt,
	); err != nil {
		return matching.Match{}, err
	}
	match.PairKey = matching.PairKey(key)
	match.Status = matching.MatchStatus(status)
	match.CreatedAt = match.CreatedAt.UTC()
	return match, nil
}
