package matching

import (
	"strconv"
	"strings"
	"time"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
)

// Disposition is a party's recorded stance toward another party.
type Disposition string

const (
	DispositionLike      Disposition = "like"
	DispositionSuperLike Disposition = "super_like"
	DispositionDislike   Disposition = "dislike"
)

// Valid reports whether d is one of the three known dispositions.
func (d Disposition) Valid() bool {
	switch d {
	case DispositionLike, DispositionSuperLike, DispositionDislike:
		return true
	}
	return false
}

// Positive reports whether d counts toward a mutual match. like and super_like
// are equivalent here.
func (d Disposition) Positive() bool {
	return d == DispositionLike || d == DispositionSuperLike
}

func (d Disposition) String() string {
	return string(d)
}

// ParseDisposition maps collaborator vocabulary (button names, swipe
// directions, legacy enum spellings) onto a Disposition.
func ParseDisposition(input string) (Disposition, error) {
	value := strings.ToLower(strings.TrimSpace(input))
	value = strings.NewReplacer("-", "", "_", "", " ", "").Replace(value)

	switch value {
	case "like", "right", "yes":
		return DispositionLike, nil
	case "superlike", "super", "up":
		return DispositionSuperLike, nil
	case "dislike", "left", "pass", "no":
		return DispositionDislike, nil
	}
	return "", apperrors.NewValidationError("disposition", "unsupported disposition").
		WithMetadata("value", input)
}

// SwipeDecision is the latest disposition of ActorID toward TargetID.
type SwipeDecision struct {
	ActorID     string      `json:"actor_id"`
	TargetID    string      `json:"target_id"`
	Disposition Disposition `json:"disposition"`
	DecidedAt   time.Time   `json:"decided_at"`
}

// PairKey identifies an unordered pair of parties.
type PairKey string

// Normalize returns the canonical key for the pair {a, b}. The lower id is
// length-prefixed so that ids containing the separator cannot collide.
func Normalize(a, b string) PairKey {
	lo, hi := canonicalOrder(a, b)
	return PairKey(strconv.Itoa(len(lo)) + ":" + lo + ":" + hi)
}

// Parties splits the key back into its two ids, lower id first.
func (k PairKey) Parties() (string, string, bool) {
	raw := string(k)
	sep := strings.IndexByte(raw, ':')
	if sep <= 0 {
		return "", "", false
	}
	n, err := strconv.Atoi(raw[:sep])
	if err != nil || n < 0 {
		return "", "", false
	}
	rest := raw[sep+1:]
	if len(rest) < n+1 || rest[n] != ':' {
		return "", "", false
	}
	return rest[:n], rest[n+1:], true
}

func (k PairKey) String() string {
	return string(k)
}

func canonicalOrder(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// MatchStatus is always active for matches created by the engine.
type MatchStatus string

const MatchStatusActive MatchStatus = "active"

// Match records confirmed mutual interest. There is at most one per PairKey.
type Match struct {
	ID        string      `json:"id"`
	PairKey   PairKey     `json:"pair_key"`
	PartyA    string      `json:"party_a"`
	PartyB    string      `json:"party_b"`
	Status    MatchStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// HasParty reports whether id is one of the matched parties.
func (m Match) HasParty(id string) bool {
	return id != "" && (m.PartyA == id || m.PartyB == id)
}

// Channel is the communication channel provisioned for a Match.
type Channel struct {
	ID           string    `json:"id"`
	MatchID      string    `json:"match_id"`
	MatchPairKey PairKey   `json:"match_pair_key"`
	CreatedAt    time.Time `json:"created_at"`
}

// MatchResult identifies the match and channel for a pair. Created is true only
// for the caller whose insert won.
type MatchResult struct {
	MatchID   string `json:"match_id"`
	ChannelID string `json:"channel_id"`
	Created   bool   `json:"created"`
}

// SwipeOutcome is returned from RecordSwipe.
type SwipeOutcome struct {
	Matched   bool   `json:"matched"`
	MatchID   string `json:"match_id,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
	NewMatch  bool   `json:"new_match"`
}

// Reciprocity is the joint state of a pair after a decision was written.
type Reciprocity int

const (
	NotMutual Reciprocity = iota
	MutualPositive
)

func (r Reciprocity) String() string {
	if r == MutualPositive {
		return "mutual_positive"
	}
	return "not_mutual"
}

// MatchCreated is published once per pair, by the request that created the match.
type MatchCreated struct {
	MatchID   string    `json:"match_id"`
	ChannelID string    `json:"channel_id"`
	PairKey   PairKey   `json:"pair_key"`
	PartyA    string    `json:"party_a"`
	PartyB    string    `json:"party_b"`
	CreatedAt time.Time `json:"created_at"`
}
