package httpserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/meetsmatch/matchengine/internal/errors"
	"github.com/meetsmatch/matchengine/internal/matching"
	"github.com/meetsmatch/matchengine/internal/middleware"
)

type swipeRequest struct {
	TargetID    string `json:"target_id" binding:"required"`
	Disposition string `json:"disposition" binding:"required"`
}

type matchListResponse struct {
	Matches []matching.Match `json:"matches"`
}

func actor(c *gin.Context) (string, bool) {
	actorID, ok := middleware.ActorID(c.Request.Context())
	if !ok {
		_ = c.Error(apperrors.NewAuthenticationError("missing actor"))
	}
	return actorID, ok
}

func (s *Server) recordSwipe(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	var req swipeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidationError("body", "target_id and disposition are required").
			WithDetails(err.Error()))
		return
	}
	disposition, err := matching.ParseDisposition(req.Disposition)
	if err != nil {
		_ = c.Error(err)
		return
	}

	targetID := strings.TrimSpace(req.TargetID)
	outcome, err := s.engine.RecordSwipe(c.Request.Context(), actorID, targetID, disposition)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) listMatches(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			_ = c.Error(apperrors.NewValidationError("limit", "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	matches, err := s.engine.ListMatches(c.Request.Context(), actorID, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if matches == nil {
		matches = []matching.Match{}
	}
	c.JSON(http.StatusOK, matchListResponse{Matches: matches})
}

// authorizedMatch loads a match the actor is a party to. Matches of other
// parties are reported as forbidden.
func (s *Server) authorizedMatch(c *gin.Context, actorID, matchID string) (matching.Match, bool) {
	match, err := s.engine.GetMatch(c.Request.Context(), matchID)
	if err != nil {
		_ = c.Error(err)
		return matching.Match{}, false
	}
	if !match.HasParty(actorID) {
		_ = c.Error(apperrors.NewAuthorizationError("actor is not a party to this match").
			WithMetadata("match_id", matchID))
		return matching.Match{}, false
	}
	return match, true
}

func (s *Server) getMatch(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	match, ok := s.authorizedMatch(c, actorID, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, match)
}

func (s *Server) getChannel(c *gin.Context) {
	actorID, ok := actor(c)
	if !ok {
		return
	}
	channel, err := s.engine.GetChannel(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	if _, ok := s.authorizedMatch(c, actorID, channel.MatchID); !ok {
		return
	}
	c.JSON(http.StatusOK, channel)
}
