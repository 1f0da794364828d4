// ABOUTME: Insight endpoints with read-through caching
// ABOUTME: refresh=true bypasses the cached read but still rewarms the cache

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/awaren/awaren-server/internal/auth"
)

func (s *Server) handleHeroInsight(w http.ResponseWriter, r *http.Request) {
	serveCached(s, w, r, "hero", s.insights.Hero)
}

func (s *Server) handleDataInsight(w http.ResponseWriter, r *http.Request) {
	serveCached(s, w, r, "data", s.insights.Data)
}

func (s *Server) handleExploreInsight(w http.ResponseWriter, r *http.Request) {
	serveCached(s, w, r, "explore", s.insights.Explore)
}

// serveCached implements the read-through pattern shared by all insight
// endpoints: serve from cache unless refresh is requested, recompute on
// miss, and always rewarm the cache with a fresh result.
func serveCached[T any](s *Server, w http.ResponseWriter, r *http.Request, feature string, compute func(context.Context, string) (*T, error)) {
	identity := auth.MustFromContext(r.Context())
	key := fmt.Sprintf("insights:%s:%s", feature, identity.UserID)
	refresh := r.URL.Query().Get("refresh") == "true"

	if !refresh {
		var cached T
		if s.cache.Get(key, &cached) {
			s.writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	result, err := compute(r.Context(), identity.UserID)
	if err != nil {
		s.logger.Error("insight computation failed", "feature", feature, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.cache.Set(key, result)
	s.writeJSON(w, http.StatusOK, result)
}
