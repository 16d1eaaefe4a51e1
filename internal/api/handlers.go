package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pattern-sentinel/internal/market"
)

const (
	defaultMatchLimit = 50
	maxMatchLimit     = 500
	defaultBarLimit   = 100
	maxBarLimit       = 1000
)

func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{
		"status":     "ok",
		"instrument": s.instrument,
		"uptime":     time.Since(s.startedAt).Round(time.Second).String(),
	}

	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request.Context()); err != nil {
			health["status"] = "degraded"
			health["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, health)
			return
		}
		health["database"] = "ok"
	}
	c.JSON(http.StatusOK, health)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.Status())
}

func (s *Server) handleMatches(c *gin.Context) {
	limit := queryLimit(c, defaultMatchLimit, maxMatchLimit)

	matches, err := s.matches.RecentMatches(c.Request.Context(), s.instrument, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load matches")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load matches"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches, "count": len(matches)})
}

func (s *Server) handleIndicators(c *gin.Context) {
	tf, ok := pathTimeframe(c)
	if !ok {
		return
	}

	values, err := s.indicators.FindLatest(c.Request.Context(), s.instrument, tf)
	if err != nil {
		s.logger.Error().Err(err).Str("timeframe", string(tf)).Msg("Failed to load indicators")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load indicators"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeframe": tf, "indicators": values})
}

func (s *Server) handleBars(c *gin.Context) {
	tf, ok := pathTimeframe(c)
	if !ok {
		return
	}
	limit := queryLimit(c, defaultBarLimit, maxBarLimit)

	bars, err := s.bars.LatestBars(c.Request.Context(), s.instrument, tf, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("timeframe", string(tf)).Msg("Failed to load bars")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load bars"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timeframe": tf, "bars": bars, "count": len(bars)})
}

func pathTimeframe(c *gin.Context) (market.Timeframe, bool) {
	tf := market.Timeframe(c.Param("timeframe"))
	if !tf.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown timeframe " + c.Param("timeframe")})
		return "", false
	}
	return tf, true
}

func queryLimit(c *gin.Context, def, max int) int {
	limit := def
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
