package api

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/alphadesk/alphadesk/internal/orchestrator"
)

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "AlphaDesk API",
		"version": "1.0.0",
		"status":  "running",
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	dbStatus := "not_configured"
	healthy := true
	if s.health != nil {
		dbStatus = "healthy"
		if err := s.health(c.Request.Context()); err != nil {
			dbStatus = "unhealthy"
			healthy = false
			log.Warn().Err(err).Msg("Database health check failed")
		}
	}

	code := http.StatusOK
	status := "healthy"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}
	c.JSON(code, gin.H{
		"status":   status,
		"database": dbStatus,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c.JSON(http.StatusOK, gin.H{
		"trading":    s.control.Status(),
		"timestamp":  time.Now().UTC(),
		"uptime_sec": time.Since(s.started).Seconds(),
		"ws_clients": s.hub.ClientCount(),
		"system": gin.H{
			"goroutines": runtime.NumGoroutine(),
			"alloc_mb":   memStats.Alloc / 1024 / 1024,
			"go_version": runtime.Version(),
		},
	})
}

func (s *Server) handleListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.control.Agents()})
}

func (s *Server) handleGetAgent(c *gin.Context) {
	info, ok := s.agentByName(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleAgentTrades(c *gin.Context) {
	info, ok := s.agentByName(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent"})
		return
	}
	trades, err := s.control.RecentTrades(c.Request.Context(), info.ID, queryInt(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": info.Name, "trades": trades})
}

func (s *Server) handleAgentAutocritiques(c *gin.Context) {
	info, ok := s.agentByName(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent"})
		return
	}
	critiques, err := s.control.Autocritiques(c.Request.Context(), info.ID, queryInt(c, "limit", 10))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": info.Name, "autocritiques": critiques})
}

func (s *Server) handleAgentPerformance(c *gin.Context) {
	info, ok := s.agentByName(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent"})
		return
	}
	horizon := time.Duration(queryInt(c, "hours", 24)) * time.Hour
	history, err := s.control.PerformanceHistory(c.Request.Context(), info.ID, horizon)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": info.Name, "history": history})
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"leaderboard": s.control.Leaderboard()})
}

func (s *Server) handleLastCycle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cycle": s.control.LastCycle()})
}

func (s *Server) handleTrades(c *gin.Context) {
	trades, err := s.control.RecentTrades(c.Request.Context(), "", queryInt(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleEnableTrading(c *gin.Context) {
	s.control.EnableTrading()
	c.JSON(http.StatusOK, gin.H{"trading_enabled": true})
}

func (s *Server) handleDisableTrading(c *gin.Context) {
	s.control.DisableTrading()
	c.JSON(http.StatusOK, gin.H{"trading_enabled": false})
}

func (s *Server) handleForceTick(c *gin.Context) {
	// Detached so one HTTP request doesn't own a full LLM round trip
	go s.control.ForceTick(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"tick": "scheduled"})
}

func (s *Server) agentByName(name string) (orchestrator.AgentInfo, bool) {
	for _, info := range s.control.Agents() {
		if strings.EqualFold(info.Name, name) {
			return info, true
		}
	}
	return orchestrator.AgentInfo{}, false
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
