package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/parlor-project/parlor/internal/util"
)

// handlePing is a trivial liveness probe.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStatus returns a full service snapshot: counts, host resource usage,
// and system identity.
func (s *Server) handleStatus(c *gin.Context) {
	totalRooms, activeRooms := s.rooms.Counts()

	status := gin.H{
		"uptime_sec":   int64(time.Since(s.startedAt).Seconds()),
		"sessions":     s.sessions.Count(),
		"rooms_total":  totalRooms,
		"rooms_active": activeRooms,
		"system":       util.GetSystemInfo(),
	}

	if cpu, err := util.GetCPUUsage(); err == nil {
		status["cpu_percent"] = cpu
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		status["memory"] = mem
	}
	if disk, err := util.GetDiskUsage("."); err == nil {
		status["disk"] = disk
	}

	c.JSON(http.StatusOK, status)
}

// handleSessions lists the players currently online.
func (s *Server) handleSessions(c *gin.Context) {
	players := s.sessions.OnlinePlayers()
	c.JSON(http.StatusOK, gin.H{
		"count":   len(players),
		"players": players,
	})
}

// handleRooms lists every room snapshot.
func (s *Server) handleRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.rooms.Snapshots()})
}

// handleRoom returns one room snapshot by id.
func (s *Server) handleRoom(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	snap, ok := s.rooms.Get(roomID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleProcesses lists spawned game-server processes with resource usage.
func (s *Server) handleProcesses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"processes": s.rooms.ProcessStats()})
}

// handleGames lists the published game catalog.
func (s *Server) handleGames(c *gin.Context) {
	games, err := s.store.ListActiveGames()
	if err != nil {
		log.Error().Err(err).Msg("failed to list games for API")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list games"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

// handleGameReviews lists the reviews of one game.
func (s *Server) handleGameReviews(c *gin.Context) {
	gameID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}

	reviews, err := s.store.GameReviews(gameID)
	if err != nil {
		log.Error().Err(err).Int("game_id", gameID).Msg("failed to list reviews for API")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reviews"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_id": gameID, "reviews": reviews})
}
