package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/parlor-project/parlor/internal/catalog"
	"github.com/parlor-project/parlor/internal/events"
	"github.com/parlor-project/parlor/internal/lobby"
	"github.com/parlor-project/parlor/internal/network"
	"github.com/parlor-project/parlor/internal/protocol"
	"github.com/parlor-project/parlor/internal/session"
)

// gameServerBinary is the executable name every published game package must
// ship under its server/ directory.
const gameServerBinary = "game_server"

// LobbyHandlers implements the player-facing request handlers. Clients send
// one request at a time and wait for its response; keepalives and
// game-start pushes are the only frames that interleave.
type LobbyHandlers struct {
	sessions *session.Registry
	rooms    *lobby.Registry
	store    catalog.Store
	bus      *events.EventBus
}

// NewLobbyHandlers wires the lobby handler set to its collaborators.
func NewLobbyHandlers(sessions *session.Registry, rooms *lobby.Registry, store catalog.Store, bus *events.EventBus) *LobbyHandlers {
	return &LobbyHandlers{
		sessions: sessions,
		rooms:    rooms,
		store:    store,
		bus:      bus,
	}
}

// Register installs every lobby handler and the disconnect cleanup on the
// dispatcher.
func (h *LobbyHandlers) Register(d *Dispatcher) {
	d.Handle(protocol.PlayerRegister, h.handleRegister)
	d.Handle(protocol.PlayerLogin, h.handleLogin)
	d.Handle(protocol.PlayerListGames, h.handleListGames)
	d.Handle(protocol.PlayerDownloadGame, h.handleDownloadGame)
	d.Handle(protocol.PlayerCreateRoom, h.handleCreateRoom)
	d.Handle(protocol.PlayerJoinRoom, h.handleJoinRoom)
	d.Handle(protocol.PlayerStartGame, h.handleStartGame)
	d.Handle(protocol.PlayerSubmitReview, h.handleSubmitReview)
	d.Handle(protocol.PlayerGetReviews, h.handleGetReviews)
	d.OnDisconnect(h.handleDisconnect)
}

// handleRegister creates a new player account.
func (h *LobbyHandlers) handleRegister(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		Username *string `json:"username"`
		Password *string `json:"password"`
	}
	json.Unmarshal(data, &req)

	if req.Username == nil || req.Password == nil {
		conn.WritePacket(protocol.Fail(protocol.KindPlayerRegister, "Missing register fields."))
		return
	}

	playerID, err := h.store.CreatePlayer(*req.Username, *req.Password)
	if err != nil {
		conn.WritePacket(protocol.Fail(protocol.KindPlayerRegister, "Registration failed (username exists?)."))
		return
	}

	conn.WritePacket(protocol.OK(protocol.KindPlayerRegister, protocol.Payload{
		"player_id": playerID,
	}))
}

// handleLogin authenticates a player and binds this connection as their
// single live session. The online check and the bind are one atomic step in
// the session registry, so two racing logins for the same account cannot
// both succeed.
func (h *LobbyHandlers) handleLogin(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		Username *string `json:"username"`
		Password *string `json:"password"`
	}
	json.Unmarshal(data, &req)

	if req.Username == nil || req.Password == nil {
		conn.WritePacket(protocol.Fail(protocol.KindPlayerLogin, "Missing login fields."))
		return
	}

	playerID, err := h.store.AuthenticatePlayer(*req.Username, *req.Password)
	if err != nil {
		conn.WritePacket(protocol.Fail(protocol.KindPlayerLogin, "Invalid credentials."))
		return
	}

	if err := h.sessions.Register(playerID, conn); err != nil {
		conn.WritePacket(protocol.Fail(protocol.KindPlayerLogin, "This account is already logged in from another client."))
		return
	}

	h.emit(ctx, events.EventSessionOpened, events.SessionPayload{
		PlayerID: playerID,
		Remote:   conn.RemoteAddr().String(),
	})

	conn.WritePacket(protocol.OK(protocol.KindPlayerLogin, protocol.Payload{
		"player_id": playerID,
	}))
}

// handleListGames returns the active catalog.
func (h *LobbyHandlers) handleListGames(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	games, err := h.store.ListActiveGames()
	if err != nil {
		log.Error().Err(err).Msg("failed to list games")
		conn.WritePacket(protocol.Fail(protocol.KindListGames, "Failed to list games."))
		return
	}

	if games == nil {
		games = []catalog.Game{}
	}
	conn.WritePacket(protocol.OK(protocol.KindListGames, protocol.Payload{
		"games": games,
	}))
}

// handleDownloadGame returns the latest published package of a game,
// base64-encoded.
func (h *LobbyHandlers) handleDownloadGame(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		GameID *int `json:"game_id"`
	}
	json.Unmarshal(data, &req)

	if req.GameID == nil {
		conn.WritePacket(protocol.Fail(protocol.KindGameDownload, "Missing game_id."))
		return
	}

	version, err := h.store.LatestVersion(*req.GameID)
	if err != nil {
		conn.WritePacket(protocol.Fail(protocol.KindGameDownload, "Game not found."))
		return
	}

	zipPath := filepath.Join(version.StoragePath, "game.zip")
	raw, err := os.ReadFile(zipPath)
	if err != nil {
		conn.WritePacket(protocol.Fail(protocol.KindGameDownload, "Missing game.zip on server."))
		return
	}

	conn.WritePacket(protocol.OK(protocol.KindGameDownload, protocol.Payload{
		"version":         version.Version,
		"filename":        "game.zip",
		"filedata_base64": base64.StdEncoding.EncodeToString(raw),
	}))
}

// handleCreateRoom opens a new room hosted by the requester. The room's
// capacity comes from the catalog record; an unknown game falls back to
// two players.
func (h *LobbyHandlers) handleCreateRoom(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		GameID   *int `json:"game_id"`
		PlayerID *int `json:"player_id"`
	}
	json.Unmarshal(data, &req)

	if req.GameID == nil || req.PlayerID == nil {
		conn.WritePacket(protocol.Fail(protocol.KindCreateRoom, "Missing game_id/player_id."))
		return
	}

	maxPlayers := 2
	if game, err := h.store.GameByID(*req.GameID); err == nil {
		maxPlayers = game.MaxPlayers
	}

	snap := h.rooms.CreateRoom(ctx, *req.GameID, *req.PlayerID, maxPlayers)

	conn.WritePacket(protocol.OK(protocol.KindCreateRoom, protocol.Payload{
		"room_id": snap.RoomID,
		"game_id": snap.GameID,
		"players": snap.Players,
	}))
}

// handleJoinRoom adds the requester to a room. A duplicate join is not an
// error; the current membership is returned either way. The reply goes
// only to the joining player.
func (h *LobbyHandlers) handleJoinRoom(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		RoomID   *int `json:"room_id"`
		PlayerID *int `json:"player_id"`
	}
	json.Unmarshal(data, &req)

	if req.RoomID == nil || req.PlayerID == nil {
		conn.WritePacket(protocol.Fail(protocol.KindJoinRoom, "Missing room_id/player_id."))
		return
	}

	snap, err := h.rooms.Join(ctx, *req.RoomID, *req.PlayerID)
	if err != nil {
		switch {
		case errors.Is(err, lobby.ErrRoomNotFound):
			conn.WritePacket(protocol.Fail(protocol.KindJoinRoom, "Room not found."))
		case errors.Is(err, lobby.ErrRoomFull):
			conn.WritePacket(protocol.Fail(protocol.KindJoinRoom, "Room full."))
		default:
			conn.WritePacket(protocol.Fail(protocol.KindJoinRoom, err.Error()))
		}
		return
	}

	conn.WritePacket(protocol.OK(protocol.KindJoinRoom, protocol.Payload{
		"room_id": snap.RoomID,
		"game_id": snap.GameID,
		"players": snap.Players,
	}))
}

// handleStartGame spawns the room's game-server process and pushes the
// result to every member's own connection; the requester gets the same push
// instead of a direct reply. On any failure the room stays Open and only
// the requester is told.
func (h *LobbyHandlers) handleStartGame(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		RoomID   *int `json:"room_id"`
		PlayerID *int `json:"player_id"`
	}
	json.Unmarshal(data, &req)

	if req.RoomID == nil || req.PlayerID == nil {
		conn.WritePacket(protocol.Fail(protocol.KindStartGame, "Missing room_id/player_id."))
		return
	}

	result, err := h.rooms.StartGame(ctx, *req.RoomID, *req.PlayerID, h.resolveArtifact)
	if err != nil {
		switch {
		case errors.Is(err, lobby.ErrRoomNotFound):
			conn.WritePacket(protocol.Fail(protocol.KindStartGame, "Room not found."))
		case errors.Is(err, lobby.ErrNotHost):
			conn.WritePacket(protocol.Fail(protocol.KindStartGame, "Only host can start the game."))
		case errors.Is(err, lobby.ErrTooFewPlayers):
			conn.WritePacket(protocol.Fail(protocol.KindStartGame, "Need at least 2 players."))
		case errors.Is(err, lobby.ErrAlreadyStarted):
			conn.WritePacket(protocol.Fail(protocol.KindStartGame, "Game already started."))
		default:
			conn.WritePacket(protocol.Fail(protocol.KindStartGame, err.Error()))
		}
		return
	}

	// A member whose connection dropped mid-broadcast is skipped; delivery
	// to the rest continues.
	for _, memberID := range result.Members {
		memberConn, online := h.sessions.ConnOf(memberID)
		if !online {
			continue
		}
		push := protocol.OK(protocol.KindStartGame, protocol.Payload{
			"game_id":     result.GameID,
			"room_id":     result.RoomID,
			"server_port": result.Port,
			"is_host":     memberID == result.HostID,
		})
		if err := memberConn.WritePacket(push); err != nil {
			log.Debug().Err(err).Int("player_id", memberID).Msg("start push failed")
		}
	}
}

// resolveArtifact maps a game id to its game-server executable: the
// server/ directory of the latest published version.
func (h *LobbyHandlers) resolveArtifact(gameID int) (string, error) {
	version, err := h.store.LatestVersion(gameID)
	if err != nil {
		return "", fmt.Errorf("no published version for game %d", gameID)
	}

	serverDir := filepath.Join(version.StoragePath, "server")
	executable := filepath.Join(serverDir, gameServerBinary)
	if info, err := os.Stat(executable); err != nil || info.IsDir() {
		return "", fmt.Errorf("no executable found in: %s", serverDir)
	}
	return executable, nil
}

// handleSubmitReview records a player review of a game.
func (h *LobbyHandlers) handleSubmitReview(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		PlayerID *int    `json:"player_id"`
		GameID   *int    `json:"game_id"`
		Score    *int    `json:"score"`
		Comment  *string `json:"comment"`
	}
	json.Unmarshal(data, &req)

	if req.PlayerID == nil || req.GameID == nil || req.Score == nil || req.Comment == nil {
		conn.WritePacket(protocol.Fail(protocol.KindReviewResult, "Missing review fields."))
		return
	}

	if *req.Score < 1 || *req.Score > 5 {
		conn.WritePacket(protocol.Fail(protocol.KindReviewResult, "Score must be between 1 and 5."))
		return
	}

	if err := h.store.AddReview(*req.GameID, *req.PlayerID, *req.Score, *req.Comment); err != nil {
		log.Error().Err(err).Msg("failed to add review")
		conn.WritePacket(protocol.Fail(protocol.KindReviewResult, "Database insert failed."))
		return
	}

	conn.WritePacket(protocol.OK(protocol.KindReviewResult, nil))
}

// handleGetReviews returns the review set of a game.
func (h *LobbyHandlers) handleGetReviews(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		GameID *int `json:"game_id"`
	}
	json.Unmarshal(data, &req)

	if req.GameID == nil {
		conn.WritePacket(protocol.Fail(protocol.KindReviews, "Missing game_id."))
		return
	}

	reviews, err := h.store.GameReviews(*req.GameID)
	if err != nil {
		log.Error().Err(err).Msg("failed to list reviews")
		conn.WritePacket(protocol.Fail(protocol.KindReviews, "Failed to list reviews."))
		return
	}

	if reviews == nil {
		reviews = []catalog.Review{}
	}
	conn.WritePacket(protocol.OK(protocol.KindReviews, protocol.Payload{
		"reviews": reviews,
	}))
}

// handleDisconnect tears down whatever the departed connection owned: its
// session, its room membership, and (when it was the last member) the
// room's game-server process. Connection loss is never reported to anyone.
func (h *LobbyHandlers) handleDisconnect(ctx context.Context, conn *network.Connection) {
	playerID, ok := h.sessions.PlayerOf(conn)
	h.sessions.Unregister(conn)
	if !ok {
		return
	}

	h.rooms.RemoveMember(ctx, playerID)

	h.emit(ctx, events.EventSessionClosed, events.SessionPayload{
		PlayerID: playerID,
		Remote:   conn.RemoteAddr().String(),
	})
}

func (h *LobbyHandlers) emit(ctx context.Context, t events.EventType, payload any) {
	if h.bus == nil {
		return
	}
	h.bus.Emit(ctx, events.Event{Type: t, Source: "lobby_handlers", Payload: payload})
}
