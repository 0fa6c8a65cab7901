package dispatch

import (
	"archive/zip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/parlor-project/parlor/internal/catalog"
	"github.com/parlor-project/parlor/internal/events"
	"github.com/parlor-project/parlor/internal/network"
	"github.com/parlor-project/parlor/internal/protocol"
)

// DeveloperHandlers implements the developer console request handlers:
// account management and game upload/versioning.
type DeveloperHandlers struct {
	store      catalog.Store
	storageDir string
	clients    *network.ClientSet
	bus        *events.EventBus
}

// NewDeveloperHandlers wires the developer handler set. storageDir is the
// root under which uploaded game packages are unpacked.
func NewDeveloperHandlers(store catalog.Store, storageDir string, clients *network.ClientSet, bus *events.EventBus) *DeveloperHandlers {
	return &DeveloperHandlers{
		store:      store,
		storageDir: storageDir,
		clients:    clients,
		bus:        bus,
	}
}

// Register installs every developer handler on the dispatcher, plus the
// client-set bookkeeping used by the keepalive broadcast.
func (h *DeveloperHandlers) Register(d *Dispatcher) {
	d.Handle(protocol.DevRegister, h.handleRegister)
	d.Handle(protocol.DevLogin, h.handleLogin)
	d.Handle(protocol.DevUploadGame, h.handleUpload)
	d.Handle(protocol.DevUpdateGame, h.handleUpload)
	d.Handle(protocol.DevRemoveGame, h.handleRemoveGame)
	d.Handle(protocol.DevListMyGames, h.handleListMyGames)

	d.OnConnect(h.clients.Add)
	d.OnDisconnect(func(ctx context.Context, conn *network.Connection) {
		h.clients.Remove(conn)
	})
}

// handleRegister creates a new developer account.
func (h *DeveloperHandlers) handleRegister(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		Username *string `json:"username"`
		Password *string `json:"password"`
	}
	json.Unmarshal(data, &req)

	if req.Username == nil || req.Password == nil {
		conn.WritePacket(protocol.Fail(protocol.KindDevRegister, "Missing fields"))
		return
	}

	devID, err := h.store.CreateDeveloper(*req.Username, *req.Password)
	if err != nil {
		conn.WritePacket(protocol.Fail(protocol.KindDevRegister, "Username already exists"))
		return
	}

	conn.WritePacket(protocol.OK(protocol.KindDevRegister, protocol.Payload{
		"dev_id": devID,
	}))
}

// handleLogin authenticates a developer. Developer sessions are not
// tracked; each request carries the developer id.
func (h *DeveloperHandlers) handleLogin(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		Username *string `json:"username"`
		Password *string `json:"password"`
	}
	json.Unmarshal(data, &req)

	if req.Username == nil || req.Password == nil {
		conn.WritePacket(protocol.Fail(protocol.KindDevLogin, "Missing username/password."))
		return
	}

	devID, err := h.store.AuthenticateDeveloper(*req.Username, *req.Password)
	if err != nil {
		conn.WritePacket(protocol.Fail(protocol.KindDevLogin, "Invalid credentials."))
		return
	}

	conn.WritePacket(protocol.OK(protocol.KindDevLogin, protocol.Payload{
		"dev_id": devID,
	}))
}

// handleUpload publishes a game package: a new game when the request
// carries the new-game fields, a new version of an existing game when it
// carries game_id. The zip payload is unpacked under the storage directory
// and the executables it ships are made runnable.
func (h *DeveloperHandlers) handleUpload(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		DevID      *int    `json:"dev_id"`
		VersionStr *string `json:"version_str"`
		Filename   *string `json:"filename"`
		FileData   *string `json:"filedata_base64"`

		// Update path
		GameID *int `json:"game_id"`

		// New-game path
		GameName    *string `json:"game_name"`
		Description *string `json:"description"`
		GameType    *string `json:"game_type"`
		MaxPlayers  *int    `json:"max_players"`
	}
	json.Unmarshal(data, &req)

	if req.DevID == nil || req.VersionStr == nil || req.Filename == nil || req.FileData == nil {
		conn.WritePacket(protocol.Fail(protocol.KindDevUpload, "Missing shared required fields"))
		return
	}

	var gameID int
	if req.GameID != nil {
		gameID = *req.GameID
		if gameID <= 0 {
			conn.WritePacket(protocol.Fail(protocol.KindDevUpload, "Invalid game_id"))
			return
		}
		owned, err := h.store.IsGameOwnedBy(gameID, *req.DevID)
		if err != nil || !owned {
			conn.WritePacket(protocol.Fail(protocol.KindDevUpload, "You do not own this game"))
			return
		}
	} else {
		if req.GameName == nil || req.Description == nil || req.GameType == nil || req.MaxPlayers == nil {
			conn.WritePacket(protocol.Fail(protocol.KindDevUpload, "Missing new-game fields"))
			return
		}
		var err error
		gameID, err = h.store.CreateGame(*req.DevID, *req.GameName, *req.Description, *req.GameType, *req.MaxPlayers)
		if err != nil {
			conn.WritePacket(protocol.Fail(protocol.KindDevUpload, "Failed to create new game (duplicate name?)"))
			return
		}
	}

	rawZip, err := base64.StdEncoding.DecodeString(*req.FileData)
	if err != nil || len(rawZip) == 0 {
		conn.WritePacket(protocol.Fail(protocol.KindDevUpload, "Empty or invalid base64 ZIP"))
		return
	}

	versionDir := filepath.Join(h.storageDir, fmt.Sprintf("game_%d", gameID), *req.VersionStr)
	if err := os.MkdirAll(versionDir, 0755); err != nil {
		conn.WritePacket(protocol.Fail(protocol.KindDevUpload, "Failed to write ZIP file"))
		return
	}

	zipPath := filepath.Join(versionDir, filepath.Base(*req.Filename))
	if err := os.WriteFile(zipPath, rawZip, 0644); err != nil {
		conn.WritePacket(protocol.Fail(protocol.KindDevUpload, "Failed to write ZIP file"))
		return
	}

	if err := unpackArchive(zipPath, versionDir); err != nil {
		log.Error().Err(err).Str("zip", zipPath).Msg("failed to unpack game package")
		conn.WritePacket(protocol.Fail(protocol.KindDevUpload, "Failed to unpack ZIP file"))
		return
	}

	markExecutables(versionDir)

	if err := h.store.AddVersion(gameID, *req.VersionStr, versionDir); err != nil {
		log.Error().Err(err).Int("game_id", gameID).Msg("failed to record game version")
		conn.WritePacket(protocol.Fail(protocol.KindDevUpload, "Failed to record version"))
		return
	}

	log.Info().
		Int("game_id", gameID).
		Str("version", *req.VersionStr).
		Str("path", versionDir).
		Msg("game package published")

	if h.bus != nil {
		h.bus.Emit(ctx, events.Event{
			Type:   events.EventGamePublished,
			Source: "developer_handlers",
			Payload: events.GamePublishedPayload{
				GameID:      gameID,
				DeveloperID: *req.DevID,
				Version:     *req.VersionStr,
			},
		})
	}

	conn.WritePacket(protocol.OK(protocol.KindDevUpload, protocol.Payload{
		"game_id":     gameID,
		"version_str": *req.VersionStr,
	}))
}

// handleRemoveGame soft-deletes a game after an ownership check.
func (h *DeveloperHandlers) handleRemoveGame(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		DevID  *int `json:"dev_id"`
		GameID *int `json:"game_id"`
	}
	json.Unmarshal(data, &req)

	if req.DevID == nil || req.GameID == nil {
		conn.WritePacket(protocol.Fail(protocol.KindDevRemove, "Missing dev_id/game_id"))
		return
	}

	if err := h.store.DeactivateGame(*req.GameID, *req.DevID); err != nil {
		if errors.Is(err, catalog.ErrNotOwner) {
			conn.WritePacket(protocol.Fail(protocol.KindDevRemove, "Not your game."))
			return
		}
		conn.WritePacket(protocol.Fail(protocol.KindDevRemove, "Failed to deactivate game."))
		return
	}

	conn.WritePacket(protocol.OK(protocol.KindDevRemove, nil))
}

// handleListMyGames returns the developer's games with version history.
func (h *DeveloperHandlers) handleListMyGames(ctx context.Context, conn *network.Connection, data json.RawMessage) {
	var req struct {
		DevID *int `json:"dev_id"`
	}
	json.Unmarshal(data, &req)

	if req.DevID == nil {
		conn.WritePacket(protocol.Fail(protocol.KindDevMyGames, "Missing dev_id"))
		return
	}

	games, err := h.store.ListDeveloperGames(*req.DevID)
	if err != nil {
		log.Error().Err(err).Msg("failed to list developer games")
		conn.WritePacket(protocol.Fail(protocol.KindDevMyGames, "Failed to list games."))
		return
	}

	if games == nil {
		games = []catalog.DeveloperGame{}
	}
	conn.WritePacket(protocol.OK(protocol.KindDevMyGames, protocol.Payload{
		"games": games,
	}))
}

// unpackArchive extracts a zip file into destDir, rejecting entries that
// would escape it.
func unpackArchive(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("zip entry escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}

		src, err := f.Open()
		if err != nil {
			return err
		}
		dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// markExecutables makes every file under the package's server and client
// directories runnable, matching how packages are consumed after download.
func markExecutables(versionDir string) {
	for _, sub := range []string{"server", "client_cli", "client_gui"} {
		dir := filepath.Join(versionDir, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				os.Chmod(filepath.Join(dir, entry.Name()), 0755)
			}
		}
	}
}
