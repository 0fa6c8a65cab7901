// Package catalog implements the account/game/version store consumed by
// the lobby and developer request handlers. The Store interface is the
// collaborator boundary; SQLiteStore is the shipped implementation.
package catalog

import (
	"errors"
	"time"
)

// Store errors surfaced to handlers as validation failures.
var (
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrGameNotFound       = errors.New("game not found")
	ErrNotOwner           = errors.New("game is not owned by this developer")
)

// Game is an active catalog entry as shown to players.
type Game struct {
	ID            int    `json:"game_id"`
	Name          string `json:"name"`
	Author        string `json:"author"`
	Description   string `json:"description"`
	GameType      string `json:"game_type"`
	MaxPlayers    int    `json:"max_players"`
	LatestVersion string `json:"latest_version"`
}

// Version is one published version of a game.
type Version struct {
	Version     string    `json:"version"`
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// DeveloperGame is a game record as shown in the developer console,
// including inactive games and full version history.
type DeveloperGame struct {
	ID          int       `json:"game_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	GameType    string    `json:"game_type"`
	MaxPlayers  int       `json:"max_players"`
	Active      bool      `json:"active"`
	Versions    []Version `json:"versions"`
}

// Review is one player review of a game.
type Review struct {
	PlayerID int    `json:"player_id"`
	Score    int    `json:"score"`
	Comment  string `json:"comment"`
}

// Store is the account/catalog collaborator interface. Implementations must
// be safe for concurrent use by every connection worker.
type Store interface {
	// Player accounts. Player and developer ids live in distinct namespaces.
	CreatePlayer(username, password string) (int, error)
	AuthenticatePlayer(username, password string) (int, error)

	// Developer accounts.
	CreateDeveloper(username, password string) (int, error)
	AuthenticateDeveloper(username, password string) (int, error)

	// Game management.
	CreateGame(developerID int, name, description, gameType string, maxPlayers int) (int, error)
	AddVersion(gameID int, version, storagePath string) error
	DeactivateGame(gameID, developerID int) error
	IsGameOwnedBy(gameID, developerID int) (bool, error)

	// Catalog queries.
	ListActiveGames() ([]Game, error)
	ListDeveloperGames(developerID int) ([]DeveloperGame, error)
	GameByID(gameID int) (Game, error)
	LatestVersion(gameID int) (Version, error)

	// Reviews.
	AddReview(gameID, playerID, score int, comment string) error
	GameReviews(gameID int) ([]Review, error)
}
