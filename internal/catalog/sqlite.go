package catalog

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the SQLite-backed catalog implementation.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the catalog database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && !strings.HasPrefix(dbPath, ":") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	// SQLite doesn't support concurrent writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Warn().Err(err).Msg("failed to enable WAL mode")
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		log.Warn().Err(err).Msg("failed to enable foreign keys")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog database: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("catalog database opened")
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS developers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS players (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS games (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			developer_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			game_type TEXT NOT NULL DEFAULT '',
			max_players INTEGER NOT NULL DEFAULT 2,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (developer_id) REFERENCES developers(id)
		);

		CREATE TABLE IF NOT EXISTS game_versions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			game_id INTEGER NOT NULL,
			version TEXT NOT NULL,
			storage_path TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (game_id) REFERENCES games(id)
		);

		CREATE TABLE IF NOT EXISTS reviews (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			game_id INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			score INTEGER NOT NULL,
			comment TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (game_id) REFERENCES games(id),
			FOREIGN KEY (player_id) REFERENCES players(id)
		);

		CREATE INDEX IF NOT EXISTS idx_games_active ON games(active);
		CREATE INDEX IF NOT EXISTS idx_versions_game ON game_versions(game_id);
		CREATE INDEX IF NOT EXISTS idx_reviews_game ON reviews(game_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	log.Debug().Msg("catalog schema migrated")
	return nil
}

// hashPassword hashes a plaintext password for storage and comparison.
func hashPassword(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// createAccount inserts a row into the players or developers table.
func (s *SQLiteStore) createAccount(table, username, password string) (int, error) {
	res, err := s.db.Exec(
		fmt.Sprintf("INSERT INTO %s (username, password_hash) VALUES (?, ?)", table),
		username, hashPassword(password))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, ErrDuplicateUsername
		}
		return 0, fmt.Errorf("failed to create account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new account id: %w", err)
	}
	return int(id), nil
}

// authenticate checks credentials against the players or developers table.
func (s *SQLiteStore) authenticate(table, username, password string) (int, error) {
	var id int
	err := s.db.QueryRow(
		fmt.Sprintf("SELECT id FROM %s WHERE username = ? AND password_hash = ?", table),
		username, hashPassword(password)).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrInvalidCredentials
	}
	if err != nil {
		return 0, fmt.Errorf("authentication query failed: %w", err)
	}
	return id, nil
}

// CreatePlayer registers a new player account.
func (s *SQLiteStore) CreatePlayer(username, password string) (int, error) {
	return s.createAccount("players", username, password)
}

// AuthenticatePlayer verifies player credentials and returns the player id.
func (s *SQLiteStore) AuthenticatePlayer(username, password string) (int, error) {
	return s.authenticate("players", username, password)
}

// CreateDeveloper registers a new developer account.
func (s *SQLiteStore) CreateDeveloper(username, password string) (int, error) {
	return s.createAccount("developers", username, password)
}

// AuthenticateDeveloper verifies developer credentials.
func (s *SQLiteStore) AuthenticateDeveloper(username, password string) (int, error) {
	return s.authenticate("developers", username, password)
}

// CreateGame inserts a new game record owned by the developer.
func (s *SQLiteStore) CreateGame(developerID int, name, description, gameType string, maxPlayers int) (int, error) {
	if maxPlayers < 2 {
		maxPlayers = 2
	}
	res, err := s.db.Exec(
		`INSERT INTO games (developer_id, name, description, game_type, max_players)
		 VALUES (?, ?, ?, ?, ?)`,
		developerID, name, description, gameType, maxPlayers)
	if err != nil {
		return 0, fmt.Errorf("failed to create game: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new game id: %w", err)
	}
	return int(id), nil
}

// AddVersion records a new published version for a game.
func (s *SQLiteStore) AddVersion(gameID int, version, storagePath string) error {
	var exists int
	if err := s.db.QueryRow("SELECT COUNT(1) FROM games WHERE id = ?", gameID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check game: %w", err)
	}
	if exists == 0 {
		return ErrGameNotFound
	}

	_, err := s.db.Exec(
		"INSERT INTO game_versions (game_id, version, storage_path) VALUES (?, ?, ?)",
		gameID, version, storagePath)
	if err != nil {
		return fmt.Errorf("failed to add game version: %w", err)
	}
	return nil
}

// DeactivateGame soft-deletes a game after verifying ownership.
func (s *SQLiteStore) DeactivateGame(gameID, developerID int) error {
	owned, err := s.IsGameOwnedBy(gameID, developerID)
	if err != nil {
		return err
	}
	if !owned {
		return ErrNotOwner
	}

	_, err = s.db.Exec("UPDATE games SET active = 0 WHERE id = ?", gameID)
	if err != nil {
		return fmt.Errorf("failed to deactivate game: %w", err)
	}
	return nil
}

// IsGameOwnedBy reports whether the developer owns the game.
func (s *SQLiteStore) IsGameOwnedBy(gameID, developerID int) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(1) FROM games WHERE id = ? AND developer_id = ?",
		gameID, developerID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("ownership query failed: %w", err)
	}
	return count > 0, nil
}

// ListActiveGames returns every active game with its author and latest
// version string, for the player store list.
func (s *SQLiteStore) ListActiveGames() ([]Game, error) {
	rows, err := s.db.Query(`
		SELECT g.id, g.name, d.username, g.description, g.game_type, g.max_players,
		       COALESCE((SELECT v.version FROM game_versions v
		                 WHERE v.game_id = g.id ORDER BY v.id DESC LIMIT 1), '')
		FROM games g
		JOIN developers d ON d.id = g.developer_id
		WHERE g.active = 1
		ORDER BY g.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.ID, &g.Name, &g.Author, &g.Description,
			&g.GameType, &g.MaxPlayers, &g.LatestVersion); err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// ListDeveloperGames returns the developer's games, including inactive
// ones, with full version history.
func (s *SQLiteStore) ListDeveloperGames(developerID int) ([]DeveloperGame, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, game_type, max_players, active
		FROM games WHERE developer_id = ? ORDER BY id`, developerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list developer games: %w", err)
	}
	defer rows.Close()

	var games []DeveloperGame
	for rows.Next() {
		var g DeveloperGame
		var active int
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.GameType,
			&g.MaxPlayers, &active); err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}
		g.Active = active == 1
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range games {
		versions, err := s.gameVersions(games[i].ID)
		if err != nil {
			return nil, err
		}
		games[i].Versions = versions
	}
	return games, nil
}

// gameVersions returns the version history of one game, oldest first.
func (s *SQLiteStore) gameVersions(gameID int) ([]Version, error) {
	rows, err := s.db.Query(`
		SELECT version, storage_path, created_at
		FROM game_versions WHERE game_id = ? ORDER BY id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.Version, &v.StoragePath, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// GameByID returns one active game.
func (s *SQLiteStore) GameByID(gameID int) (Game, error) {
	var g Game
	err := s.db.QueryRow(`
		SELECT g.id, g.name, d.username, g.description, g.game_type, g.max_players,
		       COALESCE((SELECT v.version FROM game_versions v
		                 WHERE v.game_id = g.id ORDER BY v.id DESC LIMIT 1), '')
		FROM games g
		JOIN developers d ON d.id = g.developer_id
		WHERE g.id = ? AND g.active = 1`, gameID).
		Scan(&g.ID, &g.Name, &g.Author, &g.Description, &g.GameType,
			&g.MaxPlayers, &g.LatestVersion)
	if err == sql.ErrNoRows {
		return Game{}, ErrGameNotFound
	}
	if err != nil {
		return Game{}, fmt.Errorf("game query failed: %w", err)
	}
	return g, nil
}

// LatestVersion returns the most recently published version of a game.
func (s *SQLiteStore) LatestVersion(gameID int) (Version, error) {
	var v Version
	err := s.db.QueryRow(`
		SELECT version, storage_path, created_at
		FROM game_versions WHERE game_id = ? ORDER BY id DESC LIMIT 1`, gameID).
		Scan(&v.Version, &v.StoragePath, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return Version{}, ErrGameNotFound
	}
	if err != nil {
		return Version{}, fmt.Errorf("version query failed: %w", err)
	}
	return v, nil
}

// AddReview inserts a player review.
func (s *SQLiteStore) AddReview(gameID, playerID, score int, comment string) error {
	_, err := s.db.Exec(
		"INSERT INTO reviews (game_id, player_id, score, comment) VALUES (?, ?, ?, ?)",
		gameID, playerID, score, comment)
	if err != nil {
		return fmt.Errorf("failed to add review: %w", err)
	}
	return nil
}

// GameReviews returns every review of a game, newest first.
func (s *SQLiteStore) GameReviews(gameID int) ([]Review, error) {
	rows, err := s.db.Query(`
		SELECT player_id, score, comment
		FROM reviews WHERE game_id = ? ORDER BY id DESC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.PlayerID, &r.Score, &r.Comment); err != nil {
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
