package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAccounts(t *testing.T) {
	store := newTestStore(t)

	devID, err := store.CreateDeveloper("ada", "secret")
	require.NoError(t, err)
	assert.Positive(t, devID)

	playerID, err := store.CreatePlayer("ada", "secret")
	require.NoError(t, err, "player and developer namespaces are independent")
	assert.Positive(t, playerID)

	// Duplicate usernames within a namespace are rejected.
	_, err = store.CreateDeveloper("ada", "other")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	_, err = store.CreatePlayer("ada", "other")
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	// Authentication round trip.
	gotID, err := store.AuthenticateDeveloper("ada", "secret")
	require.NoError(t, err)
	assert.Equal(t, devID, gotID)

	gotID, err = store.AuthenticatePlayer("ada", "secret")
	require.NoError(t, err)
	assert.Equal(t, playerID, gotID)

	_, err = store.AuthenticatePlayer("ada", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = store.AuthenticatePlayer("nobody", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGamesAndVersions(t *testing.T) {
	store := newTestStore(t)

	devID, err := store.CreateDeveloper("ada", "pw")
	require.NoError(t, err)

	gameID, err := store.CreateGame(devID, "Go Bang", "five in a row", "board", 2)
	require.NoError(t, err)

	owned, err := store.IsGameOwnedBy(gameID, devID)
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = store.IsGameOwnedBy(gameID, devID+1)
	require.NoError(t, err)
	assert.False(t, owned)

	// No versions published yet.
	_, err = store.LatestVersion(gameID)
	assert.ErrorIs(t, err, ErrGameNotFound)

	require.NoError(t, store.AddVersion(gameID, "1.0", "/store/game_1/1.0"))
	require.NoError(t, store.AddVersion(gameID, "1.1", "/store/game_1/1.1"))

	latest, err := store.LatestVersion(gameID)
	require.NoError(t, err)
	assert.Equal(t, "1.1", latest.Version)
	assert.Equal(t, "/store/game_1/1.1", latest.StoragePath)

	// Version for a nonexistent game is rejected.
	err = store.AddVersion(999, "1.0", "/nowhere")
	assert.ErrorIs(t, err, ErrGameNotFound)

	games, err := store.ListActiveGames()
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "Go Bang", games[0].Name)
	assert.Equal(t, "ada", games[0].Author)
	assert.Equal(t, "1.1", games[0].LatestVersion)

	got, err := store.GameByID(gameID)
	require.NoError(t, err)
	assert.Equal(t, games[0], got)
}

func TestCreateGameClampsMaxPlayers(t *testing.T) {
	store := newTestStore(t)
	devID, err := store.CreateDeveloper("ada", "pw")
	require.NoError(t, err)

	gameID, err := store.CreateGame(devID, "Solo?", "", "card", 1)
	require.NoError(t, err)
	require.NoError(t, store.AddVersion(gameID, "1.0", "/p"))

	got, err := store.GameByID(gameID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MaxPlayers)
}

func TestDeactivateGame(t *testing.T) {
	store := newTestStore(t)

	devID, err := store.CreateDeveloper("ada", "pw")
	require.NoError(t, err)
	otherID, err := store.CreateDeveloper("bob", "pw")
	require.NoError(t, err)

	gameID, err := store.CreateGame(devID, "Go Bang", "", "board", 2)
	require.NoError(t, err)

	// Only the owner may remove a game.
	err = store.DeactivateGame(gameID, otherID)
	assert.ErrorIs(t, err, ErrNotOwner)

	require.NoError(t, store.DeactivateGame(gameID, devID))

	games, err := store.ListActiveGames()
	require.NoError(t, err)
	assert.Empty(t, games)

	_, err = store.GameByID(gameID)
	assert.ErrorIs(t, err, ErrGameNotFound)

	// The developer still sees their deactivated game.
	mine, err := store.ListDeveloperGames(devID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.False(t, mine[0].Active)
}

func TestListDeveloperGamesIncludesVersionHistory(t *testing.T) {
	store := newTestStore(t)

	devID, err := store.CreateDeveloper("ada", "pw")
	require.NoError(t, err)

	gameID, err := store.CreateGame(devID, "Go Bang", "", "board", 2)
	require.NoError(t, err)
	require.NoError(t, store.AddVersion(gameID, "1.0", "/p/1.0"))
	require.NoError(t, store.AddVersion(gameID, "2.0", "/p/2.0"))

	games, err := store.ListDeveloperGames(devID)
	require.NoError(t, err)
	require.Len(t, games, 1)
	require.Len(t, games[0].Versions, 2)
	assert.Equal(t, "1.0", games[0].Versions[0].Version)
	assert.Equal(t, "2.0", games[0].Versions[1].Version)

	// A developer with no games gets an empty list, not an error.
	strangerID, err := store.CreateDeveloper("bob", "pw")
	require.NoError(t, err)
	games, err = store.ListDeveloperGames(strangerID)
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestReviews(t *testing.T) {
	store := newTestStore(t)

	devID, err := store.CreateDeveloper("ada", "pw")
	require.NoError(t, err)
	playerID, err := store.CreatePlayer("carl", "pw")
	require.NoError(t, err)
	gameID, err := store.CreateGame(devID, "Go Bang", "", "board", 2)
	require.NoError(t, err)

	require.NoError(t, store.AddReview(gameID, playerID, 5, "great"))
	require.NoError(t, store.AddReview(gameID, playerID, 3, "ok on replay"))

	reviews, err := store.GameReviews(gameID)
	require.NoError(t, err)
	require.Len(t, reviews, 2)

	// Newest first.
	assert.Equal(t, 3, reviews[0].Score)
	assert.Equal(t, "ok on replay", reviews[0].Comment)
	assert.Equal(t, 5, reviews[1].Score)

	reviews, err = store.GameReviews(999)
	require.NoError(t, err)
	assert.Empty(t, reviews)
}
