// Package cli implements the interactive operator console for Parlor:
// live session, room, and catalog status plus shutdown control.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/parlor-project/parlor/internal/catalog"
	"github.com/parlor-project/parlor/internal/events"
	"github.com/parlor-project/parlor/internal/lobby"
	"github.com/parlor-project/parlor/internal/session"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	eventBus *events.EventBus
	sessions *session.Registry
	rooms    *lobby.Registry
	store    catalog.Store
}

// NewCLI creates a new CLI handler.
func NewCLI(eventBus *events.EventBus, sessions *session.Registry, rooms *lobby.Registry, store catalog.Store) *CLI {
	return &CLI{
		eventBus: eventBus,
		sessions: sessions,
		rooms:    rooms,
		store:    store,
	}
}

// Start begins the interactive CLI loop. It returns when the context is
// cancelled or stdin closes.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nParlor console ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("parlor> ")

		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				log.Debug().Msg("CLI: stdin closed")
				return
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			parts := strings.Fields(line)
			cmd := strings.ToLower(parts[0])
			args := parts[1:]

			if err := c.execute(ctx, cmd, args); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "rooms", "r":
		c.printRooms(args)
	case "sessions":
		c.printSessions()
	case "processes", "procs", "p":
		c.printProcesses()
	case "games", "g":
		return c.printGames()
	case "quit", "exit", "q":
		fmt.Println("Shutting down Parlor...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    Parlor Console Commands                   ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  status             Show service summary                     ║")
	fmt.Println("║  rooms [id]         Show all rooms or one room in detail     ║")
	fmt.Println("║  sessions           Show players currently online            ║")
	fmt.Println("║  processes          Show spawned game-server processes       ║")
	fmt.Println("║  games              Show the published game catalog          ║")
	fmt.Println("║  quit               Shutdown Parlor                          ║")
	fmt.Println("║  help               Show this help message                   ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printStatus displays the service summary.
func (c *CLI) printStatus() {
	total, active := c.rooms.Counts()
	fmt.Printf("\n  Sessions online:  %d\n", c.sessions.Count())
	fmt.Printf("  Rooms:            %d (%d active)\n", total, active)
	fmt.Printf("  Game processes:   %d\n", len(c.rooms.ProcessStats()))
	fmt.Println()
}

// printRooms displays room state in a formatted table, or one room in
// detail when an id is given.
func (c *CLI) printRooms(args []string) {
	if len(args) > 0 {
		roomID, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Println("Invalid room id")
			return
		}
		snap, ok := c.rooms.Get(roomID)
		if !ok {
			fmt.Printf("Room %d not found\n", roomID)
			return
		}
		c.printRoomDetail(snap)
		return
	}

	snaps := c.rooms.Snapshots()
	if len(snaps) == 0 {
		fmt.Println("No rooms")
		return
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Room", "Game", "Host", "Players", "State", "Port", "PID"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, snap := range snaps {
		port, pid := "-", "-"
		if snap.State == lobby.StateActive.String() {
			port = strconv.Itoa(snap.Port)
			pid = strconv.Itoa(snap.PID)
		}
		tw.Append([]string{
			strconv.Itoa(snap.RoomID),
			strconv.Itoa(snap.GameID),
			strconv.Itoa(snap.HostID),
			fmt.Sprintf("%d/%d", len(snap.Players), snap.MaxPlayers),
			snap.State,
			port,
			pid,
		})
	}

	tw.Render()
	fmt.Println()
}

// printRoomDetail prints detailed info for a single room.
func (c *CLI) printRoomDetail(snap lobby.Snapshot) {
	fmt.Printf("\n  Room ID:     %d\n", snap.RoomID)
	fmt.Printf("  Game ID:     %d\n", snap.GameID)
	fmt.Printf("  Host ID:     %d\n", snap.HostID)
	fmt.Printf("  State:       %s\n", snap.State)
	fmt.Printf("  Capacity:    %d/%d\n", len(snap.Players), snap.MaxPlayers)
	if snap.State == lobby.StateActive.String() {
		fmt.Printf("  Server Port: %d\n", snap.Port)
		fmt.Printf("  Server PID:  %d\n", snap.PID)
	}
	if len(snap.Players) > 0 {
		fmt.Println("  Players:")
		for _, playerID := range snap.Players {
			fmt.Printf("    - %d\n", playerID)
		}
	}
	fmt.Println()
}

// printSessions lists online players.
func (c *CLI) printSessions() {
	players := c.sessions.OnlinePlayers()
	if len(players) == 0 {
		fmt.Println("No players online")
		return
	}
	fmt.Printf("\n  %d player(s) online:\n", len(players))
	for _, playerID := range players {
		fmt.Printf("    - %d\n", playerID)
	}
	fmt.Println()
}

// printProcesses lists spawned game-server processes with resource usage.
func (c *CLI) printProcesses() {
	stats := c.rooms.ProcessStats()
	if len(stats) == 0 {
		fmt.Println("No game-server processes")
		return
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Room", "PID", "Port", "Running", "Uptime", "CPU %", "Mem MB"})
	tw.SetBorder(true)

	for _, stat := range stats {
		tw.Append([]string{
			strconv.Itoa(stat.RoomID),
			strconv.Itoa(stat.PID),
			strconv.Itoa(stat.Port),
			strconv.FormatBool(stat.Running),
			(time.Duration(stat.UptimeSec) * time.Second).String(),
			fmt.Sprintf("%.1f", stat.CPUPercent),
			fmt.Sprintf("%.1f", stat.MemoryMB),
		})
	}

	tw.Render()
	fmt.Println()
}

// printGames lists the published catalog.
func (c *CLI) printGames() error {
	games, err := c.store.ListActiveGames()
	if err != nil {
		return fmt.Errorf("failed to list games: %w", err)
	}
	if len(games) == 0 {
		fmt.Println("No published games")
		return nil
	}

	fmt.Println()
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"ID", "Name", "Author", "Type", "Max Players", "Latest"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, game := range games {
		tw.Append([]string{
			strconv.Itoa(game.ID),
			game.Name,
			game.Author,
			game.GameType,
			strconv.Itoa(game.MaxPlayers),
			game.LatestVersion,
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}
