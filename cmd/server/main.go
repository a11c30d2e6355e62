package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/racedash/racedash/internal/config"
	"github.com/racedash/racedash/internal/game"
	"github.com/racedash/racedash/internal/ws"
	staticserver "github.com/racedash/racedash/static"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"
)

const version = "v1.1.0"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`Racedash - Real-time multiplayer racing game

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Environment Variables:
  PORT                Port to listen on (default: 8080)
  READY_QUORUM        Ready players needed to start the countdown (default: 3)
  COUNTDOWN_SECONDS   Countdown length before the race (default: 3)
  MIN_SPEED           Slowest random speed, track fraction per second (default: 0.025)
  MAX_SPEED           Fastest random speed, track fraction per second (default: 0.045)
  TICK_RATE           Simulation ticks per second (default: 60)
  TRACK_FILE          YAML checkpoint layout (default: built-in track)

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000

Visit http://localhost:8080 after starting the server.
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("Racedash %s\n", version)
		return
	}

	_ = godotenv.Load()

	// Determine port
	port := *portFlag
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = "8080"
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zerologlog.Logger = zerologlog.Output(cw)

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		status := c.Writer.Status()
		dur := time.Since(start)
		zerologlog.Info().Str("path", path).Int("status", status).Dur("dur", dur).Msg("http")
	})

	// Healthcheck
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	// Config + track
	cfg := config.FromEnv()
	track := game.DefaultTrack()
	if cfg.TrackFile != "" {
		var err error
		track, err = game.LoadTrack(cfg.TrackFile)
		if err != nil {
			log.Fatal(err)
		}
		zerologlog.Info().Str("file", cfg.TrackFile).Int("checkpoints", len(track.Checkpoints)).Msg("loaded track")
	}

	// Race room + socket gateway
	room := game.NewRoom(track, game.Options{
		ReadyQuorum:   cfg.ReadyQuorum,
		CountdownFrom: cfg.CountdownSeconds,
		MinSpeed:      cfg.MinSpeed,
		MaxSpeed:      cfg.MaxSpeed,
		TickRate:      cfg.TickRate,
	}, clockwork.NewRealClock())
	sock := ws.New(room)
	io := sock.Mount(r)
	defer io.Close()
	room.SetListener(sock)

	// Minimal API for the current race state (used by reconnecting clients)
	r.GET("/api/race/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, room.Snapshot())
	})

	// Serve frontend (if embedded build is present) for all other routes
	r.NoRoute(func(c *gin.Context) {
		staticserver.Handler().ServeHTTP(c.Writer, c.Request)
	})

	log.Printf("listening on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal(err)
	}
}
