package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/racedash/racedash/internal/game"
	"github.com/rs/zerolog/log"
)

// raceRoom is the single socket.io room every connection joins; the design
// covers one shared race.
const raceRoom = "race"

// Server is the event gateway between socket.io connections and the race
// room. Inbound intents are forwarded to the room; room broadcasts come back
// through the game.Listener methods. Errors from the room are protocol
// violations (late, replayed, or malformed client events) and are only
// logged, never fatal.
type Server struct {
	room *game.Room
	io   *socketio.Server
}

func New(room *game.Room) *Server {
	return &Server{room: room}
}

// Mount attaches the Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)
	srv.io = io

	io.OnConnect("/", func(s socketio.Conn) error {
		s.Join(raceRoom)
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	io.OnEvent("/", "player_join", func(s socketio.Conn, payload struct {
		Name    string `json:"name"`
		Color   string `json:"color"`
		IsReady bool   `json:"isReady"`
	}) {
		if err := srv.room.Join(s.ID(), payload.Name, payload.Color, payload.IsReady); err != nil {
			log.Debug().Str("sid", s.ID()).Err(err).Msg("player_join ignored")
			return
		}
		log.Info().Str("sid", s.ID()).Str("name", payload.Name).Bool("ready", payload.IsReady).Msg("player_join")
	})

	io.OnEvent("/", "player_ready", func(s socketio.Conn, ready bool) {
		if err := srv.room.SetReady(s.ID(), ready); err != nil {
			log.Debug().Str("sid", s.ID()).Err(err).Msg("player_ready ignored")
			return
		}
		log.Info().Str("sid", s.ID()).Bool("ready", ready).Msg("player_ready")
	})

	io.OnEvent("/", "checkpoint_passed", func(s socketio.Conn, checkpointID int) {
		if err := srv.room.CheckpointPassed(s.ID(), checkpointID); err != nil {
			log.Debug().Str("sid", s.ID()).Int("checkpoint", checkpointID).Err(err).Msg("checkpoint_passed ignored")
		}
	})

	io.OnEvent("/", "player_finish", func(s socketio.Conn) {
		if err := srv.room.ReportFinish(s.ID()); err != nil {
			log.Debug().Str("sid", s.ID()).Err(err).Msg("player_finish ignored")
		}
	})

	io.OnEvent("/", "restart_game", func(s socketio.Conn) {
		log.Info().Str("sid", s.ID()).Msg("restart_game")
		srv.room.Restart()
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})

	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		if err := srv.room.Disconnect(s.ID()); err != nil {
			log.Debug().Str("sid", s.ID()).Err(err).Msg("disconnect for unknown player")
		}
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go io.Serve()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// Basic CORS preflight for Socket.IO POST
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

// The methods below implement game.Listener; the room calls them with its
// lock released, so broadcasting here never blocks a mutation.

func (srv *Server) RoomState(s game.Snapshot) {
	srv.io.BroadcastToRoom("/", raceRoom, "game_state_update", s)
}

func (srv *Server) CheckpointCrossed(n game.CheckpointNote) {
	srv.io.BroadcastToRoom("/", raceRoom, "player_checkpoint", n)
}

func (srv *Server) PlayerFinished(n game.FinishNote) {
	srv.io.BroadcastToRoom("/", raceRoom, "player_finished", n)
}

func (srv *Server) RoomReset() {
	srv.io.BroadcastToRoom("/", raceRoom, "game_reset")
}
