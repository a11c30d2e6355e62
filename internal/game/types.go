package game

import (
	"time"
)

type Phase string

const (
	PhaseLobby     Phase = "lobby"
	PhaseCountdown Phase = "countdown"
	PhaseRacing    Phase = "racing"
	PhaseResults   Phase = "results"
)

// Options are the race tunables. Zero values fall back to the defaults the
// frontend was built against.
type Options struct {
	ReadyQuorum   int     // ready players needed to start the countdown
	CountdownFrom int     // seconds counted down before the race
	MinSpeed      float64 // track fraction per second
	MaxSpeed      float64
	TickRate      int // simulation ticks per second
}

const (
	DefaultReadyQuorum   = 3
	DefaultCountdownFrom = 3
	DefaultMinSpeed      = 0.025
	DefaultMaxSpeed      = 0.045
	DefaultTickRate      = 60
)

// RaceDistance is the normalized total race length: a single lap.
const RaceDistance = 1.0

func (o Options) withDefaults() Options {
	if o.ReadyQuorum <= 0 {
		o.ReadyQuorum = DefaultReadyQuorum
	}
	if o.CountdownFrom <= 0 {
		o.CountdownFrom = DefaultCountdownFrom
	}
	if o.MinSpeed <= 0 {
		o.MinSpeed = DefaultMinSpeed
	}
	if o.MaxSpeed <= 0 {
		o.MaxSpeed = DefaultMaxSpeed
	}
	if o.TickRate <= 0 {
		o.TickRate = DefaultTickRate
	}
	return o
}

// Player is the server-authoritative session record for one racer. Speed and
// progress share the [0,1] track scale, so no unit conversion happens between
// the simulation and checkpoint detection.
type Player struct {
	ID             string
	Name           string
	Color          string
	Speed          float64
	Progress       float64
	Lap            int
	FinishTime     *time.Duration // nil until the player crosses the line
	Rank           int            // 0 = unranked
	LastCheckpoint int            // 0 = none passed yet
	Ready          bool

	joinSeq int  // rank tie-break: earlier joiner wins
	racing  bool // in the running race; stamped at the Countdown→Racing transition
}

// PlayerState is the lightweight broadcast form of a Player. Field names match
// what the frontend expects.
type PlayerState struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Color                string  `json:"color"`
	Speed                float64 `json:"speed"`
	Position             float64 `json:"position"`
	Lap                  int     `json:"lap"`
	FinishTime           *int64  `json:"finishTime"` // milliseconds, null until finish
	Rank                 int     `json:"rank,omitempty"`
	LastCheckpointPassed int     `json:"lastCheckpointPassed"`
	IsReady              bool    `json:"isReady"`
}

func (p *Player) state() PlayerState {
	ps := PlayerState{
		ID:                   p.ID,
		Name:                 p.Name,
		Color:                p.Color,
		Speed:                p.Speed,
		Position:             p.Progress,
		Lap:                  p.Lap,
		Rank:                 p.Rank,
		LastCheckpointPassed: p.LastCheckpoint,
		IsReady:              p.Ready,
	}
	if p.FinishTime != nil {
		ms := p.FinishTime.Milliseconds()
		ps.FinishTime = &ms
	}
	return ps
}

// Snapshot is an immutable copy of the room, built under the room lock and
// broadcast after every mutation and every tick.
type Snapshot struct {
	Phase             Phase                  `json:"phase"`
	Players           map[string]PlayerState `json:"players"`
	ReadyPlayersCount int                    `json:"readyPlayersCount"`
	Countdown         *int                   `json:"countdown"`
	RaceStartTime     *int64                 `json:"raceStartTime"` // unix milliseconds
}

// CheckpointNote is the advisory notification emitted when a player crosses a
// checkpoint, whether tick-detected or client-reported.
type CheckpointNote struct {
	PlayerID     string `json:"playerId"`
	PlayerName   string `json:"playerName"`
	CheckpointID int    `json:"checkpointId"`
}

// FinishNote is the advisory notification emitted when a player finishes.
type FinishNote struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	FinishTime int64  `json:"finishTime"` // milliseconds since race start
}

// Listener receives room broadcasts. The room invokes it with its lock
// already released, so implementations may call back into the room.
type Listener interface {
	RoomState(Snapshot)
	CheckpointCrossed(CheckpointNote)
	PlayerFinished(FinishNote)
	RoomReset()
}
