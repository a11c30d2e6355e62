package game

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	ErrPlayerNotFound    = errors.New("player not found")
	ErrAlreadyJoined     = errors.New("player already joined")
	ErrInvalidPhase      = errors.New("invalid phase for action")
	ErrAlreadyFinished   = errors.New("player already finished")
	ErrUnknownCheckpoint = errors.New("unknown checkpoint")
	ErrStaleCheckpoint   = errors.New("checkpoint already passed")
	ErrNotInRace         = errors.New("player not in the running race")
)

// Room is the authoritative state for the single shared race. One mutex
// guards the whole aggregate: several invariants (readyCount vs. ready flags,
// phase vs. finish completeness) span multiple fields, so per-field locking
// would not be safe. Broadcasts always happen after the mutex is released.
type Room struct {
	mu sync.Mutex

	opts  Options
	track Track
	clock clockwork.Clock

	phase      Phase
	players    map[string]*Player
	order      []string // join order, used for stable rank tie-breaks
	readyCount int
	countdown  *int
	raceStart  *time.Time
	raceID     string // correlation id for one race run, minted at start

	joinSeq int

	// at most one of each driver is live; closed on restart, nilled when a
	// driver stops itself
	stopCountdown chan struct{}
	stopRace      chan struct{}

	listener Listener
}

func NewRoom(track Track, opts Options, clock clockwork.Clock) *Room {
	return &Room{
		opts:    opts.withDefaults(),
		track:   track,
		clock:   clock,
		phase:   PhaseLobby,
		players: make(map[string]*Player),
	}
}

// SetListener installs the broadcast sink. Safe to call at any time; events
// handled before a listener is set are simply not broadcast.
func (r *Room) SetListener(l Listener) {
	r.mu.Lock()
	r.listener = l
	r.mu.Unlock()
}

// Join creates a session for the given connection id. Joining outside the
// lobby is allowed (the newcomer spectates until the next restart), but a
// duplicate id is rejected.
func (r *Room) Join(id, name, color string, ready bool) error {
	r.mu.Lock()
	if _, ok := r.players[id]; ok {
		r.mu.Unlock()
		return ErrAlreadyJoined
	}
	r.joinSeq++
	p := &Player{
		ID:      id,
		Name:    name,
		Color:   color,
		Lap:     1,
		Ready:   ready,
		joinSeq: r.joinSeq,
	}
	r.players[id] = p
	r.order = append(r.order, id)
	if ready {
		r.readyCount++
		r.maybeStartCountdownLocked()
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.emitState(snap)
	return nil
}

// SetReady flips a player's ready flag. readyCount is adjusted only on an
// actual change, so repeated toggles to the same value are idempotent.
func (r *Room) SetReady(id string, ready bool) error {
	r.mu.Lock()
	p, ok := r.players[id]
	if !ok {
		r.mu.Unlock()
		return ErrPlayerNotFound
	}
	if p.Ready != ready {
		p.Ready = ready
		if ready {
			r.readyCount++
		} else {
			r.readyCount--
		}
	}
	r.maybeStartCountdownLocked()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.emitState(snap)
	return nil
}

// CheckpointPassed applies a client-reported checkpoint crossing. The race
// loop detects crossings on its own, so this is a redundant trigger; the
// monotonic id guard makes replayed or out-of-order reports no-ops.
func (r *Room) CheckpointPassed(id string, checkpointID int) error {
	r.mu.Lock()
	p, ok := r.players[id]
	if !ok {
		r.mu.Unlock()
		return ErrPlayerNotFound
	}
	if r.phase != PhaseRacing {
		r.mu.Unlock()
		return ErrInvalidPhase
	}
	if !p.racing {
		r.mu.Unlock()
		return ErrNotInRace
	}
	if r.track.ByID(checkpointID) == nil {
		r.mu.Unlock()
		return ErrUnknownCheckpoint
	}
	if checkpointID <= p.LastCheckpoint {
		r.mu.Unlock()
		return ErrStaleCheckpoint
	}
	p.LastCheckpoint = checkpointID
	p.Speed = r.randomSpeed()
	note := CheckpointNote{PlayerID: p.ID, PlayerName: p.Name, CheckpointID: checkpointID}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.emitCheckpoint(note)
	r.emitState(snap)
	return nil
}

// ReportFinish applies a client-reported finish. First write wins: if the
// race loop (or an earlier report) already set the finish time, this is a
// no-op.
func (r *Room) ReportFinish(id string) error {
	r.mu.Lock()
	p, ok := r.players[id]
	if !ok {
		r.mu.Unlock()
		return ErrPlayerNotFound
	}
	if r.phase != PhaseRacing || r.raceStart == nil {
		r.mu.Unlock()
		return ErrInvalidPhase
	}
	if !p.racing {
		r.mu.Unlock()
		return ErrNotInRace
	}
	if p.FinishTime != nil {
		r.mu.Unlock()
		return ErrAlreadyFinished
	}
	d := r.clock.Now().Sub(*r.raceStart)
	p.FinishTime = &d
	p.Progress = RaceDistance
	r.rankFinishersLocked()
	if r.allRacersFinishedLocked() {
		r.finishRaceLocked()
	}
	note := FinishNote{PlayerID: p.ID, PlayerName: p.Name, FinishTime: d.Milliseconds()}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.emitState(snap)
	r.emitFinish(note)
	return nil
}

// Restart returns the room to the lobby. Race fields are zeroed, identity and
// readiness survive, and readyCount is recounted from the live flags. If the
// surviving ready players still meet quorum, the countdown re-arms at once.
func (r *Room) Restart() {
	r.mu.Lock()
	r.stopDriversLocked()
	for _, p := range r.players {
		p.Speed = 0
		p.Progress = 0
		p.Lap = 1
		p.FinishTime = nil
		p.Rank = 0
		p.LastCheckpoint = 0
		p.racing = false
	}
	r.phase = PhaseLobby
	r.countdown = nil
	r.raceStart = nil
	r.raceID = ""
	r.readyCount = 0
	for _, p := range r.players {
		if p.Ready {
			r.readyCount++
		}
	}
	log.Info().Int("players", len(r.players)).Msg("race restarted")
	r.maybeStartCountdownLocked()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.emitReset()
	r.emitState(snap)
}

// Disconnect removes a session. Mid-race the departed player's last state is
// simply dropped; the next tick or finish report notices if everyone left in
// the race has finished.
func (r *Room) Disconnect(id string) error {
	r.mu.Lock()
	p, ok := r.players[id]
	if !ok {
		r.mu.Unlock()
		return ErrPlayerNotFound
	}
	if p.Ready {
		r.readyCount--
	}
	delete(r.players, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.emitState(snap)
	return nil
}

// Snapshot returns the current room state, for the REST endpoint.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) maybeStartCountdownLocked() {
	if r.phase != PhaseLobby || r.readyCount < r.opts.ReadyQuorum {
		return
	}
	r.phase = PhaseCountdown
	cd := r.opts.CountdownFrom
	r.countdown = &cd
	log.Info().Int("ready", r.readyCount).Int("from", cd).Msg("countdown started")
	r.startCountdownLocked()
}

func (r *Room) rankFinishersLocked() {
	finished := make([]*Player, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		if p.Ready && p.FinishTime != nil {
			finished = append(finished, p)
		}
	}
	sort.SliceStable(finished, func(i, j int) bool {
		return *finished[i].FinishTime < *finished[j].FinishTime
	})
	for i, p := range finished {
		p.Rank = i + 1
	}
}

// allRacersFinishedLocked reports whether every ready participant of the
// running race has a finish time. Sessions that joined after the race started
// never carry the racing flag and do not hold the race open.
func (r *Room) allRacersFinishedLocked() bool {
	for _, p := range r.players {
		if p.racing && p.Ready && p.FinishTime == nil {
			return false
		}
	}
	return true
}

func (r *Room) finishRaceLocked() {
	r.phase = PhaseResults
	if r.stopRace != nil {
		close(r.stopRace)
		r.stopRace = nil
	}
	log.Info().Str("race_id", r.raceID).Msg("race finished")
}

func (r *Room) stopDriversLocked() {
	if r.stopCountdown != nil {
		close(r.stopCountdown)
		r.stopCountdown = nil
	}
	if r.stopRace != nil {
		close(r.stopRace)
		r.stopRace = nil
	}
}

func (r *Room) randomSpeed() float64 {
	return r.opts.MinSpeed + rand.Float64()*(r.opts.MaxSpeed-r.opts.MinSpeed)
}

func (r *Room) snapshotLocked() Snapshot {
	players := make(map[string]PlayerState, len(r.players))
	for id, p := range r.players {
		players[id] = p.state()
	}
	s := Snapshot{
		Phase:             r.phase,
		Players:           players,
		ReadyPlayersCount: r.readyCount,
	}
	if r.countdown != nil {
		cd := *r.countdown
		s.Countdown = &cd
	}
	if r.raceStart != nil {
		ms := r.raceStart.UnixMilli()
		s.RaceStartTime = &ms
	}
	return s
}

// sink reads the listener under the mutex. The emit helpers run after their
// caller has unlocked, so they must not touch r.listener directly.
func (r *Room) sink() Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listener
}

func (r *Room) emitState(s Snapshot) {
	if l := r.sink(); l != nil {
		l.RoomState(s)
	}
}

func (r *Room) emitCheckpoint(n CheckpointNote) {
	if l := r.sink(); l != nil {
		l.CheckpointCrossed(n)
	}
}

func (r *Room) emitFinish(n FinishNote) {
	if l := r.sink(); l != nil {
		l.PlayerFinished(n)
	}
}

func (r *Room) emitReset() {
	if l := r.sink(); l != nil {
		l.RoomReset()
	}
}
