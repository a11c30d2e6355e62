package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// startCountdownLocked spawns the 1 Hz countdown driver. Only the
// Lobby→Countdown transition calls it, so at most one driver is ever live.
func (r *Room) startCountdownLocked() {
	stop := make(chan struct{})
	r.stopCountdown = stop
	ticker := r.clock.NewTicker(time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				if r.countdownTick() {
					return
				}
			}
		}
	}()
}

// countdownTick decrements the shared counter and reports whether the driver
// should stop. A fire that lands after the phase has moved on (restart raced
// the timer) mutates nothing.
func (r *Room) countdownTick() bool {
	r.mu.Lock()
	if r.phase != PhaseCountdown || r.countdown == nil {
		r.mu.Unlock()
		return true
	}
	*r.countdown--
	if *r.countdown > 0 {
		snap := r.snapshotLocked()
		r.mu.Unlock()
		r.emitState(snap)
		return false
	}
	r.beginRaceLocked()
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.emitState(snap)
	return true
}

// beginRaceLocked is the Countdown→Racing transition: stamp the start
// instant, mark every ready player as a participant and hand them a starting
// speed, start the simulation. Whoever joins afterwards spectates; they are
// not pulled into the running race.
func (r *Room) beginRaceLocked() {
	r.stopCountdown = nil
	r.phase = PhaseRacing
	now := r.clock.Now()
	r.raceStart = &now
	r.raceID = uuid.NewString()
	for _, p := range r.players {
		if p.Ready {
			p.racing = true
			p.Speed = r.randomSpeed()
		}
	}
	log.Info().Str("race_id", r.raceID).Int("racers", r.readyCount).Msg("race started")
	r.startRaceLoopLocked()
}
