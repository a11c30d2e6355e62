package game

import (
	"time"

	"github.com/rs/zerolog/log"
)

// startRaceLoopLocked spawns the fixed-rate simulation driver. Δt comes from
// clock readings between fires, not the nominal period, so a late fire does
// not slow the cars down.
func (r *Room) startRaceLoopLocked() {
	stop := make(chan struct{})
	r.stopRace = stop
	interval := time.Second / time.Duration(r.opts.TickRate)
	ticker := r.clock.NewTicker(interval)
	last := r.clock.Now()
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				now := r.clock.Now()
				dt := now.Sub(last).Seconds()
				last = now
				if r.raceTick(dt) {
					return
				}
			}
		}
	}()
}

// raceTick runs one simulation step and broadcasts the result. It reports
// whether the race is over and the driver should stop. Like the countdown, a
// fire that lands after the phase moved on mutates nothing.
func (r *Room) raceTick(dt float64) bool {
	r.mu.Lock()
	if r.phase != PhaseRacing {
		r.mu.Unlock()
		return true
	}
	checkpoints, finishes := r.stepLocked(dt)
	done := r.allRacersFinishedLocked()
	if len(finishes) > 0 || done {
		r.rankFinishersLocked()
	}
	if done {
		r.finishRaceLocked()
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	for _, n := range checkpoints {
		r.emitCheckpoint(n)
	}
	r.emitState(snap)
	for _, n := range finishes {
		r.emitFinish(n)
	}
	return done
}

// stepLocked advances every ready, unfinished race participant by speed×Δt.
// This is the authoritative detection path for checkpoints and finishes;
// client reports of the same events are merely redundant triggers. At most
// one checkpoint advances per player per tick, and progress never moves
// backwards: speeds are non-negative and the finish clamp pins progress at 1.
func (r *Room) stepLocked(dt float64) (checkpoints []CheckpointNote, finishes []FinishNote) {
	for _, id := range r.order {
		p := r.players[id]
		if !p.racing || !p.Ready || p.FinishTime != nil {
			continue
		}
		p.Progress += p.Speed * dt
		if next := r.track.After(p.LastCheckpoint); next != nil && p.Progress >= next.Position {
			p.LastCheckpoint = next.ID
			p.Speed = r.randomSpeed()
			checkpoints = append(checkpoints, CheckpointNote{
				PlayerID:     p.ID,
				PlayerName:   p.Name,
				CheckpointID: next.ID,
			})
		}
		if p.Progress >= RaceDistance {
			p.Progress = RaceDistance
			if p.FinishTime == nil && r.raceStart != nil {
				d := r.clock.Now().Sub(*r.raceStart)
				p.FinishTime = &d
				log.Debug().Str("race_id", r.raceID).Str("player", p.Name).Dur("time", d).Msg("player finished")
				finishes = append(finishes, FinishNote{
					PlayerID:   p.ID,
					PlayerName: p.Name,
					FinishTime: d.Milliseconds(),
				})
			}
		}
	}
	return checkpoints, finishes
}
