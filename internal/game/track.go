package game

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Checkpoint marks a position along the normalized race distance at which a
// crossing player's speed is re-randomized. IDs ascend in the same order as
// positions; the race loop relies on that ordering.
type Checkpoint struct {
	ID       int     `json:"id" yaml:"id"`
	Position float64 `json:"position" yaml:"position"` // fraction of track, (0,1)
}

type Track struct {
	Checkpoints []Checkpoint `yaml:"checkpoints"`
}

var ErrBadTrack = errors.New("invalid track layout")

// DefaultTrack is the single-lap circuit the bundled frontend renders.
func DefaultTrack() Track {
	return Track{Checkpoints: []Checkpoint{
		{ID: 1, Position: 0.09},
		{ID: 2, Position: 0.18},
		{ID: 3, Position: 0.27},
		{ID: 4, Position: 0.36},
		{ID: 5, Position: 0.45},
		{ID: 6, Position: 0.54},
		{ID: 7, Position: 0.63},
		{ID: 8, Position: 0.72},
		{ID: 9, Position: 0.81},
		{ID: 10, Position: 0.90},
	}}
}

// LoadTrack reads a checkpoint layout from a YAML file.
func LoadTrack(path string) (Track, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Track{}, fmt.Errorf("read track file: %w", err)
	}
	var t Track
	if err := yaml.Unmarshal(b, &t); err != nil {
		return Track{}, fmt.Errorf("parse track file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Track{}, err
	}
	return t, nil
}

// Validate checks the ordering invariant: ids strictly increasing, positions
// strictly increasing and inside (0,1).
func (t Track) Validate() error {
	for i, cp := range t.Checkpoints {
		if cp.Position <= 0 || cp.Position >= 1 {
			return fmt.Errorf("%w: checkpoint %d position %v out of range", ErrBadTrack, cp.ID, cp.Position)
		}
		if i == 0 {
			continue
		}
		prev := t.Checkpoints[i-1]
		if cp.ID <= prev.ID {
			return fmt.Errorf("%w: checkpoint ids not ascending (%d after %d)", ErrBadTrack, cp.ID, prev.ID)
		}
		if cp.Position <= prev.Position {
			return fmt.Errorf("%w: checkpoint positions not ascending (%v after %v)", ErrBadTrack, cp.Position, prev.Position)
		}
	}
	return nil
}

// After returns the first checkpoint with an id greater than lastID, or nil
// when none remain.
func (t Track) After(lastID int) *Checkpoint {
	for i := range t.Checkpoints {
		if t.Checkpoints[i].ID > lastID {
			return &t.Checkpoints[i]
		}
	}
	return nil
}

func (t Track) ByID(id int) *Checkpoint {
	for i := range t.Checkpoints {
		if t.Checkpoints[i].ID == id {
			return &t.Checkpoints[i]
		}
	}
	return nil
}
