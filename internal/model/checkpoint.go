package model

import "time"

// Checkpoint records the last log position whose effects are reflected in
// a projection's read model.
type Checkpoint struct {
	Projection string    `json:"projection"`
	Position   Position  `json:"position"`
	UpdatedAt  time.Time `json:"updated_at"`
}
