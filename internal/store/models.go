package store

import "time"

// Energy is how much effort a micro-step asks of the user.
type Energy string

const (
	EnergyHigh   Energy = "High"
	EnergyMedium Energy = "Medium"
	EnergyLow    Energy = "Low"
)

// MicroStep is a single small action in a decomposed task.
type MicroStep struct {
	ID             int    `json:"id"`
	Text           string `json:"text"`
	Duration       string `json:"duration"`
	EnergyRequired Energy `json:"energy_required"`
	Completed      bool   `json:"completed"`
}

// Task is a decomposed task owned by a profile.
type Task struct {
	ID        int64       `json:"id"`
	ProfileID int64       `json:"profile_id"`
	Title     string      `json:"title"`
	Steps     []MicroStep `json:"steps"`
	Completed bool        `json:"completed"`
	CreatedAt time.Time   `json:"created_at"`
}

// Profile is a local user with a cognitive profile and gamification counters.
type Profile struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	NeuroType    string    `json:"neuro_type"`
	XP           int       `json:"xp"`
	Level        int       `json:"level"`
	DyslexicFont bool      `json:"dyslexic_font"`
	CreatedAt    time.Time `json:"created_at"`
}
