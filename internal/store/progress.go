package store

import "math"

// XP rewards handed out by the dashboard flows.
const (
	XPTaskDecomposed = 20
	XPStepCompleted  = 10
	XPTaskFinished   = 50
)

// XPForNextLevel is the amount of XP needed to leave the given level.
func XPForNextLevel(level int) int {
	return level * 100
}

// ApplyXP adds amount to xp and promotes at most one level, carrying the remainder.
func ApplyXP(xp, level, amount int) (newXP, newLevel int, leveledUp bool) {
	if level < 1 {
		level = 1
	}
	newXP = xp + amount
	if newXP < 0 {
		newXP = 0
	}
	newLevel = level
	if required := XPForNextLevel(level); newXP >= required {
		newXP -= required
		newLevel++
		leveledUp = true
	}
	return newXP, newLevel, leveledUp
}

// ProgressPercent returns the 0-100 fill of the level bar.
func ProgressPercent(xp, level int) int {
	required := XPForNextLevel(level)
	if required <= 0 {
		return 0
	}
	p := int(math.Round(float64(xp) / float64(required) * 100))
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
