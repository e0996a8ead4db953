package model

import "time"

// Study settings defaults and bounds. Limits are clamped to the
// allowed range when updated through the settings service.
const (
	DefaultStudyCardLimit = 10
	DefaultTimerSeconds   = 10
	DefaultReminderTime   = "09:00"
	MinStudyCardLimit     = 5
	MaxStudyCardLimit     = 20
)

// StudySettings holds per-user study preferences. One row per user,
// created lazily with defaults the first time settings are read.
type StudySettings struct {
	ID               uint `gorm:"primaryKey"`
	UserID           uint `gorm:"uniqueIndex"`
	StandardLimit    int
	TimedLimit       int
	AdvancedLimit    int
	TimerSeconds     int
	RemindersEnabled bool
	ReminderTime     string // HH:MM, local time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DefaultStudySettings returns the settings a new user starts with.
func DefaultStudySettings(userID uint) StudySettings {
	return StudySettings{
		UserID:        userID,
		StandardLimit: DefaultStudyCardLimit,
		TimedLimit:    DefaultStudyCardLimit,
		AdvancedLimit: DefaultStudyCardLimit,
		TimerSeconds:  DefaultTimerSeconds,
		ReminderTime:  DefaultReminderTime,
	}
}
