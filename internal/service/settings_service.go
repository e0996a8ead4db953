package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"flashcards-bot/internal/model"
	"flashcards-bot/internal/repository"
)

// SettingsService reads and updates per-user study settings.
type SettingsService struct {
	repo *repository.SettingsRepository
}

func NewSettingsService(repo *repository.SettingsRepository) *SettingsService {
	return &SettingsService{repo: repo}
}

// Get returns the user's settings, creating defaults on first use.
func (s *SettingsService) Get(ctx context.Context, user *model.User) (*model.StudySettings, error) {
	return s.repo.GetOrCreate(ctx, user.ID)
}

// SetLimit updates one of the three session card limits. Limits are
// bounded to keep sessions reasonable on a phone-sized screen.
func (s *SettingsService) SetLimit(ctx context.Context, user *model.User, mode Mode, limit int) (*model.StudySettings, error) {
	if limit < model.MinStudyCardLimit || limit > model.MaxStudyCardLimit {
		return nil, &ValidationError{
			Field:  "limit",
			Reason: fmt.Sprintf("limit must be between %d and %d", model.MinStudyCardLimit, model.MaxStudyCardLimit),
		}
	}

	settings, err := s.repo.GetOrCreate(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeStandard:
		settings.StandardLimit = limit
	case ModeTimed:
		settings.TimedLimit = limit
	case ModeAdvanced:
		settings.AdvancedLimit = limit
	default:
		return nil, fmt.Errorf("unknown study mode %d", mode)
	}

	if err := s.repo.Save(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SetTimerSeconds updates the per-card countdown used by timed mode.
func (s *SettingsService) SetTimerSeconds(ctx context.Context, user *model.User, seconds int) (*model.StudySettings, error) {
	if seconds < 5 || seconds > 60 {
		return nil, &ValidationError{Field: "timer", Reason: "timer must be between 5 and 60 seconds"}
	}

	settings, err := s.repo.GetOrCreate(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	settings.TimerSeconds = seconds
	if err := s.repo.Save(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SetReminderTime accepts a HH:MM wall-clock time for the daily
// due-card reminder.
func (s *SettingsService) SetReminderTime(ctx context.Context, user *model.User, timeStr string) (*model.StudySettings, error) {
	normalized, err := normalizeClockTime(timeStr)
	if err != nil {
		return nil, &ValidationError{Field: "reminder time", Reason: err.Error()}
	}

	settings, err := s.repo.GetOrCreate(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	settings.ReminderTime = normalized
	if err := s.repo.Save(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SetRemindersEnabled toggles the daily reminder on or off.
func (s *SettingsService) SetRemindersEnabled(ctx context.Context, user *model.User, enabled bool) (*model.StudySettings, error) {
	settings, err := s.repo.GetOrCreate(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	settings.RemindersEnabled = enabled
	if err := s.repo.Save(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// normalizeClockTime parses HH:MM and reformats it zero-padded so
// stored times compare equal against time.Now().Format("15:04").
func normalizeClockTime(timeStr string) (string, error) {
	parts := strings.Split(strings.TrimSpace(timeStr), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("expected HH:MM, got %q", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}
