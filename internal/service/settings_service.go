package service

import (
	"allocation-service/internal/entity"
	"context"
)

type SettingsService struct {
	settingsRepo SettingsStore
}

func NewSettingsService(settingsRepo SettingsStore) *SettingsService {
	return &SettingsService{settingsRepo: settingsRepo}
}

func (s *SettingsService) GetSettings(ctx context.Context) (entity.Settings, error) {
	return s.settingsRepo.GetSettings(ctx)
}

func (s *SettingsService) UpdateSettings(ctx context.Context, settings entity.Settings) (entity.Settings, error) {
	if err := validateStruct(settings); err != nil {
		return settings, err
	}
	if err := s.settingsRepo.SaveSettings(ctx, settings); err != nil {
		logger.Error().Err(err).Msg("Error saving allocation settings")
		return settings, err
	}
	return settings, nil
}
