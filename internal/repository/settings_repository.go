package repository

import (
	"allocation-service/internal/entity"
	"context"
	"database/sql"
	"github.com/rs/zerolog"
	"os"
	"strconv"
	"strings"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "repository").Logger()

// SettingsRepository reads and writes the global allocation parameters, stored
// as key/value pairs.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db}
}

func (r *SettingsRepository) GetSettings(ctx context.Context) (entity.Settings, error) {
	settings := entity.Settings{}

	query := `SELECT param_key, param_value FROM config_parameters WHERE param_key IN (?, ?)`
	rows, err := r.db.QueryContext(ctx, query, entity.SettingUseProductVariants, entity.SettingDefaultIncomingDays)
	if err != nil {
		return settings, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return settings, err
		}
		switch key {
		case entity.SettingUseProductVariants:
			settings.UseProductVariants = strings.ToLower(value) == "true"
		case entity.SettingDefaultIncomingDays:
			// a malformed value reads as no lookahead
			days, err := strconv.Atoi(value)
			if err != nil {
				logger.Warn().Err(err).Str("param", key).Str("value", value).Msg("Ignoring malformed setting")
			}
			settings.DefaultIncomingDays = days
		}
	}

	return settings, rows.Err()
}

func (r *SettingsRepository) SaveSettings(ctx context.Context, settings entity.Settings) error {
	query := `INSERT INTO config_parameters (param_key, param_value) VALUES (?, ?), (?, ?)
		ON DUPLICATE KEY UPDATE param_value = VALUES(param_value)`
	_, err := r.db.ExecContext(ctx, query,
		entity.SettingUseProductVariants, strconv.FormatBool(settings.UseProductVariants),
		entity.SettingDefaultIncomingDays, strconv.Itoa(settings.DefaultIncomingDays))
	return err
}
