package repository

import (
	"allocation-service/internal/entity"
	"bytes"
	"context"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestSettingsRepository_MalformedDaysIsLogged(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	saved := logger
	logger = zerolog.New(&buf)
	defer func() { logger = saved }()

	mock.ExpectQuery(`SELECT param_key, param_value FROM config_parameters`).
		WithArgs(entity.SettingUseProductVariants, entity.SettingDefaultIncomingDays).
		WillReturnRows(sqlmock.NewRows([]string{"param_key", "param_value"}).
			AddRow(entity.SettingUseProductVariants, "True").
			AddRow(entity.SettingDefaultIncomingDays, "two weeks"))

	settings, err := NewSettingsRepository(db).GetSettings(context.Background())
	require.NoError(t, err)

	assert.True(t, settings.UseProductVariants)
	assert.Equal(t, 0, settings.DefaultIncomingDays)
	assert.Contains(t, buf.String(), "Ignoring malformed setting")
	assert.Contains(t, buf.String(), "two weeks")
	assert.NoError(t, mock.ExpectationsWereMet())
}
