package postgres

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "транслированная ошибка gorm",
			err:      gorm.ErrDuplicatedKey,
			expected: true,
		},
		{
			name:     "обернутая ошибка gorm",
			err:      fmt.Errorf("create: %w", gorm.ErrDuplicatedKey),
			expected: true,
		},
		{
			name:     "сырая ошибка драйвера с кодом 23505",
			err:      &pgconn.PgError{Code: "23505", ConstraintName: "uq_settings_version"},
			expected: true,
		},
		{
			name:     "обернутая ошибка драйвера",
			err:      fmt.Errorf("create: %w", &pgconn.PgError{Code: "23505"}),
			expected: true,
		},
		{
			name:     "другая ошибка драйвера",
			err:      &pgconn.PgError{Code: "23503"},
			expected: false,
		},
		{
			name:     "запись не найдена",
			err:      gorm.ErrRecordNotFound,
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, isUniqueViolation(tc.err))
		})
	}
}
