package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.Background(), nil, "bronze_price_daily", []string{"date", "ticker"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"date", "ticker", "close"}
	mock.ExpectCopyFrom(pgx.Identifier{"bronze_price_daily"}, cols).WillReturnResult(2)

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := [][]any{{day, "AAPL", 185.5}, {day, "MSFT", 374.1}}
	n, err := CopyFrom(context.Background(), mock, "bronze_price_daily", cols, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"date", "ticker"}
	mock.ExpectCopyFrom(pgx.Identifier{"bronze_price_daily"}, cols).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "bronze_price_daily", cols, [][]any{{time.Now(), "AAPL"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO bronze_price_daily")
	assert.NoError(t, mock.ExpectationsWereMet())
}
