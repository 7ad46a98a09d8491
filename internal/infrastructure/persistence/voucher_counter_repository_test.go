package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockCounterRepository creates a GormCounterRepository with a mocked SQL connection
func newMockCounterRepository(t *testing.T) (*GormCounterRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormCounterRepository(gormDB), mock, mockDB
}

const incrementPattern = `(?s)INSERT INTO voucher_counters.*ON CONFLICT \(company_id, series, year\).*RETURNING value`

func TestGormCounterRepository_Increment(t *testing.T) {
	t.Run("mints the next value atomically", func(t *testing.T) {
		repo, mock, mockDB := newMockCounterRepository(t)
		defer mockDB.Close()

		companyID := uuid.New()

		mock.ExpectQuery(incrementPattern).
			WithArgs(companyID, "A", 2024, int64(1), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(7)))

		value, err := repo.Increment(context.Background(), companyID, "A", 2024)

		assert.NoError(t, err)
		assert.Equal(t, int64(7), value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("propagates database errors", func(t *testing.T) {
		repo, mock, mockDB := newMockCounterRepository(t)
		defer mockDB.Close()

		companyID := uuid.New()

		mock.ExpectQuery(incrementPattern).
			WithArgs(companyID, "A", 2024, int64(1), int64(1)).
			WillReturnError(sql.ErrConnDone)

		_, err := repo.Increment(context.Background(), companyID, "A", 2024)

		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCounterRepository_IncrementBy(t *testing.T) {
	t.Run("reserves a block in one statement", func(t *testing.T) {
		repo, mock, mockDB := newMockCounterRepository(t)
		defer mockDB.Close()

		companyID := uuid.New()

		mock.ExpectQuery(incrementPattern).
			WithArgs(companyID, "B", 2025, int64(5), int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(12)))

		value, err := repo.IncrementBy(context.Background(), companyID, "B", 2025, 5)

		assert.NoError(t, err)
		assert.Equal(t, int64(12), value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormCounterRepository_Current(t *testing.T) {
	t.Run("returns the stored value without advancing", func(t *testing.T) {
		repo, mock, mockDB := newMockCounterRepository(t)
		defer mockDB.Close()

		companyID := uuid.New()

		rows := sqlmock.NewRows([]string{"company_id", "series", "year", "value"}).
			AddRow(companyID, "A", 2024, int64(42))

		mock.ExpectQuery(`SELECT \* FROM "voucher_counters" WHERE company_id = \$1 AND series = \$2 AND year = \$3 ORDER BY .* LIMIT .*`).
			WithArgs(companyID, "A", 2024, 1).
			WillReturnRows(rows)

		value, err := repo.Current(context.Background(), companyID, "A", 2024)

		assert.NoError(t, err)
		assert.Equal(t, int64(42), value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns zero for an unseen series", func(t *testing.T) {
		repo, mock, mockDB := newMockCounterRepository(t)
		defer mockDB.Close()

		companyID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "voucher_counters" WHERE company_id = \$1 AND series = \$2 AND year = \$3 ORDER BY .* LIMIT .*`).
			WithArgs(companyID, "Z", 2024, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		value, err := repo.Current(context.Background(), companyID, "Z", 2024)

		assert.NoError(t, err)
		assert.Equal(t, int64(0), value)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
