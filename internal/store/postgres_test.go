package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

var itemColumnNames = []string{
	"id", "reporter_phone", "category", "description", "stolen_date", "latitude", "longitude", "address",
	"status", "verified", "police_reference", "brand", "model", "serial_number", "color", "created_at", "updated_at",
}

type PostgresStoreTestSuite struct {
	suite.Suite
	mockDB *sql.DB
	mock   sqlmock.Sqlmock
	store  *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreTestSuite))
}

func (suite *PostgresStoreTestSuite) SetupTest() {
	var err error
	suite.mockDB, suite.mock, err = sqlmock.New()
	if err != nil {
		suite.T().Fatalf("Failed to create mock database: %v", err)
	}
	suite.store = &PostgresStore{db: suite.mockDB}
}

func (suite *PostgresStoreTestSuite) TearDownTest() {
	if err := suite.mock.ExpectationsWereMet(); err != nil {
		suite.T().Fatalf("There were unfulfilled expectations: %v", err)
	}
	_ = suite.mockDB.Close()
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func (suite *PostgresStoreTestSuite) TestSaveUpserts() {
	now := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	item := newItem(suite.T(), "+15550000001", models.CategoryBicycle, "Red Trek mountain bike", nil, now)

	args := anyArgs(17)
	args[0] = item.ID.String()
	args[5], args[6], args[7] = nil, nil, nil
	suite.mock.ExpectExec(`INSERT INTO stolen_items .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(suite.T(), suite.store.Save(context.Background(), item))
}

func (suite *PostgresStoreTestSuite) TestSaveWrapsRepositoryError() {
	item := newItem(suite.T(), "+15550000001", models.CategoryBicycle, "Red Trek mountain bike", nil, time.Now())
	suite.mock.ExpectExec(`INSERT INTO stolen_items`).WillReturnError(errors.New("connection reset"))

	err := suite.store.Save(context.Background(), item)
	var repoErr *models.RepositoryError
	assert.ErrorAs(suite.T(), err, &repoErr)
	assert.Equal(suite.T(), "save item", repoErr.Op)
}

func (suite *PostgresStoreTestSuite) TestFindByID() {
	id := uuid.New()
	now := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(itemColumnNames).
		AddRow(id.String(), "+15550000001", "phone", "Black iPhone 13 Pro", now, 51.5, -0.12, "London",
			"active", true, "CR/2024/000001", "Apple", "iPhone 13", nil, nil, now, now)
	suite.mock.ExpectQuery(`SELECT .* FROM stolen_items WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(rows)

	item, err := suite.store.FindByID(context.Background(), id)
	suite.Require().NoError(err)
	suite.Require().NotNil(item)
	assert.Equal(suite.T(), id, item.ID)
	assert.Equal(suite.T(), models.CategoryPhone, item.Category)
	assert.True(suite.T(), item.Verified)
	assert.Equal(suite.T(), "Apple", item.Brand)
	assert.Empty(suite.T(), item.SerialNumber)
	suite.Require().NotNil(item.Location)
	assert.Equal(suite.T(), "London", item.Location.Address)
}

func (suite *PostgresStoreTestSuite) TestFindByIDNotFound() {
	id := uuid.New()
	suite.mock.ExpectQuery(`SELECT .* FROM stolen_items WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(itemColumnNames))

	item, err := suite.store.FindByID(context.Background(), id)
	assert.NoError(suite.T(), err)
	assert.Nil(suite.T(), item)
}

func (suite *PostgresStoreTestSuite) TestFindByCategoryWithAndWithoutCategory() {
	now := time.Now().UTC()
	suite.mock.ExpectQuery(`WHERE category = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("bicycle", "active", 50).
		WillReturnRows(sqlmock.NewRows(itemColumnNames).
			AddRow(uuid.NewString(), "+1555", "bicycle", "Red Trek mountain bike", now, nil, nil, nil,
				"active", false, nil, nil, nil, nil, nil, now, now))
	suite.mock.ExpectQuery(`WHERE status = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs("active", 100).
		WillReturnRows(sqlmock.NewRows(itemColumnNames))

	items, err := suite.store.FindByCategory(context.Background(), models.CategoryBicycle, models.ItemStatusActive, 50)
	suite.Require().NoError(err)
	suite.Require().Len(items, 1)
	assert.Nil(suite.T(), items[0].Location)

	items, err = suite.store.FindByCategory(context.Background(), "", models.ItemStatusActive, 100)
	suite.Require().NoError(err)
	assert.Empty(suite.T(), items)
}

func (suite *PostgresStoreTestSuite) TestFindNearbyFiltersByDistance() {
	now := time.Now().UTC()
	near, far := uuid.NewString(), uuid.NewString()
	suite.mock.ExpectQuery(`FROM stolen_items\s+WHERE status = 'active' AND latitude BETWEEN \$1 AND \$2`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "").
		WillReturnRows(sqlmock.NewRows(itemColumnNames).
			AddRow(far, "+1", "bicycle", "Blue Giant road bike", now, 51.5, 0.05, nil,
				"active", false, nil, nil, nil, nil, nil, now, now).
			AddRow(near, "+1", "bicycle", "Red Trek mountain bike", now, 51.5074, -0.1278, nil,
				"active", false, nil, nil, nil, nil, nil, now, now))

	items, err := suite.store.FindNearby(context.Background(), london, 5, "")
	suite.Require().NoError(err)
	suite.Require().Len(items, 1)
	assert.Equal(suite.T(), near, items[0].ID.String())
}

func (suite *PostgresStoreTestSuite) TestTickets() {
	ticket, err := models.NewSupportTicket("+15550000001", "Please call me", "", time.Now().UTC())
	suite.Require().NoError(err)

	suite.mock.ExpectExec(`INSERT INTO support_tickets`).
		WithArgs(ticket.ID.String(), ticket.PhoneNumber, ticket.Message, nil, "open", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	suite.mock.ExpectQuery(`SELECT .* FROM support_tickets WHERE phone_number = \$1`).
		WithArgs("+15550000001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "phone_number", "message", "email", "status", "created_at"}).
			AddRow(ticket.ID.String(), ticket.PhoneNumber, ticket.Message, nil, "open", ticket.CreatedAt))

	suite.Require().NoError(suite.store.SaveTicket(context.Background(), ticket))
	tickets, err := suite.store.FindTicketsByPhone(context.Background(), "+15550000001")
	suite.Require().NoError(err)
	suite.Require().Len(tickets, 1)
	assert.Equal(suite.T(), ticket.ID, tickets[0].ID)
	assert.Equal(suite.T(), models.TicketStatusOpen, tickets[0].Status)
}

func (suite *PostgresStoreTestSuite) TestRecordInbound() {
	suite.mock.ExpectExec(`INSERT INTO inbound_dedup .* ON CONFLICT \(message_id\) DO NOTHING`).
		WithArgs("SM1", "+15550000001", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	suite.mock.ExpectExec(`INSERT INTO inbound_dedup`).
		WithArgs("SM1", "+15550000001", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	fresh, err := suite.store.RecordInbound(context.Background(), "SM1", "+15550000001")
	suite.Require().NoError(err)
	assert.True(suite.T(), fresh)
	fresh, err = suite.store.RecordInbound(context.Background(), "SM1", "+15550000001")
	suite.Require().NoError(err)
	assert.False(suite.T(), fresh)
}

func TestPostgresStoreIntegration(t *testing.T) {
	// Requires a running PostgreSQL instance; set DATABASE_URL to run.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	if _, err := pgStore.db.Exec("DELETE FROM stolen_items; DELETE FROM support_tickets"); err != nil {
		t.Fatalf("failed to clean tables: %v", err)
	}
	exerciseItemRepository(t, pgStore)
	exerciseTicketRepository(t, pgStore)
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
