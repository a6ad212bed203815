package storage

import (
	"regexp"
	"testing"
	"time"

	apperrors "gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-dispatch-service/pkg/logger"
	"go.uber.org/zap/zaptest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"gitlab.com/timkado/api/daisi-wa-dispatch-service/internal/model"
)

const testAccountID = "account-test-789"

func newTestProviderAccountRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock, func()) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
	})
	assert.NoError(t, err)
	repo := &PostgresRepo{db: gormDB}
	teardown := func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	}
	return repo, mock, teardown
}

func TestPostgresRepo_SaveProviderAccount_Create(t *testing.T) {
	repo, mock, teardown := newTestProviderAccountRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	account := model.ProviderAccount{
		AccountID:   testAccountID,
		Status:      model.AccountStatusDisconnected,
		PhoneNumber: "628123450100",
		CompanyID:   testTenantIDConv,
	}

	mock.ExpectBegin()
	lockPattern := `SELECT \* FROM "provider_accounts" WHERE account_id = \$1 AND company_id = \$2 .* FOR UPDATE`
	mock.ExpectQuery(lockPattern).
		WithArgs(testAccountID, testTenantIDConv, 1).
		WillReturnError(gorm.ErrRecordNotFound)
	mock.ExpectQuery(`INSERT INTO "provider_accounts" .* RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.SaveProviderAccount(ctx, account)
	assert.NoError(t, err)
}

func TestPostgresRepo_SaveProviderAccount_Update(t *testing.T) {
	repo, mock, teardown := newTestProviderAccountRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	account := model.ProviderAccount{
		AccountID:   testAccountID,
		Status:      model.AccountStatusConnected,
		PhoneNumber: "628123450100",
		HostName:    "device-2",
		CompanyID:   testTenantIDConv,
	}

	mock.ExpectBegin()
	lockPattern := `SELECT \* FROM "provider_accounts" WHERE account_id = \$1 AND company_id = \$2 .* FOR UPDATE`
	existingRows := sqlmock.NewRows([]string{"id", "account_id", "company_id", "status", "created_at"}).
		AddRow(5, testAccountID, testTenantIDConv, model.AccountStatusDisconnected, time.Now().Add(-24*time.Hour))
	mock.ExpectQuery(lockPattern).
		WithArgs(testAccountID, testTenantIDConv, 1).
		WillReturnRows(existingRows)
	mock.ExpectExec(`UPDATE "provider_accounts" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveProviderAccount(ctx, account)
	assert.NoError(t, err)
}

func TestPostgresRepo_SaveProviderAccount_TenantMismatch(t *testing.T) {
	repo, _, teardown := newTestProviderAccountRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	account := model.ProviderAccount{AccountID: testAccountID, CompanyID: "wrong-tenant"}
	err := repo.SaveProviderAccount(ctx, account)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestPostgresRepo_UpdateAccountStatus_Connected(t *testing.T) {
	repo, mock, teardown := newTestProviderAccountRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectBegin()
	// A connect transition must also stamp last_connected_at.
	updatePattern := `UPDATE "provider_accounts" SET .*"last_connected_at".* WHERE account_id = \$\d+ AND company_id = \$\d+`
	mock.ExpectExec(updatePattern).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateAccountStatus(ctx, testAccountID, model.AccountStatusConnected)
	assert.NoError(t, err)
}

func TestPostgresRepo_UpdateAccountStatus_Disconnected(t *testing.T) {
	repo, mock, teardown := newTestProviderAccountRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectBegin()
	updatePattern := `UPDATE "provider_accounts" SET .* WHERE account_id = \$\d+ AND company_id = \$\d+`
	mock.ExpectExec(updatePattern).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpdateAccountStatus(ctx, testAccountID, model.AccountStatusDisconnected)
	assert.NoError(t, err)
}

func TestPostgresRepo_UpdateAccountStatus_NotFound(t *testing.T) {
	repo, mock, teardown := newTestProviderAccountRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	mock.ExpectBegin()
	updatePattern := `UPDATE "provider_accounts" SET .* WHERE account_id = \$\d+ AND company_id = \$\d+`
	mock.ExpectExec(updatePattern).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.UpdateAccountStatus(ctx, "account-404", model.AccountStatusDisconnected)
	assert.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgresRepo_FindProviderAccountByAccountID_Found(t *testing.T) {
	repo, mock, teardown := newTestProviderAccountRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	now := time.Now()

	selectQuery := regexp.QuoteMeta(`SELECT * FROM "provider_accounts" WHERE account_id = $1 AND company_id = $2 ORDER BY "provider_accounts"."id" LIMIT $3`)
	rows := sqlmock.NewRows([]string{"id", "account_id", "company_id", "status", "phone_number", "last_connected_at"}).
		AddRow(5, testAccountID, testTenantIDConv, model.AccountStatusConnected, "628123450100", now)
	mock.ExpectQuery(selectQuery).
		WithArgs(testAccountID, testTenantIDConv, 1).
		WillReturnRows(rows)

	found, err := repo.FindProviderAccountByAccountID(ctx, testAccountID)
	assert.NoError(t, err)
	assert.NotNil(t, found)
	assert.Equal(t, testAccountID, found.AccountID)
	assert.Equal(t, model.AccountStatusConnected, found.Status)
	assert.NotNil(t, found.LastConnectedAt)
}

func TestPostgresRepo_FindProviderAccountByAccountID_NotFound(t *testing.T) {
	repo, mock, teardown := newTestProviderAccountRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	selectQuery := regexp.QuoteMeta(`SELECT * FROM "provider_accounts" WHERE account_id = $1 AND company_id = $2 ORDER BY "provider_accounts"."id" LIMIT $3`)
	mock.ExpectQuery(selectQuery).
		WithArgs("account-404", testTenantIDConv, 1).
		WillReturnError(gorm.ErrRecordNotFound)

	found, err := repo.FindProviderAccountByAccountID(ctx, "account-404")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Nil(t, found)
}

func TestPostgresRepo_FindAccountsByStatus(t *testing.T) {
	repo, mock, teardown := newTestProviderAccountRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()

	selectQuery := regexp.QuoteMeta(`SELECT * FROM "provider_accounts" WHERE status = $1 AND company_id = $2`)
	rows := sqlmock.NewRows([]string{"id", "account_id", "company_id", "status"}).
		AddRow(1, "account-a", testTenantIDConv, model.AccountStatusConnected).
		AddRow(2, "account-b", testTenantIDConv, model.AccountStatusConnected)
	mock.ExpectQuery(selectQuery).
		WithArgs(model.AccountStatusConnected, testTenantIDConv).
		WillReturnRows(rows)

	accounts, err := repo.FindAccountsByStatus(ctx, model.AccountStatusConnected)
	assert.NoError(t, err)
	assert.Len(t, accounts, 2)
	assert.Equal(t, "account-a", accounts[0].AccountID)
}

func TestPostgresRepo_BulkUpsertProviderAccounts_Success(t *testing.T) {
	repo, mock, teardown := newTestProviderAccountRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	accounts := []model.ProviderAccount{
		{AccountID: "bulk-account-1", Status: model.AccountStatusConnected, CompanyID: testTenantIDConv},
		{AccountID: "bulk-account-2", Status: model.AccountStatusDisconnected, CompanyID: testTenantIDConv},
	}

	mock.ExpectBegin()
	insertPattern := `INSERT INTO "provider_accounts" .* ON CONFLICT \("account_id","company_id"\) DO UPDATE SET .* RETURNING`
	mock.ExpectQuery(insertPattern).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectCommit()

	err := repo.BulkUpsertProviderAccounts(ctx, accounts)
	assert.NoError(t, err)
}

func TestPostgresRepo_BulkUpsertProviderAccounts_SkipMismatchedTenant(t *testing.T) {
	repo, mock, teardown := newTestProviderAccountRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	accounts := []model.ProviderAccount{
		{AccountID: "bulk-account-ok", Status: model.AccountStatusConnected, CompanyID: testTenantIDConv},
		{AccountID: "bulk-account-wrong", Status: model.AccountStatusConnected, CompanyID: "wrong-tenant"},
	}

	mock.ExpectBegin()
	insertPattern := `INSERT INTO "provider_accounts" .* ON CONFLICT \("account_id","company_id"\) DO UPDATE SET .* RETURNING`
	mock.ExpectQuery(insertPattern).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := repo.BulkUpsertProviderAccounts(ctx, accounts)
	assert.NoError(t, err)
}

func TestPostgresRepo_BulkUpsertProviderAccounts_EmptyList(t *testing.T) {
	repo, _, teardown := newTestProviderAccountRepo(t)
	t.Cleanup(teardown)
	ctx := contextWithTestTenant()
	err := repo.BulkUpsertProviderAccounts(ctx, nil)
	assert.NoError(t, err)
}