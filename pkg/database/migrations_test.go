package database

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsSortsByVersion(t *testing.T) {
	files := fstest.MapFS{
		"0002_admission.sql": {Data: []byte("CREATE TABLE b ();")},
		"0001_identity.sql":  {Data: []byte("CREATE TABLE a ();")},
		"README.md":          {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(files)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "identity", migrations[0].Name)
	assert.Equal(t, "admission", migrations[1].Name)
}

func TestLoadMigrationsRejectsUnnumberedFiles(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}})
	assert.Error(t, err)
}

func TestMigratorSkipsAppliedVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	files := fstest.MapFS{
		"0001_identity.sql":  {Data: []byte("CREATE TABLE a ();")},
		"0002_admission.sql": {Data: []byte("CREATE TABLE b ();")},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b ();")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
		WithArgs(2, "admission").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	migrator := NewMigrator(sqlx.NewDb(db, "sqlmock"), nil)
	require.NoError(t, migrator.Run(context.Background(), files))
	assert.NoError(t, mock.ExpectationsWereMet())
}
