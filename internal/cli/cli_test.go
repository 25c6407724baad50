package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiefduck/hellbound-sauces-sub000/pkg/database"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate"}, names)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--log-level", "loud", "serve"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "loud"`)
}

func TestServe_RequiresShop(t *testing.T) {
	t.Setenv("SHOPIFY_STORE_DOMAIN", "")
	t.Setenv("SHOPIFY_GRAPHQL_ENDPOINT", "")

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"serve"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHOPIFY_STORE_DOMAIN is required")
}

func TestRunMigrate_DryRunListsPending(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_checkout_attempts.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	var out bytes.Buffer
	err = runMigrate(context.Background(), mock, &MigrateOptions{DryRun: true}, &out, newTestLogger())

	require.NoError(t, err)
	assert.Equal(t, "001_checkout_attempts.up.sql\n", out.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrate_UpToDate(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_checkout_attempts.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	var out bytes.Buffer
	err = runMigrate(context.Background(), mock, &MigrateOptions{}, &out, newTestLogger())

	require.NoError(t, err)
	assert.Equal(t, "schema is up to date\n", out.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
