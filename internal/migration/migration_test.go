package migration

import (
	"io"
	"testing"

	"github.com/smallbiznis/invoicely/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreReadable(t *testing.T) {
	src, err := openSource()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, _, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()
	body, err := io.ReadAll(up)
	require.NoError(t, err)
	for _, table := range []string{
		"recurring_schedules", "recurring_schedule_items", "generation_logs",
		"invoices", "invoice_items", "invoice_sequences", "clients", "catalog_items",
	} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	assert.Contains(t, string(body), "WHERE status <> 'failed'")
}

func TestApplyAutoMigratesNonPostgres(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, Apply(conn))
	require.NoError(t, Apply(conn))

	for _, model := range Models() {
		assert.True(t, conn.Migrator().HasTable(model), "%T", model)
	}
	assert.True(t, conn.Migrator().HasIndex("generation_logs", "ux_generation_logs_occurrence"))
	assert.True(t, conn.Migrator().HasIndex("invoices", "ux_invoices_schedule_occurrence"))
}

func TestApplyRequiresConnection(t *testing.T) {
	assert.Error(t, Apply(nil))
	assert.Error(t, RunMigrations(nil))
}

func TestApplyAddsMissingColumnsOnSqlite(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, Apply(conn))
	require.NoError(t, conn.Exec(`ALTER TABLE recurring_schedules DROP COLUMN revision`).Error)
	require.False(t, conn.Migrator().HasColumn("recurring_schedules", "revision"))

	require.NoError(t, Apply(conn))
	assert.True(t, conn.Migrator().HasColumn("recurring_schedules", "revision"))
}
