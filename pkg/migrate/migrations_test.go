package migrate_test

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldops-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	migrations := migrate.Embedded()
	matches, err := fs.Glob(migrations, "*_"+suffix+".sql")
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no %s migration file found", suffix)
	data, err := fs.ReadFile(migrations, matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestSessionsVisitsMigrationGuardsOpenRows(t *testing.T) {
	content := readMigration(t, "create_market_sessions_visits")

	checks := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_market_sessions_open_per_rep ON market_sessions (representative_id) WHERE end_time IS NULL",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_visits_open_per_rep ON visits (representative_id) WHERE check_out_time IS NULL",
		"PRIMARY KEY (session_id, dealer_ref)",
		"CHECK (order_value IS NULL OR order_value >= 0)",
		"DROP TABLE IF EXISTS visits",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPotentialDealersMigrationUniquePlace(t *testing.T) {
	content := readMigration(t, "create_dealers_potential_dealers")
	if !strings.Contains(content, "ux_potential_dealers_company_place ON potential_dealers (company_id, place_id)") {
		t.Fatal("expected unique place index on potential_dealers")
	}
}

func TestValidateAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, migrate.ValidateFS(migrate.Embedded()))
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestValidateFSRejectsBrokenFiles(t *testing.T) {
	up := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"bad name":   {"create_things.sql": {Data: []byte(up)}},
		"duplicate":  {"20260101000000_a.sql": {Data: []byte(up)}, "20260101000000_b.sql": {Data: []byte(up)}},
		"no down":    {"20260101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
		"unbalanced": {"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")}},
	}
	for name, fsys := range cases {
		require.Error(t, migrate.ValidateFS(fsys), name)
	}
	require.NoError(t, migrate.ValidateFS(fstest.MapFS{"20260101000000_a.sql": {Data: []byte(up)}, "README.md": {Data: []byte("notes")}}))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

	path, err := migrate.CreateSQLMigration(dir, "Add Visit Photos!", at)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260302083000_add_visit_photos.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "add visit photos", at)
	require.Error(t, err, "existing file must not be overwritten")

	_, err = migrate.CreateSQLMigration(dir, "!!!", at)
	require.Error(t, err)
}

func TestApplySQLiteEnforcesOpenSessionIndex(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, migrate.ApplySQLite(ctx, conn))
	// idempotent
	require.NoError(t, migrate.ApplySQLite(ctx, conn))

	rep := uuid.NewString()
	insert := `INSERT INTO market_sessions (id, company_id, representative_id, start_time, start_lat, start_lng) VALUES (?, ?, ?, CURRENT_TIMESTAMP, 0, 0)`
	require.NoError(t, conn.Exec(insert, uuid.NewString(), uuid.NewString(), rep).Error)
	require.Error(t, conn.Exec(insert, uuid.NewString(), uuid.NewString(), rep).Error)
}
