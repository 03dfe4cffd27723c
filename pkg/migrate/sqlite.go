package migrate

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for SQLite dev and test runs,
// including the partial unique indexes that guard open sessions and visits.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		industry_type TEXT,
		gst TEXT,
		head_office_location TEXT,
		config TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS territories (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		parent_id TEXT,
		state TEXT,
		city TEXT,
		lat REAL,
		lng REAL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_territories_company_name_type ON territories (company_id, lower(name), type)`,
	`CREATE TABLE IF NOT EXISTS representatives (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		mobile TEXT,
		employee_code TEXT,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		territory_id TEXT,
		territory_state TEXT,
		territory_city TEXT,
		unrestricted BOOLEAN NOT NULL DEFAULT 0,
		is_in_market BOOLEAN NOT NULL DEFAULT 0,
		active_session_id TEXT,
		current_lat REAL,
		current_lng REAL,
		last_location_update DATETIME,
		daily_visit_target INTEGER,
		daily_sales_target TEXT,
		last_login_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_representatives_email ON representatives (lower(email))`,
	`CREATE TABLE IF NOT EXISTS dealers (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		dealer_type TEXT NOT NULL,
		category_mapping TEXT,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		address TEXT,
		territory_id TEXT,
		state TEXT,
		city TEXT,
		visit_frequency TEXT NOT NULL DEFAULT 'weekly',
		priority INTEGER NOT NULL DEFAULT 1,
		contact_person TEXT,
		phone TEXT,
		place_id TEXT,
		last_visit_date DATETIME,
		last_visit_outcome TEXT,
		next_visit_due DATETIME,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_dealers_company_place ON dealers (company_id, place_id) WHERE place_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS potential_dealers (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		place_id TEXT NOT NULL,
		place_name TEXT NOT NULL,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		address TEXT,
		state TEXT,
		city TEXT,
		found_by TEXT NOT NULL,
		found_in_session_id TEXT,
		is_assigned BOOLEAN NOT NULL DEFAULT 0,
		assigned_to TEXT,
		assigned_at DATETIME,
		assigned_by TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_potential_dealers_company_place ON potential_dealers (company_id, place_id)`,
	`CREATE TABLE IF NOT EXISTS market_sessions (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		representative_id TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		start_lat REAL NOT NULL,
		start_lng REAL NOT NULL,
		end_lat REAL,
		end_lng REAL,
		total_distance_meters REAL NOT NULL DEFAULT 0,
		visits_completed INTEGER NOT NULL DEFAULT 0,
		closed_by TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_market_sessions_open_per_rep ON market_sessions (representative_id) WHERE end_time IS NULL`,
	`CREATE TABLE IF NOT EXISTS session_dealers_shown (
		session_id TEXT NOT NULL,
		dealer_ref TEXT NOT NULL,
		source TEXT NOT NULL,
		dealer_name TEXT NOT NULL,
		distance_meters INTEGER NOT NULL DEFAULT 0,
		shown_at DATETIME NOT NULL,
		PRIMARY KEY (session_id, dealer_ref)
	)`,
	`CREATE TABLE IF NOT EXISTS visits (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		representative_id TEXT NOT NULL,
		market_session_id TEXT,
		dealer_ref TEXT NOT NULL,
		source TEXT NOT NULL,
		dealer_id TEXT,
		potential_dealer_id TEXT,
		dealer_name TEXT NOT NULL,
		check_in_time DATETIME NOT NULL,
		check_in_lat REAL NOT NULL,
		check_in_lng REAL NOT NULL,
		distance_from_dealer INTEGER NOT NULL DEFAULT 0,
		check_out_time DATETIME,
		check_out_lat REAL,
		check_out_lng REAL,
		outcome TEXT,
		order_value TEXT,
		ordered_items TEXT,
		notes TEXT,
		next_visit_date DATETIME,
		contact_name TEXT,
		contact_phone TEXT,
		contact_email TEXT,
		time_spent_minutes INTEGER,
		fast_path BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_visits_open_per_rep ON visits (representative_id) WHERE check_out_time IS NULL`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// ApplySQLite creates the field schema on a SQLite connection.
func ApplySQLite(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("connection is required")
	}
	if name := conn.Dialector.Name(); name != "sqlite" {
		return fmt.Errorf("sqlite schema cannot be applied to %s", name)
	}
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(stmt string) string {
	if idx := strings.IndexByte(stmt, '\n'); idx >= 0 {
		return strings.TrimSpace(stmt[:idx])
	}
	return stmt
}
