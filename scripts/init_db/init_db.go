package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "tracker_user"),
		dbGetEnv("DB_PASSWORD", "tracker_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "shipment_tracker"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to Postgres...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Postgres is running:\n  docker-compose up -d postgres", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	// Run all steps in order
	step1_shipments_table(ctx, conn)
	step2_samples_table(ctx, conn)
	step3_advisories_table(ctx, conn)
	step4_summaries_table(ctx, conn)
	step5_indexes(ctx, conn)
	step6_demo_shipments(ctx, conn)
	step7_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run scripts/seed_redis/seed_redis.go")
}

// ─────────────────────────────────────────────────────────────
// Step 1 — shipments table
// ─────────────────────────────────────────────────────────────
func step1_shipments_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: shipments table ─────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS shipments (

			-- Shipment identity is owned by the dispatch subsystem;
			-- the tracker only reads it and mutates the fields below
			id                TEXT             PRIMARY KEY,

			status            TEXT             NOT NULL DEFAULT 'pending',

			origin_lat        DOUBLE PRECISION NOT NULL,
			origin_lon        DOUBLE PRECISION NOT NULL,
			dest_lat          DOUBLE PRECISION NOT NULL,
			dest_lon          DOUBLE PRECISION NOT NULL,
			origin_address    TEXT             NOT NULL DEFAULT '',
			dest_address      TEXT             NOT NULL DEFAULT '',

			courier_id        TEXT             NOT NULL,
			org_id            TEXT             NOT NULL,

			planned_delivery  TIMESTAMPTZ      NOT NULL,

			-- Fields the tracker owns
			eta               TIMESTAMPTZ,
			eta_confidence    TEXT,
			risk_score        INT              NOT NULL DEFAULT 0,
			route_efficiency  DOUBLE PRECISION,

			created_at        TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			CONSTRAINT chk_status CHECK (
				status IN ('pending', 'in_transit', 'delivered', 'cancelled')
			),
			CONSTRAINT chk_risk CHECK (risk_score BETWEEN 0 AND 100)
		);
	`, "shipments table created")
}

// ─────────────────────────────────────────────────────────────
// Step 2 — location_samples table
// ─────────────────────────────────────────────────────────────
func step2_samples_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: location_samples table ──────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS location_samples (

			id           TEXT             PRIMARY KEY,
			shipment_id  TEXT             NOT NULL,

			latitude     DOUBLE PRECISION NOT NULL,
			longitude    DOUBLE PRECISION NOT NULL,

			-- Optional device readings
			accuracy_m   DOUBLE PRECISION,
			speed_ms     DOUBLE PRECISION,
			heading_deg  DOUBLE PRECISION,

			-- Device clock vs server receipt — devices drift
			recorded_at  TIMESTAMPTZ      NOT NULL,
			received_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			CONSTRAINT chk_lat CHECK (latitude BETWEEN -90 AND 90),
			CONSTRAINT chk_lon CHECK (longitude BETWEEN -180 AND 180)
		);
	`, "location_samples table created")
}

// ─────────────────────────────────────────────────────────────
// Step 3 — advisories table
// ─────────────────────────────────────────────────────────────
func step3_advisories_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: advisories table ────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS advisories (

			id            TEXT        PRIMARY KEY,
			shipment_id   TEXT        NOT NULL,

			-- Must exactly match domain.AdvisoryType constants
			type          TEXT        NOT NULL,

			message       TEXT        NOT NULL,
			severity      TEXT        NOT NULL,

			-- Structured analyzer output (thresholds, observed values)
			detail        JSONB,

			acknowledged  BOOLEAN     NOT NULL DEFAULT false,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),

			CONSTRAINT chk_advisory_type CHECK (
				type IN ('route_deviation', 'delay_alert', 'speed_pattern', 'idle_alert', 'gps_warning')
			),
			CONSTRAINT chk_advisory_severity CHECK (
				severity IN ('low', 'medium', 'high')
			)
		);
	`, "advisories table created")
}

// ─────────────────────────────────────────────────────────────
// Step 4 — route_summaries table
// ─────────────────────────────────────────────────────────────
func step4_summaries_table(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: route_summaries table ───────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS route_summaries (

			id                BIGSERIAL        PRIMARY KEY,
			shipment_id       TEXT             NOT NULL,

			dest_lat          DOUBLE PRECISION NOT NULL,
			dest_lon          DOUBLE PRECISION NOT NULL,
			-- ~1km grid cell used to aggregate historical speed per
			-- destination for the ETA predictor
			dest_cell         TEXT             NOT NULL,

			total_distance_m  DOUBLE PRECISION NOT NULL,
			total_time_s      DOUBLE PRECISION NOT NULL,
			average_speed_ms  DOUBLE PRECISION NOT NULL,
			max_speed_ms      DOUBLE PRECISION NOT NULL,
			idle_time_s       DOUBLE PRECISION NOT NULL,
			route_efficiency  DOUBLE PRECISION NOT NULL,
			grade             TEXT             NOT NULL,
			anomalies         JSONB,

			created_at        TIMESTAMPTZ      NOT NULL DEFAULT NOW(),

			CONSTRAINT chk_grade CHECK (
				grade IN ('EXCELLENT', 'GOOD', 'AVERAGE', 'POOR')
			)
		);
	`, "route_summaries table created")
}

// ─────────────────────────────────────────────────────────────
// Step 5 — Indexes
// ─────────────────────────────────────────────────────────────
func step5_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_samples_shipment_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_samples_shipment_time
				  ON location_samples (shipment_id, recorded_at);`,
			why: "query: ordered history for one shipment",
		},
		{
			name: "idx_advisories_shipment",
			sql: `CREATE INDEX IF NOT EXISTS idx_advisories_shipment
				  ON advisories (shipment_id, created_at DESC);`,
			why: "query: advisories for one shipment",
		},
		{
			name: "idx_advisories_active",
			sql: `CREATE INDEX IF NOT EXISTS idx_advisories_active
				  ON advisories (shipment_id, created_at DESC)
				  WHERE acknowledged = false;`,
			why: "query: active advisories only (partial index)",
		},
		{
			name: "idx_summaries_shipment",
			sql: `CREATE INDEX IF NOT EXISTS idx_summaries_shipment
				  ON route_summaries (shipment_id, created_at DESC);`,
			why: "query: latest summary for one shipment",
		},
		{
			name: "idx_summaries_dest_cell",
			sql: `CREATE INDEX IF NOT EXISTS idx_summaries_dest_cell
				  ON route_summaries (dest_cell, created_at DESC);`,
			why: "query: historical speed for a destination",
		},
		{
			name: "idx_shipments_courier",
			sql: `CREATE INDEX IF NOT EXISTS idx_shipments_courier
				  ON shipments (courier_id);`,
			why: "query: shipments assigned to a courier",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 6 — Demo shipments
// ─────────────────────────────────────────────────────────────
func step6_demo_shipments(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 6: Demo shipments ──────────────────────")

	execOrFatal(ctx, conn, `
		INSERT INTO shipments
			(id, status, origin_lat, origin_lon, dest_lat, dest_lon,
			 origin_address, dest_address, courier_id, org_id, planned_delivery)
		VALUES
			('ship_delhi_mumbai', 'pending',
			 28.6139, 77.2090, 19.0760, 72.8777,
			 'Connaught Place, New Delhi', 'Fort, Mumbai',
			 'courier_asha', 'org_acme', NOW() + INTERVAL '2 days'),
			('ship_pune_local', 'pending',
			 18.5204, 73.8567, 18.5310, 73.8446,
			 'Shivajinagar, Pune', 'Deccan, Pune',
			 'courier_ravi', 'org_acme', NOW() + INTERVAL '3 hours')
		ON CONFLICT (id) DO NOTHING;
	`, "demo shipments inserted")
}

// ─────────────────────────────────────────────────────────────
// Step 7 — Verify everything was created
// ─────────────────────────────────────────────────────────────
func step7_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 7: Verification ────────────────────────")

	tables := []string{"shipments", "location_samples", "advisories", "route_summaries"}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	var indexCount int
	err := conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename IN ('shipments', 'location_samples', 'advisories', 'route_summaries')
		AND indexname LIKE 'idx_%'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
