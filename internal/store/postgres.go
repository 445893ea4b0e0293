package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shipment-tracker/internal/config"
	"shipment-tracker/internal/domain"
	"shipment-tracker/internal/geo"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, cfg *config.Config) (*Postgres, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) CreateShipment(ctx context.Context, sh *domain.Shipment) error {
	query := `
		INSERT INTO shipments
			(id, status, origin_lat, origin_lon, dest_lat, dest_lon,
			 origin_address, dest_address, courier_id, org_id,
			 planned_delivery, risk_score, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	`
	_, err := s.pool.Exec(ctx, query,
		sh.ID, string(sh.Status),
		sh.Origin.Lat, sh.Origin.Lon, sh.Destination.Lat, sh.Destination.Lon,
		sh.OriginAddress, sh.DestinationAddress, sh.CourierID, sh.OrgID,
		sh.PlannedDelivery, sh.RiskScore,
	)
	if err != nil {
		return fmt.Errorf("insert shipment failed: %w", err)
	}
	return nil
}

func (s *Postgres) GetShipment(ctx context.Context, id string) (*domain.Shipment, error) {
	query := `
		SELECT id, status, origin_lat, origin_lon, dest_lat, dest_lon,
		       origin_address, dest_address, courier_id, org_id,
		       planned_delivery, eta, eta_confidence, risk_score,
		       route_efficiency, created_at, updated_at
		FROM shipments
		WHERE id = $1
	`
	var (
		sh         domain.Shipment
		status     string
		confidence *string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&sh.ID, &status,
		&sh.Origin.Lat, &sh.Origin.Lon, &sh.Destination.Lat, &sh.Destination.Lon,
		&sh.OriginAddress, &sh.DestinationAddress, &sh.CourierID, &sh.OrgID,
		&sh.PlannedDelivery, &sh.ETA, &confidence, &sh.RiskScore,
		&sh.RouteEfficiency, &sh.CreatedAt, &sh.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get shipment failed: %w", err)
	}
	sh.Status = domain.ShipmentStatus(status)
	if confidence != nil {
		sh.ETAConfidence = domain.Confidence(*confidence)
	}
	return &sh, nil
}

// MarkInTransit is the single conditional operation that guarantees the
// pending → in_transit transition fires at most once, even when retried
// first samples race.
func (s *Postgres) MarkInTransit(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE shipments
		SET status = 'in_transit', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark in_transit failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) MarkDelivered(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE shipments
		SET status = 'delivered', updated_at = NOW()
		WHERE id = $1 AND status = 'in_transit'
	`, id)
	if err != nil {
		return false, fmt.Errorf("mark delivered failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) UpdateAnalytics(ctx context.Context, id string, eta time.Time, confidence domain.Confidence, risk int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE shipments
		SET eta = $2, eta_confidence = $3, risk_score = $4, updated_at = NOW()
		WHERE id = $1
	`, id, eta, string(confidence), risk)
	if err != nil {
		return fmt.Errorf("update analytics failed: %w", err)
	}
	return nil
}

func (s *Postgres) SetRouteEfficiency(ctx context.Context, id string, efficiency float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE shipments
		SET route_efficiency = $2, updated_at = NOW()
		WHERE id = $1
	`, id, efficiency)
	if err != nil {
		return fmt.Errorf("set route efficiency failed: %w", err)
	}
	return nil
}

func (s *Postgres) AppendSample(ctx context.Context, sample *domain.LocationSample) error {
	query := `
		INSERT INTO location_samples
			(id, shipment_id, latitude, longitude, accuracy_m, speed_ms,
			 heading_deg, recorded_at, received_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		sample.ID, sample.ShipmentID,
		sample.Latitude, sample.Longitude,
		sample.AccuracyM, sample.SpeedMS, sample.HeadingDeg,
		sample.RecordedAt, sample.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("append sample failed: %w", err)
	}
	return nil
}

var sampleColumns = `
	id, shipment_id, latitude, longitude, accuracy_m, speed_ms,
	heading_deg, recorded_at, received_at
`

func (s *Postgres) RecentSamples(ctx context.Context, shipmentID string, n int) ([]*domain.LocationSample, error) {
	// Inner query takes the newest n; outer restores recorded order.
	query := fmt.Sprintf(`
		SELECT * FROM (
			SELECT %s
			FROM location_samples
			WHERE shipment_id = $1
			ORDER BY recorded_at DESC
			LIMIT $2
		) recent
		ORDER BY recorded_at ASC
	`, sampleColumns)
	rows, err := s.pool.Query(ctx, query, shipmentID, n)
	if err != nil {
		return nil, fmt.Errorf("recent samples query failed: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

func (s *Postgres) SampleHistory(ctx context.Context, shipmentID string, from, to time.Time) ([]*domain.LocationSample, error) {
	if to.IsZero() {
		to = time.Now().Add(24 * time.Hour)
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM location_samples
		WHERE shipment_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at ASC
	`, sampleColumns)
	rows, err := s.pool.Query(ctx, query, shipmentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("sample history query failed: %w", err)
	}
	defer rows.Close()
	return scanSamples(rows)
}

func (s *Postgres) LatestSample(ctx context.Context, shipmentID string) (*domain.LocationSample, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM location_samples
		WHERE shipment_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, sampleColumns)
	rows, err := s.pool.Query(ctx, query, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("latest sample query failed: %w", err)
	}
	defer rows.Close()
	samples, err := scanSamples(rows)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, domain.ErrNotFound
	}
	return samples[0], nil
}

func scanSamples(rows pgx.Rows) ([]*domain.LocationSample, error) {
	var out []*domain.LocationSample
	for rows.Next() {
		var sm domain.LocationSample
		err := rows.Scan(
			&sm.ID, &sm.ShipmentID,
			&sm.Latitude, &sm.Longitude,
			&sm.AccuracyM, &sm.SpeedMS, &sm.HeadingDeg,
			&sm.RecordedAt, &sm.ReceivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sample failed: %w", err)
		}
		out = append(out, &sm)
	}
	return out, rows.Err()
}

func (s *Postgres) InsertAdvisory(ctx context.Context, a *domain.Advisory) error {
	detail, err := json.Marshal(a.Detail)
	if err != nil {
		return fmt.Errorf("marshal advisory detail failed: %w", err)
	}
	query := `
		INSERT INTO advisories
			(id, shipment_id, type, message, severity, detail, acknowledged, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, false, $7)
		ON CONFLICT DO NOTHING
	`
	_, err = s.pool.Exec(ctx, query,
		a.ID, a.ShipmentID, string(a.Type), a.Message, string(a.Severity),
		detail, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert advisory failed: %w", err)
	}
	return nil
}

func (s *Postgres) ActiveAdvisories(ctx context.Context, shipmentID string) ([]*domain.Advisory, error) {
	query := `
		SELECT id, shipment_id, type, message, severity, detail, acknowledged, created_at
		FROM advisories
		WHERE shipment_id = $1 AND acknowledged = false
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("active advisories query failed: %w", err)
	}
	defer rows.Close()

	var out []*domain.Advisory
	for rows.Next() {
		var (
			a      domain.Advisory
			typ    string
			sev    string
			detail []byte
		)
		if err := rows.Scan(&a.ID, &a.ShipmentID, &typ, &a.Message, &sev, &detail, &a.Acknowledged, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan advisory failed: %w", err)
		}
		a.Type = domain.AdvisoryType(typ)
		a.Severity = domain.Severity(sev)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &a.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal advisory detail failed: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *Postgres) AcknowledgeAdvisory(ctx context.Context, shipmentID, advisoryID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE advisories
		SET acknowledged = true
		WHERE id = $1 AND shipment_id = $2 AND acknowledged = false
	`, advisoryID, shipmentID)
	if err != nil {
		return false, fmt.Errorf("acknowledge advisory failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) InsertRouteSummary(ctx context.Context, sum *domain.RouteSummary) error {
	anomalies, err := json.Marshal(sum.Anomalies)
	if err != nil {
		return fmt.Errorf("marshal anomalies failed: %w", err)
	}
	query := `
		INSERT INTO route_summaries
			(shipment_id, dest_lat, dest_lon, dest_cell,
			 total_distance_m, total_time_s, average_speed_ms, max_speed_ms,
			 idle_time_s, route_efficiency, grade, anomalies, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.pool.Exec(ctx, query,
		sum.ShipmentID, sum.Destination.Lat, sum.Destination.Lon, geo.CellKey(sum.Destination),
		sum.TotalDistanceM, sum.TotalTime.Seconds(), sum.AverageSpeedMS, sum.MaxSpeedMS,
		sum.IdleTime.Seconds(), sum.RouteEfficiency, string(sum.Grade), anomalies, sum.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert route summary failed: %w", err)
	}
	return nil
}

var summaryColumns = `
	shipment_id, dest_lat, dest_lon, total_distance_m, total_time_s,
	average_speed_ms, max_speed_ms, idle_time_s, route_efficiency,
	grade, anomalies, created_at
`

func (s *Postgres) LatestRouteSummary(ctx context.Context, shipmentID string) (*domain.RouteSummary, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM route_summaries
		WHERE shipment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, summaryColumns)
	rows, err := s.pool.Query(ctx, query, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("latest route summary query failed: %w", err)
	}
	defer rows.Close()
	sums, err := scanSummaries(rows)
	if err != nil {
		return nil, err
	}
	if len(sums) == 0 {
		return nil, domain.ErrNotFound
	}
	return sums[0], nil
}

func (s *Postgres) SummariesForDestination(ctx context.Context, dest geo.Point, limit int) ([]*domain.RouteSummary, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM route_summaries
		WHERE dest_cell = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, summaryColumns)
	rows, err := s.pool.Query(ctx, query, geo.CellKey(dest), limit)
	if err != nil {
		return nil, fmt.Errorf("destination summaries query failed: %w", err)
	}
	defer rows.Close()
	return scanSummaries(rows)
}

func scanSummaries(rows pgx.Rows) ([]*domain.RouteSummary, error) {
	var out []*domain.RouteSummary
	for rows.Next() {
		var (
			sum       domain.RouteSummary
			totalS    float64
			idleS     float64
			grade     string
			anomalies []byte
		)
		err := rows.Scan(
			&sum.ShipmentID, &sum.Destination.Lat, &sum.Destination.Lon,
			&sum.TotalDistanceM, &totalS, &sum.AverageSpeedMS, &sum.MaxSpeedMS,
			&idleS, &sum.RouteEfficiency, &grade, &anomalies, &sum.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan route summary failed: %w", err)
		}
		sum.TotalTime = time.Duration(totalS * float64(time.Second))
		sum.IdleTime = time.Duration(idleS * float64(time.Second))
		sum.Grade = domain.Grade(grade)
		if len(anomalies) > 0 {
			if err := json.Unmarshal(anomalies, &sum.Anomalies); err != nil {
				return nil, fmt.Errorf("unmarshal anomalies failed: %w", err)
			}
		}
		out = append(out, &sum)
	}
	return out, rows.Err()
}
