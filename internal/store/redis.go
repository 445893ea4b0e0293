package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shipment-tracker/internal/config"
	"shipment-tracker/internal/domain"
)

// Redis carries the ephemeral side of the tracker: live shipment state,
// the cross-node event bridge, advisory dedup keys and caller identity
// lookups. Nothing here is the durable record.
type Redis struct {
	client *redis.Client
	ttl    struct {
		state time.Duration
		dedup time.Duration
	}
}

func NewRedis(ctx context.Context, cfg *config.Config) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	r := &Redis{client: client}
	r.ttl.state = 5 * time.Minute
	r.ttl.dedup = time.Duration(cfg.Analytics.DedupTTLSeconds) * time.Second
	return r, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// LiveUpdate refreshes the hot state hash and the per-org geo set so
// dashboards can query current courier positions without touching
// postgres.
func (r *Redis) LiveUpdate(ctx context.Context, sh *domain.Shipment, sample *domain.LocationSample) error {
	stateData := map[string]interface{}{
		"shipment_id": sh.ID,
		"courier_id":  sh.CourierID,
		"org_id":      sh.OrgID,
		"lat":         sample.Latitude,
		"lng":         sample.Longitude,
		"speed_ms":    sample.Speed(),
		"status":      string(sh.Status),
		"risk_score":  sh.RiskScore,
		"recorded_at": sample.RecordedAt.Unix(),
		"received_at": sample.ReceivedAt.Unix(),
	}

	stateKey := fmt.Sprintf("shipment:%s:state", sh.ID)
	geoKey := fmt.Sprintf("org:%s:geo", sh.OrgID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, stateKey, stateData)
	pipe.Expire(ctx, stateKey, r.ttl.state)
	pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      sh.CourierID,
		Longitude: sample.Longitude,
		Latitude:  sample.Latitude,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// PublishEvent pushes an event frame onto the shipment's bridge channel.
// Other nodes' hubs re-deliver it to their local subscribers.
func (r *Redis) PublishEvent(ctx context.Context, shipmentID string, payload []byte) error {
	channel := fmt.Sprintf("shipment:%s:events", shipmentID)
	return r.client.Publish(ctx, channel, payload).Err()
}

// SubscribeEvents returns a pattern subscription over every shipment's
// bridge channel. The caller owns closing it.
func (r *Redis) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return r.client.PSubscribe(ctx, "shipment:*:events")
}

// GetCallerIdentity resolves an API key to the identity stored by the
// auth subsystem. Returns nil without error when the key is unknown.
func (r *Redis) GetCallerIdentity(ctx context.Context, apiKey string) (*domain.Identity, error) {
	key := fmt.Sprintf("caller:auth:%s", apiKey)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get caller identity failed: %w", err)
	}
	var id domain.Identity
	if err := json.Unmarshal([]byte(val), &id); err != nil {
		return nil, fmt.Errorf("bad identity payload for key: %w", err)
	}
	return &id, nil
}

func (r *Redis) CheckAdvisoryDedup(ctx context.Context, shipmentID string, advisoryType domain.AdvisoryType) (bool, error) {
	key := fmt.Sprintf("advisory:%s:%s", shipmentID, string(advisoryType))
	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return count > 0, nil
}

func (r *Redis) SetAdvisoryDedup(ctx context.Context, shipmentID string, advisoryType domain.AdvisoryType) error {
	key := fmt.Sprintf("advisory:%s:%s", shipmentID, string(advisoryType))
	return r.client.Set(ctx, key, "1", r.ttl.dedup).Err()
}
