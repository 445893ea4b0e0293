package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// HTTP
	HTTPPort string

	// Postgres
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// StoreBackend selects "postgres" or "memory" (local runs, tests).
	StoreBackend string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Kafka mirror of live events; disabled when no brokers configured.
	KafkaEnabled        bool
	KafkaBrokers        []string
	KafkaTopicLocations string
	KafkaTopicAdvisory  string
	KafkaTopicTrips     string
	KafkaQueueSize      int

	// Logging
	LogLevel  string
	LogFormat string

	// Auth
	AuthCacheTTLSeconds int
	// StaticAPIKeys entries are "key=subject:role:org".
	StaticAPIKeys []string

	// Broadcast hub
	HubSendBuffer int
	BridgeEnabled bool

	Analytics AnalyticsConfig
}

// AnalyticsConfig externalizes every analyzer threshold and severity
// weight so tuning does not require a rebuild.
type AnalyticsConfig struct {
	BudgetMS     int
	MaxAccuracyM float64

	// ETA prediction
	DefaultSpeedMS   float64
	MaxPlausibleMS   float64
	SpeedWindow      int
	RushHourFactor   float64
	NightFactor      float64
	HistoryWindow    int
	ETAFallbackMin   int
	MinAdjustedSpeed float64

	// Advisory analyzers
	DeviationMediumM float64
	DeviationHighM   float64
	DelayMediumMin   int
	DelayHighMin     int
	SpeedDropRatio   float64
	IdleWindowMin    int
	IdleMovementMS   float64
	AccuracyMediumM  float64
	AccuracyHighM    float64
	DedupTTLSeconds  int
	WeightLow        int
	WeightMedium     int
	WeightHigh       int

	// Route analysis
	IdleSpeedMS      float64
	SpikeThresholdMS float64
	JumpSpeedMS      float64
	TimeGapSeconds   int
}

func Load() *Config {
	brokers := splitNonEmpty(getEnv("KAFKA_BROKERS", ""))

	return &Config{
		HTTPPort:            getEnv("HTTP_PORT", "8002"),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              getEnv("DB_PORT", "5432"),
		DBUser:              getEnv("DB_USER", "tracker_user"),
		DBPassword:          getEnv("DB_PASSWORD", "tracker_password"),
		DBName:              getEnv("DB_NAME", "shipment_tracker"),
		DBMaxConns:          int32(getEnvInt("DB_MAX_CONNS", 15)),
		StoreBackend:        getEnv("STORE_BACKEND", "postgres"),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		KafkaEnabled:        len(brokers) > 0,
		KafkaBrokers:        brokers,
		KafkaTopicLocations: getEnv("KAFKA_TOPIC_LOCATIONS", "shipment.locations"),
		KafkaTopicAdvisory:  getEnv("KAFKA_TOPIC_ADVISORIES", "shipment.advisories"),
		KafkaTopicTrips:     getEnv("KAFKA_TOPIC_TRIPS", "shipment.trips"),
		KafkaQueueSize:      getEnvInt("KAFKA_QUEUE_SIZE", 10000),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		AuthCacheTTLSeconds: getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
		StaticAPIKeys:       splitNonEmpty(getEnv("STATIC_API_KEYS", "")),
		HubSendBuffer:       getEnvInt("HUB_SEND_BUFFER", 64),
		BridgeEnabled:       getEnv("HUB_BRIDGE_ENABLED", "false") == "true",
		Analytics: AnalyticsConfig{
			BudgetMS:         getEnvInt("ANALYTICS_BUDGET_MS", 500),
			MaxAccuracyM:     getEnvFloat("MAX_ACCURACY_M", 10000),
			DefaultSpeedMS:   getEnvFloat("ETA_DEFAULT_SPEED_MS", 11.1),
			MaxPlausibleMS:   getEnvFloat("ETA_MAX_PLAUSIBLE_MS", 50),
			SpeedWindow:      getEnvInt("ETA_SPEED_WINDOW", 10),
			RushHourFactor:   getEnvFloat("ETA_RUSH_HOUR_FACTOR", 0.7),
			NightFactor:      getEnvFloat("ETA_NIGHT_FACTOR", 1.3),
			HistoryWindow:    getEnvInt("ETA_HISTORY_WINDOW", 20),
			ETAFallbackMin:   getEnvInt("ETA_FALLBACK_MIN", 60),
			MinAdjustedSpeed: getEnvFloat("ETA_MIN_ADJUSTED_MS", 0.5),
			DeviationMediumM: getEnvFloat("DEVIATION_MEDIUM_M", 1000),
			DeviationHighM:   getEnvFloat("DEVIATION_HIGH_M", 5000),
			DelayMediumMin:   getEnvInt("DELAY_MEDIUM_MIN", 30),
			DelayHighMin:     getEnvInt("DELAY_HIGH_MIN", 60),
			SpeedDropRatio:   getEnvFloat("SPEED_DROP_RATIO", 0.3),
			IdleWindowMin:    getEnvInt("IDLE_WINDOW_MIN", 10),
			IdleMovementMS:   getEnvFloat("IDLE_MOVEMENT_MS", 0.5),
			AccuracyMediumM:  getEnvFloat("ACCURACY_MEDIUM_M", 1000),
			AccuracyHighM:    getEnvFloat("ACCURACY_HIGH_M", 5000),
			DedupTTLSeconds:  getEnvInt("ADVISORY_DEDUP_TTL_SECONDS", 300),
			WeightLow:        getEnvInt("RISK_WEIGHT_LOW", 5),
			WeightMedium:     getEnvInt("RISK_WEIGHT_MEDIUM", 15),
			WeightHigh:       getEnvInt("RISK_WEIGHT_HIGH", 30),
			IdleSpeedMS:      getEnvFloat("ROUTE_IDLE_SPEED_MS", 2),
			SpikeThresholdMS: getEnvFloat("ROUTE_SPIKE_THRESHOLD_MS", 20),
			JumpSpeedMS:      getEnvFloat("ROUTE_JUMP_SPEED_MS", 50),
			TimeGapSeconds:   getEnvInt("ROUTE_TIME_GAP_S", 300),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
