package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file — using system environment variables")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisGetEnv("REDIS_ADDR", "localhost:6379"),
		Password: redisGetEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	defer client.Close()

	ctx := context.Background()

	fmt.Println("Connecting to Redis...")
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Redis is running:\n  docker-compose up -d redis", err)
	}
	fmt.Println("✓ Connected")

	step1_caller_identities(ctx, client)
	step2_verify(ctx, client)

	fmt.Println("\n✅ Redis seeded successfully")
	fmt.Println("   Run next: go run cmd/server/main.go")
}

type identity struct {
	SubjectID string `json:"subject_id"`
	Role      string `json:"role"`
	OrgID     string `json:"org_id"`
}

func step1_caller_identities(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 1: Seeding caller identities ───────────")

	// Key pattern: caller:auth:{api_key} → identity JSON
	// This is what the authenticator looks up at Level 2
	// TTL = 0 means permanent — these never expire
	identities := map[string]identity{
		"caller:auth:courier_asha_key": {SubjectID: "courier_asha", Role: "courier", OrgID: "org_acme"},
		"caller:auth:courier_ravi_key": {SubjectID: "courier_ravi", Role: "courier", OrgID: "org_acme"},
		"caller:auth:acme_admin_key":   {SubjectID: "admin_meera", Role: "admin", OrgID: "org_acme"},
		"caller:auth:test_key":         {SubjectID: "courier_test", Role: "courier", OrgID: "org_test"},
	}

	for key, id := range identities {
		payload, err := json.Marshal(id)
		if err != nil {
			log.Fatalf("Failed to marshal identity for %s: %v", key, err)
		}
		if err := client.Set(ctx, key, payload, 0).Err(); err != nil {
			log.Fatalf("Failed to set key %s: %v", key, err)
		}
		fmt.Printf("  ✓ %-35s → %s (%s)\n", key, id.SubjectID, id.Role)
	}
}

func step2_verify(ctx context.Context, client *redis.Client) {
	fmt.Println("\n── Step 2: Verification ────────────────────────")

	keys, err := client.Keys(ctx, "caller:auth:*").Result()
	if err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	fmt.Printf("  ✓ %d caller identities found in Redis\n", len(keys))

	// Spot check one key
	val, err := client.Get(ctx, "caller:auth:test_key").Result()
	if err != nil {
		log.Fatalf("Spot check failed: %v", err)
	}
	fmt.Printf("  ✓ spot check: caller:auth:test_key → %s\n", val)
}

func redisGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
