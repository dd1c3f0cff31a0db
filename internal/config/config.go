package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the snapshot generator and the dashboard API
type Config struct {
	// Input data
	KPIPath          string
	MetadataPath     string
	MetadataSheet    string
	QualityThreshold float64

	// Road network
	NetworkPlace      string
	NetworkAreaName   string
	NetworkGeoJSON    string
	OverpassURL       string
	CacheDir          string
	NetworkMaxAgeDays int

	// Processing
	UTMZone           int
	SimplifyTolerance float64
	Workers           int

	// Storage
	StoreBackend    string
	SnapshotDir     string
	SQLitePath      string
	DatabaseURL     string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// Response cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Snapshot events
	KafkaBrokers       []string
	KafkaSnapshotTopic string
	KafkaGroupID       string

	// API server
	Port        string
	StaticDir   string
	CORSOrigins []string
}

// Load reads configuration from .env files and environment variables with sensible defaults.
// A missing .env file is not an error; variables already set in the environment win.
func Load(envFiles ...string) *Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	return &Config{
		// Input data
		KPIPath:          getEnv("KPI_PATH", "data/raw/det_val_hr.csv.gz"),
		MetadataPath:     getEnv("METADATA_PATH", "data/raw/Stammdaten_Verkehrsdetektion_2022_07_20.xlsx"),
		MetadataSheet:    getEnv("METADATA_SHEET", "Stammdaten_TEU_20220720"),
		QualityThreshold: getEnvFloat("QUALITY_THRESHOLD", 0.75),

		// Road network
		NetworkPlace:      getEnv("NETWORK_PLACE", "Berlin, Germany"),
		NetworkAreaName:   getEnv("NETWORK_AREA_NAME", "Berlin"),
		NetworkGeoJSON:    getEnv("NETWORK_GEOJSON", ""),
		OverpassURL:       getEnv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		CacheDir:          getEnv("CACHE_DIR", "data/osm"),
		NetworkMaxAgeDays: getEnvInt("NETWORK_MAX_AGE_DAYS", 30),

		// Processing
		UTMZone:           getEnvInt("UTM_ZONE", 33),
		SimplifyTolerance: getEnvFloat("SIMPLIFY_TOLERANCE", 0.0001),
		Workers:           getEnvInt("WORKERS", 1),

		// Storage
		StoreBackend:    getEnv("STORE_BACKEND", "sqlite"),
		SnapshotDir:     getEnv("SNAPSHOT_DIR", "data/road_kpi_snapshots"),
		SQLitePath:      getEnv("SQLITE_DATABASE", "data/traffic.db"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017/"),
		MongoDatabase:   getEnv("MONGO_DB_NAME", "traffic_dashboard"),
		MongoCollection: getEnv("MONGO_COLLECTION_NAME", "road_kpi_snapshots"),

		// Response cache
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 10*time.Minute),

		// Snapshot events
		KafkaBrokers:       getEnvList("KAFKA_BROKERS", nil),
		KafkaSnapshotTopic: getEnv("KAFKA_TOPIC_SNAPSHOTS", "traffic.snapshots"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "roadkpi-api"),

		// API server
		Port:        getEnv("PORT", "8081"),
		StaticDir:   getEnv("STATIC_DIR", ""),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
