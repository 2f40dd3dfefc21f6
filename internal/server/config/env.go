package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// envTransform maps SECTION__KEY variables to koanf paths (section.key).
// Variables without the "__" separator are ignored.
func envTransform(key string) string {
	if !strings.Contains(key, "__") {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(key, "__", "."))
}

// parseEnv overlays config with environment variables such as JWT__SECRET or
// DATABASE__URL. A malformed numeric value panics.
//
//	SERVER__ADDRESS | SERVER__HOST + SERVER__PORT
//	DATABASE__URL, DATABASE__MAX_CONNECTIONS, DATABASE__MIN_CONNECTIONS
//	JWT__SECRET, JWT__EXPIRATION_HOURS, JWT__REFRESH_EXPIRATION_DAYS
//	STORAGE__ENDPOINT, STORAGE__PUBLIC_ENDPOINT, STORAGE__BUCKET, STORAGE__REGION,
//	STORAGE__ACCESS_KEY, STORAGE__SECRET_KEY, STORAGE__PRESIGN_EXPIRY_SECS
//	QUEUE__URL, QUEUE__ANALYSIS_QUEUE
//	AUTH__HASH_WORKERS
//	LOG__BACKEND, LOG__LEVEL, LOG__FORMAT
func parseEnv(config *Config) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		panic(fmt.Errorf("load environment: %w", err))
	}

	if k.Exists("server.address") {
		config.EndpointAddrHTTP = k.String("server.address")
	} else if k.Exists("server.host") || k.Exists("server.port") {
		host, port := splitAddr(config.EndpointAddrHTTP)
		if k.Exists("server.host") {
			host = k.String("server.host")
		}
		if k.Exists("server.port") {
			port = k.String("server.port")
		}
		config.EndpointAddrHTTP = host + ":" + port
	}

	envString(k, "database.url", &config.DatabaseDSN)
	envInt(k, "database.max_connections", &config.DatabaseMaxConns)
	envInt(k, "database.min_connections", &config.DatabaseMinConns)

	envString(k, "jwt.secret", &config.SecretKey)
	envDuration(k, "jwt.expiration_hours", time.Hour, &config.AccessTokenValidityDuration)
	envDuration(k, "jwt.refresh_expiration_days", 24*time.Hour, &config.RefreshTokenValidityDuration)

	envString(k, "storage.endpoint", &config.S3BaseEndpoint)
	envString(k, "storage.public_endpoint", &config.S3PublicEndpoint)
	envString(k, "storage.bucket", &config.S3Bucket)
	envString(k, "storage.region", &config.S3Region)
	envString(k, "storage.access_key", &config.S3AccessKey)
	envString(k, "storage.secret_key", &config.S3SecretKey)
	envDuration(k, "storage.presign_expiry_secs", time.Second, &config.S3PresignExpiry)

	envString(k, "queue.url", &config.NATSURL)
	envString(k, "queue.analysis_queue", &config.AnalysisQueue)

	envInt(k, "auth.hash_workers", &config.HashWorkers)

	envString(k, "log.backend", &config.LogBackend)
	envString(k, "log.level", &config.LogLevel)
	envString(k, "log.format", &config.LogFormat)
}

func envString(k *koanf.Koanf, path string, dst *string) {
	if k.Exists(path) {
		*dst = k.String(path)
	}
}

func envInt(k *koanf.Koanf, path string, dst *int) {
	if !k.Exists(path) {
		return
	}
	v, err := strconv.Atoi(strings.TrimSpace(k.String(path)))
	if err != nil {
		panic(fmt.Errorf("%s: %w", path, err))
	}
	*dst = v
}

// envDuration reads an integer count of unit.
func envDuration(k *koanf.Koanf, path string, unit time.Duration, dst *time.Duration) {
	var n int
	if !k.Exists(path) {
		return
	}
	envInt(k, path, &n)
	*dst = time.Duration(n) * unit
}

func splitAddr(addr string) (string, string) {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return addr, ""
	}
	return addr[:i], addr[i+1:]
}
