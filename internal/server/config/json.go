package config

import (
	"os"

	"github.com/dmitrijs2005/cellscope/internal/flagx"
	"github.com/dmitrijs2005/cellscope/internal/timex"
	"github.com/goccy/go-json"
)

// JsonConfig is the on-disk shape of the configuration file. Durations are
// timex.Duration so both "24h" and integer nanoseconds are accepted. Fields
// absent from the file keep their current value.
type JsonConfig struct {
	EndpointAddrHTTP             *string         `json:"endpoint_addr_http"`
	DatabaseDSN                  *string         `json:"database_dsn"`
	DatabaseMaxConns             *int            `json:"database_max_conns"`
	DatabaseMinConns             *int            `json:"database_min_conns"`
	SecretKey                    *string         `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	S3AccessKey                  *string         `json:"s3_access_key"`
	S3SecretKey                  *string         `json:"s3_secret_key"`
	S3Bucket                     *string         `json:"s3_bucket"`
	S3Region                     *string         `json:"s3_region"`
	S3BaseEndpoint               *string         `json:"s3_base_endpoint"`
	S3PublicEndpoint             *string         `json:"s3_public_endpoint"`
	S3PresignExpiry              *timex.Duration `json:"s3_presign_expiry"`
	NATSURL                      *string         `json:"nats_url"`
	AnalysisQueue                *string         `json:"analysis_queue"`
	HashWorkers                  *int            `json:"hash_workers"`
	LogBackend                   *string         `json:"log_backend"`
	LogLevel                     *string         `json:"log_level"`
	LogFormat                    *string         `json:"log_format"`
}

// parseJson overlays config with the file named by -c/-config (or
// $CELLSCOPE_CONFIG). No path means nothing to load. An unreadable or
// invalid file panics.
func parseJson(config *Config) {
	path := flagx.ConfigFilePath(os.Args[1:])
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setInt(&config.DatabaseMaxConns, c.DatabaseMaxConns)
	setInt(&config.DatabaseMinConns, c.DatabaseMinConns)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3PublicEndpoint, c.S3PublicEndpoint)
	if c.S3PresignExpiry != nil {
		config.S3PresignExpiry = c.S3PresignExpiry.Duration
	}
	setString(&config.NATSURL, c.NATSURL)
	setString(&config.AnalysisQueue, c.AnalysisQueue)
	setInt(&config.HashWorkers, c.HashWorkers)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
