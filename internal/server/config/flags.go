package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   HTTP bind address (e.g. "0.0.0.0:8080")
//	-d string   PostgreSQL DSN
//	-s string   token secret
//	-t int      access token validity, hours
//	-r int      refresh token validity, days
//	-u string   S3 access key
//	-p string   S3 secret key
//	-b string   S3 bucket
//	-g string   S3 region
//	-e string   S3 endpoint
//	-q string   NATS URL
//	-w int      password hashing workers
//
// Only these flags are taken from args so other components can define their
// own. A parse error panics.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-t", "-r", "-u", "-p", "-b", "-g", "-e", "-q", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "token secret key")

	accessHours := fs.Int("t", int(config.AccessTokenValidityDuration.Hours()), "access token validity (in hours)")
	refreshDays := fs.Int("r", int(config.RefreshTokenValidityDuration.Hours()/24), "refresh token validity (in days)")

	fs.StringVar(&config.S3AccessKey, "u", config.S3AccessKey, "S3 access key")
	fs.StringVar(&config.S3SecretKey, "p", config.S3SecretKey, "S3 secret key")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 endpoint")
	fs.StringVar(&config.NATSURL, "q", config.NATSURL, "NATS server URL")
	fs.IntVar(&config.HashWorkers, "w", config.HashWorkers, "password hashing workers")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessHours) * time.Hour
	config.RefreshTokenValidityDuration = time.Duration(*refreshDays) * 24 * time.Hour
}
