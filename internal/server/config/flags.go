package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/accounts/internal/flagx"
)

var serverFlags = []string{"-d", "-s", "-t", "-w", "-x", "-l", "-f", "-o", "-u", "-p", "-b", "-g", "-e"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      token validity, minutes
//	-w int      bcrypt cost
//	-x string   password hasher (bcrypt, argon2id)
//	-l string   log level
//	-f string   profile storage (fs, s3)
//	-o string   public assets directory for the fs profile storage
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Args are filtered with flagx.FilterArgs first, so flags of other
// components do not break parsing. Invalid values panic.
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("accounts", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token validity duration (in minutes)")
	fs.IntVar(&config.BcryptCost, "w", config.BcryptCost, "bcrypt cost")
	fs.StringVar(&config.PasswordHasher, "x", config.PasswordHasher, "password hasher (bcrypt, argon2id)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.ProfileStorage, "f", config.ProfileStorage, "profile storage (fs, s3)")
	fs.StringVar(&config.PublicDir, "o", config.PublicDir, "public assets directory")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(flagx.FilterArgs(args, serverFlags)); err != nil {
		panic(err)
	}

	config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
}
