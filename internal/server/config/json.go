package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/accounts/internal/flagx"
	"github.com/dmitrijs2005/accounts/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Durations accept both "60m" and
// integer nanoseconds. Only fields present in the file override the target.
type JsonConfig struct {
	DatabaseDSN           *string         `json:"database_dsn"`
	SecretKey             *string         `json:"secret_key"`
	TokenValidityDuration *timex.Duration `json:"token_validity_duration"`
	PasswordHasher        *string         `json:"password_hasher"`
	BcryptCost            *int            `json:"bcrypt_cost"`
	LogLevel              *string         `json:"log_level"`
	ProfileStorage        *string         `json:"profile_storage"`
	PublicDir             *string         `json:"public_dir"`
	S3RootUser            *string         `json:"s3_root_user"`
	S3RootPassword        *string         `json:"s3_root_password"`
	S3Bucket              *string         `json:"s3_bucket"`
	S3Region              *string         `json:"s3_region"`
	S3BaseEndpoint        *string         `json:"s3_base_endpoint"`
}

// parseJson overlays values from the file named by -c / -config. Nothing is
// loaded when neither flag is given. An unreadable or invalid file panics.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigFilePath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.TokenValidityDuration != nil {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}
	setString(&config.PasswordHasher, c.PasswordHasher)
	if c.BcryptCost != nil {
		config.BcryptCost = *c.BcryptCost
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.ProfileStorage, c.ProfileStorage)
	setString(&config.PublicDir, c.PublicDir)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
