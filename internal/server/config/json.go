package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/clearhuma/internal/flagx"
	"github.com/dmitrijs2005/clearhuma/internal/timex"
)

type JsonGitHub struct {
	Token        string `json:"token"`
	Repo         string `json:"repo"`
	WorkflowFile string `json:"workflow_file"`
	Ref          string `json:"ref"`
	APIBaseURL   string `json:"api_base_url"`
}

// JsonConfig is the on-disk shape of the config file. Durations accept
// either "30m" style strings or integer nanoseconds. Omitted fields keep the
// value from earlier stages.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	S3AccessKey                  string         `json:"s3_access_key"`
	S3SecretKey                  string         `json:"s3_secret_key"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	S3PublicURL                  string         `json:"s3_public_url"`
	GitHub                       JsonGitHub     `json:"github"`
	CallbackSecret               string         `json:"callback_secret"`
	PublicBaseURL                string         `json:"public_base_url"`
	ActivationCodeTTL            timex.Duration `json:"activation_code_ttl"`
	SignInTokenTTL               timex.Duration `json:"signin_token_ttl"`
	BuildTimeout                 timex.Duration `json:"build_timeout"`
	BuildReapInterval            timex.Duration `json:"build_reap_interval"`
	MaxUploadBytes               int64          `json:"max_upload_bytes"`
	CORSAllowOrigin              string         `json:"cors_allow_origin"`
	LogLevel                     string         `json:"log_level"`
	LogFormat                    string         `json:"log_format"`
}

// parseJson overlays the JSON file named by -c/-config (or CLEARHUMA_CONFIG)
// onto config. No path means nothing to do; an unreadable or invalid file
// panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFilePath(EnvConfigFile)
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.applyTo(config)
}

func (c *JsonConfig) applyTo(config *Config) {
	setStr(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setStr(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setStr(&config.DatabaseDSN, c.DatabaseDSN)
	setStr(&config.SecretKey, c.SecretKey)
	setDur(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDur(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setStr(&config.S3AccessKey, c.S3AccessKey)
	setStr(&config.S3SecretKey, c.S3SecretKey)
	setStr(&config.S3Bucket, c.S3Bucket)
	setStr(&config.S3Region, c.S3Region)
	setStr(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setStr(&config.S3PublicURL, c.S3PublicURL)
	setStr(&config.GitHub.Token, c.GitHub.Token)
	setStr(&config.GitHub.Repo, c.GitHub.Repo)
	setStr(&config.GitHub.WorkflowFile, c.GitHub.WorkflowFile)
	setStr(&config.GitHub.Ref, c.GitHub.Ref)
	setStr(&config.GitHub.APIBaseURL, c.GitHub.APIBaseURL)
	setStr(&config.CallbackSecret, c.CallbackSecret)
	setStr(&config.PublicBaseURL, c.PublicBaseURL)
	setDur(&config.ActivationCodeTTL, c.ActivationCodeTTL)
	setDur(&config.SignInTokenTTL, c.SignInTokenTTL)
	setDur(&config.BuildTimeout, c.BuildTimeout)
	setDur(&config.BuildReapInterval, c.BuildReapInterval)
	if c.MaxUploadBytes > 0 {
		config.MaxUploadBytes = c.MaxUploadBytes
	}
	setStr(&config.CORSAllowOrigin, c.CORSAllowOrigin)
	setStr(&config.LogLevel, c.LogLevel)
	setStr(&config.LogFormat, c.LogFormat)
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDur(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
