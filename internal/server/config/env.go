package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv loads a .env file from the working directory when present and
// overlays every non-empty CLEARHUMA_* variable onto config. A malformed
// duration or size panics, the same as a malformed JSON file or flag.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				panic(fmt.Errorf("%s: %w", key, err))
			}
			*dst = d
		}
	}

	str("CLEARHUMA_HTTP_ADDR", &config.EndpointAddrHTTP)
	str("CLEARHUMA_GRPC_ADDR", &config.EndpointAddrGRPC)
	str("CLEARHUMA_DATABASE_DSN", &config.DatabaseDSN)
	str("CLEARHUMA_SECRET_KEY", &config.SecretKey)
	dur("CLEARHUMA_ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	dur("CLEARHUMA_REFRESH_TOKEN_TTL", &config.RefreshTokenValidityDuration)

	str("CLEARHUMA_S3_ACCESS_KEY", &config.S3AccessKey)
	str("CLEARHUMA_S3_SECRET_KEY", &config.S3SecretKey)
	str("CLEARHUMA_S3_BUCKET", &config.S3Bucket)
	str("CLEARHUMA_S3_REGION", &config.S3Region)
	str("CLEARHUMA_S3_ENDPOINT", &config.S3BaseEndpoint)
	str("CLEARHUMA_S3_PUBLIC_URL", &config.S3PublicURL)

	str("CLEARHUMA_GITHUB_TOKEN", &config.GitHub.Token)
	str("CLEARHUMA_GITHUB_REPO", &config.GitHub.Repo)
	str("CLEARHUMA_GITHUB_WORKFLOW", &config.GitHub.WorkflowFile)
	str("CLEARHUMA_GITHUB_REF", &config.GitHub.Ref)
	str("CLEARHUMA_GITHUB_API_URL", &config.GitHub.APIBaseURL)
	str("CLEARHUMA_CALLBACK_SECRET", &config.CallbackSecret)
	str("CLEARHUMA_PUBLIC_BASE_URL", &config.PublicBaseURL)

	dur("CLEARHUMA_ACTIVATION_CODE_TTL", &config.ActivationCodeTTL)
	dur("CLEARHUMA_SIGNIN_TOKEN_TTL", &config.SignInTokenTTL)
	dur("CLEARHUMA_BUILD_TIMEOUT", &config.BuildTimeout)
	dur("CLEARHUMA_BUILD_REAP_INTERVAL", &config.BuildReapInterval)
	if v := os.Getenv("CLEARHUMA_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			panic(fmt.Errorf("CLEARHUMA_MAX_UPLOAD_BYTES: %w", err))
		}
		config.MaxUploadBytes = n
	}

	str("CLEARHUMA_CORS_ORIGIN", &config.CORSAllowOrigin)
	str("CLEARHUMA_LOG_LEVEL", &config.LogLevel)
	str("CLEARHUMA_LOG_FORMAT", &config.LogFormat)
}
