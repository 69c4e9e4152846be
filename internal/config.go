package internal

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Tokens        TokensConfig        `mapstructure:"tokens"`
	Invitation    InvitationConfig    `mapstructure:"invitation"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	BaseURL        string `mapstructure:"base_url"`
	AllowedOrigins string `mapstructure:"allowed_origins"`
	OpenAPIPath    string `mapstructure:"openapi_path"`
	// TrustProxyHeaders lets X-Forwarded-For / X-Real-IP set the client address.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool          `mapstructure:"trust_proxy_headers"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	SecretKey             string        `mapstructure:"secret_key"`
	Algorithm             string        `mapstructure:"algorithm"`
	JWTPrivateKey         string        `mapstructure:"jwt_private_key"`
	JWTPublicKey          string        `mapstructure:"jwt_public_key"`
	AccessTokenDuration   time.Duration `mapstructure:"access_token_duration" validate:"required,min=1m,max=1h"`
	RefreshTokenDuration  time.Duration `mapstructure:"refresh_token_duration" validate:"required,min=1h"`
	BCryptCost            int           `mapstructure:"bcrypt_cost" validate:"required,min=10,max=15"`
	RevokeRefreshOnRotate bool          `mapstructure:"revoke_refresh_on_rotate"`
}

type TokensConfig struct {
	PasswordResetTTL time.Duration `mapstructure:"password_reset_ttl"`
	LoginCodeTTL     time.Duration `mapstructure:"login_code_ttl"`
	MagicLinkTTL     time.Duration `mapstructure:"magic_link_ttl"`
}

type InvitationConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

const (
	DefaultAlgorithm        = "HS256"
	DefaultAccessTokenTTL   = 30 * time.Minute
	DefaultRefreshTokenTTL  = 30 * 24 * time.Hour
	DefaultPasswordResetTTL = 30 * time.Minute
	DefaultLoginCodeTTL     = time.Minute
	DefaultMagicLinkTTL     = 15 * time.Minute
	DefaultInvitationTTL    = 24 * time.Hour
	MinBCryptCost           = 10
)

// LoadConfigFromEnv builds the configuration from plain environment variables.
// SECRET_KEY, ALGORITHM, ACCESS_TOKEN_EXPIRE_MINUTES and JWT_REFRESH_EXPIRY (days)
// keep the names the deployment already uses.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", 8080),
			BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			OpenAPIPath:       getEnv("OPENAPI_PATH", "./api/openapi.yml"),
			TrustProxyHeaders: getEnvAsBool("TRUST_PROXY_HEADERS", false),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Source:          getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			QueryTimeout:    getEnvAsDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		},
		Security: SecurityConfig{
			SecretKey:             getEnv("SECRET_KEY", ""),
			Algorithm:             getEnv("ALGORITHM", DefaultAlgorithm),
			JWTPrivateKey:         getEnv("JWT_PRIVATE_KEY", ""),
			JWTPublicKey:          getEnv("JWT_PUBLIC_KEY", ""),
			AccessTokenDuration:   time.Duration(getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", int(DefaultAccessTokenTTL/time.Minute))) * time.Minute,
			RefreshTokenDuration:  time.Duration(getEnvAsInt("JWT_REFRESH_EXPIRY", int(DefaultRefreshTokenTTL/(24*time.Hour)))) * 24 * time.Hour,
			BCryptCost:            getEnvAsInt("BCRYPT_COST", 12),
			RevokeRefreshOnRotate: getEnv("REVOKE_REFRESH_ON_ROTATE", "false") == "true",
		},
		Tokens: TokensConfig{
			PasswordResetTTL: getEnvAsDuration("PASSWORD_RESET_TTL", DefaultPasswordResetTTL),
			LoginCodeTTL:     getEnvAsDuration("LOGIN_CODE_TTL", DefaultLoginCodeTTL),
			MagicLinkTTL:     getEnvAsDuration("MAGIC_LINK_TTL", DefaultMagicLinkTTL),
		},
		Invitation: InvitationConfig{
			TTL: getEnvAsDuration("INVITATION_TTL", DefaultInvitationTTL),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnv("RATE_LIMIT_ENABLED", "true") == "true",
			RequestsPerSecond: float64(getEnvAsInt("RATE_LIMIT_RPS", 5)),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnv("METRICS_ENABLED", "true") == "true",
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values left by a partial config file.
func (c *Config) ApplyDefaults() {
	if c.Security.Algorithm == "" {
		c.Security.Algorithm = DefaultAlgorithm
	}
	if c.Security.AccessTokenDuration <= 0 {
		c.Security.AccessTokenDuration = DefaultAccessTokenTTL
	}
	if c.Security.RefreshTokenDuration <= 0 {
		c.Security.RefreshTokenDuration = DefaultRefreshTokenTTL
	}
	if c.Security.BCryptCost < MinBCryptCost {
		c.Security.BCryptCost = MinBCryptCost
	}
	if c.Tokens.PasswordResetTTL <= 0 {
		c.Tokens.PasswordResetTTL = DefaultPasswordResetTTL
	}
	if c.Tokens.LoginCodeTTL <= 0 {
		c.Tokens.LoginCodeTTL = DefaultLoginCodeTTL
	}
	if c.Tokens.MagicLinkTTL <= 0 {
		c.Tokens.MagicLinkTTL = DefaultMagicLinkTTL
	}
	if c.Invitation.TTL <= 0 {
		c.Invitation.TTL = DefaultInvitationTTL
	}
	if c.Server.OpenAPIPath == "" {
		c.Server.OpenAPIPath = "./api/openapi.yml"
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	switch c.Algorithm {
	case "HS256", "HS384", "HS512":
		if len(c.SecretKey) < 32 {
			return errors.New("secret_key must be at least 32 characters")
		}
	case "RS256", "RS384", "RS512":
		if _, err := c.GetPrivateKey(); err != nil {
			return fmt.Errorf("invalid JWT private key: %w", err)
		}
		if _, err := c.GetPublicKey(); err != nil {
			return fmt.Errorf("invalid JWT public key: %w", err)
		}
	default:
		return fmt.Errorf("unsupported algorithm %q", c.Algorithm)
	}
	if c.AccessTokenDuration >= c.RefreshTokenDuration {
		return errors.New("refresh_token_duration must be longer than access_token_duration")
	}
	if c.BCryptCost < MinBCryptCost {
		return fmt.Errorf("bcrypt_cost must be at least %d", MinBCryptCost)
	}
	return nil
}

func (c *SecurityConfig) GetPrivateKey() (*rsa.PrivateKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func (c *SecurityConfig) GetPublicKey() (*rsa.PublicKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}

// SigningKeys returns the key used to sign tokens and the key used to verify
// them for the configured algorithm.
func (c *SecurityConfig) SigningKeys() (sign interface{}, verify interface{}, err error) {
	switch c.Algorithm {
	case "HS256", "HS384", "HS512":
		return []byte(c.SecretKey), []byte(c.SecretKey), nil
	case "RS256", "RS384", "RS512":
		priv, err := c.GetPrivateKey()
		if err != nil {
			return nil, nil, err
		}
		pub, err := c.GetPublicKey()
		if err != nil {
			return nil, nil, err
		}
		return priv, pub, nil
	}
	return nil, nil, fmt.Errorf("unsupported algorithm %q", c.Algorithm)
}
