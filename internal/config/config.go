package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Lifecycle states of an API generation.
const (
	StateActive     = "active"
	StateDeprecated = "deprecated"
	StateRetired    = "retired"
)

// Rate-limit key strategies.
const (
	KeyByIP     = "ip"
	KeyByOrigin = "origin"
)

type Config struct {
	Addr       string
	DBPath     string
	JWTSecret  string
	Issuer     string
	V1         Generation
	V2         Generation
	RateLimits RateLimits
	Redis      Redis
	LogLevel   string
	LogFormat  string
	TrustProxy bool
}

// Generation configures one API version.
type Generation struct {
	TokenTTL time.Duration
	State    string
}

type RateLimits struct {
	Window  time.Duration
	KeyBy   string
	Token   int
	Test    int
	Posts   int
	Hashtag int
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

func (r Redis) Enabled() bool {
	return r.Addr != ""
}

func Load() Config {
	addr := envString("NODEBIRD_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8002"
		}
	}
	cfg := Config{
		Addr:      addr,
		DBPath:    envString("NODEBIRD_DB", "nodebird.db"),
		JWTSecret: envString("JWT_SECRET", "dev-jwt-secret"),
		Issuer:    envString("NODEBIRD_TOKEN_ISSUER", "nodebird"),
		V1: Generation{
			TokenTTL: envDuration("NODEBIRD_V1_TOKEN_TTL", time.Minute),
			State:    envString("NODEBIRD_V1_STATE", StateDeprecated),
		},
		V2: Generation{
			TokenTTL: envDuration("NODEBIRD_V2_TOKEN_TTL", 30*time.Minute),
			State:    envString("NODEBIRD_V2_STATE", StateActive),
		},
		RateLimits: RateLimits{
			Window:  envDuration("NODEBIRD_RL_WINDOW", time.Minute),
			KeyBy:   envString("NODEBIRD_RL_KEY", KeyByIP),
			Token:   envInt("NODEBIRD_RL_TOKEN", 1),
			Test:    envInt("NODEBIRD_RL_TEST", 1),
			Posts:   envInt("NODEBIRD_RL_POSTS", 1),
			Hashtag: envInt("NODEBIRD_RL_HASHTAG", 1),
		},
		Redis: Redis{
			Addr:     envString("NODEBIRD_REDIS_ADDR", ""),
			Password: envString("NODEBIRD_REDIS_PASSWORD", ""),
			DB:       envInt("NODEBIRD_REDIS_DB", 0),
		},
		LogLevel:   envString("NODEBIRD_LOG_LEVEL", "info"),
		LogFormat:  envString("NODEBIRD_LOG_FORMAT", "text"),
		TrustProxy: envBool("NODEBIRD_TRUST_PROXY", false),
	}

	return cfg
}

// Validate reports configuration that would make the gateway misbehave.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.V1.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("v1 token ttl must be positive, got %s", c.V1.TokenTTL))
	}
	if c.V2.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("v2 token ttl must be positive, got %s", c.V2.TokenTTL))
	}
	if c.RateLimits.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate window must be positive, got %s", c.RateLimits.Window))
	}
	for name, state := range map[string]string{"v1": c.V1.State, "v2": c.V2.State} {
		switch state {
		case StateActive, StateDeprecated, StateRetired:
		default:
			errs = append(errs, fmt.Errorf("%s state %q: want active, deprecated or retired", name, state))
		}
	}
	switch c.RateLimits.KeyBy {
	case KeyByIP, KeyByOrigin:
	default:
		errs = append(errs, fmt.Errorf("rate limit key %q: want ip or origin", c.RateLimits.KeyBy))
	}
	return errors.Join(errs...)
}

// CallConfig configures the nodebird-call client service.
type CallConfig struct {
	Addr         string
	APIURL       string
	ClientSecret string
	Version      string
	Origin       string
	PaceRPS      float64
}

func LoadCall() CallConfig {
	return CallConfig{
		Addr:         envString("NODEBIRD_CALL_ADDR", ":8003"),
		APIURL:       envString("NODEBIRD_API_URL", "http://localhost:8002"),
		ClientSecret: envString("CLIENT_SECRET", ""),
		Version:      envString("NODEBIRD_API_VERSION", "v2"),
		Origin:       envString("NODEBIRD_CALL_ORIGIN", ""),
		PaceRPS:      envFloat("NODEBIRD_CALL_RPS", 0),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
