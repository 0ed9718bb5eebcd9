// Package config centraliza o carregamento de configurações do gateway.
//
// Lê um .env opcional (godotenv) e depois as variáveis de ambiente. Valores
// malformados falham o carregamento em vez de cair silenciosamente no padrão.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr  string `validate:"required"`
	UpstreamURL string `validate:"omitempty,url"`

	// Backend escolhe o QuotaStore uma única vez na subida.
	Backend       string `validate:"oneof=memory redis"`
	RedisAddr     string `validate:"required_if=Backend redis"`
	RedisPassword string
	RedisDB       int `validate:"gte=0"`
	RedisHashTag  bool
	// RedisFlagSuffix é anexado à chave do contador para formar a flag de suspeita.
	RedisFlagSuffix string `validate:"required"`

	FailureMode  string        `validate:"oneof=fail-open fail-closed"`
	StoreTimeout time.Duration `validate:"gte=0"`
	// ApproachingRatio é a fração de cota restante que gera o evento "approaching"; 0 desliga.
	ApproachingRatio float64 `validate:"gte=0,lt=1"`

	Routes        string
	DefaultPolicy string
	KeyHeader     string
	TrustProxy    bool
	SkipUnknown   bool
	AddHeaders    bool

	Events            string        `validate:"oneof=none log memory redis"`
	EventsPrefix      string        `validate:"required"`
	EventsTTL         time.Duration `validate:"gte=0"`
	EventsMaxInFlight int           `validate:"gt=0"`
	// EventsStreamMaxLen limita o stream de auditoria no Redis; 0 desliga o stream.
	EventsStreamMaxLen int64 `validate:"gte=0"`

	JWTSecret  string
	AdminToken string

	LogLevel     string `validate:"oneof=debug info warn error"`
	LogFormat    string `validate:"oneof=text json"`
	OTLPEndpoint string
}

// DefaultRoutes mapeia as rotas da API às políticas da tabela de referência.
const DefaultRoutes = "/api/auth/login=auth,/api/auth/signup=signup,/api/auth/password-reset=password-reset," +
	"/api/auth/token=token,/api/payments=financial,/api/admin=admin"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load lê .env (se existir) e o ambiente.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv monta a configuração a partir de uma função de lookup (testável).
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}

	cfg := Config{
		ListenAddr:  e.str("LISTEN_ADDR", ":8080"),
		UpstreamURL: e.str("UPSTREAM_URL", ""),

		Backend:         strings.ToLower(e.str("RATE_BACKEND", "memory")),
		RedisAddr:       e.str("RATE_REDIS_ADDR", ""),
		RedisPassword:   e.str("RATE_REDIS_PASSWORD", ""),
		RedisDB:         e.int("RATE_REDIS_DB", 0),
		RedisHashTag:    e.bool("RATE_REDIS_HASHTAG", false),
		RedisFlagSuffix: e.str("RATE_REDIS_FLAG_SUFFIX", ":suspicious"),

		FailureMode:      strings.ToLower(e.str("RATE_FAILURE_MODE", "fail-open")),
		StoreTimeout:     e.duration("RATE_STORE_TIMEOUT", 250*time.Millisecond),
		ApproachingRatio: e.float("RATE_APPROACHING_RATIO", 0.2),

		Routes:        e.str("RATE_ROUTES", DefaultRoutes),
		DefaultPolicy: e.str("RATE_DEFAULT_POLICY", "api"),
		KeyHeader:     e.str("RATE_KEY_HEADER", ""),
		TrustProxy:    e.bool("TRUST_PROXY", false),
		SkipUnknown:   e.bool("RATE_SKIP_UNKNOWN", false),
		AddHeaders:    e.bool("ADD_RATELIMIT_HEADERS", true),

		Events:             strings.ToLower(e.str("RATE_EVENTS", "log")),
		EventsPrefix:       e.str("RATE_EVENTS_PREFIX", "ratelimit:events"),
		EventsTTL:          e.duration("RATE_EVENTS_TTL", 24*time.Hour),
		EventsMaxInFlight:  e.int("RATE_EVENTS_MAX_INFLIGHT", 64),
		EventsStreamMaxLen: int64(e.int("RATE_EVENTS_STREAM_MAXLEN", 10000)),

		JWTSecret:  e.str("RATE_JWT_SECRET", ""),
		AdminToken: e.str("ADMIN_TOKEN", ""),

		LogLevel:     strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogFormat:    strings.ToLower(e.str("LOG_FORMAT", "text")),
		OTLPEndpoint: e.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Events == "redis" && strings.TrimSpace(cfg.RedisAddr) == "" {
		return Config{}, errors.New("RATE_REDIS_ADDR is required when RATE_EVENTS=redis")
	}
	return cfg, nil
}

// NeedsRedis informa se algum componente usa o Redis.
func (c Config) NeedsRedis() bool {
	return c.Backend == "redis" || c.Events == "redis"
}

// env lê variáveis acumulando erros de parse.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) raw(k string) (string, bool) {
	v, ok := e.lookup(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) str(k, def string) string {
	if v, ok := e.raw(k); ok {
		return v
	}
	return def
}

func (e *env) int(k string, def int) int {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return i
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return f
}

func (e *env) bool(k string, def bool) bool {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return b
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", k, err))
		return def
	}
	return d
}
