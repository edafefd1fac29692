package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// Host público del servicio (ej. auth.example.com). Se usa para el
		// chequeo same-domain cuando el Host del request viene de un proxy.
		PublicHost string `yaml:"public_host"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Auth struct {
		Session struct {
			CookieName string `yaml:"cookie_name"`
			Domain     string `yaml:"domain"`
			SameSite   string `yaml:"samesite"`
			Secure     bool   `yaml:"secure"`
			TTL        string `yaml:"ttl"`
		} `yaml:"session"`
	} `yaml:"auth"`

	OIDC struct {
		Issuer     string `yaml:"issuer"`
		IDTokenTTL string `yaml:"id_token_ttl"`
		CodeTTL    string `yaml:"code_ttl"`
		// SelfSiteID es el site del propio servicio de autenticación: se usa
		// como fallback para eventos de login/logout sin contexto de client.
		SelfSiteID int64 `yaml:"self_site_id"`
	} `yaml:"oidc"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		Login   struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`
		Register struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"register"`
	} `yaml:"rate"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Downstream struct {
		AccessControl struct {
			BaseURL string `yaml:"base_url"`
			APIKey  string `yaml:"api_key"`
			Timeout string `yaml:"timeout"`
		} `yaml:"access_control"`
		UserDataStore struct {
			BaseURL string `yaml:"base_url"`
			APIKey  string `yaml:"api_key"`
			Timeout string `yaml:"timeout"`
		} `yaml:"user_data_store"`
	} `yaml:"downstream"`

	Stream struct {
		// Nombre del stream de auditoría (Redis Stream).
		Name   string `yaml:"name"`
		MaxLen int64  `yaml:"max_len"`
	} `yaml:"stream"`

	Tasks struct {
		Kind        string `yaml:"kind"` // memory | redis
		QueueKey    string `yaml:"queue_key"`
		Concurrency int    `yaml:"concurrency"`
		MaxRetries  int    `yaml:"max_retries"`
		Backoff     string `yaml:"backoff"`
	} `yaml:"tasks"`

	Security struct {
		PasswordPolicy struct {
			MinLength     int  `yaml:"min_length"`
			RequireUpper  bool `yaml:"require_upper"`
			RequireLower  bool `yaml:"require_lower"`
			RequireDigit  bool `yaml:"require_digit"`
			RequireSymbol bool `yaml:"require_symbol"`
		} `yaml:"password_policy"`
		IDTokenSigningKey string `yaml:"id_token_signing_key"` // HMAC dev; en prod via ENV
		AdminAPIKey       string `yaml:"admin_api_key"`
	} `yaml:"security"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	// Overrides por env + salvaguarda prod
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFromEnv arma la config efectiva usando SOLO variables de entorno
// (más defaults). Útil para despliegues sin YAML.
func LoadFromEnv() (*Config, error) {
	c := &Config{}
	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "portero"
	}
	if c.Auth.Session.CookieName == "" {
		c.Auth.Session.CookieName = "sid"
	}
	if c.Auth.Session.SameSite == "" {
		c.Auth.Session.SameSite = "Lax"
	}
	if c.Auth.Session.TTL == "" {
		c.Auth.Session.TTL = "12h"
	}
	if c.OIDC.IDTokenTTL == "" {
		c.OIDC.IDTokenTTL = "15m"
	}
	if c.OIDC.CodeTTL == "" {
		c.OIDC.CodeTTL = "5m"
	}
	if c.OIDC.SelfSiteID == 0 {
		c.OIDC.SelfSiteID = 1
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
	if c.Rate.Register.Limit == 0 {
		c.Rate.Register.Limit = 5
	}
	if c.Rate.Register.Window == "" {
		c.Rate.Register.Window = "10m"
	}
	if c.Downstream.AccessControl.Timeout == "" {
		c.Downstream.AccessControl.Timeout = "10s"
	}
	if c.Downstream.UserDataStore.Timeout == "" {
		c.Downstream.UserDataStore.Timeout = "10s"
	}
	if c.Stream.Name == "" {
		c.Stream.Name = "portero:audit"
	}
	if c.Stream.MaxLen == 0 {
		c.Stream.MaxLen = 100000
	}
	if c.Tasks.Kind == "" {
		c.Tasks.Kind = "memory"
	}
	if c.Tasks.QueueKey == "" {
		c.Tasks.QueueKey = "portero:tasks"
	}
	if c.Tasks.Concurrency == 0 {
		c.Tasks.Concurrency = 4
	}
	if c.Tasks.MaxRetries == 0 {
		c.Tasks.MaxRetries = 2
	}
	if c.Tasks.Backoff == "" {
		c.Tasks.Backoff = "300s"
	}
	if c.Security.PasswordPolicy.MinLength == 0 {
		c.Security.PasswordPolicy.MinLength = 10
	}
	if c.Storage.Postgres.MaxOpenConns == 0 {
		c.Storage.Postgres.MaxOpenConns = 10
	}
	if c.Storage.Postgres.MaxIdleConns == 0 {
		c.Storage.Postgres.MaxIdleConns = 2
	}
	if c.Storage.Postgres.ConnMaxLifetime == "" {
		c.Storage.Postgres.ConnMaxLifetime = "30m"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvInt64(key string) (int64, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno
// y fuerza seguridad en prod.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_PUBLIC_HOST"); ok {
		c.Server.PublicHost = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}
	if v, ok := getEnvStr("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvStr("CACHE_MEMORY_DEFAULT_TTL"); ok {
		c.Cache.Memory.DefaultTTL = v
	}

	// AUTH / SESSION
	if v, ok := getEnvStr("AUTH_SESSION_COOKIE_NAME"); ok {
		c.Auth.Session.CookieName = v
	}
	if v, ok := getEnvStr("AUTH_SESSION_DOMAIN"); ok {
		c.Auth.Session.Domain = v
	}
	if v, ok := getEnvStr("AUTH_SESSION_SAMESITE"); ok {
		c.Auth.Session.SameSite = v
	}
	if v, ok := getEnvBool("AUTH_SESSION_SECURE"); ok {
		c.Auth.Session.Secure = v
	}
	if v, ok := getEnvStr("AUTH_SESSION_TTL"); ok {
		c.Auth.Session.TTL = v
	}

	// OIDC
	if v, ok := getEnvStr("OIDC_ISSUER"); ok {
		c.OIDC.Issuer = v
	}
	if v, ok := getEnvStr("OIDC_ID_TOKEN_TTL"); ok {
		c.OIDC.IDTokenTTL = v
	}
	if v, ok := getEnvStr("OIDC_CODE_TTL"); ok {
		c.OIDC.CodeTTL = v
	}
	if v, ok := getEnvInt64("OIDC_SELF_SITE_ID"); ok {
		c.OIDC.SelfSiteID = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_LOGIN_LIMIT"); ok {
		c.Rate.Login.Limit = v
	}
	if v, ok := getEnvStr("RATE_LOGIN_WINDOW"); ok {
		c.Rate.Login.Window = v
	}
	if v, ok := getEnvInt("RATE_REGISTER_LIMIT"); ok {
		c.Rate.Register.Limit = v
	}
	if v, ok := getEnvStr("RATE_REGISTER_WINDOW"); ok {
		c.Rate.Register.Window = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvBool("SMTP_INSECURE_SKIP_VERIFY"); ok {
		c.SMTP.InsecureSkipVerify = v
	}

	// DOWNSTREAM
	if v, ok := getEnvStr("ACCESS_CONTROL_URL"); ok {
		c.Downstream.AccessControl.BaseURL = v
	}
	if v, ok := getEnvStr("ACCESS_CONTROL_API_KEY"); ok {
		c.Downstream.AccessControl.APIKey = v
	}
	if v, ok := getEnvStr("ACCESS_CONTROL_TIMEOUT"); ok {
		c.Downstream.AccessControl.Timeout = v
	}
	if v, ok := getEnvStr("USER_DATA_STORE_URL"); ok {
		c.Downstream.UserDataStore.BaseURL = v
	}
	if v, ok := getEnvStr("USER_DATA_STORE_API_KEY"); ok {
		c.Downstream.UserDataStore.APIKey = v
	}
	if v, ok := getEnvStr("USER_DATA_STORE_TIMEOUT"); ok {
		c.Downstream.UserDataStore.Timeout = v
	}

	// STREAM
	if v, ok := getEnvStr("STREAM_NAME"); ok {
		c.Stream.Name = v
	}
	if v, ok := getEnvInt64("STREAM_MAX_LEN"); ok {
		c.Stream.MaxLen = v
	}

	// TASKS
	if v, ok := getEnvStr("TASKS_KIND"); ok {
		c.Tasks.Kind = v
	}
	if v, ok := getEnvStr("TASKS_QUEUE_KEY"); ok {
		c.Tasks.QueueKey = v
	}
	if v, ok := getEnvInt("TASKS_CONCURRENCY"); ok {
		c.Tasks.Concurrency = v
	}
	if v, ok := getEnvInt("TASKS_MAX_RETRIES"); ok {
		c.Tasks.MaxRetries = v
	}
	if v, ok := getEnvStr("TASKS_BACKOFF"); ok {
		c.Tasks.Backoff = v
	}

	// SECURITY
	if v, ok := getEnvInt("SECURITY_PASSWORD_POLICY_MIN_LENGTH"); ok {
		c.Security.PasswordPolicy.MinLength = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_UPPER"); ok {
		c.Security.PasswordPolicy.RequireUpper = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_LOWER"); ok {
		c.Security.PasswordPolicy.RequireLower = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_DIGIT"); ok {
		c.Security.PasswordPolicy.RequireDigit = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_SYMBOL"); ok {
		c.Security.PasswordPolicy.RequireSymbol = v
	}
	if v, ok := getEnvStr("ID_TOKEN_SIGNING_KEY"); ok {
		c.Security.IDTokenSigningKey = v
	}
	if v, ok := getEnvStr("ADMIN_API_KEY"); ok {
		c.Security.AdminAPIKey = v
	}

	// FLAGS
	if v, ok := getEnvBool("FLAGS_MIGRATE"); ok {
		c.Flags.Migrate = v
	}

	// LOG
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}

	// Guardia dura: en prod el cookie de sesión va siempre Secure y el
	// InsecureSkipVerify de SMTP se apaga.
	if strings.EqualFold(c.App.Env, "prod") {
		c.Auth.Session.Secure = true
		c.SMTP.InsecureSkipVerify = false
	}
}

// Validate valida duraciones declaradas como string y valores críticos.
func (c *Config) Validate() error {
	for _, d := range []string{
		c.Storage.Postgres.ConnMaxLifetime,
		c.Auth.Session.TTL,
		c.OIDC.IDTokenTTL,
		c.OIDC.CodeTTL,
		c.Rate.Login.Window,
		c.Rate.Register.Window,
		c.Downstream.AccessControl.Timeout,
		c.Downstream.UserDataStore.Timeout,
		c.Tasks.Backoff,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return err
		}
	}
	return nil
}

// MustDuration parsea una duración ya validada. Panic sólo ante un bug de
// validación, nunca por input de usuario.
func MustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic("config: duración inválida pasó la validación: " + s)
	}
	return d
}
