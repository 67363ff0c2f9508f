package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "gocare.yaml"

// Backend names accepted by the directory, store and audit sections.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
	BackendMCP    = "mcp"
	BackendLog    = "log"
	BackendNone   = "none"
	BackendFile   = "file"
)

// Duration is a time.Duration written as "10s" in YAML and JSON.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\": %w", err)
	}
	return d.parse(s)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

type ServerConfig struct {
	Addr            string   `yaml:"addr" json:"addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// MCP mounts the user-record MCP server under /mcp.
	MCP bool `yaml:"mcp" json:"mcp"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// PolicyConfig mirrors domain.Policy with string durations.
type PolicyConfig struct {
	Escalation                 string   `yaml:"escalation" json:"escalation"`
	EndSessionRole             string   `yaml:"end_session_role" json:"end_session_role"`
	LockoutMentionsAttempts    bool     `yaml:"lockout_mentions_attempts" json:"lockout_mentions_attempts"`
	AllowUserRestart           bool     `yaml:"allow_user_restart" json:"allow_user_restart"`
	KeepAttemptsOnNumberChange bool     `yaml:"keep_attempts_on_number_change" json:"keep_attempts_on_number_change"`
	ExternalCallTimeout        Duration `yaml:"external_call_timeout" json:"external_call_timeout"`
}

// Domain converts the section into a domain.Policy with defaults applied.
func (p PolicyConfig) Domain() domain.Policy {
	return domain.Policy{
		Escalation:                 domain.EscalationPolicy(p.Escalation),
		EndSessionRole:             domain.Role(p.EndSessionRole),
		LockoutMentionsAttempts:    p.LockoutMentionsAttempts,
		AllowUserRestart:           p.AllowUserRestart,
		KeepAttemptsOnNumberChange: p.KeepAttemptsOnNumberChange,
		ExternalCallTimeout:        p.ExternalCallTimeout.Std(),
	}.WithDefaults()
}

// DirectoryConfig selects the identity and data store.
type DirectoryConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	// UsersFile seeds the memory or sql directory. Empty uses the demo users.
	UsersFile string `yaml:"users_file" json:"users_file"`
}

// IntentConfig points at a replacement keyword rule file.
type IntentConfig struct {
	RulesFile string `yaml:"rules_file" json:"rules_file"`
}

type StoreConfig struct {
	Backend string   `yaml:"backend" json:"backend"`
	TTL     Duration `yaml:"ttl" json:"ttl"`
	// Dir holds one file per session for the file backend.
	Dir     string `yaml:"dir" json:"dir"`
	MaskPII bool   `yaml:"mask_pii" json:"mask_pii"`

	// EncryptionKey is 32 bytes, hex or base64. Empty stores plain JSON.
	EncryptionKey   string   `yaml:"encryption_key" json:"encryption_key"`
	FallbackKeys    []string `yaml:"fallback_keys" json:"fallback_keys"`
	LockTTL         Duration `yaml:"lock_ttl" json:"lock_ttl"`
	DistributedLock bool     `yaml:"distributed_lock" json:"distributed_lock"`
}

type AuditConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	Stream  string `yaml:"stream" json:"stream"`
	MaxLen  int64  `yaml:"max_len" json:"max_len"`
}

type LLMConfig struct {
	APIKey  string `yaml:"api_key" json:"api_key"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	Model   string `yaml:"model" json:"model"`
	// Detect routes utterances through tool calling before the keyword rules.
	Detect bool `yaml:"detect" json:"detect"`
	// Respond answers free-form Helpline turns.
	Respond bool `yaml:"respond" json:"respond"`
}

// Enabled reports whether any LLM feature is switched on.
func (l LLMConfig) Enabled() bool { return l.Detect || l.Respond }

type SQLConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
	Seed   bool   `yaml:"seed" json:"seed"`
}

type MCPConfig struct {
	// URL of a remote streamable-HTTP MCP user-record server.
	URL string `yaml:"url" json:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Policy    PolicyConfig    `yaml:"policy" json:"policy"`
	Directory DirectoryConfig `yaml:"directory" json:"directory"`
	Intent    IntentConfig    `yaml:"intent" json:"intent"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Audit     AuditConfig     `yaml:"audit" json:"audit"`
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	SQL       SQLConfig       `yaml:"sql" json:"sql"`
	MCP       MCPConfig       `yaml:"mcp" json:"mcp"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
}

// Default returns a config that runs fully in memory.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Policy: PolicyConfig{
			Escalation:          string(domain.EscalationPreserve),
			EndSessionRole:      string(domain.RoleGreeting),
			ExternalCallTimeout: Duration(domain.DefaultExternalCallTimeout),
		},
		Directory: DirectoryConfig{Backend: BackendMemory},
		Store: StoreConfig{
			Backend: BackendMemory,
			Dir:     filepath.Join(".gocare", "sessions"),
			MaskPII: true,
			LockTTL: Duration(30 * time.Second),
		},
		Audit:   AuditConfig{Backend: BackendLog, Stream: "gocare:audit"},
		SQL:     SQLConfig{Driver: "sqlite3", DSN: ".gocare/gocare.db", Seed: true},
		Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "gocare:session:"},
		Metrics: MetricsConfig{Enabled: true, Namespace: "gocare"},
	}
}

// Load reads path on top of the defaults, then applies environment overrides.
// A missing DefaultPath is not an error; any other missing file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from GOCARE_* variables (and OPENAI_API_KEY).
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			if err := dst.parse(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}

	str("GOCARE_ADDR", &c.Server.Addr)
	boolean("GOCARE_SERVE_MCP", &c.Server.MCP)
	str("GOCARE_LOG_LEVEL", &c.Log.Level)
	str("GOCARE_LOG_FORMAT", &c.Log.Format)

	str("GOCARE_ESCALATION", &c.Policy.Escalation)
	str("GOCARE_END_SESSION_ROLE", &c.Policy.EndSessionRole)
	boolean("GOCARE_LOCKOUT_MENTIONS_ATTEMPTS", &c.Policy.LockoutMentionsAttempts)
	boolean("GOCARE_ALLOW_USER_RESTART", &c.Policy.AllowUserRestart)
	boolean("GOCARE_KEEP_ATTEMPTS_ON_NUMBER_CHANGE", &c.Policy.KeepAttemptsOnNumberChange)
	duration("GOCARE_EXTERNAL_CALL_TIMEOUT", &c.Policy.ExternalCallTimeout)

	str("GOCARE_DIRECTORY", &c.Directory.Backend)
	str("GOCARE_USERS_FILE", &c.Directory.UsersFile)

	str("GOCARE_INTENT_RULES", &c.Intent.RulesFile)

	str("GOCARE_STORE", &c.Store.Backend)
	str("GOCARE_STORE_DIR", &c.Store.Dir)
	duration("GOCARE_STORE_TTL", &c.Store.TTL)
	boolean("GOCARE_MASK_PII", &c.Store.MaskPII)
	str("GOCARE_ENCRYPTION_KEY", &c.Store.EncryptionKey)
	boolean("GOCARE_DISTRIBUTED_LOCK", &c.Store.DistributedLock)

	str("GOCARE_AUDIT", &c.Audit.Backend)
	str("GOCARE_AUDIT_STREAM", &c.Audit.Stream)

	str("OPENAI_API_KEY", &c.LLM.APIKey)
	str("GOCARE_LLM_BASE_URL", &c.LLM.BaseURL)
	str("GOCARE_LLM_MODEL", &c.LLM.Model)
	boolean("GOCARE_LLM_DETECT", &c.LLM.Detect)
	boolean("GOCARE_LLM_RESPOND", &c.LLM.Respond)

	str("GOCARE_SQL_DRIVER", &c.SQL.Driver)
	str("GOCARE_SQL_DSN", &c.SQL.DSN)
	str("GOCARE_MCP_URL", &c.MCP.URL)

	str("GOCARE_REDIS_ADDR", &c.Redis.Addr)
	str("GOCARE_REDIS_PASSWORD", &c.Redis.Password)
	if v, ok := lookup("GOCARE_REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("GOCARE_REDIS_DB: %w", err))
		} else {
			c.Redis.DB = n
		}
	}
	boolean("GOCARE_METRICS", &c.Metrics.Enabled)

	return errors.Join(errs...)
}

// Validate checks backend names and cross-section requirements.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Policy.Domain().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("policy: %w", err))
	}

	switch c.Directory.Backend {
	case BackendMemory, BackendSQL:
	case BackendMCP:
		if c.MCP.URL == "" {
			errs = append(errs, errors.New("directory: mcp backend needs mcp.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("directory: unknown backend %q", c.Directory.Backend))
	}

	switch c.Store.Backend {
	case BackendNone, BackendMemory, BackendRedis, BackendSQL:
	case BackendFile:
		if c.Store.Dir == "" {
			errs = append(errs, errors.New("store: dir is required for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store: unknown backend %q", c.Store.Backend))
	}
	if c.Store.DistributedLock && c.Store.Backend != BackendRedis {
		errs = append(errs, errors.New("store: distributed_lock needs the redis backend"))
	}

	switch c.Audit.Backend {
	case BackendLog, BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("audit: unknown backend %q", c.Audit.Backend))
	}

	if c.UsesSQL() && c.SQL.DSN == "" {
		errs = append(errs, errors.New("sql: dsn is required"))
	}
	if c.UsesRedis() && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis: addr is required"))
	}
	if c.LLM.Enabled() && c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm: api_key (or OPENAI_API_KEY) is required"))
	}

	return errors.Join(errs...)
}

// UsesSQL reports whether any section needs the SQL database.
func (c *Config) UsesSQL() bool {
	return c.Directory.Backend == BackendSQL || c.Store.Backend == BackendSQL
}

// UsesRedis reports whether any section needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Store.Backend == BackendRedis || c.Audit.Backend == BackendRedis
}
