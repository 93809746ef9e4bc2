package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/fahmaliyi/zkseed/keys"
	"github.com/fahmaliyi/zkseed/logging"
	"github.com/fahmaliyi/zkseed/store"
)

const EnvConfigPath = "ZKSEED_CONFIG"

type Config struct {
	Env              string   `toml:"env"`
	LogPath          string   `toml:"log_path"`
	DataDir          string   `toml:"data_dir"`
	Backend          string   `toml:"backend"`
	KeyAlgorithm     string   `toml:"key_algorithm"`
	RSABits          int      `toml:"rsa_bits"`
	PersistSecrets   bool     `toml:"persist_secrets"`
	ShareOrigin      string   `toml:"share_origin"`
	ClipboardClear   duration `toml:"clipboard_clear"`
	EnableStacktrace bool     `toml:"enable_stacktrace"`
}

type duration struct{ time.Duration }

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func Default() *Config {
	dataDir := ".zkseed"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".zkseed")
	}
	return &Config{
		Env:            "production",
		DataDir:        dataDir,
		Backend:        store.BackendFile,
		KeyAlgorithm:   string(keys.AlgoCurve25519),
		RSABits:        2048,
		PersistSecrets: true,
		ShareOrigin:    "http://localhost:3000",
		ClipboardClear: duration{30 * time.Second},
	}
}

// Load reads .env (optional), then the TOML file at path or $ZKSEED_CONFIG,
// then ZKSEED_* environment overrides. A missing file is an error when path
// is given and ignored when it comes from $ZKSEED_CONFIG.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	// only an implicit $ZKSEED_CONFIG may point at a missing file
	optional := false
	if path == "" {
		path = os.Getenv(EnvConfigPath)
		optional = true
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !optional || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"ZKSEED_ENV":           &c.Env,
		"ZKSEED_LOG_PATH":      &c.LogPath,
		"ZKSEED_DATA_DIR":      &c.DataDir,
		"ZKSEED_BACKEND":       &c.Backend,
		"ZKSEED_KEY_ALGORITHM": &c.KeyAlgorithm,
		"ZKSEED_SHARE_ORIGIN":  &c.ShareOrigin,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v := os.Getenv("ZKSEED_RSA_BITS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: ZKSEED_RSA_BITS: %w", err)
		}
		c.RSABits = n
	}
	if v := os.Getenv("ZKSEED_PERSIST_SECRETS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: ZKSEED_PERSIST_SECRETS: %w", err)
		}
		c.PersistSecrets = b
	}
	if v := os.Getenv("ZKSEED_CLIPBOARD_CLEAR"); v != "" {
		if err := c.ClipboardClear.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("config: ZKSEED_CLIPBOARD_CLEAR: %w", err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Env) {
	case "development", "production":
	default:
		return fmt.Errorf("config: env must be development or production, got %q", c.Env)
	}
	switch c.Backend {
	case store.BackendFile, store.BackendSQLite, store.BackendLevelDB:
	default:
		return fmt.Errorf("config: %w: %q", store.ErrUnknownBackend, c.Backend)
	}
	switch keys.KeyAlgorithm(c.KeyAlgorithm) {
	case keys.AlgoCurve25519:
	case keys.AlgoRSA:
		if c.RSABits < 2048 {
			return fmt.Errorf("config: rsa_bits must be at least 2048, got %d", c.RSABits)
		}
	default:
		return fmt.Errorf("config: unsupported key_algorithm %q", c.KeyAlgorithm)
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is empty")
	}
	return nil
}

func (c *Config) Logging() logging.Config {
	return logging.Config{Environment: c.Env, Path: c.LogPath, EnableStacktrace: c.EnableStacktrace}
}

func (c *Config) KeyOptions() keys.KeyOptions {
	return keys.KeyOptions{Algorithm: keys.KeyAlgorithm(c.KeyAlgorithm), RSABits: c.RSABits}
}

func (c *Config) ClipboardClearAfter() time.Duration { return c.ClipboardClear.Duration }
