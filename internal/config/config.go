package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ManifestName is the optional per-project settings file.
const ManifestName = "jpe.yaml"

// ErrNoManifest is returned by LoadManifest when the project has no jpe.yaml.
var ErrNoManifest = errors.New("no jpe.yaml manifest")

// Config is the immutable configuration for one build. It is built once by
// Load and passed explicitly to every stage.
type Config struct {
	ProjectRoot string
	SourceDir   string
	OutputDir   string
	Namespace   string
	Workers     int
	CacheSize   int
	CacheTTL    time.Duration
	// Extensions lists extra source extensions handled by plugin parsers.
	Extensions []string
	Formats    []string
	HistoryDSN string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
}

// Manifest mirrors jpe.yaml.
type Manifest struct {
	SourceDir  string   `yaml:"source_dir"`
	OutputDir  string   `yaml:"output_dir"`
	Namespace  string   `yaml:"namespace"`
	Workers    int      `yaml:"workers"`
	Extensions []string `yaml:"extensions"`
	Formats    []string `yaml:"formats"`
}

// Overrides carries CLI flag values; zero values leave the setting alone.
type Overrides struct {
	SourceDir  string
	OutputDir  string
	Namespace  string
	Workers    int
	HistoryDSN string
}

// Load resolves configuration for the project at root. Precedence is flags,
// then environment (including .env files), then jpe.yaml, then defaults.
func Load(root string, ov Overrides) (*Config, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root is not a directory: %s", root)
	}

	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil {
		log.Debug().Str("root", root).Msg("No project .env file found, using environment variables")
	}

	m, err := LoadManifest(filepath.Join(root, ManifestName))
	if err != nil && !errors.Is(err, ErrNoManifest) {
		return nil, err
	}
	if m == nil {
		m = &Manifest{}
	}

	cfg := &Config{
		ProjectRoot:   root,
		SourceDir:     firstNonEmpty(ov.SourceDir, m.SourceDir, defaultSourceDir(root)),
		OutputDir:     firstNonEmpty(ov.OutputDir, m.OutputDir, "build"),
		Namespace:     firstNonEmpty(ov.Namespace, getEnv("JPEC_NAMESPACE", ""), m.Namespace, "mod"),
		Workers:       firstPositive(ov.Workers, getEnvInt("JPEC_WORKERS", 0), m.Workers, 4),
		CacheSize:     getEnvInt("JPEC_CACHE_SIZE", 256),
		CacheTTL:      getEnvDuration("JPEC_CACHE_TTL", 10*time.Minute),
		Extensions:    normalizeExts(m.Extensions),
		Formats:       m.Formats,
		HistoryDSN:    firstNonEmpty(ov.HistoryDSN, getEnv("JPEC_HISTORY_DSN", ""), "sqlite://"+filepath.Join(root, ".jpec", "history.db")),
		Neo4jURI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", "password"),
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{"xml"}
	}
	cfg.SourceDir = absUnder(root, cfg.SourceDir)
	cfg.OutputDir = absUnder(root, cfg.OutputDir)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadManifest reads a jpe.yaml file. A missing file yields ErrNoManifest.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoManifest
		}
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	m, err := LoadManifestFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return m, nil
}

// LoadManifestFromReader decodes a manifest, rejecting unknown fields.
func LoadManifestFromReader(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil {
		if errors.Is(err, io.EOF) {
			return m, nil
		}
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return m, nil
}

var namespacePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that cfg is coherent. It returns a joined error listing
// every problem found.
func Validate(cfg *Config) error {
	var errs []error
	if !namespacePattern.MatchString(cfg.Namespace) {
		errs = append(errs, fmt.Errorf("namespace %q must be an identifier", cfg.Namespace))
	}
	if cfg.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", cfg.Workers))
	}
	if cfg.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache size must be >= 0, got %d", cfg.CacheSize))
	}
	if cfg.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("cache ttl must be >= 0, got %s", cfg.CacheTTL))
	}
	if cfg.SourceDir == cfg.OutputDir {
		errs = append(errs, fmt.Errorf("output directory must differ from source directory %s", cfg.SourceDir))
	}
	for _, ext := range cfg.Extensions {
		if ext == "." || strings.ContainsAny(ext, `/\`) {
			errs = append(errs, fmt.Errorf("invalid extension %q", ext))
		}
	}
	return errors.Join(errs...)
}

func defaultSourceDir(root string) string {
	if info, err := os.Stat(filepath.Join(root, "src")); err == nil && info.IsDir() {
		return "src"
	}
	return "."
}

func absUnder(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
