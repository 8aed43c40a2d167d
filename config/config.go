package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database    DatabaseConfig
	Log         LogConfig
	Scheduler   SchedulerConfig
	Documents   DocumentsConfig
	S3          S3Config
	MetricsAddr string
	LandsDir    string
	Lands       map[string]*LandCatalog
}

type DatabaseConfig struct {
	Driver string // sqlite or postgres
	Path   string
	URL    string
}

type LogConfig struct {
	Level  string
	Format string // json or console
	File   string
}

type SchedulerConfig struct {
	DocumentsCron string
	AuditCron     string
	AuditRepair   bool
}

type DocumentsConfig struct {
	Dir       string
	BatchSize int
	Interval  time.Duration
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// LandCatalog is one land with its lots, read from a YAML file for seeding.
type LandCatalog struct {
	Name      string       `yaml:"name"`
	Location  string       `yaml:"location"`
	TotalArea string       `yaml:"total_area"`
	Lots      []LotCatalog `yaml:"lots"`
}

type LotCatalog struct {
	Block       string `yaml:"block"`
	Lot         string `yaml:"lot"`
	Size        string `yaml:"size"`
	PricePerSqm string `yaml:"price_per_sqm"`
	TotalAmount string `yaml:"total_amount"`
	Type        string `yaml:"type"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			Path:   getEnv("DB_PATH", "landsale.db"),
			URL:    os.Getenv("DATABASE_URL"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			File:   os.Getenv("LOG_FILE"),
		},
		Scheduler: SchedulerConfig{
			DocumentsCron: getEnv("DOCUMENTS_CRON", "*/5 * * * *"),
			AuditCron:     getEnv("AUDIT_CRON", "0 * * * *"),
			AuditRepair:   os.Getenv("AUDIT_REPAIR") == "true",
		},
		Documents: DocumentsConfig{
			Dir:       getEnv("DOCUMENTS_DIR", "documents"),
			BatchSize: getEnvInt("DOCUMENT_BATCH", 20),
			Interval:  time.Minute,
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LandsDir:    getEnv("LANDS_DIR", "config/lands"),
		Lands:       make(map[string]*LandCatalog),
	}

	if interval := os.Getenv("DOCUMENT_INTERVAL"); interval != "" {
		// the worker ticker needs a positive period
		d, err := time.ParseDuration(interval)
		if err == nil && d > 0 {
			cfg.Documents.Interval = d
		}
	}

	switch cfg.Database.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.Database.Driver)
	}

	if err := cfg.loadLandCatalogs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadLandCatalogs() error {
	entries, err := os.ReadDir(c.LandsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || (filepath.Ext(entry.Name()) != ".yaml" && filepath.Ext(entry.Name()) != ".yml") {
			continue
		}

		path := filepath.Join(c.LandsDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var land LandCatalog
		if err := yaml.Unmarshal(data, &land); err != nil {
			return fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		if err := land.validate(); err != nil {
			return fmt.Errorf("%s: %w", entry.Name(), err)
		}

		c.Lands[land.Name] = &land
	}

	return nil
}

func (l *LandCatalog) validate() error {
	if l.Name == "" {
		return fmt.Errorf("land name is required")
	}
	if _, err := parseDecimal(l.TotalArea); err != nil {
		return fmt.Errorf("total_area: %w", err)
	}
	for i, lot := range l.Lots {
		if lot.Block == "" || lot.Lot == "" {
			return fmt.Errorf("lot %d: block and lot are required", i+1)
		}
		for field, v := range map[string]string{"size": lot.Size, "price_per_sqm": lot.PricePerSqm, "total_amount": lot.TotalAmount} {
			if _, err := parseDecimal(v); err != nil {
				return fmt.Errorf("lot %s/%s %s: %w", lot.Block, lot.Lot, field, err)
			}
		}
	}
	return nil
}

// Decimal parses a catalog amount. Empty means zero.
func Decimal(s string) decimal.Decimal {
	d, _ := parseDecimal(s)
	return d
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
