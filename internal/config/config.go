package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// SourceConfig: что и как хвостить.
// Path обязателен: файл или каталог.
type SourceConfig struct {
	Path              string        `mapstructure:"Path"`
	Filter            string        `mapstructure:"Filter"`  // glob для имён файлов (doublestar), только для каталога
	Exclude           string        `mapstructure:"Exclude"` // регулярное выражение для исключения файлов по имени
	Columns           []string      `mapstructure:"Columns"`
	ColumnsByFile     []FileColumns `mapstructure:"ColumnsByFile"`
	TimestampColumn   int           `mapstructure:"TimestampColumn"`
	TimestampLayout   string        `mapstructure:"TimestampLayout"`
	Delimiter         string        `mapstructure:"Delimiter"`
	Encoding          string        `mapstructure:"Encoding"`
	PollInterval      time.Duration `mapstructure:"PollInterval"`
	RescanInterval    time.Duration `mapstructure:"RescanInterval"`
	ShutdownTimeout   time.Duration `mapstructure:"ShutdownTimeout"`
	QuoteStallTimeout time.Duration `mapstructure:"QuoteStallTimeout"`
}

// FileColumns: имена колонок для файлов, подходящих под Pattern (первое совпадение выигрывает).
type FileColumns struct {
	Pattern string   `mapstructure:"Pattern"`
	Columns []string `mapstructure:"Columns"`
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Host     string `mapstructure:"Host"`
	Port     int    `mapstructure:"Port"`
	DB       int    `mapstructure:"DB"`
	Password string `mapstructure:"Password"`
	Key      string `mapstructure:"Key"`
}

// BookmarksConfig: где хранить закладки и как часто их сбрасывать.
// Storage: none | sidebyside | json | sqlite | redis
type BookmarksConfig struct {
	Storage       string        `mapstructure:"Storage"`
	Path          string        `mapstructure:"Path"`
	Format        string        `mapstructure:"Format"`
	FlushInterval time.Duration `mapstructure:"FlushInterval"`
	Redis         RedisConfig   `mapstructure:"Redis"`
}

// OutputConfig: эхо записей и фильтр перед отправкой в приёмники
type OutputConfig struct {
	Echo       bool   `mapstructure:"Echo"`
	EchoToFile bool   `mapstructure:"EchoToFile"`
	Filter     string `mapstructure:"Filter"`
}

// ClickHouseConfig содержит настройки подключения к ClickHouse.
// Приёмник включён, если задан Address.
type ClickHouseConfig struct {
	Address  string `mapstructure:"Address"`
	Username string `mapstructure:"Username"`
	Password string `mapstructure:"Password"`
	Database string `mapstructure:"Database"`
	Table    string `mapstructure:"Table"`
	Protocol string `mapstructure:"Protocol"`
}

// Enabled: задан ли адрес ClickHouse
func (c ClickHouseConfig) Enabled() bool { return c.Address != "" }

type BatchConfig struct {
	Size     int           `mapstructure:"Size"`
	Interval time.Duration `mapstructure:"Interval"`
}

// LoggingConfig содержит настройки логирования и интеграции с Sentry
type LoggingConfig struct {
	Level        string `mapstructure:"Level"`
	LogFile      string `mapstructure:"LogFile"` // путь к файлу логов
	MaxSizeMB    int    `mapstructure:"MaxSizeMB"`
	MaxBackups   int    `mapstructure:"MaxBackups"`
	MaxAgeDays   int    `mapstructure:"MaxAgeDays"`
	SentryDSN    string `mapstructure:"SentryDSN"`    // DSN для Sentry
	EnableSentry bool   `mapstructure:"EnableSentry"` // включить отправку ошибок в Sentry
}

type MetricsConfig struct {
	Listen string `mapstructure:"Listen"`
}

// Config описывает основные настройки сервиса
type Config struct {
	Source     SourceConfig     `mapstructure:"Source"`
	Bookmarks  BookmarksConfig  `mapstructure:"Bookmarks"`
	Output     OutputConfig     `mapstructure:"Output"`
	ClickHouse ClickHouseConfig `mapstructure:"ClickHouse"`
	Batch      BatchConfig      `mapstructure:"Batch"`
	Logging    LoggingConfig    `mapstructure:"Logging"`
	Metrics    MetricsConfig    `mapstructure:"Metrics"`
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Source.Path) == "" {
		return fmt.Errorf("Source.Path must not be empty")
	}
	if len(c.Source.Delimiter) != 1 {
		return fmt.Errorf("Source.Delimiter must be a single byte, got %q", c.Source.Delimiter)
	}
	if c.Source.TimestampColumn < 0 {
		return fmt.Errorf("Source.TimestampColumn must not be negative")
	}
	if len(c.Source.Columns) > 0 && c.Source.TimestampColumn >= len(c.Source.Columns) {
		return fmt.Errorf("Source.TimestampColumn %d is out of range for %d columns", c.Source.TimestampColumn, len(c.Source.Columns))
	}
	if c.Source.Filter != "" && !doublestar.ValidatePattern(c.Source.Filter) {
		return fmt.Errorf("Source.Filter %q is not a valid glob", c.Source.Filter)
	}
	for _, fc := range c.Source.ColumnsByFile {
		if !doublestar.ValidatePattern(fc.Pattern) {
			return fmt.Errorf("Source.ColumnsByFile pattern %q is not a valid glob", fc.Pattern)
		}
	}
	if c.Source.Exclude != "" {
		if _, err := regexp.Compile(c.Source.Exclude); err != nil {
			return fmt.Errorf("Source.Exclude: %w", err)
		}
	}
	if c.Source.PollInterval <= 0 || c.Source.RescanInterval <= 0 || c.Source.ShutdownTimeout <= 0 {
		return fmt.Errorf("Source intervals must be positive")
	}
	switch strings.ToLower(c.Bookmarks.Storage) {
	case "", "none", "sidebyside", "redis":
	case "json", "file", "sqlite":
		if c.Bookmarks.Path == "" {
			return fmt.Errorf("Bookmarks.Path must not be empty for %s storage", c.Bookmarks.Storage)
		}
	default:
		return fmt.Errorf("unknown Bookmarks.Storage %q", c.Bookmarks.Storage)
	}
	if c.Bookmarks.FlushInterval <= 0 {
		return fmt.Errorf("Bookmarks.FlushInterval must be positive")
	}
	if c.ClickHouse.Enabled() {
		if c.ClickHouse.Database == "" || c.ClickHouse.Table == "" {
			return fmt.Errorf("ClickHouse.Database and ClickHouse.Table must not be empty")
		}
		if c.Batch.Size <= 0 {
			return fmt.Errorf("Batch.Size must be positive")
		}
		if c.Batch.Interval <= 0 {
			return fmt.Errorf("Batch.Interval must be positive")
		}
	}
	return nil
}

// ColumnsFor возвращает имена колонок для конкретного файла: сначала ColumnsByFile, затем Columns.
func (s SourceConfig) ColumnsFor(path string) []string {
	for _, fc := range s.ColumnsByFile {
		if ok, _ := doublestar.Match(fc.Pattern, baseName(path)); ok {
			return fc.Columns
		}
	}
	if len(s.Columns) == 0 {
		return nil
	}
	return s.Columns
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
