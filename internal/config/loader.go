package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix: префикс переменных окружения (CSVLOGPUMP_SOURCE_PATH и т.п.).
const EnvPrefix = "CSVLOGPUMP"

// FlagKeys связывает флаги командной строки с ключами конфига.
var FlagKeys = map[string]string{
	"path":         "Source.Path",
	"filter":       "Source.Filter",
	"exclude":      "Source.Exclude",
	"columns":      "Source.Columns",
	"delimiter":    "Source.Delimiter",
	"encoding":     "Source.Encoding",
	"bookmarks":    "Bookmarks.Storage",
	"echo":         "Output.Echo",
	"echo-to-file": "Output.EchoToFile",
	"log-level":    "Logging.Level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Source.Path", "")
	v.SetDefault("Source.Filter", "")
	v.SetDefault("Source.Exclude", `\.(echo|last|tmp|lock)$`)
	v.SetDefault("Source.Columns", []string{})
	v.SetDefault("Source.TimestampColumn", 0)
	v.SetDefault("Source.TimestampLayout", "")
	v.SetDefault("Source.Delimiter", "|")
	v.SetDefault("Source.Encoding", "utf-8")
	v.SetDefault("Source.PollInterval", "500ms")
	v.SetDefault("Source.RescanInterval", "30s")
	v.SetDefault("Source.ShutdownTimeout", "2s")
	v.SetDefault("Source.QuoteStallTimeout", "1s")

	v.SetDefault("Bookmarks.Storage", "none")
	v.SetDefault("Bookmarks.Path", "")
	v.SetDefault("Bookmarks.Format", "")
	v.SetDefault("Bookmarks.FlushInterval", "1s")
	v.SetDefault("Bookmarks.Redis.Host", "localhost")
	v.SetDefault("Bookmarks.Redis.Port", 6379)
	v.SetDefault("Bookmarks.Redis.DB", 0)
	v.SetDefault("Bookmarks.Redis.Password", "")
	v.SetDefault("Bookmarks.Redis.Key", "")

	v.SetDefault("Output.Echo", false)
	v.SetDefault("Output.EchoToFile", false)
	v.SetDefault("Output.Filter", "")

	v.SetDefault("ClickHouse.Address", "")
	v.SetDefault("ClickHouse.Protocol", "native")
	v.SetDefault("ClickHouse.Table", "csv_log")

	v.SetDefault("Batch.Size", 1000)
	v.SetDefault("Batch.Interval", "5s")

	v.SetDefault("Logging.Level", "info")
	v.SetDefault("Logging.LogFile", "")
	v.SetDefault("Logging.MaxSizeMB", 100)
	v.SetDefault("Logging.MaxBackups", 5)
	v.SetDefault("Logging.MaxAgeDays", 30)

	v.SetDefault("Metrics.Listen", "")
}

// LoadConfig собирает конфиг из значений по умолчанию, файла (если path не пуст),
// переменных окружения и флагов (если flags не nil), затем проверяет его.
// Шаги:
// 1. Чтение сырого файла
// 2. Очистка данных: удаление BOM, замена табуляций
// 3. Разбор через viper, наложение окружения и флагов
// 4. Валидация обязательных полей
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		// 1. Чтение
		raw, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// 2. Очистка
		v.SetConfigType(configType(path))
		// 3. Парсинг
		if err := v.ReadConfig(bytes.NewReader(sanitize(raw))); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 4. Валидация
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// readFile читает все байты из файла по пути
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// sanitize удаляет BOM и табуляции
func sanitize(data []byte) []byte {
	// Удаляем UTF-8 BOM
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	// Заменяем табы на два пробела
	data = bytes.ReplaceAll(data, []byte("\t"), []byte("  "))
	return data
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}
