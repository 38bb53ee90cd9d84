package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"CsvLogPump/internal/config"
)

// InitZap инициализирует zap-логгер:
// - в консоль (stderr) выводятся сообщения от уровня cfg.Level;
// - в файл с ротацией (lumberjack): только предупреждения и ошибки (Warn+);
// - при EnableSentry отправляет Error+ в Sentry.
func InitZap(cfg *config.LoggingConfig) (*zap.Logger, error) {
	consoleLevel, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	// 1) Создаём директорию для лог-файла
	if cfg.LogFile != "" {
		dir := filepath.Dir(cfg.LogFile)
		if dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
			}
		}
	}

	// 2) Общая конфигурация энкодера (plain text)
	encoderCfg := encoderConfig()
	consoleCfg := encoderCfg
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	// 3) Ядра
	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.Lock(os.Stderr),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= consoleLevel }),
		),
	}
	// файловое ядро: только если указан путь
	if cfg.LogFile != "" {
		fileWS := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			fileWS,
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= zapcore.WarnLevel }),
		))
	}

	// 4) Собираем Tee
	logger := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	// 5) Интеграция с Sentry (Error+)
	if cfg.EnableSentry && cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			fmt.Fprintf(os.Stderr, "Sentry init failed: %v\n", err)
		} else {
			logger = logger.WithOptions(zap.Hooks(SentryHook))
		}
	}

	return logger, nil
}

// SentryHook отправляет в Sentry записи уровня Error и выше.
func SentryHook(entry zapcore.Entry) error {
	if entry.Level >= zapcore.ErrorLevel {
		sentry.CaptureMessage(fmt.Sprintf("%s:%d %s", entry.Caller.File, entry.Caller.Line, entry.Message))
		sentry.Flush(2 * time.Second)
	}
	return nil
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func parseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(s))
	if err != nil {
		return 0, fmt.Errorf("неизвестный уровень логирования %q: %w", s, err)
	}
	return lvl, nil
}
