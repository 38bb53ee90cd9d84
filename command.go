package main

import (
	"github.com/spf13/cobra"

	"CsvLogPump/internal/config"
)

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "csvlogpump",
		Short: "Хвостит CSV-логи и отправляет записи в консоль, рядом в файл и в ClickHouse",
		Long: `csvlogpump следит за файлом или каталогом с CSV-логами, разбирает дописанные записи,
переживает ротацию и битые строки и сохраняет закладки, чтобы после перезапуска продолжить с того же места.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return runPump(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "Путь к YAML-конфигу")
	flags.StringP("path", "p", "", "Файл или каталог с логами")
	flags.StringP("filter", "f", "", "Glob для имён файлов в каталоге")
	flags.String("exclude", "", "Регулярное выражение для исключения файлов")
	flags.StringSliceP("columns", "c", nil, "Имена колонок через запятую")
	flags.String("delimiter", "", "Разделитель полей (один байт)")
	flags.String("encoding", "", "Кодировка файлов (utf-8, windows-1251, ...)")
	flags.String("bookmarks", "", "Хранилище закладок: none, sidebyside, json, sqlite, redis")
	flags.Bool("echo", false, "Печатать записи в консоль")
	flags.Bool("echo-to-file", false, "Дублировать записи в <файл>.echo рядом с источником")
	flags.String("log-level", "", "Уровень логирования: debug, info, warn, error")

	return cmd
}
