package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"librarycirculation/internal/cli"
	"librarycirculation/internal/config"
	"librarycirculation/internal/database"
	"librarycirculation/internal/logger"
	"librarycirculation/internal/metrics"
	"librarycirculation/internal/repositories"
	"librarycirculation/internal/services"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, cleanup := newLogger(cfg.Log)
	defer cleanup()

	if err := run(cfg, log); err != nil {
		log.Error("library stopped", zap.Error(err))
		cleanup()
		os.Exit(1)
	}
}

func newLogger(c config.Log) (*zap.Logger, func()) {
	if c.File == "" {
		return logger.New(c.Level, c.JSON)
	}
	return logger.NewWithRotate(c.Level, c.JSON, c.File, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays, c.Compress)
}

func run(cfg *config.Config, log *zap.Logger) error {
	books, err := openBookRepository(cfg.Storage, cfg.Log.Level, log)
	if err != nil {
		return err
	}
	index, err := repositories.NewPresenceIndex(books, log)
	if err != nil {
		return fmt.Errorf("build book index: %w", err)
	}
	users, err := repositories.NewUserDirectory(cfg.Storage.UsersFile, log)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	rec := metrics.NewRecorder()
	engine := services.NewTransactionEngine(books, index, log, rec)
	libraryService := services.NewLibraryService(engine, books, index, log)

	app := cli.New(libraryService, users, cfg.Library, os.Stdin, os.Stdout, log)
	if err := app.SeedAdmin(); err != nil {
		return err
	}
	log.Info("library started",
		zap.String("app", cfg.App.Name),
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("books", index.Len()),
		zap.Int("users", len(users.ListAll())),
	)

	runErr := app.Run()
	logSessionTotals(rec, log)
	return runErr
}

// openBookRepository picks the book store named by storage.driver.
func openBookRepository(s config.Storage, logLevel string, log *zap.Logger) (repositories.BookRepository, error) {
	if s.Driver == "file" {
		repo, err := repositories.NewFileBookRepository(s.BooksFile, log)
		if err != nil {
			return nil, fmt.Errorf("load books: %w", err)
		}
		return repo, nil
	}

	db, err := database.Open(database.Opts{
		Driver:       s.Driver,
		DSN:          s.DSN,
		MaxOpenConns: 1,
		LogLevel:     logLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", s.Driver, err)
	}
	log.Info("database connected", zap.String("driver", s.Driver))
	repo, err := repositories.NewGormBookRepository(db, log)
	if err != nil {
		return nil, fmt.Errorf("prepare books table: %w", err)
	}
	return repo, nil
}

func logSessionTotals(rec *metrics.Recorder, log *zap.Logger) {
	families, err := rec.Registry.Gather()
	if err != nil {
		log.Warn("gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields := []zap.Field{zap.String("metric", mf.GetName()), zap.Float64("value", m.GetCounter().GetValue())}
			for _, lp := range m.GetLabel() {
				fields = append(fields, zap.String(lp.GetName(), lp.GetValue()))
			}
			log.Info("session total", fields...)
		}
	}
}
