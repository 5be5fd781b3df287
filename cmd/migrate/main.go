package main

import (
	"flag"
	"log"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/madrasah-api/migrations"
	"github.com/noah-isme/madrasah-api/pkg/config"
	"github.com/noah-isme/madrasah-api/pkg/database"
	"github.com/noah-isme/madrasah-api/pkg/logger"
)

type gooseLogger struct {
	*zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.Infof(format, v...)
}

// Usage: migrate [up|down|status|version|reset]
func main() {
	flag.Parse()
	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{logr.Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		logr.Sugar().Fatalw("set goose dialect", "error", err)
	}

	logr.Sugar().Infow("running migrations", "command", command, "database", cfg.Database.Name)
	if err := goose.Run(command, db.DB, "."); err != nil {
		logr.Sugar().Fatalw("migration failed", "command", command, "error", err)
	}
}
