// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailleopard-backend/internal/config"
	"github.com/unclebandit/mailleopard-backend/internal/db"
	"github.com/unclebandit/mailleopard-backend/internal/logger"
)

func main() {
	demo := flag.Bool("demo", false, "also load the demo user and contacts")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.Must(cfg.Environment)
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("failed to connect", zap.Error(err))
	}
	defer conn.Close()

	seedFiles := []string{
		"seed/schema.sql",
		"seed/templates.sql",
	}
	if *demo {
		seedFiles = append(seedFiles, "seed/demo.sql")
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatal("failed to read seed file", zap.String("file", file), zap.Error(err))
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			log.Fatal("failed to execute seed file", zap.String("file", file), zap.Error(err))
		}
		log.Info("seeded", zap.String("file", file))
	}

	fmt.Println("Database seeding completed successfully!")
}
