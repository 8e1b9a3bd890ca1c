package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/benzdriver/thinkforward-ai-sub003/internal/config"
	"github.com/benzdriver/thinkforward-ai-sub003/internal/database"
	"github.com/benzdriver/thinkforward-ai-sub003/internal/directory"
	syncsvc "github.com/benzdriver/thinkforward-ai-sub003/internal/sync"
	"github.com/benzdriver/thinkforward-ai-sub003/internal/users"
	"github.com/benzdriver/thinkforward-ai-sub003/pkg/logger"
)

// One-shot runner for initial imports and manual re-syncs: connects, runs a
// single pass, prints the summary as JSON and exits non-zero on failure.
func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		log.Fatalf("cannot connect to MongoDB: %v", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	usersCol := client.Database(cfg.MongoDB.Database).Collection("users")
	if err := database.EnsureUserIndexes(ctx, usersCol); err != nil {
		logger.Warnf("could not ensure user indexes: %v", err)
	}

	dirClient := directory.NewClient(cfg.Clerk.APIURL, cfg.Clerk.SecretKey, cfg.Clerk.Timeout)
	pager := directory.NewPaginator(dirClient, cfg.Sync.PageSize)
	reconciler := syncsvc.NewReconciler(pager, users.NewMongoRepository(usersCol))

	res := reconciler.Run(ctx)
	out, _ := json.Marshal(res)
	os.Stdout.Write(append(out, '\n'))
	if !res.Success {
		os.Exit(1)
	}
}
