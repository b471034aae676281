package cmd

import (
	"context"
	"errors"

	"github.com/shariqriazz/copilotgate/internal/api"
	"github.com/shariqriazz/copilotgate/internal/auth"
	"github.com/shariqriazz/copilotgate/internal/auth/store"
	"github.com/shariqriazz/copilotgate/internal/config"
	"github.com/shariqriazz/copilotgate/internal/watcher"
	log "github.com/sirupsen/logrus"
)

// Serve runs the gateway until ctx is cancelled. The credential file is
// watched so logins from another terminal take effect without a restart.
func Serve(ctx context.Context, cfg *config.Config) error {
	credStore := store.Registered()
	if credStore == nil {
		fileStore := store.NewFileStore(cfg.AuthDir, cfg.Provider.Name)
		store.Register(fileStore)
		credStore = fileStore
	}

	refresher := auth.NewTokenRefresher(cfg.Provider.Endpoints(), nil)
	orch := auth.NewOrchestrator(refresher)
	server := api.New(cfg, credStore, orch)
	server.ReloadCredential(ctx)

	if fileStore, ok := credStore.(*store.FileStore); ok {
		credWatcher := watcher.New(fileStore.Path(), func() {
			log.Info("credential file changed, reloading")
			server.ReloadCredential(context.Background())
		})
		go func() {
			if errWatch := credWatcher.Run(ctx); errWatch != nil && !errors.Is(errWatch, context.Canceled) {
				log.Warnf("credential watcher stopped: %v", errWatch)
			}
		}()
	}

	return server.Run(ctx)
}
