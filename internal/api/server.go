// Package api hosts the gateway's HTTP surface: a chat proxy whose requests
// are authenticated by the credential middleware before being forwarded
// upstream.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shariqriazz/copilotgate/internal/auth"
	"github.com/shariqriazz/copilotgate/internal/auth/store"
	"github.com/shariqriazz/copilotgate/internal/config"
	log "github.com/sirupsen/logrus"
)

// Server wires the gin engine, the auth orchestrator, and the credential
// store together.
type Server struct {
	cfg        *config.Config
	store      store.Store
	orch       *auth.Orchestrator
	engine     *gin.Engine
	httpClient *http.Client

	credMu sync.RWMutex
	cred   *auth.Credential
}

// New constructs the server. The initial credential comes from the store, or
// from a config-synthesized PAT when no login has happened yet.
func New(cfg *config.Config, credStore store.Store, orch *auth.Orchestrator) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:        cfg,
		store:      credStore,
		orch:       orch,
		engine:     gin.New(),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	s.engine.Use(gin.Recovery(), requestIDMiddleware(), requestLogMiddleware())

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.Any("/v1/*path", s.authMiddleware(), s.proxy)
	return s
}

// Credential returns the current in-memory credential.
func (s *Server) Credential() *auth.Credential {
	s.credMu.RLock()
	defer s.credMu.RUnlock()
	return s.cred
}

// SetCredential replaces the in-memory credential.
func (s *Server) SetCredential(cred *auth.Credential) {
	s.credMu.Lock()
	s.cred = cred
	s.credMu.Unlock()
}

// ReloadCredential re-reads the stored credential, falling back to a
// config-synthesized PAT. Called at startup and by the file watcher.
func (s *Server) ReloadCredential(ctx context.Context) {
	cred, errLoad := s.store.Load(ctx)
	if errLoad != nil {
		if errors.Is(errLoad, store.ErrNoCredential) {
			if synthesized := s.cfg.SynthesizeCredential(); synthesized != nil {
				log.Info("using personal access token from configuration")
				s.SetCredential(synthesized)
				return
			}
			log.Warn("no stored credential; run copilotgate --login or --pat")
			s.SetCredential(nil)
			return
		}
		log.Errorf("reload credential: %v", errLoad)
		return
	}
	log.Infof("loaded %s credential", cred.Kind)
	s.SetCredential(cred)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("gateway listening on %s", addr)
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
	}()

	select {
	case errServe := <-errCh:
		return errServe
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
