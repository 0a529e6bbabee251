package sigengine

import (
	"log"
	"net/http"
	"time"

	"supertrend-engine/internal/api"
)

// startAPI launches the read-only HTTP API. Returns nil when APIAddr is empty.
func (svc *Service) startAPI() *http.Server {
	if svc.cfg.APIAddr == "" {
		return nil
	}
	srv := &http.Server{
		Addr:              svc.cfg.APIAddr,
		Handler:           api.NewRouter(svc.reg, svc.sqlReader),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[sigengine] API server on %s (/api/v1)", svc.cfg.APIAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[sigengine] API server error: %v", err)
		}
	}()
	return srv
}
