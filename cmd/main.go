package main

import (
	"net/http"

	"github.com/CzarSimon/httputil"
	"github.com/CzarSimon/httputil/logger"
	"github.com/gin-contrib/cors"
	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var log = logger.GetDefaultLogger("session-broker/main")

func main() {
	e := setupEnv()
	defer e.close()

	server := newServer(e)
	log.Info("Started session-broker listening on port: " + e.cfg.port)

	err := server.ListenAndServe()
	if err != nil {
		log.Error("Unexpected error stoped server.", zap.Error(err))
	}
}

func newServer(e *env) *http.Server {
	r := httputil.NewRouter("session-broker", e.checkHealth)
	r.Use(cors.New(corsConfig(e.cfg.corsOrigins)))

	r.POST("/api/sessions", e.createSession)
	r.GET("/api/sessions", e.listSessions)
	r.GET("/api/sessions/:uniqueId", e.getSession)
	r.POST("/api/sessions/token", e.issueToken)

	r.POST("/api/status/:uniqueId", e.reportStatus)
	r.GET("/api/status/:uniqueId", e.subscribeStatus)

	return &http.Server{
		Addr:    ":" + e.cfg.port,
		Handler: r,
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}

	cfg.AllowOrigins = origins
	return cfg
}
