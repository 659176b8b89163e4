package main

import (
	"strings"
	"time"

	"github.com/CzarSimon/httputil/dbutil"
	"github.com/CzarSimon/httputil/environ"
	"go.uber.org/zap"
)

// Store types.
const (
	storeSQL   = "sql"
	storeMongo = "mongo"
)

type config struct {
	port        string
	baseURL     string
	store       storeConfig
	agora       agoraConfig
	corsOrigins []string
}

type storeConfig struct {
	kind           string
	db             dbutil.Config
	migrationsPath string
	mongoURI       string
	mongoDatabase  string
}

type agoraConfig struct {
	appID          string
	appCertificate string
	tokenTTL       time.Duration
}

func getConfig() config {
	return config{
		port:        environ.Get("SERVICE_PORT", "5000"),
		baseURL:     strings.TrimSuffix(environ.Get("BASE_URL", "http://localhost:3000"), "/"),
		store:       getStoreConfig(),
		agora:       getAgoraConfig(),
		corsOrigins: splitList(environ.Get("CORS_ALLOWED_ORIGINS", "*")),
	}
}

func getStoreConfig() storeConfig {
	kind := environ.Get("STORE_TYPE", storeSQL)
	switch kind {
	case storeSQL:
		return storeConfig{
			kind: kind,
			db: dbutil.MysqlConfig{
				Host:             environ.MustGet("DB_HOST"),
				Port:             environ.MustGet("DB_PORT"),
				Database:         environ.MustGet("DB_DATABASE"),
				User:             environ.MustGet("DB_USERNAME"),
				Password:         environ.MustGet("DB_PASSWORD"),
				ConnectionParams: "parseTime=true",
			},
			migrationsPath: environ.Get("MIGRATIONS_PATH", "/etc/session-broker/migrations"),
		}
	case storeMongo:
		return storeConfig{
			kind:          kind,
			mongoURI:      environ.MustGet("MONGODB_URI"),
			mongoDatabase: environ.Get("MONGODB_DATABASE", "screenshare"),
		}
	default:
		log.Fatal("unsupported store type", zap.String("type", kind))
		return storeConfig{}
	}
}

// Missing realtime credentials are reported per token request rather than at startup.
func getAgoraConfig() agoraConfig {
	ttl, err := time.ParseDuration(environ.Get("TOKEN_TTL", "1h"))
	if err != nil {
		log.Fatal("failed to parse token ttl", zap.Error(err))
	}

	cfg := agoraConfig{
		appID:          environ.Get("AGORA_APP_ID", ""),
		appCertificate: environ.Get("AGORA_APP_CERTIFICATE", ""),
		tokenTTL:       ttl,
	}

	if cfg.appID == "" || cfg.appCertificate == "" {
		log.Warn("AGORA_APP_ID or AGORA_APP_CERTIFICATE missing, token requests will fail")
	}

	return cfg
}

func splitList(value string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}

	return items
}
