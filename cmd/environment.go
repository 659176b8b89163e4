package main

import (
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/CzarSimon/httputil"
	"github.com/CzarSimon/httputil/dbutil"
	"github.com/opentracing/opentracing-go"
	"github.com/rtcheap/session-broker/internal/repository"
	"github.com/rtcheap/session-broker/internal/service"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const storeTimeout = 10 * time.Second

type env struct {
	cfg            config
	db             *sql.DB
	mongo          *mongo.Client
	traceCloser    io.Closer
	sessionService *service.SessionService
	tokenService   *service.TokenService
	statusService  *service.StatusService
}

func (e *env) checkHealth() error {
	var err error
	if e.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		err = e.mongo.Ping(ctx, readpref.Primary())
	} else {
		err = dbutil.Connected(e.db)
	}

	if err != nil {
		return httputil.ServiceUnavailableError(err)
	}

	return nil
}

func (e *env) close() {
	if e.db != nil {
		err := e.db.Close()
		if err != nil {
			log.Error("failed to close database connection", zap.Error(err))
		}
	}

	if e.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		err := e.mongo.Disconnect(ctx)
		if err != nil {
			log.Error("failed to close mongodb connection", zap.Error(err))
		}
	}

	if e.traceCloser != nil {
		err := e.traceCloser.Close()
		if err != nil {
			log.Error("failed to close tracer connection", zap.Error(err))
		}
	}
}

func setupEnv() *env {
	jcfg, err := jaegercfg.FromEnv()
	if err != nil {
		log.Fatal("failed to create jaeger configuration", zap.Error(err))
	}
	if jcfg.ServiceName == "" {
		jcfg.ServiceName = "session-broker"
	}

	tracer, closer, err := jcfg.NewTracer()
	if err != nil {
		log.Fatal("failed to create tracer", zap.Error(err))
	}

	opentracing.SetGlobalTracer(tracer)

	cfg := getConfig()
	e := &env{
		cfg:         cfg,
		traceCloser: closer,
	}

	var repo repository.SessionRepository
	switch cfg.store.kind {
	case storeMongo:
		e.mongo, repo = connectMongo(cfg.store)
	default:
		e.db = dbutil.MustConnect(cfg.store.db)
		err = dbutil.Upgrade(cfg.store.migrationsPath, cfg.store.db.Driver(), e.db)
		if err != nil {
			log.Fatal("failed to apply database migrations", zap.Error(err))
		}
		repo = repository.NewSessionRepository(e.db)
	}

	wireServices(e, repo)
	return e
}

func connectMongo(cfg storeConfig) (*mongo.Client, repository.SessionRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.mongoURI))
	if err != nil {
		log.Fatal("failed to connect to mongodb", zap.Error(err))
	}

	db := client.Database(cfg.mongoDatabase)
	err = repository.EnsureSessionIndexes(ctx, db)
	if err != nil {
		log.Fatal("failed to create session indexes", zap.Error(err))
	}

	return client, repository.NewMongoSessionRepository(db)
}

func wireServices(e *env, repo repository.SessionRepository) {
	e.sessionService = &service.SessionService{
		BaseURL:     e.cfg.baseURL,
		SessionRepo: repo,
	}

	e.tokenService = &service.TokenService{
		AppID:          e.cfg.agora.appID,
		AppCertificate: e.cfg.agora.appCertificate,
		TTL:            e.cfg.agora.tokenTTL,
	}

	e.statusService = &service.StatusService{
		Socket:         service.NewWebsocketHandler(),
		SessionService: e.sessionService,
	}
}
