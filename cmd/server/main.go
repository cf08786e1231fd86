package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	auditlog "claims-portal/backend/internal/audit"
	auditrepo "claims-portal/backend/internal/audit/repository"
	authhandler "claims-portal/backend/internal/auth/handler"
	authrepo "claims-portal/backend/internal/auth/repository"
	authservice "claims-portal/backend/internal/auth/service"
	claimhandler "claims-portal/backend/internal/claim/handler"
	claimrepo "claims-portal/backend/internal/claim/repository"
	claimservice "claims-portal/backend/internal/claim/service"
	"claims-portal/backend/internal/config"
	"claims-portal/backend/internal/db"
	"claims-portal/backend/internal/events"
	"claims-portal/backend/internal/notify"
	"claims-portal/backend/internal/otp"
	"claims-portal/backend/internal/otp/devotp"
	otprepo "claims-portal/backend/internal/otp/repository"
	policyengine "claims-portal/backend/internal/policy/engine"
	policyrepo "claims-portal/backend/internal/policy/repository"
	"claims-portal/backend/internal/security"
	"claims-portal/backend/internal/server"
	"claims-portal/backend/internal/server/middleware"
	sessionrepo "claims-portal/backend/internal/session/repository"
	"claims-portal/backend/internal/telemetry/otel"
	userrepo "claims-portal/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := config.GetLogger()

	ctx := context.Background()
	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "claims-api", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	privKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	pubKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenProvider(privKey, pubKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	users := userrepo.NewPostgresRepository(conn)
	sessions := sessionrepo.NewPostgresRepository(conn)
	authTokens := authrepo.NewPostgresRepository(conn)
	claims := claimrepo.NewPostgresRepository(conn)
	challenges := otprepo.NewPostgresRepository(conn)
	policies := policyrepo.NewPostgresRepository(conn)
	audits := auditrepo.NewPostgresRepository(conn)

	var notifier notify.Notifier
	var links notify.LinkSender
	if cfg.MailerBaseURL != "" {
		mailer := notify.NewMailerClient(cfg.MailerAPIKey, cfg.MailerBaseURL, cfg.MailerSender)
		notifier = mailer
		links = mailer
	} else {
		logger.Warn("MAILER_BASE_URL not set; OTP codes and auth links will not be dispatched")
	}

	var devStore devotp.Store
	if cfg.OTPReturnToClient {
		devStore = devotp.NewMemoryStore()
		logger.Warn("dev OTP mode enabled; codes are exposed via GET /api/dev/otp")
	}
	manager := otp.NewManager(challenges, notifier, devStore, cfg.ChallengeTTL(), cfg.OTPMaxAttempts)

	evaluator := policyengine.NewOPAEvaluator(policies, cfg.PaymentOTPRequired)

	var emitter events.Emitter
	if producer := events.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.ClaimEventsKafkaTopic); producer != nil {
		emitter = producer
		defer producer.Close()
	}

	auditor := auditlog.NewLogger(audits, middleware.ClientIP)
	inTx := claimservice.NewSQLTxRunner(conn, claims, challenges)
	workflow := claimservice.NewWorkflowService(claims, inTx, manager, evaluator, auditor, emitter)
	auth := authservice.NewAuthService(users, sessions, authTokens, links, hasher, tokens, cfg.RefreshTTL())

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}

	router := server.NewRouter(cfg, server.Deps{
		Auth:        authhandler.NewAuthHandler(auth, cfg.Env == "production"),
		Claims:      claimhandler.NewClaimHandler(workflow, cfg.OTPReturnToClient),
		Tokens:      tokens,
		Sessions:    sessions,
		Redis:       rdb,
		DevOTPStore: devStore,
		DB:          conn,
		Policy:      evaluator,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("claims API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown")
	}
	// Give in-flight async event emits time to land before the producer closes.
	time.Sleep(events.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("telemetry shutdown")
	}
	logger.Info("stopped")
}
