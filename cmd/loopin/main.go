package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Joapozzo/loopin-gateway/internal/authflow"
	"github.com/Joapozzo/loopin-gateway/internal/gateway"
	"github.com/Joapozzo/loopin-gateway/internal/identity"
	"github.com/Joapozzo/loopin-gateway/internal/persist"
	"github.com/Joapozzo/loopin-gateway/internal/persistpg"
	"github.com/Joapozzo/loopin-gateway/internal/query"
	"github.com/Joapozzo/loopin-gateway/internal/rest"
	webassets "github.com/Joapozzo/loopin-gateway/web"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context) (identity.GoogleTokenValidator, error) {
	return identity.NewGoogleTokenValidator(ctx)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "loopin",
		Short:   "Loyalty gateway with Google Sign-In sessions, role-guarded routes, and a cached backend API",
		PreRunE: prepareGatewayConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("api_base_url", "", "Base URL of the Loopin backend REST API")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().String("google_web_client_id", "", "Google Web OAuth Client ID")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for the session cookie JWT")
	rootCmd.Flags().Duration("session_ttl", gateway.DefaultSessionTTL, "Session cookie TTL")
	rootCmd.Flags().Duration("auth_record_ttl", persist.DefaultRecordTTL, "Durable auth record TTL")
	rootCmd.Flags().Duration("nonce_ttl", gateway.DefaultNonceTTL, "Nonce lifetime for Google Sign-In exchanges")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	rootCmd.Flags().String("database_url", "", "Database URL for auth records (postgres:// or sqlite://; leave empty for in-memory store)")
	rootCmd.Flags().Bool("postgres_native", false, "Use the native pgx store for postgres database URLs")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("api_base_url", rootCmd.Flags().Lookup("api_base_url"))
	_ = viper.BindPFlag("cookie_domain", rootCmd.Flags().Lookup("cookie_domain"))
	_ = viper.BindPFlag("google_web_client_id", rootCmd.Flags().Lookup("google_web_client_id"))
	_ = viper.BindPFlag("jwt_signing_key", rootCmd.Flags().Lookup("jwt_signing_key"))
	_ = viper.BindPFlag("session_ttl", rootCmd.Flags().Lookup("session_ttl"))
	_ = viper.BindPFlag("auth_record_ttl", rootCmd.Flags().Lookup("auth_record_ttl"))
	_ = viper.BindPFlag("nonce_ttl", rootCmd.Flags().Lookup("nonce_ttl"))
	_ = viper.BindPFlag("dev_insecure_http", rootCmd.Flags().Lookup("dev_insecure_http"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("postgres_native", rootCmd.Flags().Lookup("postgres_native"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	sessionJWTIssuer = "loopin-gateway"

	configCodeMissingAPIBaseURL       = "config.missing_api_base_url"
	configCodeMissingGoogleClientID   = "config.missing_google_web_client_id"
	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidSessionTTL       = "config.invalid_session_ttl"
	configCodeInvalidAuthRecordTTL    = "config.invalid_auth_record_ttl"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit     = "config.google_validator_init"
	configCodeBackendClientInit       = "config.backend_client_init"
	configCodeAuthStoreInit           = "config.auth_store_init"
)

type contextKey string

const gatewayConfigContextKey contextKey = "gatewayConfig"

// gatewayRuntimeConfig carries the validated gateway config plus the flags
// runServer reads alongside it.
type gatewayRuntimeConfig struct {
	Gateway       gateway.Config
	APIBaseURL    string
	AuthRecordTTL time.Duration
}

func prepareGatewayConfig(command *cobra.Command, arguments []string) error {
	runtimeConfig, loadErr := LoadGatewayConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, gatewayConfigContextKey, runtimeConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func LoadGatewayConfig() (gatewayRuntimeConfig, error) {
	apiBaseURL := viper.GetString("api_base_url")
	if apiBaseURL == "" {
		return gatewayRuntimeConfig{}, configError(configCodeMissingAPIBaseURL, "api_base_url must be provided")
	}

	googleWebClientID := viper.GetString("google_web_client_id")
	if googleWebClientID == "" {
		return gatewayRuntimeConfig{}, configError(configCodeMissingGoogleClientID, "google_web_client_id must be provided")
	}

	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return gatewayRuntimeConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	sessionTTL := viper.GetDuration("session_ttl")
	if sessionTTL <= 0 {
		return gatewayRuntimeConfig{}, configError(configCodeInvalidSessionTTL, "session_ttl must be greater than zero")
	}

	authRecordTTL := viper.GetDuration("auth_record_ttl")
	if authRecordTTL <= 0 {
		return gatewayRuntimeConfig{}, configError(configCodeInvalidAuthRecordTTL, "auth_record_ttl must be greater than zero")
	}

	nonceTTL := gateway.DefaultNonceTTL
	if configuredNonceTTL := viper.GetDuration("nonce_ttl"); configuredNonceTTL > 0 {
		nonceTTL = configuredNonceTTL
	}

	return gatewayRuntimeConfig{
		Gateway: gateway.Config{
			GoogleWebClientID:    googleWebClientID,
			SessionJWTSigningKey: []byte(jwtSigningKey),
			SessionJWTIssuer:     sessionJWTIssuer,
			CookieDomain:         viper.GetString("cookie_domain"),
			SessionTTL:           sessionTTL,
			NonceTTL:             nonceTTL,
		},
		APIBaseURL:    apiBaseURL,
		AuthRecordTTL: authRecordTTL,
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(gatewayConfigContextKey)
	}
	runtimeConfig, ok := contextValue.(gatewayRuntimeConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "gateway configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	devInsecureHTTP := viper.GetBool("dev_insecure_http")
	databaseURL := viper.GetString("database_url")
	postgresNative := viper.GetBool("postgres_native")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := gateway.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	router.GET("/static/loopin-client.js", func(contextGin *gin.Context) {
		gateway.ServeEmbeddedStaticJS(contextGin, webassets.FS, "loopin-client.js")
	})

	recordStore, storeErr := buildAuthRecordStore(command.Context(), logger, databaseURL, postgresNative, runtimeConfig.AuthRecordTTL)
	if storeErr != nil {
		return fmt.Errorf("%s: %w", configCodeAuthStoreInit, storeErr)
	}

	backendClient, clientErr := rest.NewClient(runtimeConfig.APIBaseURL, nil, logger)
	if clientErr != nil {
		return fmt.Errorf("%s: %w", configCodeBackendClientInit, clientErr)
	}

	cache := query.NewCache(logger, nil)
	defer cache.Close()

	metricsRecorder := authflow.NewCounterMetrics()
	sessions := gateway.NewSessionManager(recordStore, backendClient, cache, logger, metricsRecorder, authflow.Config{})
	defer sessions.Close()

	validator, validatorErr := buildGoogleTokenValidator(command.Context())
	if validatorErr != nil {
		return fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, validatorErr)
	}
	verifier := identity.NewGoogleVerifier(validator, runtimeConfig.Gateway.GoogleWebClientID)

	gatewayConfig := runtimeConfig.Gateway
	gatewayConfig.AllowInsecureHTTP = devInsecureHTTP
	gatewayConfig.SameSiteMode = http.SameSiteStrictMode
	if enableCORS {
		gatewayConfig.SameSiteMode = http.SameSiteNoneMode
	}

	gateway.MountRoutes(router, gateway.Deps{
		Config:   gatewayConfig,
		Sessions: sessions,
		Nonces:   gateway.NewMemoryNonceStore(gatewayConfig.NonceTTL),
		Verifier: verifier,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

// buildAuthRecordStore picks the durable store implementation from flags: no
// database URL means in-memory, postgres_native selects the pgx store, and
// everything else goes through the GORM store.
func buildAuthRecordStore(ctx context.Context, logger *zap.Logger, databaseURL string, postgresNative bool, recordTTL time.Duration) (persist.Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if databaseURL == "" {
		logger.Info("using in-memory auth record store")
		return persist.NewMemoryStore(recordTTL, nil), nil
	}
	if postgresNative {
		pool, poolErr := persistpg.BuildPool(ctx, databaseURL)
		if poolErr != nil {
			return nil, poolErr
		}
		if schemaErr := persistpg.EnsureSchema(ctx, pool); schemaErr != nil {
			pool.Close()
			return nil, schemaErr
		}
		logger.Info("using native postgres auth record store")
		return persistpg.NewPostgresAuthStore(pool, recordTTL, nil), nil
	}
	store, storeErr := persist.NewDatabaseStore(ctx, databaseURL, recordTTL, nil)
	if storeErr != nil {
		return nil, storeErr
	}
	logger.Info("using persistent auth record store", zap.String("driver", store.Driver()))
	return store, nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
