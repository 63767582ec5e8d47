package gateway

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Joapozzo/loopin-gateway/internal/authflow"
	"github.com/Joapozzo/loopin-gateway/internal/guard"
	"github.com/Joapozzo/loopin-gateway/internal/identity"
	"github.com/Joapozzo/loopin-gateway/internal/rest"
	"github.com/Joapozzo/loopin-gateway/internal/session"
)

// Verifier abstracts Google credential verification for the login route.
type Verifier interface {
	Verify(ctx context.Context, rawIDToken string) (identity.Handle, string, error)
}

// Deps wires the gateway routes.
type Deps struct {
	Config   Config
	Sessions *SessionManager
	Nonces   NonceStore
	Verifier Verifier
	Logger   *zap.Logger
}

// MountRoutes registers the login surface, the session endpoint, the guarded
// page routes, and the cached resource API.
func MountRoutes(router gin.IRouter, deps Deps) {
	configuration := deps.Config.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router.POST("/auth/nonce", func(contextGin *gin.Context) {
		nonce, issueErr := deps.Nonces.Issue(contextGin)
		if issueErr != nil {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"nonce": nonce})
	})

	router.POST("/auth/google", func(contextGin *gin.Context) {
		var inbound struct {
			GoogleIDToken string `json:"google_id_token"`
			Nonce         string `json:"nonce"`
		}
		if bindErr := contextGin.BindJSON(&inbound); bindErr != nil || strings.TrimSpace(inbound.GoogleIDToken) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		if !configuration.AllowInsecureHTTP && !isHTTPS(contextGin.Request) {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "https_required"})
			return
		}
		if consumeErr := deps.Nonces.Consume(contextGin, inbound.Nonce); consumeErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_nonce"})
			return
		}

		handle, bearerToken, verifyErr := deps.Verifier.Verify(contextGin, inbound.GoogleIDToken)
		if verifyErr != nil {
			logger.Warn("google credential rejected",
				zap.String("code", "gateway.login.verify"),
				zap.Error(verifyErr))
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_google_token"})
			return
		}

		engine := deps.Sessions.EngineFor(contextGin, handle.Subject)
		if engine == nil {
			contextGin.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		states, unsubscribe := engine.Store.Subscribe()
		defer unsubscribe()
		engine.Identities.Emit(&handle, bearerToken)

		state := awaitSettled(engine.Store, states, configuration.LoginSettleTimeout)
		if state.IsAuthenticated() || state.AwaitingOnboarding() {
			writeSessionCookie(contextGin, configuration, state)
		}
		contextGin.JSON(http.StatusOK, sessionPayload(state))
	})

	router.POST("/auth/logout", func(contextGin *gin.Context) {
		if subject, resolved := subjectFromCookie(contextGin, configuration); resolved {
			var logoutErr error
			if engine, exists := deps.Sessions.Peek(subject); exists {
				logoutErr = engine.Provider.Logout(contextGin)
			} else {
				// No engine (process restarted); the durable record must
				// still be cleared.
				logoutErr = deps.Sessions.DiscardRecord(contextGin, subject)
			}
			if logoutErr != nil {
				logger.Warn("logout cleanup failed",
					zap.String("code", "gateway.logout"),
					zap.String("subject", subject),
					zap.Error(logoutErr))
			}
		}
		clearSessionCookie(contextGin, configuration)
		contextGin.JSON(http.StatusOK, gin.H{"status": "logged_out"})
	})

	resolveState := stateResolver(deps.Sessions, configuration)

	router.GET("/session", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, sessionPayload(resolveState(contextGin)))
	})

	home := router.Group(guard.PathHome)
	home.Use(guard.Middleware(resolveState, guard.Policy{RequiredRole: session.RoleCliente}))
	home.GET("", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, sessionPayload(resolveState(contextGin)))
	})

	dashboard := router.Group(guard.PathManagerDashboard)
	dashboard.Use(guard.Middleware(resolveState, guard.Policy{RequiredRole: session.RoleEncargado}))
	dashboard.GET("", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, sessionPayload(resolveState(contextGin)))
	})

	onboarding := router.Group(guard.PathOnboarding)
	onboarding.Use(guard.Middleware(resolveState, guard.Policy{AllowOnboarding: true}))
	onboarding.GET("", func(contextGin *gin.Context) {
		contextGin.JSON(http.StatusOK, sessionPayload(resolveState(contextGin)))
	})

	mountResourceRoutes(router, deps.Sessions, configuration, resolveState)
}

func mountResourceRoutes(router gin.IRouter, sessions *SessionManager, configuration Config, resolveState guard.StateResolver) {
	api := router.Group("/api")
	api.Use(guard.Middleware(resolveState, guard.Policy{}))

	engineFor := func(contextGin *gin.Context) (*Engine, bool) {
		subject, resolved := subjectFromCookie(contextGin, configuration)
		if !resolved {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return nil, false
		}
		engine := sessions.EngineFor(contextGin, subject)
		if engine == nil {
			contextGin.AbortWithStatus(http.StatusServiceUnavailable)
			return nil, false
		}
		return engine, true
	}

	respond := func(contextGin *gin.Context, resource string, value any, err error) {
		if err != nil {
			status := http.StatusBadGateway
			if apiErr, isAPIErr := rest.AsAPIError(err); isAPIErr {
				status = apiErr.StatusCode
			}
			contextGin.AbortWithStatusJSON(status, gin.H{"error": "resource_unavailable"})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{resource: value})
	}

	api.GET("/sucursales", func(contextGin *gin.Context) {
		if engine, resolved := engineFor(contextGin); resolved {
			sucursales, err := engine.Catalog.Sucursales(contextGin)
			respond(contextGin, "sucursales", sucursales, err)
		}
	})
	api.GET("/cliente/sucursales", func(contextGin *gin.Context) {
		if engine, resolved := engineFor(contextGin); resolved {
			sucursales, err := engine.Catalog.SucursalesCliente(contextGin)
			respond(contextGin, "sucursales", sucursales, err)
		}
	})
	api.GET("/tarjetas/activas", func(contextGin *gin.Context) {
		if engine, resolved := engineFor(contextGin); resolved {
			tarjetas, err := engine.Catalog.TarjetasActivas(contextGin)
			respond(contextGin, "tarjetas", tarjetas, err)
		}
	})
	api.GET("/tarjetas/inactivas", func(contextGin *gin.Context) {
		if engine, resolved := engineFor(contextGin); resolved {
			tarjetas, err := engine.Catalog.TarjetasInactivas(contextGin)
			respond(contextGin, "tarjetas", tarjetas, err)
		}
	})
	api.GET("/provincias", func(contextGin *gin.Context) {
		if engine, resolved := engineFor(contextGin); resolved {
			provincias, err := engine.Catalog.Provincias(contextGin)
			respond(contextGin, "provincias", provincias, err)
		}
	})
	api.GET("/localidades", func(contextGin *gin.Context) {
		if engine, resolved := engineFor(contextGin); resolved {
			localidades, err := engine.Catalog.Localidades(contextGin)
			respond(contextGin, "localidades", localidades, err)
		}
	})
	api.GET("/categorias_productos", func(contextGin *gin.Context) {
		if engine, resolved := engineFor(contextGin); resolved {
			categorias, err := engine.Catalog.CategoriasProductos(contextGin)
			respond(contextGin, "categorias_productos", categorias, err)
		}
	})

	api.POST("/tarjetas", func(contextGin *gin.Context) {
		engine, resolved := engineFor(contextGin)
		if !resolved {
			return
		}
		var request rest.CrearTarjetaRequest
		if bindErr := contextGin.BindJSON(&request); bindErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		tarjeta, mensaje, crearErr := engine.Catalog.CrearTarjeta(contextGin, request)
		if crearErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "mutation_failed", "mensaje": mensaje})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"tarjeta": tarjeta, "mensaje": mensaje})
	})
	api.DELETE("/tarjetas/:id", func(contextGin *gin.Context) {
		engine, resolved := engineFor(contextGin)
		if !resolved {
			return
		}
		tarjetaID, parseErr := strconv.ParseInt(contextGin.Param("id"), 10, 64)
		if parseErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
			return
		}
		mensaje, eliminarErr := engine.Catalog.EliminarTarjeta(contextGin, tarjetaID)
		if eliminarErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "mutation_failed", "mensaje": mensaje})
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"mensaje": mensaje})
	})
}

// stateResolver maps a request to its session state. Requests without a valid
// session cookie resolve to a fresh unauthenticated state; requests with one
// resolve through the subject's engine, bootstrapping it after a restart.
func stateResolver(sessions *SessionManager, configuration Config) guard.StateResolver {
	return func(contextGin *gin.Context) session.State {
		subject, resolved := subjectFromCookie(contextGin, configuration)
		if !resolved {
			return session.Unauthenticated(false)
		}
		engine := sessions.EngineFor(contextGin, subject)
		if engine == nil {
			return session.Unauthenticated(false)
		}
		return engine.Store.Current()
	}
}

func subjectFromCookie(contextGin *gin.Context, configuration Config) (string, bool) {
	cookie, cookieErr := contextGin.Request.Cookie(configuration.SessionCookieName)
	if cookieErr != nil || cookie == nil || strings.TrimSpace(cookie.Value) == "" {
		return "", false
	}
	claims, parseErr := authflow.ParseSessionJWT(cookie.Value, configuration.SessionJWTIssuer, configuration.SessionJWTSigningKey)
	if parseErr != nil {
		return "", false
	}
	return claims.Subject, true
}

// awaitSettled waits for the first resolved state after a login emission so
// the response can carry the outcome instead of a loading placeholder.
func awaitSettled(store *session.Store, states <-chan session.State, timeout time.Duration) session.State {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case state := <-states:
			if !state.IsLoading() && !state.IsProvisional() {
				return state
			}
		case <-deadline.C:
			return store.Current()
		}
	}
}

func sessionPayload(state session.State) gin.H {
	payload := gin.H{"status": string(state.Status())}
	if stateIdentity := state.Identity(); stateIdentity != nil {
		payload["email"] = stateIdentity.Email
	}
	if state.Role() != "" {
		payload["rol"] = string(state.Role())
	}
	if profile := state.Profile(); profile != nil {
		payload["usuario"] = gin.H{
			"id":       profile.ID,
			"nombre":   profile.Nombre,
			"apellido": profile.Apellido,
			"email":    profile.Email,
		}
	}
	if state.Status() == session.StatusUnauthenticated {
		payload["has_loaded_from_storage"] = state.HasLoadedFromStorage()
		if failure := state.Failure(); failure != nil {
			payload["error"] = "login_failed"
		}
	}
	return payload
}

func writeSessionCookie(contextGin *gin.Context, configuration Config, state session.State) {
	stateIdentity := state.Identity()
	if stateIdentity == nil {
		return
	}
	var displayName string
	if profile := state.Profile(); profile != nil {
		displayName = profile.Nombre
	} else {
		displayName = stateIdentity.DisplayName
	}
	token, expiresAt, mintErr := authflow.MintSessionJWT(nil, stateIdentity.Subject, stateIdentity.Email, displayName, string(state.Role()), configuration.SessionJWTIssuer, configuration.SessionJWTSigningKey, configuration.SessionTTL)
	if mintErr != nil {
		return
	}
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   configuration.CookieDomain,
		Expires:  expiresAt,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func clearSessionCookie(contextGin *gin.Context, configuration Config) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   configuration.CookieDomain,
		MaxAge:   -1,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func isHTTPS(request *http.Request) bool {
	if request.TLS != nil {
		return true
	}
	if strings.EqualFold(request.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	forwarded := request.Header.Get("Forwarded")
	if forwarded != "" && strings.Contains(strings.ToLower(forwarded), "proto=https") {
		return true
	}
	host, _, splitErr := net.SplitHostPort(request.Host)
	if splitErr == nil && host == "localhost" {
		return true
	}
	return false
}
