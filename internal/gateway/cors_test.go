package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

func TestConfigureCORSAllowsConfiguredOrigin(t *testing.T) {
	t.Parallel()

	middleware, corsErr := ConfigureCORS(zaptest.NewLogger(t), []string{"https://app.loopin.example"})
	if corsErr != nil {
		t.Fatalf("configure cors: %v", corsErr)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware)
	router.GET("/session", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusOK)
	})

	request := httptest.NewRequest(http.MethodGet, "/session", nil)
	request.Header.Set("Origin", "https://app.loopin.example")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	if allowed := recorder.Header().Get("Access-Control-Allow-Origin"); allowed != "https://app.loopin.example" {
		t.Fatalf("expected origin echoed, got %q", allowed)
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentialed cors")
	}
}

func TestConfigureCORSRejectsWildcard(t *testing.T) {
	t.Parallel()

	if _, corsErr := ConfigureCORS(zaptest.NewLogger(t), []string{"*"}); !errors.Is(corsErr, errWildcardOrigin) {
		t.Fatalf("expected wildcard rejection, got %v", corsErr)
	}
}

func TestConfigureCORSRejectsEmptyOrigins(t *testing.T) {
	t.Parallel()

	if _, corsErr := ConfigureCORS(zaptest.NewLogger(t), []string{" ", ""}); !errors.Is(corsErr, errEmptyAllowedOrigins) {
		t.Fatalf("expected empty-origin rejection, got %v", corsErr)
	}
}

func TestSanitizeOriginsNormalizesAndDeduplicates(t *testing.T) {
	t.Parallel()

	sanitized, sanitizeErr := sanitizeOrigins(zaptest.NewLogger(t), []string{
		"HTTPS://app.loopin.example",
		"https://app.loopin.example/",
		"http://localhost:3000",
	})
	if sanitizeErr != nil {
		t.Fatalf("sanitize: %v", sanitizeErr)
	}
	if len(sanitized) != 2 {
		t.Fatalf("expected duplicates collapsed, got %v", sanitized)
	}
}

func TestSanitizeOriginsRejectsPathSegments(t *testing.T) {
	t.Parallel()

	if _, sanitizeErr := sanitizeOrigins(zaptest.NewLogger(t), []string{"https://app.loopin.example/app"}); !errors.Is(sanitizeErr, errInvalidOrigin) {
		t.Fatalf("expected invalid-origin rejection, got %v", sanitizeErr)
	}
}
