package gateway

import (
	"net/http"
	"time"
)

// Default cookie and timing values used when Config fields are zero.
const (
	DefaultSessionCookieName  = "loopin_session"
	DefaultSessionTTL         = 7 * 24 * time.Hour
	DefaultNonceTTL           = 5 * time.Minute
	DefaultLoginSettleTimeout = 10 * time.Second
)

// Config configures the gateway's login surface and session cookie.
type Config struct {
	GoogleWebClientID    string
	SessionJWTSigningKey []byte
	SessionJWTIssuer     string
	CookieDomain         string
	SessionCookieName    string
	SessionTTL           time.Duration
	NonceTTL             time.Duration
	LoginSettleTimeout   time.Duration
	SameSiteMode         http.SameSite
	AllowInsecureHTTP    bool
}

func (config Config) withDefaults() Config {
	if config.SessionCookieName == "" {
		config.SessionCookieName = DefaultSessionCookieName
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultSessionTTL
	}
	if config.NonceTTL <= 0 {
		config.NonceTTL = DefaultNonceTTL
	}
	if config.LoginSettleTimeout <= 0 {
		config.LoginSettleTimeout = DefaultLoginSettleTimeout
	}
	if config.SameSiteMode == 0 {
		config.SameSiteMode = http.SameSiteStrictMode
	}
	return config
}
