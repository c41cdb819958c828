package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rentdesk/internal/config"
	"rentdesk/internal/domain"
	"rentdesk/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	actorHeaderDefault  = "x-actor-id"
	requestIDHeader     = "X-Request-ID"
	permReadBookings    = "read:bookings"
	permWriteBookings   = "write:bookings"
	permWriteReviews    = "write:reviews"
	permSystemBookings  = "system:bookings"
	clientKeyUnknown    = "unknown"
	defaultActorWindow  = time.Minute
	actorLimitTimeout   = 250 * time.Millisecond
)

var (
	errMissingAPIKey    = errors.New("missing api key header")
	errInvalidAPIKey    = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
	errMissingActor     = errors.New("missing actor id header")
	errInvalidActor     = errors.New("invalid actor id header")
	errSystemActor      = errors.New("acting as the system requires the system:bookings permission")
)

type ctxKey int

const requestIDKey ctxKey = 0

// HTTPAuth provides API-key auth, per-key rate limiting and per-actor quotas.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiter  *rateLimiter
	actors   domain.ActorRateLimiter
	logger   *zerolog.Logger
	keyName  string
	actorHdr string
}

func NewHTTPAuth(cfg config.APIConfig, actors domain.ActorRateLimiter, logger *zerolog.Logger) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	keyName := strings.TrimSpace(strings.ToLower(cfg.Auth.HeaderAPIKey))
	if keyName == "" {
		keyName = apiKeyHeaderDefault
	}
	actorHdr := strings.TrimSpace(strings.ToLower(cfg.Auth.HeaderActorID))
	if actorHdr == "" {
		actorHdr = actorHeaderDefault
	}

	return &HTTPAuth{
		cfg:      cfg,
		clients:  m,
		limiter:  newRateLimiter(cfg.RateLimit),
		actors:   actors,
		logger:   logger,
		keyName:  keyName,
		actorHdr: actorHdr,
	}
}

// Wrap gates next behind the API key check and the per-key token bucket.
func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.keyName))
	if apiKey == "" {
		return errMissingAPIKey
	}

	client, found := a.lookupClient(apiKey)
	if !found {
		return errInvalidAPIKey
	}

	return a.checkPermissions(client, r)
}

func (a *HTTPAuth) lookupClient(apiKey string) (config.APIClientKey, bool) {
	for key, c := range a.clients {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return c, true
		}
	}
	return config.APIClientKey{}, false
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermissionHTTP(r)
	if required == "" {
		return nil
	}
	// An empty permission list allows everything.
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	if !strings.HasPrefix(path, "/api/v1/") {
		return ""
	}
	if r.Method == http.MethodGet {
		return permReadBookings
	}
	if strings.HasSuffix(path, "/reviews") {
		return permWriteReviews
	}
	return permWriteBookings
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.keyName)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// actorID parses the acting user from the actor header.
// The system actor is reserved for keys that explicitly carry system:bookings.
func (a *HTTPAuth) actorID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(a.actorHdr))
	if raw == "" {
		return 0, errMissingActor
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, errInvalidActor
	}
	if id == models.SystemActorID && !a.canActAsSystem(r) {
		return 0, errSystemActor
	}
	return id, nil
}

// canActAsSystem needs auth enabled and an explicit grant; an empty permission list does not count.
func (a *HTTPAuth) canActAsSystem(r *http.Request) bool {
	if !a.cfg.Auth.Enabled {
		return false
	}
	client, found := a.lookupClient(strings.TrimSpace(r.Header.Get(a.keyName)))
	if !found {
		return false
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == permSystemBookings {
			return true
		}
	}
	return false
}

// allowActor applies the per-actor quota. Limiter failures let the request through.
func (a *HTTPAuth) allowActor(ctx context.Context, actorID int64) bool {
	limit := a.cfg.RateLimit.PerActorLimit
	if a.actors == nil || limit <= 0 {
		return true
	}
	window := a.cfg.RateLimit.PerActorWindow
	if window <= 0 {
		window = defaultActorWindow
	}

	ctx, cancel := context.WithTimeout(ctx, actorLimitTimeout)
	defer cancel()

	allowed, err := a.actors.CheckRateLimit(ctx, actorID, limit, window)
	if err != nil {
		a.logger.Warn().Err(err).Int64("actor_id", actorID).Msg("actor rate limit check failed")
		return true
	}
	return allowed
}

func withRequestID(r *http.Request) (*http.Request, string) {
	id := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	return r.WithContext(context.WithValue(r.Context(), requestIDKey, id)), id
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
