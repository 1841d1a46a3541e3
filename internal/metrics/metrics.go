package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counters for the auth hot path. Reuse detections get a dedicated counter
// because the HTTP layer deliberately hides them behind a generic 401;
// alerting has to happen server-side.
var (
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_login_attempts_total",
		Help: "Login attempts by result (ok, unauthorized, error).",
	}, []string{"result"})

	TokenVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_token_verifications_total",
		Help: "Access token verifications by result (ok, invalid, expired, revoked, unavailable).",
	}, []string{"result"})

	RefreshRotations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authcore_refresh_rotations_total",
		Help: "Refresh token rotations by result (ok, invalid, expired, reused).",
	}, []string{"result"})

	ReuseDetections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authcore_refresh_reuse_detections_total",
		Help: "Refresh token replays that triggered a family revocation.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
