// Package metrics defines and registers the custom Prometheus metrics of the
// users API. It is the single source of truth for metric names, labels and
// help strings.
//
// Metrics are registered with the default Prometheus registry on import and
// exposed on GET /metrics next to the echoprometheus request metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "users"

// ── Auth metrics ──────────────────────────────────────────────────────────────

// SignupsTotal counts accounts created through the public signup path.
var SignupsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signups_total",
		Help:      "Total number of accounts created through signup.",
	},
)

// SigninsTotal counts signin attempts.
// Label:
//   - result: "success", "not_found" or "invalid_credentials"
var SigninsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signins_total",
		Help:      "Total number of signin attempts, labelled by result.",
	},
	[]string{"result"},
)

// TokenRefreshesTotal counts successful token pair rotations.
var TokenRefreshesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Total number of refresh tokens exchanged for a new pair.",
	},
)

// TokenRejectionsTotal counts rejected tokens. Callers only ever see a 401;
// this is where the actual cause is visible.
// Labels:
//   - kind: "access" or "refresh"
//   - reason: "invalid", "expired", "malformed", "missing", "subject_gone" or "fingerprint"
var TokenRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_rejections_total",
		Help:      "Total number of rejected tokens, by token kind and reason.",
	},
	[]string{"kind", "reason"},
)

// AuthorizationDenialsTotal counts requests refused by the role guard.
// Label:
//   - route: the route identifier, e.g. "GET /api/users/:id"
var AuthorizationDenialsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_denials_total",
		Help:      "Total number of requests denied for insufficient role.",
	},
	[]string{"route"},
)

// ── Directory metrics ─────────────────────────────────────────────────────────

// SubjectCacheTotal counts subject cache lookups.
// Label:
//   - result: "hit", "miss" or "error". An entry left behind by an edit or a
//     delete counts as a miss; "error" covers Redis failures and entries
//     that fail to decode.
var SubjectCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subject_cache_total",
		Help:      "Total number of subject cache lookups, labelled by result (hit/miss/error).",
	},
	[]string{"result"},
)
