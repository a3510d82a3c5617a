// Package metrics exposes the security-relevant health counters of the
// access-control core. Audit write failures surface here because ordinary
// audit writes never fail the request they describe; the counter is how
// operators find out.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AuthRejections counts requests rejected by the middleware chain,
	// labelled by the stage that rejected them (token, session, lockout,
	// tenant, authorization).
	AuthRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caremesh",
		Subsystem: "auth",
		Name:      "rejections_total",
		Help:      "Requests rejected by the authorization middleware chain, by stage.",
	}, []string{"stage"})

	// Lockouts counts accounts locked by the login throttle.
	Lockouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "caremesh",
		Subsystem: "auth",
		Name:      "lockouts_total",
		Help:      "Accounts locked after repeated failed login attempts.",
	})

	// RoleRepairs counts principals whose missing role was repaired to the
	// default minimal role. A nonzero rate indicates a role-loss bug
	// upstream and warrants investigation.
	RoleRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "caremesh",
		Subsystem: "auth",
		Name:      "role_repairs_total",
		Help:      "Principals repaired from a missing role to the default role.",
	})

	// AuditWrites counts persisted audit entries by sensitivity mode.
	AuditWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caremesh",
		Subsystem: "audit",
		Name:      "writes_total",
		Help:      "Audit entries persisted, by sensitivity mode.",
	}, []string{"mode"})

	// AuditWriteFailures counts failed audit writes by sensitivity mode.
	// Ordinary failures do not abort the business action; high-sensitivity
	// failures roll the action back.
	AuditWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caremesh",
		Subsystem: "audit",
		Name:      "write_failures_total",
		Help:      "Failed audit entry writes, by sensitivity mode.",
	}, []string{"mode"})
)

// Handler serves the Prometheus exposition endpoint.
func Handler() echo.HandlerFunc {
	h := promhttp.Handler()
	return func(c echo.Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}
