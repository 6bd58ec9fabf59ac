// SPDX-License-Identifier: MIT

package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/ManuGH/podstream/internal/problem"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var admissionRejected = promauto.NewCounter(prometheus.CounterOpts{
	Name: "podstream_admission_rejected_total",
	Help: "Requests rejected by the global admission limiter",
})

// Admission applies one token bucket shared by all clients, capping how fast new
// pipelines can be started on this host. A non-positive limit disables it.
func Admission(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 || burst <= 0 {
			return next
		}
		lim := rate.NewLimiter(limit, burst)
		retryAfter := strconv.Itoa(int(math.Max(1, math.Round(1/float64(limit)))))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				admissionRejected.Inc()
				w.Header().Set("Retry-After", retryAfter)
				problem.Write(w, r, http.StatusTooManyRequests, "system/overloaded", "Too Many Requests",
					problem.CodeRateLimited, "The server is starting too many streams. Please retry shortly.", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
