package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/otbox/storefront/metrics"
)

func observeRequest(r *http.Request, status int, since time.Duration) {
	route := "unmatched"
	if cur := mux.CurrentRoute(r); cur != nil {
		if tpl, err := cur.GetPathTemplate(); err == nil {
			route = tpl
		}
	}

	// mutil reports 0 when the handler never wrote a header.
	if status == 0 {
		status = http.StatusOK
	}

	metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(since.Seconds())
}
