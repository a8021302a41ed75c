package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/pobradovic08/myip/internal/iplookup"
	"github.com/pobradovic08/myip/internal/model"
)

// HomePrefix precedes the lookup result in the root response.
const HomePrefix = "My public IP is: "

// APIHandler serves the myip routes.
type APIHandler struct {
	Fetcher iplookup.Fetcher
	Metrics *MetricsCollector
}

// GetHome handles GET /
func (h *APIHandler) GetHome(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ip, err := h.Fetcher.Lookup(r.Context())
	h.Metrics.ObserveLookup(time.Since(start), err)
	if err != nil {
		slog.Error("public IP lookup failed", "error", err)
		model.WriteProblem(w, r, http.StatusInternalServerError,
			"The public IP address could not be determined.")
		return
	}

	checkReportedAddr(ip)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, HomePrefix+ip)
}

// GetHealth handles GET /health
func (h *APIHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	model.WriteJSON(w, http.StatusOK, model.HealthResponse{Status: model.HealthOK})
}

// checkReportedAddr logs lookup bodies that do not look like a public address.
// The body is still returned to the caller unchanged.
func checkReportedAddr(body string) {
	addr, err := netip.ParseAddr(strings.TrimSpace(body))
	if err != nil {
		slog.Warn("lookup returned a body that is not an IP address", "body_len", len(body))
		return
	}
	if !iplookup.IsPublic(addr) {
		slog.Warn("lookup reported a non-public address", "addr", addr.String())
	}
}
