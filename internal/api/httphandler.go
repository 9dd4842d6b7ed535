package api

import (
	"apollocfg/internal/types"
	"context"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// SnapshotProvider is the part of the client the HTTP view reads from.
type SnapshotProvider interface {
	Namespaces() []string
	Snapshot(ctx context.Context, namespace string) *types.Snapshot
	// Lookup honors the client's case sensitivity.
	Lookup(ctx context.Context, namespace, key string) (string, bool)
}

type Handler struct {
	Provider SnapshotProvider
}

func NewHandler(provider SnapshotProvider) *Handler {
	return &Handler{Provider: provider}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /configs/{namespace}", h.handleNamespace)
	mux.HandleFunc("GET /configs/{namespace}/{key}", h.handleKey)
	mux.HandleFunc("GET /namespaces", h.handleNamespaces)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return logRequests(mux)
}

func (h *Handler) handleNamespaces(w http.ResponseWriter, r *http.Request) {
	if err := writeJSON(w, http.StatusOK, h.Provider.Namespaces()); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
	}
}

func (h *Handler) handleNamespace(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.snapshot(r)
	if !ok {
		http.Error(w, "unknown namespace", http.StatusNotFound)
		return
	}
	body := types.ConfigResponse{
		NamespaceName:  snap.Namespace(),
		Configurations: snap.Values(),
		ReleaseKey:     snap.ReleaseKey(),
	}
	if err := writeJSON(w, http.StatusOK, body); err != nil {
		http.Error(w, "failed to write response", http.StatusInternalServerError)
	}
}

func (h *Handler) handleKey(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("namespace")
	if !slices.Contains(h.Provider.Namespaces(), ns) {
		http.Error(w, "unknown namespace", http.StatusNotFound)
		return
	}
	v, ok := h.Provider.Lookup(r.Context(), ns, r.PathValue("key"))
	if !ok {
		http.Error(w, "unknown key", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(v))
}

func (h *Handler) snapshot(r *http.Request) (*types.Snapshot, bool) {
	ns := r.PathValue("namespace")
	if !slices.Contains(h.Provider.Namespaces(), ns) {
		return nil, false
	}
	return h.Provider.Snapshot(r.Context(), ns), true
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"clientIP": clientIP(r),
		}).Debug("request")
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the real client IP from X-Forwarded-For or RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// If SplitHostPort fails, return the RemoteAddr as-is
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
