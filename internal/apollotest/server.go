// Package apollotest runs a scripted config service on httptest for the client tests.
package apollotest

import (
	"apollocfg/internal/transport"
	"apollocfg/internal/types"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// PollReply is one scripted answer to a notifications/v2 request.
type PollReply struct {
	Status        int
	Notifications []types.Notification
}

type Server struct {
	*httptest.Server

	AppID string

	mu           sync.Mutex
	secret       string
	hold         time.Duration
	configDelay  time.Duration
	configs      map[string]types.ConfigResponse
	configStatus map[string]int
	configHits   map[string]int
	polls        []PollReply
	pollQueries  []string
	services     []types.ServiceInstance
	authFailures int
}

func NewServer(appID string) *Server {
	s := &Server{
		AppID:        appID,
		hold:         20 * time.Millisecond,
		configs:      map[string]types.ConfigResponse{},
		configStatus: map[string]int{},
		configHits:   map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /configs/{app}/{cluster}/{ns}", s.handleConfig)
	mux.HandleFunc("GET /openapi/v1/configs/{app}/{cluster}/{ns}", s.handleConfig)
	mux.HandleFunc("GET /notifications/v2", s.handleNotifications)
	mux.HandleFunc("GET /openapi/v1/notifications/v2", s.handleNotifications)
	mux.HandleFunc("GET /services/config", s.handleServices)
	s.Server = httptest.NewServer(s.authenticate(mux))
	return s
}

// SetSecret makes the server reject requests not signed with secret.
func (s *Server) SetSecret(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret = secret
}

// SetHold sets how long an unscripted long poll waits before answering 304.
func (s *Server) SetHold(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hold = d
}

// SetConfigDelay delays every config answer by d.
func (s *Server) SetConfigDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configDelay = d
}

// SetConfig publishes a release for namespace.
func (s *Server) SetConfig(namespace, releaseKey string, values map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[namespace] = types.ConfigResponse{
		AppID:          s.AppID,
		Cluster:        types.DefaultCluster,
		NamespaceName:  namespace,
		Configurations: values,
		ReleaseKey:     releaseKey,
	}
}

// FailConfig makes every config request for namespace answer status. Zero restores normal answers.
func (s *Server) FailConfig(namespace string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.configStatus, namespace)
		return
	}
	s.configStatus[namespace] = status
}

func (s *Server) ConfigHits(namespace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configHits[namespace]
}

// QueuePoll appends replies handed out to the next long polls, in order.
func (s *Server) QueuePoll(replies ...PollReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls = append(s.polls, replies...)
}

// PollQueries returns the raw query of every long poll received so far.
func (s *Server) PollQueries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pollQueries...)
}

func (s *Server) SetServices(urls ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = s.services[:0]
	for _, u := range urls {
		s.services = append(s.services, types.ServiceInstance{AppName: "APOLLO-CONFIGSERVICE", HomepageURL: u})
	}
}

func (s *Server) AuthFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authFailures
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		secret := s.secret
		s.mu.Unlock()
		if secret == "" {
			next.ServeHTTP(w, r)
			return
		}
		pathWithQuery, err := transport.CanonicalPathWithQuery(r.URL.String())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		want := "Apollo " + s.AppID + ":" + transport.Sign(r.Header.Get(transport.HeaderTimestamp)+"\n"+pathWithQuery, secret)
		if r.Header.Get(transport.HeaderAuthorization) != want {
			s.mu.Lock()
			s.authFailures++
			s.mu.Unlock()
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	s.mu.Lock()
	s.configHits[ns]++
	status, failing := s.configStatus[ns]
	cfg, ok := s.configs[ns]
	delay := s.configDelay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	switch {
	case failing:
		w.WriteHeader(status)
	case !ok:
		w.WriteHeader(http.StatusNotFound)
	case r.URL.Query().Get("releaseKey") == cfg.ReleaseKey:
		w.WriteHeader(http.StatusNotModified)
	default:
		writeJSON(w, cfg)
	}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.pollQueries = append(s.pollQueries, r.URL.RawQuery)
	var reply *PollReply
	if len(s.polls) > 0 {
		reply = &s.polls[0]
		s.polls = s.polls[1:]
	}
	hold := s.hold
	s.mu.Unlock()

	if reply == nil {
		select {
		case <-r.Context().Done():
		case <-time.After(hold):
		}
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if reply.Status != 0 && reply.Status != http.StatusOK {
		w.WriteHeader(reply.Status)
		return
	}
	writeJSON(w, reply.Notifications)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	services := append([]types.ServiceInstance(nil), s.services...)
	s.mu.Unlock()
	writeJSON(w, services)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
