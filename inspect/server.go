package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/capatazlib/go-evstream/inspect/api"
	"github.com/capatazlib/go-evstream/stream"
)

const (
	// DefaultHistorySize is the number of events returned by the history
	// endpoint when the request doesn't specify one
	DefaultHistorySize = 20
	shutdownTimeout    = 5 * time.Second
)

// Server is a HTTP server that allows us to observe the streams of a Registry
type Server struct {
	ll       logrus.FieldLogger
	registry *Registry
	gatherer prometheus.Gatherer
}

// ServerOpt allows to tweak a Server
type ServerOpt func(*Server)

// WithGatherer exposes the metrics of the given gatherer on /metrics, the
// default gatherer is used otherwise
func WithGatherer(g prometheus.Gatherer) ServerOpt {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewServer create a new inspector HTTP server
func NewServer(ll logrus.FieldLogger, registry *Registry, opts ...ServerOpt) *Server {
	server := &Server{
		ll:       ll,
		registry: registry,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, optFn := range opts {
		optFn(server)
	}
	return server
}

// NewHTTPHandler creates a `http.Handler` with endpoints that expose the
// registered streams.
func (s *Server) NewHTTPHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/streams", s.listStreams).Methods("GET")
	r.HandleFunc("/streams/{name}", s.getStream).Methods("GET")
	r.HandleFunc("/streams/{name}/history", s.getHistory).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	return r
}

// Serve runs the given HTTP server with the inspector handler until the given
// context is done
func (s *Server) Serve(ctx context.Context, server *http.Server) error {
	if server.Addr == "" {
		return errors.New("invalid input: server's Address is empty")
	}
	if server.Handler != nil {
		return errors.New("invalid input: server's http.Handler is already initialized")
	}
	server.Handler = s.NewHTTPHandler()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.ll.WithField("inspect.addr", server.Addr).Info("inspector listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("inspector shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func handleError(resp http.ResponseWriter, err error, code int) {
	data, _ := json.Marshal(api.Error{Error: err.Error()})
	resp.Header().Set("Content-Type", "application/json")
	http.Error(resp, string(data), code)
}

func lookupErrorCode(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func toAPIStream(stats stream.Stats) api.Stream {
	return api.Stream{
		ID:           stats.ID,
		Name:         stats.Name,
		Appended:     stats.Appended,
		Retained:     stats.Retained,
		Dropped:      stats.Dropped,
		OpenMatchers: stats.OpenMatchers,
		Closed:       stats.Closed,
	}
}

func (s *Server) writeJSON(response http.ResponseWriter, caller string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		handleError(response, err, http.StatusInternalServerError)
		return
	}

	response.Header().Set("Content-Type", "application/json")
	_, err = response.Write(data)
	if err != nil {
		s.ll.WithError(err).Warnf("%s: failed to write response to client", caller)
	}
}

func (s *Server) listStreams(response http.ResponseWriter, request *http.Request) {
	streams, err := s.registry.List(request.Context())
	if err != nil {
		handleError(response, err, http.StatusInternalServerError)
		return
	}
	ss := api.Streams{
		Streams: make([]api.Stream, 0, len(streams)),
	}
	for _, st := range streams {
		ss.Streams = append(ss.Streams, toAPIStream(st.Stats()))
	}
	s.writeJSON(response, "ListStreams", ss)
}

func (s *Server) getStream(response http.ResponseWriter, request *http.Request) {
	name := mux.Vars(request)["name"]

	st, err := s.registry.Lookup(request.Context(), name)
	if err != nil {
		handleError(response, err, lookupErrorCode(err))
		return
	}
	s.writeJSON(response, "GetStream", toAPIStream(st.Stats()))
}

func (s *Server) getHistory(response http.ResponseWriter, request *http.Request) {
	name := mux.Vars(request)["name"]

	n := DefaultHistorySize
	if input := request.URL.Query().Get("n"); input != "" {
		parsed, err := strconv.Atoi(input)
		if err != nil || parsed < 0 {
			handleError(response, fmt.Errorf("invalid history size %q", input), http.StatusBadRequest)
			return
		}
		n = parsed
	}

	st, err := s.registry.Lookup(request.Context(), name)
	if err != nil {
		handleError(response, err, lookupErrorCode(err))
		return
	}
	s.writeJSON(response, "GetHistory", api.History{
		Name:   st.Name(),
		Events: st.TailStrings(n),
	})
}
