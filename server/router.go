package server

import (
	"net/http"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/machinefabric/invoker-go/function"
	"github.com/machinefabric/invoker-go/transport/ws"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Routes served on the HTTP listener
const (
	PathInvoke    = "/invoke"
	PathHealth    = "/healthz"
	PathMetrics   = "/metrics"
	PathFunctions = "/functions"
)

func newRouter(opts Options, hs *health.Server) *mux.Router {
	router := mux.NewRouter()
	router.Use(logRequests(opts.Logger))

	router.Handle(PathInvoke, ws.NewServer(opts.Handler, opts.Config.Wire)).Methods(http.MethodGet)
	router.HandleFunc(PathHealth, healthHandler(hs)).Methods(http.MethodGet)
	if opts.Metrics != nil {
		router.Handle(PathMetrics, opts.Metrics.Handler()).Methods(http.MethodGet)
	}
	router.HandleFunc(PathFunctions, functionsHandler(opts)).Methods(http.MethodGet)
	return router
}

func logRequests(log *logrus.Entry) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			}).Debug("http request")
			next.ServeHTTP(w, r)
		})
	}
}

func healthHandler(hs *health.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := hs.Check(r.Context(), &healthpb.HealthCheckRequest{})
		if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "NOT_SERVING"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "SERVING"})
	}
}

// FunctionInfo describes one servable function
type FunctionInfo struct {
	Name    string      `json:"name"`
	Inputs  []ParamInfo `json:"inputs"`
	Outputs []ParamInfo `json:"outputs"`
}

type ParamInfo struct {
	Name         string      `json:"name,omitempty"`
	ContentTypes []string    `json:"content_types"`
	Schema       interface{} `json:"schema,omitempty"`
}

func functionsHandler(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos := []FunctionInfo{}
		if opts.Functions != nil {
			for _, name := range opts.Functions.Names() {
				if opts.Config.Function != "" && name != opts.Config.Function {
					continue
				}
				fn, err := opts.Functions.Resolve(name)
				if err != nil {
					continue
				}
				infos = append(infos, describe(name, fn))
			}
		}
		writeJSON(w, http.StatusOK, infos)
	}
}

func describe(name string, fn function.Function) FunctionInfo {
	sig := fn.Signature()
	info := FunctionInfo{Name: name}
	for _, p := range sig.Inputs {
		info.Inputs = append(info.Inputs, paramInfo(p))
	}
	for _, p := range sig.Outputs {
		info.Outputs = append(info.Outputs, paramInfo(p))
	}
	return info
}

func paramInfo(p function.Param) ParamInfo {
	cts := p.ContentTypes
	if cts == nil {
		cts = []string{}
	}
	return ParamInfo{Name: p.Name, ContentTypes: cts, Schema: p.Schema}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Debug("failed to write response")
	}
}
