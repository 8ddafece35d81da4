package fetchadapter

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/basestub/basestub/pkg/httputil"
	"github.com/basestub/basestub/pkg/observability"
)

// Adapter routes intercepted requests and forwards the rest.
type Adapter struct {
	host        string
	authRouter  http.Handler
	dataRouter  http.Handler
	storage     http.Handler // nil when no blob backend is configured
	passthrough http.Handler // nil when nothing downstream exists
	logger      *observability.Logger
}

// Options configures an Adapter.
type Options struct {
	// SupabaseURL is the URL the emulator intercepts; requests to any
	// other host go to Passthrough untouched.
	SupabaseURL string

	AuthRouter    http.Handler
	DataRouter    http.Handler
	StorageRouter http.Handler

	// Passthrough receives every request the emulator does not
	// intercept. Optional; without one such requests get 502.
	Passthrough http.Handler

	Logger *observability.Logger
}

// New builds an Adapter. The SupabaseURL must parse; a bare host is
// accepted too.
func New(opts Options) (*Adapter, error) {
	host := opts.SupabaseURL
	if parsed, err := url.Parse(opts.SupabaseURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, os.Stderr)
	}
	return &Adapter{
		host:        host,
		authRouter:  opts.AuthRouter,
		dataRouter:  opts.DataRouter,
		storage:     opts.StorageRouter,
		passthrough: opts.Passthrough,
		logger:      logger,
	}, nil
}

func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer observability.RecoverPanicWithCallback(a.logger, "route "+r.URL.Path, func() {
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error":             "internal_error",
			"error_description": "unexpected failure handling the request",
		})
	})

	if !a.intercepts(r) {
		a.forward(w, r)
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/auth/v1/"):
		a.authRouter.ServeHTTP(w, r)
	case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
		a.dataRouter.ServeHTTP(w, r)
	case strings.HasPrefix(r.URL.Path, "/storage/v1/"):
		if a.storage == nil {
			a.forward(w, r)
			return
		}
		a.storage.ServeHTTP(w, r)
	default:
		a.forward(w, r)
	}
}

// intercepts reports whether the request targets the configured host.
// An empty request host (direct in-process invocation) is treated as
// local.
func (a *Adapter) intercepts(r *http.Request) bool {
	if r.Host == "" || a.host == "" {
		return true
	}
	return strings.EqualFold(r.Host, a.host)
}

func (a *Adapter) forward(w http.ResponseWriter, r *http.Request) {
	if a.passthrough == nil {
		httputil.WriteErrorMessage(w, http.StatusBadGateway, "no passthrough configured")
		return
	}
	a.passthrough.ServeHTTP(w, r)
}

// NetworkPassthrough forwards a request to its original destination
// over the real network: the default passthrough for a standalone
// server, where non-intercepted requests should behave as if the
// emulator were not there.
func NetworkPassthrough() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := *r.URL
		target.Host = r.Host
		if target.Scheme == "" {
			if r.TLS != nil {
				target.Scheme = "https"
			} else {
				target.Scheme = "http"
			}
		}

		outbound, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
		if err != nil {
			httputil.WriteErrorMessage(w, http.StatusBadGateway, err.Error())
			return
		}
		outbound.Header = r.Header.Clone()

		resp, err := http.DefaultTransport.RoundTrip(outbound)
		if err != nil {
			httputil.WriteErrorMessage(w, http.StatusBadGateway, err.Error())
			return
		}
		defer resp.Body.Close()

		for key, values := range resp.Header {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	})
}
