package httpx

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/52poke/kura/internal/cache"
	"github.com/52poke/kura/internal/origin"
	"github.com/52poke/kura/internal/policy"
	"github.com/52poke/kura/internal/strategy"
	"github.com/jmgilman/go/errors"
)

const cacheStatusHeader = "X-Kura-Cache"

var errForeignHost = errors.New(errors.CodeInvalidInput, "request target is neither the origin nor an allowed cross-origin host")

// Controller reports whether the cache layer has claimed incoming traffic.
type Controller interface {
	Controlling() bool
}

type Handler struct {
	Policy     policy.Policy
	Origin     *origin.Client
	Dispatcher *strategy.Dispatcher
	Worker     Controller
	Proxy      *httputil.ReverseProxy
	Logger     *slog.Logger
}

func NewHandler(pol policy.Policy, originClient *origin.Client, dispatcher *strategy.Dispatcher, worker Controller, logger *slog.Logger) *Handler {
	return &Handler{
		Policy:     pol,
		Origin:     originClient,
		Dispatcher: dispatcher,
		Worker:     worker,
		Proxy:      httputil.NewSingleHostReverseProxy(originClient.Base()),
		Logger:     logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !IsEligible(r) || !h.Worker.Controlling() {
		h.Proxy.ServeHTTP(w, r)
		return
	}

	target, err := h.target(r)
	if err != nil {
		if errors.Is(err, errForeignHost) {
			h.Logger.WarnContext(r.Context(), "rejected foreign request target", "host", r.URL.Host)
			http.Error(w, "foreign request target", http.StatusBadRequest)
			return
		}
		h.Proxy.ServeHTTP(w, r)
		return
	}

	req := strategy.Request{
		Class:  Classify(h.Policy, r.URL),
		URL:    target.String(),
		Header: r.Header,
	}
	res, err := h.Dispatcher.Handle(r.Context(), req)
	if err != nil {
		h.Logger.WarnContext(r.Context(), "request failed",
			"url", req.URL,
			"class", req.Class,
			"code", errors.GetCode(err),
			"error", err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	writeEntry(w, res.Entry, string(res.Source))
}

// target returns the absolute URL used as cache key. Origin-form targets and
// absolute ones naming the origin are resolved against the origin base.
// Other absolute targets are only accepted for allowed cross-origin hosts
// (font hosts).
func (h *Handler) target(r *http.Request) (*url.URL, error) {
	if !r.URL.IsAbs() || h.Origin.SameOrigin(r.URL) {
		return h.Origin.Resolve(r.URL.RequestURI())
	}
	if h.Policy.IsCrossOriginAllowed(r.URL.Hostname()) {
		return r.URL, nil
	}
	return nil, errForeignHost
}

func writeEntry(w http.ResponseWriter, e cache.Entry, cacheStatus string) {
	for k, vv := range e.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Body)))
	w.Header().Set(cacheStatusHeader, cacheStatus)
	w.WriteHeader(e.Status)
	_, _ = w.Write(e.Body)
}
