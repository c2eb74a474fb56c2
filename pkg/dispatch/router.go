package dispatch

import (
	"bytes"
	"io"
	"net/http"

	"chatrelay/pkg/adapters"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/message"
	"chatrelay/pkg/providers"
)

// Router resolves /{source}/{provider}[/{model}] to a platform adapter and
// a provider handler, then runs the synchronous webhook protocol: GET is the
// platform challenge, POST is a message push.
type Router struct {
	adapters  *adapters.Registry
	providers *providers.Registry
}

func NewRouter(adapterReg *adapters.Registry, providerReg *providers.Registry) *Router {
	return &Router{adapters: adapterReg, providers: providerReg}
}

// Mount registers both path shapes. The model segment is an optional
// override of the provider's configured default.
func (rt *Router) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/{source}/{provider}", rt.handle)
	mux.HandleFunc("/{source}/{provider}/{model}", rt.handle)
}

func (rt *Router) handle(w http.ResponseWriter, r *http.Request) {
	target := message.DispatchTarget{
		Source:   r.PathValue("source"),
		Provider: r.PathValue("provider"),
		Model:    r.PathValue("model"),
	}

	handler, err := rt.providers.Resolve(target)
	if err != nil {
		logger.WarnCF("dispatch", "Dispatch to unknown provider", map[string]interface{}{
			logger.FieldSource:   target.Source,
			logger.FieldProvider: target.Provider,
		})
		http.NotFound(w, r)
		return
	}
	adapter, err := rt.adapters.Resolve(target)
	if err != nil {
		logger.WarnCF("dispatch", "Dispatch to unknown source", map[string]interface{}{
			logger.FieldSource:   target.Source,
			logger.FieldProvider: target.Provider,
		})
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeVerify(w, adapter.Verify(r))
	case http.MethodPost:
		rt.handlePush(w, r, adapter, handler)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (rt *Router) handlePush(w http.ResponseWriter, r *http.Request, adapter adapters.SourceAdapter, handler providers.Handler) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	// Some platforms deliver their verification challenge as a POST.
	if ch, ok := adapter.(adapters.Challenger); ok {
		if res, handled := ch.Challenge(r, body); handled {
			writeVerify(w, res)
			return
		}
	}
	// The body was consumed above, restore it for envelope parsing.
	r.Body = io.NopCloser(bytes.NewReader(body))

	msg, err := adapter.ExtractMessage(r)
	if err != nil {
		logger.WarnCF("dispatch", "Dropping unparseable push", map[string]interface{}{
			logger.FieldSource: adapter.Name(),
			logger.FieldError:  err.Error(),
		})
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	result := handler.Process(msg)
	out, err := adapter.FormatResponse(result, msg)
	if err != nil {
		logger.ErrorCF("dispatch", "Failed to build sync reply", map[string]interface{}{
			logger.FieldSource: adapter.Name(),
			logger.FieldError:  err.Error(),
		})
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logger.InfoCF("dispatch", "Push handled", map[string]interface{}{
		logger.FieldSource:   adapter.Name(),
		logger.FieldProvider: handler.Name(),
		logger.FieldModel:    handler.Model(),
		logger.FieldSenderID: msg.SenderID,
		"async":              result.Async,
	})
	w.Header().Set("Content-Type", adapter.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func writeVerify(w http.ResponseWriter, res *adapters.VerifyResult) {
	ct := res.ContentType
	if ct == "" {
		ct = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(res.StatusCode)
	w.Write(res.Body)
}
