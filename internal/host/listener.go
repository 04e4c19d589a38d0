package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/neboloop/chplg-devtools/internal/httputil"
	"github.com/neboloop/chplg-devtools/internal/protocol"
	"github.com/neboloop/chplg-devtools/internal/relay"
	"github.com/neboloop/chplg-devtools/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return httputil.IsLocalOrigin(r.Header.Get("Origin"))
	},
}

// queryParams are forwarded to the extension as QUERY_* params.
type queryParams struct {
	Kind        string `path:"kind" json:"-"`
	Level       string `form:"level" json:"level,omitempty"`
	Limit       int    `form:"limit" json:"limit,omitempty"`
	Since       string `form:"since" json:"since,omitempty"`
	Search      string `form:"search" json:"search,omitempty"`
	ExtensionID string `form:"extensionId" json:"extensionId,omitempty"`
}

type statusResponse struct {
	Connected      bool         `json:"connected"`
	PendingQueries int          `json:"pendingQueries"`
	Store          store.Status `json:"store"`
}

// Router exposes the host over HTTP:
//
//	GET /extension          WebSocket link for a capture agent
//	GET /extension/status   connection and store status
//	GET /query/{kind}       live query against the connected extension
func (h *Host) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/extension", h.handleExtension)
	r.Get("/extension/status", h.handleStatus)
	r.Get("/query/{kind}", h.handleQuery)
	return r
}

func (h *Host) handleExtension(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	h.logger.Info("extension connected over websocket", "remote", r.RemoteAddr)

	// A hijacked request keeps its context until the handler returns; it
	// derives from the server context, so Serve's shutdown ends the link.
	if err := h.ServeConn(r.Context(), relay.NewWebSocketConn(ws)); err != nil {
		var ce *websocket.CloseError
		if !errors.As(err, &ce) || (ce.Code != websocket.CloseNormalClosure && ce.Code != websocket.CloseGoingAway) {
			h.logger.Warn("websocket link ended", "error", err)
		}
	}
}

func (h *Host) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.OkJSON(w, statusResponse{
		Connected:      h.Connected(),
		PendingQueries: h.PendingQueries(),
		Store:          h.store.GetStatus(),
	})
}

func (h *Host) handleQuery(w http.ResponseWriter, r *http.Request) {
	var p queryParams
	if err := httputil.Parse(r, &p); err != nil {
		httputil.Error(w, err)
		return
	}
	queryType, ok := protocol.QueryTypeFor(p.Kind)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("unknown query %q", p.Kind))
		return
	}

	reply, err := h.Query(r.Context(), queryType, p)
	switch {
	case errors.Is(err, ErrNoPeer):
		httputil.ErrorWithCode(w, http.StatusServiceUnavailable, err.Error())
		return
	case errors.Is(err, ErrQueryTimeout):
		httputil.ErrorWithCode(w, http.StatusGatewayTimeout, err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err.Error())
		return
	}
	httputil.OkJSON(w, reply)
}

// ListenAndServe serves Router on addr until ctx is done.
func (h *Host) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return h.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (h *Host) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	h.logger.Info("listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
