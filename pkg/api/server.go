// Package api exposes the matching core over REST and streams market data
// over WebSocket. The HTTP layer stays thin: decode, delegate, map errors to
// status codes.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/openbook/params"
	"github.com/uhyunpark/openbook/pkg/core"
	"github.com/uhyunpark/openbook/pkg/core/book"
	"github.com/uhyunpark/openbook/pkg/core/engine"
)

type Server struct {
	engine *engine.Engine
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
	cfg    params.API
}

func NewServer(eng *engine.Engine, log *zap.SugaredLogger, cfg params.API) *Server {
	s := &Server{
		engine: eng,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
		cfg:    cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/{orderId}", s.handleCancelOrder).Methods("DELETE")

	api.HandleFunc("/markets/{instrument}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/orderbook/{instrument}/replay", s.handleReplayOrderbook).Methods("GET")

	api.HandleFunc("/users/{userId}/positions", s.handleGetPositions).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the WebSocket hub and blocks serving HTTP on cfg.Addr.
func (s *Server) Start() error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_server_starting", "addr", s.cfg.Addr)
	return http.ListenAndServe(s.cfg.Addr, c.Handler(s.router))
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ack, err := s.engine.PlaceOrder(r.Context(), core.PlaceOrderInput{
		UserID:      req.UserID,
		Instrument:  req.Instrument,
		Side:        req.Side,
		Type:        req.Type,
		Price:       req.Price,
		Quantity:    req.Quantity,
		TimeInForce: req.TimeInForce,
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, PlaceOrderResponse{
		OrderID:   ack.OrderID,
		Status:    ack.Status,
		Duplicate: ack.Duplicate,
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderId"]
	if orderID == "" {
		respondError(w, http.StatusBadRequest, "missing orderId")
		return
	}

	if err := s.engine.CancelOrder(r.Context(), orderID); err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CancelOrderResponse{OrderID: orderID, Status: "CANCELLING"})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	instrument := mux.Vars(r)["instrument"]

	snap, err := s.engine.Depth(r.Context(), instrument)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toDepthSnapshot(snap))
}

func (s *Server) handleReplayOrderbook(w http.ResponseWriter, r *http.Request) {
	instrument := mux.Vars(r)["instrument"]

	res, err := s.engine.Replay(r.Context(), instrument)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	positions, err := s.engine.Positions(r.Context(), userID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	out := make([]PositionInfo, 0, len(positions))
	for _, p := range positions {
		out = append(out, PositionInfo{
			Instrument:   p.Instrument,
			Quantity:     p.Quantity,
			AveragePrice: core.TicksToPrice(p.AveragePrice).StringFixed(2),
			RealizedPnL:  core.TicksToPrice(p.RealizedPnL).StringFixed(2),
			LastUpdated:  p.LastUpdated,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// PublishDepth pushes an aggregated book snapshot to orderbook:{instrument}.
func (s *Server) PublishDepth(snap *book.Snapshot) {
	msg := toDepthSnapshot(snap)
	msg.Type = "orderbook"
	s.hub.BroadcastToChannel("orderbook:"+snap.Instrument, msg)
}

// PublishTrade pushes an executed trade to trades:{instrument}.
func (s *Server) PublishTrade(t *core.Trade) {
	msg := toTradeRecord(t)
	msg.Type = "trade"
	s.hub.BroadcastToChannel("trades:"+t.Instrument, msg)
}

func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case core.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case core.IsNotFound(err):
		respondError(w, http.StatusNotFound, err.Error())
	case core.IsInvalidTransition(err):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Errorw("request_failed", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, ErrorResponse{Error: msg})
}
