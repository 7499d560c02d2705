package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Tapioca-DAO/tap-token-sub000/internal/engine"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/logger"
	"github.com/Tapioca-DAO/tap-token-sub000/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer exposes a read-only HTTP view of the ledger engine
type WebServer struct {
	router *mux.Router
	engine *engine.Engine
	port   string
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, eng *engine.Engine) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router: mux.NewRouter(),
		engine: eng,
		port:   port,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/pools/{id}", ws.handleGetPool).Methods("GET")
	api.HandleFunc("/positions/{id}", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/positions/{id}/claimable", ws.handleGetClaimable).Methods("GET")
	api.HandleFunc("/epoch", ws.handleGetEpoch).Methods("GET")
	api.HandleFunc("/weekly", ws.handleGetWeekly).Methods("GET")
	api.HandleFunc("/payment-tokens", ws.handleGetPaymentTokens).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	epochState := ws.engine.EpochState()
	currentWeek, lastProcessedWeek, activeVotes := ws.engine.WeeklyStatus()

	response := map[string]interface{}{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
		},
		"component": map[string]interface{}{
			"name":    "tapledger",
			"version": "1.0.0",
		},
		"ledger_status": map[string]interface{}{
			"epoch":               epochState.Epoch,
			"last_epoch_update":   epochState.LastEpochUpdate,
			"current_week":        currentWeek,
			"last_processed_week": lastProcessedWeek,
			"weeks_pending":       currentWeek - lastProcessedWeek,
			"active_votes":        activeVotes.String(),
		},
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPools returns all registered pools
func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools := ws.engine.Pools()

	response := map[string]interface{}{
		"pools": pools,
		"count": len(pools),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPool returns a specific pool by ID
func (ws *WebServer) handleGetPool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idStr := vars["id"]

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid pool ID")
		return
	}

	pool, err := ws.engine.Pool(types.PoolID(id))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Pool not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, pool)
}

// handleGetPosition returns a specific position by ID
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idStr := vars["id"]

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid position ID")
		return
	}

	position, err := ws.engine.Position(types.PositionID(id))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, position)
}

// handleGetClaimable returns a position's unclaimed weekly rewards per token
func (ws *WebServer) handleGetClaimable(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idStr := vars["id"]

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid position ID")
		return
	}

	claimable, err := ws.engine.Claimable(types.PositionID(id))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "Position not found")
		return
	}

	amounts := make(map[string]string, len(claimable))
	for token, amount := range claimable {
		amounts[token] = amount.String()
	}

	response := map[string]interface{}{
		"position_id": id,
		"claimable":   amounts,
		"timestamp":   time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetEpoch returns the current epoch state
func (ws *WebServer) handleGetEpoch(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.engine.EpochState())
}

// handleGetWeekly returns the weekly ledger watermark and vote total
func (ws *WebServer) handleGetWeekly(w http.ResponseWriter, r *http.Request) {
	currentWeek, lastProcessedWeek, activeVotes := ws.engine.WeeklyStatus()

	response := map[string]interface{}{
		"current_week":        currentWeek,
		"last_processed_week": lastProcessedWeek,
		"weeks_pending":       currentWeek - lastProcessedWeek,
		"active_votes":        activeVotes.String(),
		"timestamp":           time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPaymentTokens returns configured payment tokens
func (ws *WebServer) handleGetPaymentTokens(w http.ResponseWriter, r *http.Request) {
	tokens := ws.engine.PaymentTokens()
	if tokens == nil {
		tokens = []types.PaymentTokenConfig{}
	}

	response := map[string]interface{}{
		"payment_tokens": tokens,
		"count":          len(tokens),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
