package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lifecyclelab/intervene/internal/engine"
	"github.com/lifecyclelab/intervene/internal/store"
)

type Server struct {
	store     *store.SQLiteStore
	engine    *engine.Service
	validate  *validator.Validate
	port      int
	token     string
	tokenFile string
	router    *http.ServeMux
	startTime time.Time
}

func New(s *store.SQLiteStore, eng *engine.Service, port int, tokenFile string) *Server {
	srv := &Server{
		store:     s,
		engine:    eng,
		validate:  validator.New(),
		port:      port,
		token:     generateToken(),
		tokenFile: tokenFile,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("/health", s.handleHealth)

	// Engine API (admin token required)
	s.router.Handle("/api/tests", s.authMiddleware(http.HandlerFunc(s.handleTests)))
	s.router.Handle("/api/tests/active", s.authMiddleware(http.HandlerFunc(s.handleActiveTests)))
	s.router.Handle("/api/tests/", s.authMiddleware(http.HandlerFunc(s.handleTestByID)))
	s.router.Handle("/api/assignments", s.authMiddleware(http.HandlerFunc(s.handleAssign)))
	s.router.Handle("/api/assignments/", s.authMiddleware(http.HandlerFunc(s.handleAssignmentByID)))
}

func (s *Server) Start() error {
	return s.StartWithOptions(true)
}

// StartQuiet starts the server without printing startup messages
func (s *Server) StartQuiet() error {
	return s.StartWithOptions(false)
}

func (s *Server) StartWithOptions(printMessages bool) error {
	// Write token to file so the CLI can authenticate against a running server
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			fmt.Printf("Warning: failed to write token file: %v\n", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.port)

	if printMessages {
		fmt.Println()
		fmt.Printf("intervene running on http://localhost:%d\n", s.port)
		fmt.Printf("Admin token: %s\n", s.token)
		fmt.Println()
		fmt.Println("Press Ctrl+C to stop")
	}

	return http.ListenAndServe(addr, s.router)
}

// Token returns the admin token generated at startup.
func (s *Server) Token() string {
	return s.token
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the platform is broken; fall back to
		// a fixed-time token rather than refusing to start.
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
