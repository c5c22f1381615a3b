package server

import (
	"net/http"
	"time"

	"github.com/bobmcallan/employee-portal/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	// Auth
	mux.HandleFunc("/api/auth/login", s.handleAuthLogin)
	mux.HandleFunc("/api/auth/login/password", s.handleAuthPasswordLogin)
	mux.HandleFunc("/api/auth/callback", s.handleAuthCallback)
	mux.HandleFunc("/api/auth/cancel", s.handleAuthCancel)
	mux.HandleFunc("/api/auth/status", s.handleAuthStatus)
	mux.HandleFunc("/api/auth/token", s.handleAuthToken)
	mux.HandleFunc("/api/auth/userinfo", s.handleAuthUserInfo)
	mux.HandleFunc("/api/auth/logout", s.handleAuthLogout)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type versionResponse struct {
	common.BuildInfo
	Uptime string `json:"uptime"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, versionResponse{
		BuildInfo: common.CurrentBuild(),
		Uptime:    time.Since(s.app.StartupTime).Round(time.Second).String(),
	})
}
