package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	v1mware "github.com/deepgram/connected/internal/api/v1/middleware"
	"github.com/deepgram/connected/internal/services"
)

func RegisterV1Routes(router *mux.Router, services *services.Services) {
	sessions := services.GetSessionClient()
	drills := services.GetDrillService()
	poller := services.GetPoller()
	manager := services.GetConnectionManager()
	loginPath := services.GetLoginPath()

	// v1 routes
	v1 := router.PathPrefix("/v1").Subrouter()

	// Auth routes share one limiter per client address
	authLimit := v1mware.RateLimit("auth")
	v1authRouter := v1.PathPrefix("/auth").Subrouter()
	v1authRouter.Handle("/login", authLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleLogin(sessions, w, r)
	}))).Methods("POST")
	v1authRouter.Handle("/signup", authLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleSignup(sessions, w, r)
	}))).Methods("POST")
	v1authRouter.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		HandleLogout(sessions, w, r)
	}).Methods("POST")
	v1authRouter.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		HandleAuthStatus(sessions, loginPath, w, r)
	}).Methods("GET")

	// Drill routes
	drillLimit := v1mware.RateLimit("drills")
	v1.Handle("/drills", drillLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleStartDrill(sessions, drills, loginPath, w, r)
	}))).Methods("POST")

	v1drillRouter := v1.PathPrefix("/drills").Subrouter()
	v1drillRouter.HandleFunc("/last", func(w http.ResponseWriter, r *http.Request) {
		HandleLastDrill(sessions, w, r)
	}).Methods("GET")
	v1drillRouter.Handle("/{id}/complete", drillLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleCompleteDrill(drills, loginPath, w, r)
	}))).Methods("POST")
	v1drillRouter.HandleFunc("/{id}/feedback", func(w http.ResponseWriter, r *http.Request) {
		HandleDrillFeedback(sessions, poller, w, r)
	}).Methods("GET")
	v1drillRouter.HandleFunc("/{id}/watch", func(w http.ResponseWriter, r *http.Request) {
		HandleWatchDrill(sessions, poller, manager, w, r)
	}).Methods("GET")
}
