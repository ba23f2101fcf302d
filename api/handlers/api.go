package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/swifthaul/swifthaul-api/api"
	"github.com/swifthaul/swifthaul-api/config"
	"github.com/swifthaul/swifthaul-api/databases"
	"github.com/swifthaul/swifthaul-api/mailer"
	"github.com/swifthaul/swifthaul-api/models"
)

// App stores the router and db connection, so it can be reused
type App struct {
	Router   *mux.Router
	Config   config.Config
	dbHelper databases.DatabaseHelper
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	m := api.MiddlewareDB{ADB: databases.NewAdminDatabase(a.dbHelper)}

	r := mux.NewRouter()
	r.Use(api.RequestLogger)
	r.Use(api.TimeoutMiddleware(30 * time.Second))

	adm := Admin{ADB: databases.NewAdminDatabase(a.dbHelper)}
	inv := Invitation{
		IDB:    databases.NewInvitationDatabase(a.dbHelper),
		ADB:    databases.NewAdminDatabase(a.dbHelper),
		Mailer: mailer.NewSendGridMailer(a.Config.BaseURL),
	}

	// healthchex
	r.HandleFunc("/health", healthCheckHandler)

	apiCreate := r.PathPrefix("/api/v1").Subrouter()

	apiCreate.Handle("/admin/auth/login", http.HandlerFunc(adm.AdminLoginHandler)).Methods("POST")

	// invitee-facing endpoints: the bearer token is the credential
	apiCreate.Handle("/invitations/token/{token}", http.HandlerFunc(inv.InvitationByTokenHandler)).Methods("GET")
	apiCreate.Handle("/invitations/accept", http.HandlerFunc(inv.AcceptInvitationHandler)).Methods("POST")

	apiCreate.Handle("/admin/invitations", m.AdminAuth(http.HandlerFunc(inv.CreateInvitationHandler))).Methods("POST")
	apiCreate.Handle("/admin/invitations", m.AdminAuth(http.HandlerFunc(inv.ListInvitationsHandler))).Methods("GET")
	apiCreate.Handle("/admin/invitations/stats", m.AdminAuth(http.HandlerFunc(inv.InvitationStatsHandler))).Methods("GET")
	apiCreate.Handle("/admin/invitations/check-email", m.AdminAuth(http.HandlerFunc(inv.CheckInvitationEmailHandler))).Methods("POST")
	apiCreate.Handle("/admin/invitations/{invitation_id}/resend", m.AdminAuth(http.HandlerFunc(inv.ResendInvitationHandler))).Methods("POST")
	apiCreate.Handle("/admin/invitations/{invitation_id}/revoke", m.AdminAuth(http.HandlerFunc(inv.RevokeInvitationHandler))).Methods("POST")
	apiCreate.Handle("/admin/invitations/{invitation_id}", m.AdminAuth(http.HandlerFunc(inv.DeleteInvitationHandler))).Methods("DELETE")

	return r
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().With(err).Error("failed to create new client")
		return err
	}

	a.dbHelper = databases.NewDatabase(&a.Config, client)
	err = client.Connect()
	if err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().With(err).Error("failed to connect to database")
		return err
	}
	zap.S().Info("swifthaul-api has connected to the database")

	ctx, cancel := api.WithQueryTimeout(nil)
	defer cancel()
	if err := databases.EnsureIndexes(ctx, a.dbHelper); err != nil {
		zap.S().With(err).Error("failed to ensure indexes")
		return err
	}

	if err := databases.EnsureRootAdmin(a.dbHelper); err != nil {
		zap.S().With(err).Error("failed to bootstrap root admin")
		return err
	}

	// initialize api router
	a.initializeRoutes()
	return nil

}

func (a *App) initializeRoutes() {
	a.Router = a.New()
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}
