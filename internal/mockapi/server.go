package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sapliy/pm-portal/internal/content"
	"github.com/sapliy/pm-portal/internal/notification"
	"github.com/sapliy/pm-portal/pkg/jsonutil"
	"github.com/sapliy/pm-portal/pkg/observability"
)

const (
	SessionCookie = "portal_session"
	APIKeyHeader  = "X-API-Key"
)

type ctxKey struct{}

// Server exposes a Store over the portal REST + SSE surface under /api.
type Server struct {
	store  *Store
	hub    *hub
	logger *observability.Logger
}

func NewServer(store *Store, logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Server{store: store, hub: newHub(), logger: logger}
}

func (s *Server) Store() *Store {
	return s.store
}

// Subscribers returns the number of open /events streams.
func (s *Server) Subscribers() int {
	return s.hub.count()
}

// Publish pushes a notification to every open /events stream.
func (s *Server) Publish(n *notification.Notification) {
	s.hub.publish(notification.NewNotification{Notification: n})
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "active", "service": "mock-backend"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/login", s.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.Logout).Methods(http.MethodPost)
	api.HandleFunc("/ingest", s.Ingest).Methods(http.MethodPost)
	api.HandleFunc("/track/{id:[0-9]+}/open", s.TrackOpen).Methods(http.MethodGet)

	authed := api.NewRoute().Subrouter()
	authed.Use(s.requireSession)
	authed.HandleFunc("/auth/me", s.Me).Methods(http.MethodGet)
	authed.HandleFunc("/events", s.Events).Methods(http.MethodGet)

	authed.HandleFunc("/notifications", s.ListNotifications).Methods(http.MethodGet)
	authed.HandleFunc("/notifications/create", s.CreateNotification).Methods(http.MethodPost)
	authed.HandleFunc("/notifications/{id:[0-9]+}", s.GetNotification).Methods(http.MethodGet)
	authed.HandleFunc("/notifications/{id:[0-9]+}", s.UpdateNotification).Methods(http.MethodPut)
	authed.HandleFunc("/notifications/{id:[0-9]+}/send", s.SendNotification).Methods(http.MethodPost)
	authed.HandleFunc("/notifications/{id:[0-9]+}/send-bulk", s.SendBulk).Methods(http.MethodPost)
	authed.HandleFunc("/notifications/{id:[0-9]+}/tracking", s.Tracking).Methods(http.MethodGet)

	authed.HandleFunc("/recipients", s.ListRecipients).Methods(http.MethodGet)
	authed.HandleFunc("/recipients", s.CreateRecipient).Methods(http.MethodPost)
	authed.HandleFunc("/recipients/{id:[0-9]+}", s.UpdateRecipient).Methods(http.MethodPut)
	authed.HandleFunc("/recipients/{id:[0-9]+}", s.DeleteRecipient).Methods(http.MethodDelete)

	authed.HandleFunc("/groups", s.ListGroups).Methods(http.MethodGet)
	authed.HandleFunc("/groups", s.CreateGroup).Methods(http.MethodPost)
	authed.HandleFunc("/groups/{id:[0-9]+}", s.UpdateGroup).Methods(http.MethodPut)
	authed.HandleFunc("/groups/{id:[0-9]+}", s.DeleteGroup).Methods(http.MethodDelete)

	authed.HandleFunc("/applications", s.ListApplications).Methods(http.MethodGet)
	authed.HandleFunc("/ai/suggest", s.Suggest).Methods(http.MethodPost)

	return r
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil {
			jsonutil.WriteErrorJSON(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		acc, ok := s.store.SessionAccount(cookie.Value)
		if !ok {
			jsonutil.WriteErrorJSON(w, http.StatusUnauthorized, "Session expired")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, acc)))
	})
}

func accountFrom(r *http.Request) *Account {
	acc, _ := r.Context().Value(ctxKey{}).(*Account)
	return acc
}

type userView struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := jsonutil.DecodeJSON(r, &req); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token := uuid.New().String()
	acc, err := s.store.Authenticate(req.Email, req.Password, token)
	if err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusUnauthorized, err.Error())
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Info("PM logged in", "email", acc.Email)
	jsonutil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    userView{ID: acc.ID, Email: acc.Email, Name: acc.Name},
	})
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		s.store.EndSession(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	acc := accountFrom(r)
	jsonutil.WriteJSON(w, http.StatusOK, userView{ID: acc.ID, Email: acc.Email, Name: acc.Name})
}

func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request) {
	jsonutil.WriteJSON(w, http.StatusOK, s.store.Notifications())
}

func (s *Server) GetNotification(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Notification(pathID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, n)
}

func (s *Server) UpdateNotification(w http.ResponseWriter, r *http.Request) {
	var req notification.UpdateRequest
	if err := jsonutil.DecodeJSON(r, &req); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	n, err := s.store.Update(pathID(r), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, n)
}

func (s *Server) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req notification.CreateRequest
	if err := jsonutil.DecodeJSON(r, &req); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	n, err := s.store.Create(accountFrom(r).Name, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusCreated, n)
}

func (s *Server) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientIDs []int64 `json:"recipientIds"`
	}
	if err := jsonutil.DecodeJSON(r, &req); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	n, err := s.store.Send(pathID(r), req.RecipientIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, n)
}

func (s *Server) SendBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupIDs       []int64 `json:"groupIds"`
		ApplicationIDs []int64 `json:"applicationIds"`
	}
	if err := jsonutil.DecodeJSON(r, &req); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := s.store.SendBulk(pathID(r), req.GroupIDs, req.ApplicationIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("Bulk send completed", "notification_id", pathID(r), "users", res.Summary.TotalUsers)
	jsonutil.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) Tracking(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Tracking(pathID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, stats)
}

// TrackOpen is the open-tracking beacon embedded in delivered messages.
func (s *Server) TrackOpen(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
	if err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "user is required")
		return
	}
	appID, _ := strconv.ParseInt(r.URL.Query().Get("app"), 10, 64)
	if err := s.store.RecordOpen(pathID(r), userID, appID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ingest accepts release notes pushed by an application and broadcasts
// them to the dashboards.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var req notification.Notification
	if err := jsonutil.DecodeJSON(r, &req); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	n, err := s.store.Ingest(r.Header.Get(APIKeyHeader), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Publish(n)
	s.logger.Info("Notification ingested", "notification_id", n.ID, "title", n.Title)
	jsonutil.WriteJSON(w, http.StatusCreated, n)
}

func (s *Server) ListRecipients(w http.ResponseWriter, r *http.Request) {
	jsonutil.WriteJSON(w, http.StatusOK, s.store.Recipients())
}

func (s *Server) CreateRecipient(w http.ResponseWriter, r *http.Request) {
	var in RecipientInput
	if err := jsonutil.DecodeJSON(r, &in); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rec, err := s.store.CreateRecipient(in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusCreated, rec)
}

func (s *Server) UpdateRecipient(w http.ResponseWriter, r *http.Request) {
	var in RecipientInput
	if err := jsonutil.DecodeJSON(r, &in); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	rec, err := s.store.UpdateRecipient(pathID(r), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) DeleteRecipient(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRecipient(pathID(r)); err != nil {
		s.writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Recipient deleted"})
}

func (s *Server) ListGroups(w http.ResponseWriter, r *http.Request) {
	jsonutil.WriteJSON(w, http.StatusOK, s.store.Groups())
}

func (s *Server) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var in GroupInput
	if err := jsonutil.DecodeJSON(r, &in); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	g, err := s.store.CreateGroup(in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusCreated, g)
}

func (s *Server) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	var in GroupInput
	if err := jsonutil.DecodeJSON(r, &in); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	g, err := s.store.UpdateGroup(pathID(r), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, g)
}

func (s *Server) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteGroup(pathID(r)); err != nil {
		s.writeError(w, err)
		return
	}
	jsonutil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Group deleted"})
}

func (s *Server) ListApplications(w http.ResponseWriter, r *http.Request) {
	jsonutil.WriteJSON(w, http.StatusOK, s.store.Applications())
}

// Suggest is a canned stand-in for the AI rewrite: it echoes the text of
// the content with the prompt appended.
func (s *Server) Suggest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
		Prompt  string `json:"prompt"`
	}
	if err := jsonutil.DecodeJSON(r, &req); err != nil {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	text := content.Decode(req.Content).Text
	jsonutil.WriteJSON(w, http.StatusOK, map[string]string{
		"suggestion": fmt.Sprintf("%s\n\n<p><em>%s</em></p>", text, strings.TrimSpace(req.Prompt)),
	})
}

// Events streams the push channel: connected, the initial snapshot, then
// every new notification until the client goes away.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonutil.WriteErrorJSON(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(ev notification.Event) error {
		env, err := notification.NewEnvelope(ev)
		if err != nil {
			return err
		}
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(notification.Connected{}); err != nil {
		return
	}
	if err := send(notification.InitialSnapshot{Notifications: s.store.Notifications()}); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-sub:
			if err := send(ev); err != nil {
				s.logger.Warn("Event stream write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		jsonutil.WriteErrorJSON(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrInvalidAPIKey):
		jsonutil.WriteErrorJSON(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, notification.ErrNotReviewable):
		jsonutil.WriteErrorJSON(w, http.StatusConflict, "Notification has already been reviewed")
	case errors.Is(err, notification.ErrNotSendable):
		jsonutil.WriteErrorJSON(w, http.StatusConflict, "Notification must be accepted before sending")
	default:
		jsonutil.WriteErrorJSON(w, http.StatusBadRequest, err.Error())
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}
