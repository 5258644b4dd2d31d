// Package api is the HTTP surface of the chat, next to the websocket endpoint it mounts.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"quorum/auth"
	"quorum/contract"
	"quorum/domain"
	"quorum/errors"
	"quorum/transport"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
)

type Server struct {
	log          *slog.Logger
	resolver     *auth.Resolver
	ingest       contract.IIngestService
	membership   contract.IMembershipService
	index        contract.ISearchIndex
	stats        func() any
	router       *httprouter.Router
	maxBodyBytes int64
}

func NewServer(
	log *slog.Logger,
	resolver *auth.Resolver,
	ingest contract.IIngestService,
	membership contract.IMembershipService,
	index contract.ISearchIndex,
	stats func() any,
	websocket http.Handler,
	maxBodyBytes int64,
) *Server {
	s := &Server{
		log:          log,
		resolver:     resolver,
		ingest:       ingest,
		membership:   membership,
		index:        index,
		stats:        stats,
		router:       httprouter.New(),
		maxBodyBytes: maxBodyBytes,
	}
	s.setupRoutes(websocket, stats)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(websocket http.Handler, stats func() any) {
	s.router.GET("/healthz", s.handleHealth)
	if stats != nil {
		s.router.GET("/debug/stats", s.handleStats)
	}
	if websocket != nil {
		s.router.Handler(http.MethodGet, "/ws", websocket)
	}

	s.router.GET("/api/groups/:group/messages", s.handleHistory)
	s.router.POST("/api/groups/:group/messages", s.handleSubmit)
	s.router.GET("/api/groups/:group/search", s.handleSearch)

	s.router.POST("/api/groups/:group/members", s.handleAddMember)
	s.router.DELETE("/api/groups/:group/members/:user", s.handleRemoveMember)
	s.router.GET("/api/me/groups", s.handleMyGroups)

	// Routes of the first browser client
	s.router.POST("/api/messageSave", s.handleLegacySave)
	s.router.GET("/api/chatRoom", s.handleLegacyRoom)

	s.router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		s.log.Error("HTTP handler panicked", "path", r.URL.Path, "panic", v)
		transport.WriteError(w, fmt.Errorf("panic: %v", v))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	transport.WriteJSON(w, http.StatusOK, s.stats())
}

type messagesResponse struct {
	Success  bool             `json:"success"`
	GroupID  domain.GroupID   `json:"group_id"`
	Messages []domain.Message `json:"messages"`
}

type submitResponse struct {
	Success  bool            `json:"success"`
	Message  domain.Message  `json:"message"`
	Stage    domain.Stage    `json:"stage"`
	Delivery domain.Delivery `json:"delivery"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, groupID, err := s.authorize(r, ps.ByName("group"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	since, err := parseUint(r.URL.Query().Get("since"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	messages, err := s.ingest.History(r.Context(), groupID, since)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, messagesResponse{Success: true, GroupID: groupID, Messages: nonNil(messages)})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	identity, groupID, err := s.authorize(r, ps.ByName("group"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var cmd domain.SubmitCommand
	if err = s.decode(w, r, &cmd); err != nil {
		s.fail(w, r, err)
		return
	}
	cmd.GroupID = groupID.String()
	s.submit(w, r, identity, cmd)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, groupID, err := s.authorize(r, ps.ByName("group"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	query := r.URL.Query()
	limit, err := parseUint(query.Get("limit"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	messages, err := s.index.Search(r.Context(), groupID, query.Get("q"), int(limit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, messagesResponse{Success: true, GroupID: groupID, Messages: nonNil(messages)})
}

type memberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// handleAddMember is reserved to admins and to the group's own admins.
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	groupID, err := s.requireAdmin(r, ps.ByName("group"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body memberRequest
	if err = s.decode(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	membership := domain.Membership{UserID: strings.TrimSpace(body.UserID), GroupID: groupID, Role: domain.ToRole(body.Role)}
	if err = s.membership.AddMember(r.Context(), membership); err != nil {
		s.fail(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "membership": membership})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	groupID, err := s.requireAdmin(r, ps.ByName("group"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err = s.membership.RemoveMember(r.Context(), ps.ByName("user"), groupID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMyGroups(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity, err := s.resolver.Resolve(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if identity.IsGuest() {
		s.fail(w, r, fmt.Errorf("%w: guests have no groups", errors.ErrUnauthorized))
		return
	}
	memberships, err := s.membership.GroupsOf(r.Context(), identity.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if memberships == nil {
		memberships = []domain.Membership{}
	}
	transport.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "groups": memberships})
}

// legacyMessage is the body the first browser client posts.
type legacyMessage struct {
	Grpid   string `json:"Grpid"`
	Sender  string `json:"Sender"`
	Message string `json:"Message"`
	Image   string `json:"image"`
}

func (s *Server) handleLegacySave(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body legacyMessage
	if err := s.decode(w, r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	identity, _, err := s.authorize(r, body.Grpid)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.submit(w, r, identity, domain.SubmitCommand{
		GroupID:    body.Grpid,
		Sender:     body.Sender,
		Body:       body.Message,
		Attachment: body.Image,
	})
}

func (s *Server) handleLegacyRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, groupID, err := s.authorize(r, r.URL.Query().Get("groupId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	messages, err := s.ingest.History(r.Context(), groupID, 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": nonNil(messages)})
}

// submit lets guests pick their display name, users always post under theirs.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, identity domain.Identity, cmd domain.SubmitCommand) {
	if !identity.IsGuest() || strings.TrimSpace(cmd.Sender) == "" {
		cmd.Sender = identity.Name
	}
	receipt, err := s.ingest.Submit(r.Context(), cmd)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	transport.WriteJSON(w, http.StatusCreated, submitResponse{
		Success:  true,
		Message:  receipt.Message,
		Stage:    receipt.Stage,
		Delivery: receipt.Delivery,
	})
}

func (s *Server) authorize(r *http.Request, rawGroup string) (domain.Identity, domain.GroupID, error) {
	groupID, err := domain.ParseGroupID(rawGroup)
	if err != nil {
		return domain.Identity{}, "", err
	}
	identity, err := s.resolver.Resolve(r)
	if err != nil {
		return domain.Identity{}, "", err
	}
	allowed, err := s.membership.Authorize(r.Context(), identity, groupID)
	if err != nil {
		return domain.Identity{}, "", err
	}
	if !allowed {
		return domain.Identity{}, "", fmt.Errorf("%w: %s", errors.ErrUnauthorized, groupID)
	}
	return identity, groupID, nil
}

func (s *Server) requireAdmin(r *http.Request, rawGroup string) (domain.GroupID, error) {
	groupID, err := domain.ParseGroupID(rawGroup)
	if err != nil {
		return "", err
	}
	identity, err := s.resolver.Resolve(r)
	if err != nil {
		return "", err
	}
	if auth.HasRole(identity, domain.RoleAdmin) {
		return groupID, nil
	}
	if !identity.IsGuest() {
		memberships, err := s.membership.GroupsOf(r.Context(), identity.UserID)
		if err != nil {
			return "", err
		}
		for _, m := range memberships {
			if m.GroupID == groupID && m.Role == domain.RoleAdmin {
				return groupID, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s requires an admin", errors.ErrUnauthorized, groupID)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	if s.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrInvalidPayload, err)
	}
	return nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := transport.StatusFromError(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("HTTP request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.log.Debug("HTTP request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	transport.WriteError(w, err)
}

func parseUint(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a positive integer", errors.ErrValidation, raw)
	}
	return n, nil
}

func nonNil(messages []domain.Message) []domain.Message {
	if messages == nil {
		return []domain.Message{}
	}
	return messages
}
