package httpapp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alphabot-ai/nodebird/internal/auth"
	"github.com/alphabot-ai/nodebird/internal/model"
)

type joinRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Nick     string `json:"nick" validate:"required,max=15"`
	Password string `json:"password" validate:"required,min=4,max=72"`
}

type domainRequest struct {
	Host string `json:"host" validate:"required"`
	Type string `json:"type" validate:"required"`
}

type postRequest struct {
	Content string `json:"content" validate:"required,max=140"`
	Img     string `json:"img"`
}

type domainResponse struct {
	ID           int64     `json:"id"`
	Host         string    `json:"host"`
	Type         string    `json:"type"`
	ClientSecret string    `json:"clientSecret"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toDomainResponse(d model.Domain) domainResponse {
	return domainResponse{
		ID:           d.ID,
		Host:         d.Host,
		Type:         string(d.Tier),
		ClientSecret: d.Secret,
		CreatedAt:    d.CreatedAt,
	}
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	user := model.User{
		Email:        auth.NormalizeEmail(req.Email),
		Nick:         strings.TrimSpace(req.Nick),
		PasswordHash: hash,
		Provider:     model.ProviderLocal,
		CreatedAt:    s.clock.Now(),
	}
	id, err := s.store.CreateUser(r.Context(), &user)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusCreated, envelope{
		Message: "joined",
		Payload: map[string]any{"id": id, "nick": user.Nick},
	})
}

func (s *Server) handleRegisterDomain(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r.Context())
	var req domainRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	domain, err := s.registry.Register(r.Context(), user.ID, req.Host, model.Tier(req.Type))
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	s.logger.Info("domain registered", "user_id", user.ID, "domain_id", domain.ID, "host", domain.Host, "type", domain.Tier)
	writeJSON(w, http.StatusCreated, map[string]any{
		"code":         http.StatusCreated,
		"message":      "domain registered",
		"domain":       toDomainResponse(domain),
		"clientSecret": domain.Secret,
	})
}

func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r.Context())
	domains, err := s.registry.ListByOwner(r.Context(), user.ID)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	out := make([]domainResponse, 0, len(domains))
	for _, d := range domains {
		out = append(out, toDomainResponse(d))
	}
	writeEnvelope(w, http.StatusOK, envelope{Payload: out})
}

func (s *Server) handleRemoveDomain(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeAPIError(w, r, badRequest("invalid domain id"))
		return
	}
	if err := s.registry.Remove(r.Context(), user.ID, id); err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	s.logger.Info("domain removed", "user_id", user.ID, "domain_id", id)
	writeEnvelope(w, http.StatusOK, envelope{Message: "domain removed"})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	user := mustUser(r.Context())
	var req postRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	post := model.Post{
		Content:   req.Content,
		Img:       strings.TrimSpace(req.Img),
		UserID:    user.ID,
		CreatedAt: s.clock.Now(),
	}
	hashtags := model.ExtractHashtags(req.Content)
	if hashtags == nil {
		hashtags = []string{}
	}
	id, err := s.store.CreatePost(r.Context(), &post, hashtags)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	post.ID = id
	writeEnvelope(w, http.StatusCreated, envelope{
		Message: "post created",
		Payload: map[string]any{"post": post, "hashtags": hashtags},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	stats, err := s.store.GetSiteStats(ctx)
	if err != nil {
		s.logger.Error("health stats failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"users":   stats.Users,
		"domains": stats.Domains,
		"posts":   stats.Posts,
	})
}

// mustUser returns the user set by basicAuth.
func mustUser(ctx context.Context) model.User {
	user, _ := auth.UserFrom(ctx)
	return user
}
