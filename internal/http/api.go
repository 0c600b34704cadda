package httpapp

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alphabot-ai/nodebird/internal/auth"
	"github.com/alphabot-ai/nodebird/internal/model"
	"github.com/alphabot-ai/nodebird/internal/store"
)

type tokenRequest struct {
	ClientSecret string `json:"clientSecret"`
}

// claimsResponse is what the test endpoint echoes back.
type claimsResponse struct {
	ID        int64  `json:"id"`
	Nick      string `json:"nick"`
	Issuer    string `json:"iss"`
	TokenID   string `json:"jti,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func (s *Server) handleToken(g generation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := readJSONLenient(w, r, &req); err != nil {
			s.writeAPIError(w, r, err)
			return
		}

		var (
			user   model.User
			domain model.Domain
			err    error
		)
		if secret := strings.TrimSpace(req.ClientSecret); secret == "" {
			err = auth.ErrUnregistered
		} else {
			user, domain, err = s.credentials.VerifySecret(r.Context(), secret)
		}
		if err != nil {
			if errors.Is(err, auth.ErrUnregistered) {
				s.metrics.TokenExchangeFailed(g.name, "unregistered")
			} else {
				s.metrics.TokenExchangeFailed(g.name, "error")
			}
			s.writeAPIError(w, r, err)
			return
		}

		token, _, err := s.issuer.Issue(user, g.settings.TokenTTL, s.cfg.Issuer)
		if err != nil {
			s.metrics.TokenExchangeFailed(g.name, "error")
			s.writeAPIError(w, r, err)
			return
		}
		s.metrics.TokenIssued(g.name)
		s.logger.Debug("token issued", "version", g.name, "user_id", user.ID, "domain_id", domain.ID)
		writeEnvelope(w, http.StatusOK, envelope{Message: "token issued", Token: token})
	}
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		writeEnvelope(w, http.StatusUnauthorized, envelope{Message: "invalid token"})
		return
	}
	writeJSON(w, http.StatusOK, claimsResponse{
		ID:        claims.ID,
		Nick:      claims.Nick,
		Issuer:    claims.Issuer,
		TokenID:   claims.TokenID,
		IssuedAt:  claims.IssuedAt.Unix(),
		ExpiresAt: claims.ExpiresAt.Unix(),
	})
}

func (s *Server) handleMyPosts(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		writeEnvelope(w, http.StatusUnauthorized, envelope{Message: "invalid token"})
		return
	}
	posts, err := s.store.ListPostsByUser(r.Context(), claims.ID)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Payload: posts})
}

func (s *Server) handleHashtagPosts(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(chi.URLParam(r, "title"))
	tag, err := s.store.FindHashtagByTitle(r.Context(), title)
	if errors.Is(err, store.ErrNotFound) {
		writeEnvelope(w, http.StatusNotFound, envelope{Message: "no posts for this hashtag"})
		return
	}
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	posts, err := s.store.ListPostsByHashtag(r.Context(), tag.ID)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Payload: posts})
}
