package httpapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alphabot-ai/nodebird/internal/auth"
	"github.com/alphabot-ai/nodebird/internal/registry"
	"github.com/alphabot-ai/nodebird/internal/store"
)

// statusTokenExpired tells callers to exchange their secret again.
const statusTokenExpired = 419

const maxBodyBytes = 1 << 20

// envelope is the JSON body shared by every API response.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &apiError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	if body.Code == 0 {
		body.Code = status
	}
	writeJSON(w, status, body)
}

// writeAPIError maps domain errors to status codes. Anything unrecognised
// is logged and answered with an opaque 500.
func (s *Server) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apiError
	switch {
	case errors.As(err, &apiErr):
		writeEnvelope(w, apiErr.status, envelope{Message: apiErr.msg})
	case errors.Is(err, auth.ErrUnregistered):
		writeEnvelope(w, http.StatusUnauthorized, envelope{Message: auth.ErrUnregistered.Error()})
	case errors.Is(err, auth.ErrTokenExpired):
		writeEnvelope(w, statusTokenExpired, envelope{Message: "token expired"})
	case errors.Is(err, auth.ErrTokenInvalid):
		writeEnvelope(w, http.StatusUnauthorized, envelope{Message: "invalid token"})
	case errors.Is(err, auth.ErrPasswordTooLong):
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: err.Error()})
	case errors.Is(err, auth.ErrBadCredentials):
		writeEnvelope(w, http.StatusUnauthorized, envelope{Message: "invalid email or password"})
	case errors.Is(err, registry.ErrInvalidTier), errors.Is(err, registry.ErrInvalidHost):
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: err.Error()})
	case errors.Is(err, store.ErrDuplicateEmail):
		writeEnvelope(w, http.StatusConflict, envelope{Message: "email already registered"})
	case errors.Is(err, store.ErrNotFound):
		writeEnvelope(w, http.StatusNotFound, envelope{Message: "not found"})
	default:
		s.logger.Error("upstream fault",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
		)
		writeEnvelope(w, http.StatusInternalServerError, envelope{Message: "internal server error"})
	}
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	secs := retrySeconds(retry)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeEnvelope(w, http.StatusTooManyRequests, envelope{
		Message: fmt.Sprintf("rate limit exceeded, retry in %ds", secs),
	})
}

func readJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	return decodeBody(w, r, dest, true)
}

// readJSONLenient ignores unknown fields. The token exchange keeps the
// looser v1 contract.
func readJSONLenient(w http.ResponseWriter, r *http.Request, dest any) error {
	return decodeBody(w, r, dest, false)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any, strict bool) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dest); err != nil {
		return badRequest("invalid json body: %v", err)
	}
	return nil
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) error {
	if err := readJSON(w, r, dest); err != nil {
		return err
	}
	if err := validate.Struct(dest); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Param() != "" {
				return badRequest("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
			}
			return badRequest("%s: failed %s", fe.Field(), fe.Tag())
		}
		return badRequest("invalid request: %v", err)
	}
	return nil
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
