package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/dom/learnhub-api/internal/api/respond"
	"github.com/dom/learnhub-api/internal/domain"
	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

type validatable interface {
	Validate() error
}

// decodeAndValidate reads a JSON body into dst and runs its validation
// rules. It writes the error response itself and reports false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respond.Fail(w, http.StatusBadRequest, respond.CodeBadRequest, "Invalid request body")
		return false
	}

	if err := dst.Validate(); err != nil {
		var fieldErrs validation.Errors
		if errors.As(err, &fieldErrs) {
			fields := make(map[string]string, len(fieldErrs))
			for name, fieldErr := range fieldErrs {
				fields[name] = fieldErr.Error()
			}
			respond.ValidationFailed(w, fields)
			return false
		}
		respond.ValidationFailed(w, map[string]string{"body": err.Error()})
		return false
	}
	return true
}

// uuidParam parses a chi URL parameter. Malformed ids are reported as not
// found, the same as ids that do not exist.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respond.Error(w, r, domain.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// sessionMeta captures the client details stored with a new session.
// RemoteAddr has already been rewritten by chi's RealIP middleware.
func sessionMeta(r *http.Request) domain.SessionMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return domain.SessionMeta{
		UserAgent: r.UserAgent(),
		IPAddress: ip,
	}
}
