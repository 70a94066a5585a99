package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/studiocloud/mailverify/internal/logger"
)

const maxValidateBody = 64 << 10

type validateRequest struct {
	Email string `json:"email"`
}

// ValidateHandler handles POST /api/validate with a {"email": "..."} body
// and answers with the verdict.
func ValidateHandler(v Validator, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req validateRequest
		err := json.NewDecoder(io.LimitReader(r.Body, maxValidateBody)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			respondVerdictError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.Email) == "" {
			respondVerdictError(w, http.StatusBadRequest, "Email is required")
			return
		}

		res, err := v.Validate(r.Context(), req.Email)
		if err != nil {
			log.Error().Err(err).Msg("validation failed")
			reason := err.Error()
			if opts.Production {
				reason = "Server error occurred"
			}
			respondVerdictError(w, http.StatusInternalServerError, reason)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}
