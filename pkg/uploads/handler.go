package uploads

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-catalog/pkg/catalog"
)

// Handler adapts the issuer to a single HTTP endpoint: GET ?name=<file name>
// returns the credential as JSON. There is deliberately no routing layer
// around it.
func Handler(issuer *SignedURLIssuer, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credential, err := issuer.Issue(r.URL.Query().Get("name"))
		if err != nil {
			if errors.Is(err, catalog.ErrInvalidArgument) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
				return
			}
			logger.Error().Err(err).Msg("Failed to issue upload credential")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "failed to issue upload credential"})
			return
		}
		writeJSON(w, http.StatusOK, credential)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
