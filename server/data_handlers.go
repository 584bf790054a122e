package server

import (
	"encoding/json"
	"net/http"
)

type sealRequest struct {
	Data json.RawMessage `json:"data"`
}

type sealedPayload struct {
	Ciphertext []byte `json:"ciphertext"`
}

type openResponse struct {
	Data json.RawMessage `json:"data"`
}

// SealDataHandler encrypts a JSON document for the caller's tenant. A document
// naming another tenant ends the session.
func (s *Server) SealDataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sealRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req.Data) == 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeInvalidRequest, Message: "data is required"})
			return
		}
		sealed, err := s.sessions.SealTenantData(r.Context(), tokenFromContext(r.Context()), requestMeta(r), req.Data)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sealedPayload{Ciphertext: sealed})
	}
}

func (s *Server) OpenDataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sealedPayload
		if !decodeJSON(w, r, &req) {
			return
		}
		var data json.RawMessage
		if err := s.sessions.OpenTenantData(r.Context(), tokenFromContext(r.Context()), requestMeta(r), req.Ciphertext, &data); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, openResponse{Data: data})
	}
}
