// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"medquery/cli/internal/chat"
	apperrors "medquery/cli/internal/errors"
	"medquery/cli/internal/logging"
)

// maxBodyBytes bounds request bodies; histories can be long but not unbounded.
const maxBodyBytes = 4 << 20

// SubjectID decodes from a JSON number, a JSON string or null.
type SubjectID string

func (id *SubjectID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = SubjectID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("subject_id must be a number or a string")
	}
	if i, err := n.Int64(); err == nil {
		*id = SubjectID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = SubjectID(n.String())
	return nil
}

// SendMessageRequest is the body of POST /send_message. patientId is
// accepted for older clients.
type SendMessageRequest struct {
	Message   string      `json:"message"`
	SubjectID SubjectID   `json:"subject_id"`
	PatientID SubjectID   `json:"patientId"`
	History   []chat.Turn `json:"history"`
}

type sendMessageResponse struct {
	Response string `json:"response"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Message string `json:"message"`
}

type queryResponse struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
	Query   string   `json:"query"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, message, details string) {
	respondWithJSON(w, code, errorResponse{Error: message, Details: details})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decode(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondWithError(w, http.StatusBadRequest, "empty message", "")
		return
	}
	subjectID := req.SubjectID
	if subjectID == "" {
		subjectID = req.PatientID
	}

	resp, err := s.deps.Asker.Ask(r.Context(), chat.Request{
		Question:  req.Message,
		SubjectID: string(subjectID),
		History:   req.History,
	})
	if err != nil {
		details := logging.Mask(err.Error())
		if apperrors.Is(err, apperrors.InvalidRequest) {
			respondWithError(w, http.StatusBadRequest, "invalid request", details)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "an error occurred on the server", details)
		return
	}
	respondWithJSON(w, http.StatusOK, sendMessageResponse{Response: resp.Answer})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decode(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondWithError(w, http.StatusBadRequest, "message is required", "")
		return
	}

	ret := s.deps.Retriever.Retrieve(r.Context(), strings.TrimSpace(req.Message), "", nil)
	// Zero rows are reported like a failure: there is nothing to show.
	if !ret.OK() || ret.Result.Empty() {
		s.log.Info("query returned no data", s.log.Args("payload", ret.Payload))
		respondWithError(w, http.StatusBadRequest, ret.Payload, "")
		return
	}
	respondWithJSON(w, http.StatusOK, queryResponse{Columns: ret.Result.Columns, Data: ret.Result.Rows, Query: ret.Query})
}

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Subjects.List(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "cannot list subjects: "+logging.Mask(err.Error()), "")
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(r.Context()); err != nil {
			respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
