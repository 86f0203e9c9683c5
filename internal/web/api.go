package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sweeney/env-controller/internal/command"
)

// MaxBodySize bounds a command request body.
const MaxBodySize = 4 << 10

// CommandResponse is the JSON reply of the command API. It carries the same
// fields as the MQTT acknowledgement plus the dispatch outcome.
type CommandResponse struct {
	Device  string `json:"device"`
	State   string `json:"state,omitempty"`
	Level   uint32 `json:"level"`
	Success bool   `json:"success"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	res, outcome := s.commands.Mode(body)
	s.respond(w, res, outcome)
}

func (s *Server) handleActuator(w http.ResponseWriter, r *http.Request) {
	target, err := command.ParseTarget(chi.URLParam(r, "target"))
	if err != nil {
		respondJSON(w, http.StatusNotFound, CommandResponse{
			Device:  chi.URLParam(r, "target"),
			Outcome: command.Unrouted.String(),
			Error:   err.Error(),
		})
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	res, outcome := s.commands.Actuator(target, body)
	if res.Device == "" {
		res.Device = target
	}
	s.respond(w, res, outcome)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		code := http.StatusBadRequest
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		respondJSON(w, code, CommandResponse{Outcome: command.Rejected.String(), Error: err.Error()})
		return nil, false
	}
	return body, true
}

func (s *Server) respond(w http.ResponseWriter, res command.Result, outcome command.Outcome) {
	resp := CommandResponse{
		Device:  string(res.Device),
		State:   res.State,
		Level:   res.Level,
		Success: res.Success,
		Outcome: outcome.String(),
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	respondJSON(w, statusFor(res, outcome), resp)
}

// statusFor maps a dispatch outcome to an HTTP status code.
func statusFor(res command.Result, outcome command.Outcome) int {
	switch outcome {
	case command.Applied:
		return http.StatusOK
	case command.Ignored, command.Uninitialized:
		return http.StatusConflict
	case command.Rejected:
		if command.IsMalformed(res.Err) {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	default:
		return http.StatusNotFound
	}
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
