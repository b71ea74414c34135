package authserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog/log"

	"github.com/mesmerverse/vettid-dev/loginkit/box"
	"github.com/mesmerverse/vettid-dev/loginkit/login"
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type envelope struct {
	LoginID   string          `json:"loginId"`
	LoginAuth []byte          `json:"loginAuth"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type pin2Body struct {
	Pin2ID      []byte   `json:"pin2Id,omitempty"`
	Pin2Auth    []byte   `json:"pin2Auth,omitempty"`
	Pin2Box     *box.Box `json:"pin2Box,omitempty"`
	Pin2KeyBox  *box.Box `json:"pin2KeyBox,omitempty"`
	Pin2TextBox *box.Box `json:"pin2TextBox,omitempty"`
}

// handleLogin handles POST /v2/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req login.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Pin2ID) == 0 || len(req.Pin2Auth) == 0 {
		writeError(w, http.StatusBadRequest, "pin2Id and pin2Auth are required")
		return
	}

	rec, err := s.store.GetLoginByPin2ID(r.Context(), req.Pin2ID)
	if errors.Is(err, ErrRecordNotFound) {
		s.metrics.logins.WithLabelValues("unknown").Inc()
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		s.internalError(w, "Failed to look up login", err)
		return
	}

	if !secretMatches(req.Pin2Auth, rec.Pin2AuthHash) {
		s.metrics.logins.WithLabelValues("bad_pin").Inc()
		log.Info().Str("login_id", rec.LoginID).Msg("PIN login rejected")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if rec.OTPKey != "" {
		ok, err := totp.ValidateCustom(req.OTP, rec.OTPKey, s.now().UTC(), totpOpts)
		if err != nil || !ok {
			s.metrics.logins.WithLabelValues("bad_otp").Inc()
			writeError(w, http.StatusUnauthorized, "invalid or missing OTP code")
			return
		}
	}

	reply, err := s.buildReply(r.Context(), rec)
	if err != nil {
		s.internalError(w, "Failed to build login reply", err)
		return
	}

	s.metrics.logins.WithLabelValues("ok").Inc()
	log.Info().Str("login_id", rec.LoginID).Int("children", len(reply.Children)).Msg("PIN login accepted")
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) buildReply(ctx context.Context, rec *Record) (*login.LoginReply, error) {
	reply := &login.LoginReply{
		LoginID:      rec.LoginID,
		AppID:        rec.AppID,
		ParentBox:    rec.ParentBox,
		LoginAuthBox: rec.LoginAuthBox,
		Pin2Box:      rec.Pin2Box,
		Pin2KeyBox:   rec.Pin2KeyBox,
		Pin2TextBox:  rec.Pin2TextBox,
	}

	children, err := s.store.ListChildren(ctx, rec.LoginID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		childReply, err := s.buildReply(ctx, child)
		if err != nil {
			return nil, err
		}
		reply.Children = append(reply.Children, childReply)
	}
	return reply, nil
}

// handleCreate handles POST /v2/login/create.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req login.CreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.LoginAuth) == 0 || req.LoginAuthBox == nil {
		writeError(w, http.StatusBadRequest, "loginAuth and loginAuthBox are required")
		return
	}
	now := s.now().UTC()
	if req.OTPKey != "" {
		if _, err := totp.GenerateCode(req.OTPKey, now); err != nil {
			writeError(w, http.StatusBadRequest, "invalid otpKey")
			return
		}
	}

	if req.ParentID != "" {
		parent, err := s.store.GetLogin(r.Context(), req.ParentID)
		if errors.Is(err, ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "unknown parent login")
			return
		}
		if err != nil {
			s.internalError(w, "Failed to look up parent login", err)
			return
		}
		if !secretMatches(req.ParentAuth, parent.LoginAuthHash) {
			writeError(w, http.StatusUnauthorized, "invalid parent credentials")
			return
		}
		if req.ParentBox == nil {
			writeError(w, http.StatusBadRequest, "parentBox is required for a child login")
			return
		}
	}

	loginID := req.LoginID
	if loginID == "" {
		loginID = uuid.NewString()
	} else if _, err := s.store.GetLogin(r.Context(), loginID); err == nil {
		writeError(w, http.StatusBadRequest, "login already exists")
		return
	} else if !errors.Is(err, ErrRecordNotFound) {
		s.internalError(w, "Failed to look up login", err)
		return
	}

	rec := &Record{
		LoginID:       loginID,
		AppID:         req.AppID,
		ParentID:      req.ParentID,
		LoginAuthHash: hashSecret(req.LoginAuth),
		LoginAuthBox:  req.LoginAuthBox,
		OTPKey:        req.OTPKey,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.ParentID != "" {
		rec.ParentBox = req.ParentBox
	}
	if err := s.store.PutLogin(r.Context(), rec); err != nil {
		s.internalError(w, "Failed to store login", err)
		return
	}

	s.metrics.loginsCreated.Inc()
	log.Info().
		Str("login_id", loginID).
		Str("app_id", req.AppID).
		Str("parent_id", req.ParentID).
		Msg("Login created")
	writeJSON(w, http.StatusOK, login.CreateReply{LoginID: loginID})
}

// handlePin2Update handles POST /v2/login/pin2. A body without pin2Id turns
// PIN login off but keeps the cached PIN text.
func (s *Server) handlePin2Update(w http.ResponseWriter, r *http.Request) {
	var env envelope
	rec, ok := s.authenticate(w, r, &env)
	if !ok {
		return
	}
	if len(env.Data) == 0 {
		writeError(w, http.StatusBadRequest, "data is required")
		return
	}
	var body pin2Body
	if err := json.Unmarshal(env.Data, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid data: "+err.Error())
		return
	}

	op := "enable"
	if len(body.Pin2ID) > 0 {
		if len(body.Pin2Auth) == 0 || body.Pin2Box == nil || body.Pin2KeyBox == nil {
			writeError(w, http.StatusBadRequest, "pin2Id, pin2Auth, pin2Box and pin2KeyBox go together")
			return
		}
		rec.Pin2ID = body.Pin2ID
		rec.Pin2AuthHash = hashSecret(body.Pin2Auth)
		rec.Pin2Box = body.Pin2Box
		rec.Pin2KeyBox = body.Pin2KeyBox
	} else {
		if body.Pin2TextBox == nil {
			writeError(w, http.StatusBadRequest, "pin2TextBox is required")
			return
		}
		op = "disable"
		rec.clearPin2()
	}
	if body.Pin2TextBox != nil {
		rec.Pin2TextBox = body.Pin2TextBox
	}

	s.savePin2(w, r, rec, op)
}

// handlePin2Delete handles DELETE /v2/login/pin2.
func (s *Server) handlePin2Delete(w http.ResponseWriter, r *http.Request) {
	var env envelope
	rec, ok := s.authenticate(w, r, &env)
	if !ok {
		return
	}
	rec.clearPin2()
	rec.Pin2TextBox = nil
	s.savePin2(w, r, rec, "delete")
}

func (s *Server) savePin2(w http.ResponseWriter, r *http.Request, rec *Record, op string) {
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.PutLogin(r.Context(), rec); err != nil {
		s.internalError(w, "Failed to store PIN credential", err)
		return
	}
	s.metrics.pin2Changes.WithLabelValues(op).Inc()
	log.Info().Str("login_id", rec.LoginID).Str("op", op).Msg("PIN credential updated")
	writeJSON(w, http.StatusOK, struct{}{})
}

// authenticate decodes an envelope and checks its loginAuth. On failure the
// error reply has already been written.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, env *envelope) (*Record, bool) {
	if !decodeJSON(w, r, env) {
		return nil, false
	}
	if env.LoginID == "" || len(env.LoginAuth) == 0 {
		writeError(w, http.StatusBadRequest, "loginId and loginAuth are required")
		return nil, false
	}

	rec, err := s.store.GetLogin(r.Context(), env.LoginID)
	if errors.Is(err, ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "unknown login")
		return nil, false
	}
	if err != nil {
		s.internalError(w, "Failed to look up login", err)
		return nil, false
	}
	if !secretMatches(env.LoginAuth, rec.LoginAuthHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return nil, false
	}
	return rec, true
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	log.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, login.ErrorReply{Error: msg})
}
