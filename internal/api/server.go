// Package api exposes the secret-guarded control surface: outage
// create/delete and legal/subscription checks. It performs boundary
// validation only; the scheduling semantics live in internal/scheduler.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"outagebot/pkg/logx"
)

type Config struct {
	Addr   string
	Secret string
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:9000"
	}
	return c
}

// Scheduler is the slice of the scheduling service the API calls into.
type Scheduler interface {
	ScheduleOutage(ctx context.Context, name string, reward *string, startsAt, endsAt int64) (outageID int64, attempted int, err error)
}

// Store is the slice of persistence the API calls into.
type Store interface {
	EnsureUser(ctx context.Context, userID int64) error
	IsLegalAccepted(ctx context.Context, userID int64) (bool, error)
	DeleteOutageByName(ctx context.Context, name string) (int64, error)
	CountPendingReminders(ctx context.Context) (int64, error)
}

// Membership checks a user's membership in a channel; backed by the
// messaging transport.
type Membership interface {
	ChatMemberStatus(ctx context.Context, channel string, userID int64) (string, error)
}

// Server manages the control API listener lifecycle.
type Server struct {
	cfg    Config
	log    logx.Logger
	sched  Scheduler
	st     Store
	member Membership

	srv *http.Server
	ln  net.Listener
}

func NewServer(cfg Config, sched Scheduler, st Store, member Membership, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:    cfg.withDefaults(),
		log:    log.With(logx.String("comp", "api")),
		sched:  sched,
		st:     st,
		member: member,
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.srv = srv
	s.ln = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server error", logx.Err(err))
		}
	}()
	s.log.Info("control api listening", logx.String("addr", ln.Addr().String()))
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Handler returns the route mux. Split out so tests can drive the
// handlers through httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /outages", s.handleCreateOutage)
	mux.HandleFunc("POST /outages/delete", s.handleDeleteOutage)
	mux.HandleFunc("POST /check-legal", s.handleCheckLegal)
	mux.HandleFunc("POST /check-sub", s.handleCheckSub)
	return mux
}

type createOutageRequest struct {
	Secret    string          `json:"secret"`
	Name      string          `json:"name"`
	Reward    json.RawMessage `json:"reward"`
	StartTime string          `json:"start_time"`
	EndTime   string          `json:"end_time"`
}

type deleteOutageRequest struct {
	Secret string `json:"secret"`
	Name   string `json:"name"`
}

type checkLegalRequest struct {
	Secret string `json:"secret"`
	UserID int64  `json:"user_id"`
}

type checkSubRequest struct {
	Secret    string `json:"secret"`
	UserID    int64  `json:"user_id"`
	ChannelID string `json:"channel_id"`
}

// handleHealthz is an unauthenticated liveness probe carrying a small
// queue stat; a storage error still answers 200 so probes don't flap.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if pending, err := s.st.CountPendingReminders(r.Context()); err == nil {
		body["pending_reminders"] = pending
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleCreateOutage(w http.ResponseWriter, r *http.Request) {
	var req createOutageRequest
	if !decodeBody(w, r, &req) || !s.checkSecret(w, req.Secret) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required", "")
		return
	}

	startsAt, err := parseDateTime(req.StartTime)
	if err == nil {
		var endsAt time.Time
		endsAt, err = parseDateTime(req.EndTime)
		if err == nil {
			if !endsAt.After(startsAt) {
				writeError(w, http.StatusBadRequest, "invalid time range", "end_time must be later than start_time")
				return
			}
			reward, rerr := coerceReward(req.Reward)
			if rerr != nil {
				writeError(w, http.StatusBadRequest, "invalid reward", "use a string, a number or null")
				return
			}
			outageID, attempted, serr := s.sched.ScheduleOutage(r.Context(), req.Name, reward, startsAt.Unix(), endsAt.Unix())
			if serr != nil {
				s.log.Error("schedule outage failed", logx.String("name", req.Name), logx.Err(serr))
				writeError(w, http.StatusInternalServerError, "storage error", "")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"outage_id": outageID, "scheduled": attempted})
			return
		}
	}
	writeError(w, http.StatusBadRequest, "invalid datetime format", "use ISO 8601, e.g. 2024-12-31T12:00:00+03:00")
}

func (s *Server) handleDeleteOutage(w http.ResponseWriter, r *http.Request) {
	var req deleteOutageRequest
	if !decodeBody(w, r, &req) || !s.checkSecret(w, req.Secret) {
		return
	}
	deleted, err := s.st.DeleteOutageByName(r.Context(), req.Name)
	if err != nil {
		s.log.Error("delete outage failed", logx.String("name", req.Name), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "storage error", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleCheckLegal(w http.ResponseWriter, r *http.Request) {
	var req checkLegalRequest
	if !decodeBody(w, r, &req) || !s.checkSecret(w, req.Secret) {
		return
	}
	if err := s.st.EnsureUser(r.Context(), req.UserID); err != nil {
		s.log.Error("ensure user failed", logx.Int64("user_id", req.UserID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "storage error", "")
		return
	}
	accepted, err := s.st.IsLegalAccepted(r.Context(), req.UserID)
	if err != nil {
		s.log.Error("legal check failed", logx.Int64("user_id", req.UserID), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "storage error", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accepted": accepted})
}

func (s *Server) handleCheckSub(w http.ResponseWriter, r *http.Request) {
	var req checkSubRequest
	if !decodeBody(w, r, &req) || !s.checkSecret(w, req.Secret) {
		return
	}
	status, err := s.member.ChatMemberStatus(r.Context(), req.ChannelID, req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "telegram api error", err.Error())
		return
	}
	subscribed := status != "left" && status != "kicked"
	writeJSON(w, http.StatusOK, map[string]any{"subscribed": subscribed})
}

func (s *Server) checkSecret(w http.ResponseWriter, secret string) bool {
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.Secret)) != 1 {
		writeError(w, http.StatusForbidden, "invalid secret", "check api.secret and the request payload")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return false
	}
	return true
}

// parseDateTime accepts ISO-8601 timestamps; values without an offset
// are interpreted as UTC.
func parseDateTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("unrecognized datetime: " + value)
}

// coerceReward accepts a string, a number or null and normalizes to an
// optional string.
func coerceReward(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &x, nil
	case float64:
		var s string
		// Integral values render without a decimal point, but only while
		// they fit in int64; beyond that the conversion would overflow.
		if x == math.Trunc(x) && x >= -(1<<63) && x < 1<<63 {
			s = strconv.FormatInt(int64(x), 10)
		} else {
			s = strconv.FormatFloat(x, 'f', -1, 64)
		}
		return &s, nil
	default:
		return nil, errors.New("reward must be a string, a number or null")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg, hint string) {
	body := map[string]any{"error": msg}
	if hint != "" {
		body["hint"] = hint
	}
	writeJSON(w, code, body)
}
