package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"outagebot/pkg/logx"
)

type fakeScheduler struct {
	name     string
	reward   *string
	startsAt int64
	endsAt   int64
	err      error
}

func (f *fakeScheduler) ScheduleOutage(_ context.Context, name string, reward *string, startsAt, endsAt int64) (int64, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.name, f.reward, f.startsAt, f.endsAt = name, reward, startsAt, endsAt
	return 7, 6, nil
}

type fakeAPIStore struct {
	ensured  []int64
	accepted map[int64]bool
	deleted  map[string]int64
	pending  int64
}

func (f *fakeAPIStore) EnsureUser(_ context.Context, userID int64) error {
	f.ensured = append(f.ensured, userID)
	return nil
}

func (f *fakeAPIStore) IsLegalAccepted(_ context.Context, userID int64) (bool, error) {
	return f.accepted[userID], nil
}

func (f *fakeAPIStore) DeleteOutageByName(_ context.Context, name string) (int64, error) {
	return f.deleted[name], nil
}

func (f *fakeAPIStore) CountPendingReminders(context.Context) (int64, error) {
	return f.pending, nil
}

type fakeMembership struct {
	status string
	err    error
}

func (f *fakeMembership) ChatMemberStatus(context.Context, string, int64) (string, error) {
	return f.status, f.err
}

const testSecret = "hunter2"

func newTestServer(sched *fakeScheduler, st *fakeAPIStore, member *fakeMembership) http.Handler {
	if sched == nil {
		sched = &fakeScheduler{}
	}
	if st == nil {
		st = &fakeAPIStore{accepted: map[int64]bool{}, deleted: map[string]int64{}}
	}
	if member == nil {
		member = &fakeMembership{status: "member"}
	}
	return NewServer(Config{Secret: testSecret}, sched, st, member, logx.Nop()).Handler()
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestHealthz(t *testing.T) {
	st := &fakeAPIStore{accepted: map[int64]bool{}, deleted: map[string]int64{}, pending: 3}
	h := newTestServer(nil, st, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "ok" || body["pending_reminders"] != float64(3) {
		t.Fatalf("body = %v", body)
	}
}

func TestSecretRequired(t *testing.T) {
	h := newTestServer(nil, nil, nil)
	for _, path := range []string{"/outages", "/outages/delete", "/check-legal", "/check-sub"} {
		t.Run(path, func(t *testing.T) {
			rec := post(t, h, path, `{"secret":"wrong"}`)
			if rec.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", rec.Code)
			}
		})
	}
}

func TestCreateOutage(t *testing.T) {
	sched := &fakeScheduler{}
	h := newTestServer(sched, nil, nil)

	rec := post(t, h, "/outages", `{
		"secret": "hunter2",
		"name": "Разлом",
		"reward": 500,
		"start_time": "2030-01-02T12:00:00+03:00",
		"end_time": "2030-01-02T13:00:00+03:00"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["outage_id"] != float64(7) || body["scheduled"] != float64(6) {
		t.Fatalf("body = %v", body)
	}
	if sched.name != "Разлом" {
		t.Fatalf("name = %q", sched.name)
	}
	if sched.reward == nil || *sched.reward != "500" {
		t.Fatalf("numeric reward not coerced to string: %v", sched.reward)
	}
	// +03:00 normalizes to UTC epoch.
	if sched.endsAt-sched.startsAt != 3600 {
		t.Fatalf("duration = %d, want 3600", sched.endsAt-sched.startsAt)
	}
}

func TestCreateOutageNaiveDatetimeIsUTC(t *testing.T) {
	sched := &fakeScheduler{}
	h := newTestServer(sched, nil, nil)

	rec := post(t, h, "/outages", `{
		"secret": "hunter2",
		"name": "raid",
		"start_time": "2030-01-02T12:00:00",
		"end_time": "2030-01-02T12:30:00"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	want, err := parseDateTime("2030-01-02T12:00:00+00:00")
	if err != nil {
		t.Fatal(err)
	}
	if sched.startsAt != want.Unix() {
		t.Fatalf("startsAt = %d, want %d (naive treated as UTC)", sched.startsAt, want.Unix())
	}
	if sched.reward != nil {
		t.Fatalf("omitted reward should be nil, got %v", *sched.reward)
	}
}

func TestCreateOutageValidation(t *testing.T) {
	h := newTestServer(nil, nil, nil)
	tests := []struct {
		name string
		body string
	}{
		{"bad datetime", `{"secret":"hunter2","name":"x","start_time":"tomorrow","end_time":"2030-01-01T00:00:00"}`},
		{"end before start", `{"secret":"hunter2","name":"x","start_time":"2030-01-02T00:00:00","end_time":"2030-01-01T00:00:00"}`},
		{"end equals start", `{"secret":"hunter2","name":"x","start_time":"2030-01-01T00:00:00","end_time":"2030-01-01T00:00:00"}`},
		{"missing name", `{"secret":"hunter2","start_time":"2030-01-01T00:00:00","end_time":"2030-01-02T00:00:00"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, "/outages", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDeleteOutage(t *testing.T) {
	st := &fakeAPIStore{accepted: map[int64]bool{}, deleted: map[string]int64{"raid": 2}}
	h := newTestServer(nil, st, nil)

	rec := post(t, h, "/outages/delete", `{"secret":"hunter2","name":"raid"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode(t, rec); body["deleted"] != float64(2) {
		t.Fatalf("body = %v", body)
	}

	// Unknown name: zero count, still 200.
	rec = post(t, h, "/outages/delete", `{"secret":"hunter2","name":"nope"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode(t, rec); body["deleted"] != float64(0) {
		t.Fatalf("body = %v", body)
	}
}

func TestCheckLegalEnsuresUser(t *testing.T) {
	st := &fakeAPIStore{accepted: map[int64]bool{42: true}, deleted: map[string]int64{}}
	h := newTestServer(nil, st, nil)

	rec := post(t, h, "/check-legal", `{"secret":"hunter2","user_id":42}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode(t, rec); body["accepted"] != true {
		t.Fatalf("body = %v", body)
	}
	if len(st.ensured) != 1 || st.ensured[0] != 42 {
		t.Fatalf("EnsureUser not called: %v", st.ensured)
	}
}

func TestCheckSub(t *testing.T) {
	tests := []struct {
		name   string
		member *fakeMembership
		code   int
		want   any
	}{
		{"member", &fakeMembership{status: "member"}, http.StatusOK, true},
		{"administrator", &fakeMembership{status: "administrator"}, http.StatusOK, true},
		{"left", &fakeMembership{status: "left"}, http.StatusOK, false},
		{"kicked", &fakeMembership{status: "kicked"}, http.StatusOK, false},
		{"api error", &fakeMembership{err: errors.New("chat not found")}, http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(nil, nil, tt.member)
			rec := post(t, h, "/check-sub", `{"secret":"hunter2","user_id":1,"channel_id":"@chan"}`)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if tt.code == http.StatusOK {
				if body := decode(t, rec); body["subscribed"] != tt.want {
					t.Fatalf("body = %v, want subscribed=%v", body, tt.want)
				}
			}
		})
	}
}

func TestCoerceReward(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *string
	}{
		{"string", `"gold"`, strPtr("gold")},
		{"integer", `500`, strPtr("500")},
		{"float", `1.5`, strPtr("1.5")},
		{"beyond int64", `9223372036854775808`, strPtr("9223372036854775808")},
		{"negative beyond int64", `-18446744073709551616`, strPtr("-18446744073709551616")},
		{"null", `null`, nil},
		{"omitted", ``, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerceReward(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("coerceReward(%q): %v", tt.raw, err)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Fatalf("got %q, want nil", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Fatalf("got %v, want %q", got, *tt.want)
			}
		})
	}

	if _, err := coerceReward(json.RawMessage(`{"x":1}`)); err == nil {
		t.Fatal("object reward must be rejected")
	}
}

func strPtr(s string) *string { return &s }
