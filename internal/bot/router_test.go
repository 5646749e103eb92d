package bot

import (
	"context"
	"testing"

	"outagebot/internal/outage"
	kit "outagebot/internal/transport"
	"outagebot/pkg/logx"
)

type fakeBotStore struct {
	ensured  []int64
	accepted map[int64]bool
	notify   map[int64]bool
}

func newFakeBotStore() *fakeBotStore {
	return &fakeBotStore{accepted: map[int64]bool{}, notify: map[int64]bool{}}
}

func (f *fakeBotStore) EnsureUser(_ context.Context, userID int64) error {
	f.ensured = append(f.ensured, userID)
	return nil
}

func (f *fakeBotStore) SetLegalAccepted(_ context.Context, userID, _ int64) error {
	f.accepted[userID] = true
	return nil
}

func (f *fakeBotStore) IsLegalAccepted(_ context.Context, userID int64) (bool, error) {
	return f.accepted[userID], nil
}

func (f *fakeBotStore) SetNotify(_ context.Context, userID int64, on bool) error {
	f.notify[userID] = on
	return nil
}

func (f *fakeBotStore) GetUser(_ context.Context, userID int64) (*outage.User, error) {
	on, ok := f.notify[userID]
	if !ok {
		on = true
	}
	return &outage.User{UserID: userID, LegalAccepted: f.accepted[userID], NotifyOn: on}, nil
}

func (f *fakeBotStore) ListUserIDs(context.Context, bool, bool) ([]int64, error) { return nil, nil }
func (f *fakeBotStore) CreateOutage(context.Context, string, *string, int64, int64) (int64, error) {
	return 0, nil
}
func (f *fakeBotStore) DeleteOutageByName(context.Context, string) (int64, error) { return 0, nil }
func (f *fakeBotStore) CreateReminders(context.Context, int64, []outage.LadderEntry) (int, error) {
	return 0, nil
}
func (f *fakeBotStore) GetDueReminders(context.Context, int64) ([]outage.DueReminder, error) {
	return nil, nil
}
func (f *fakeBotStore) MarkReminderSent(context.Context, int64, int64) error { return nil }
func (f *fakeBotStore) CountPendingReminders(context.Context) (int64, error) { return 0, nil }
func (f *fakeBotStore) PruneDelivered(context.Context, int64) (int64, error) { return 0, nil }
func (f *fakeBotStore) Close() error                                         { return nil }

type answered struct {
	text  string
	alert bool
}

type fakeAdapter struct {
	sent     []string
	edited   []string
	answers  []answered
	lastSend *kit.SendOptions
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.sent = append(f.sent, text)
	f.lastSend = opt
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.edited = append(f.edited, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string, alert bool) error {
	f.answers = append(f.answers, answered{text: text, alert: alert})
	return nil
}

func (f *fakeAdapter) ChatMemberStatus(context.Context, string, int64) (string, error) {
	return "member", nil
}

func msgUpdate(userID int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: userID, FromID: userID, Text: text}}
}

func cbUpdate(userID int64, data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", FromID: userID, ChatID: userID, MessageID: 5, Data: data}}
}

func TestStartShowsLegalForNewUser(t *testing.T) {
	st := newFakeBotStore()
	ad := &fakeAdapter{}
	r := NewRouter(st, ad, logx.Nop())

	r.HandleUpdate(context.Background(), msgUpdate(42, "/start"))

	if len(st.ensured) != 1 || st.ensured[0] != 42 {
		t.Fatalf("EnsureUser calls = %v", st.ensured)
	}
	if len(ad.sent) != 1 || ad.sent[0] != legalText {
		t.Fatalf("sent = %v, want legal text", ad.sent)
	}
}

func TestStartShowsMenuForAcceptedUser(t *testing.T) {
	st := newFakeBotStore()
	st.accepted[42] = true
	ad := &fakeAdapter{}
	r := NewRouter(st, ad, logx.Nop())

	r.HandleUpdate(context.Background(), msgUpdate(42, "/start"))

	if len(ad.sent) != 1 || ad.sent[0] != welcomeText {
		t.Fatalf("sent = %v, want welcome text", ad.sent)
	}
	if ad.lastSend == nil || ad.lastSend.ReplyMarkup == nil {
		t.Fatal("welcome must carry the menu keyboard")
	}
}

func TestStartCommandForms(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"bare", "/start", true},
		{"deep link payload", "/start promo123", true},
		{"directed at bot", "/start@outage_bot", true},
		{"directed with payload", "/start@outage_bot promo123", true},
		{"prefix only", "/started", false},
		{"plain text", "hello", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeBotStore()
			ad := &fakeAdapter{}
			r := NewRouter(st, ad, logx.Nop())

			r.HandleUpdate(context.Background(), msgUpdate(42, tt.text))

			if got := len(ad.sent) == 1; got != tt.want {
				t.Fatalf("isStartCommand(%q): sent = %v, want handled=%v", tt.text, ad.sent, tt.want)
			}
		})
	}
}

func TestNonStartMessageIgnored(t *testing.T) {
	ad := &fakeAdapter{}
	r := NewRouter(newFakeBotStore(), ad, logx.Nop())

	r.HandleUpdate(context.Background(), msgUpdate(42, "hello"))

	if len(ad.sent) != 0 {
		t.Fatalf("sent = %v, want nothing", ad.sent)
	}
}

func TestAcceptLegalUnlocksMenu(t *testing.T) {
	st := newFakeBotStore()
	ad := &fakeAdapter{}
	r := NewRouter(st, ad, logx.Nop())

	r.HandleUpdate(context.Background(), cbUpdate(42, cbLegalAccept))

	if !st.accepted[42] {
		t.Fatal("acceptance not persisted")
	}
	if len(ad.edited) != 1 || ad.edited[0] != welcomeText {
		t.Fatalf("edited = %v, want welcome text", ad.edited)
	}
	if len(ad.answers) != 1 || ad.answers[0].text != legalAcceptedToast {
		t.Fatalf("answers = %v", ad.answers)
	}
}

func TestMenuGatedUntilAccepted(t *testing.T) {
	st := newFakeBotStore()
	ad := &fakeAdapter{}
	r := NewRouter(st, ad, logx.Nop())

	r.HandleUpdate(context.Background(), cbUpdate(42, cbGamePlay))

	if len(ad.edited) != 0 {
		t.Fatalf("edited = %v, menu must stay closed", ad.edited)
	}
	if len(ad.answers) != 1 || !ad.answers[0].alert {
		t.Fatalf("answers = %v, want blocking alert", ad.answers)
	}
	if len(ad.sent) != 1 || ad.sent[0] != legalText {
		t.Fatalf("sent = %v, want legal prompt", ad.sent)
	}

	// After acceptance the same callback opens the section.
	st.accepted[42] = true
	r.HandleUpdate(context.Background(), cbUpdate(42, cbGamePlay))
	if len(ad.edited) != 1 || ad.edited[0] != menuContent[cbGamePlay] {
		t.Fatalf("edited = %v, want play section", ad.edited)
	}
}

func TestNotifyToggleFlips(t *testing.T) {
	st := newFakeBotStore()
	st.accepted[42] = true
	ad := &fakeAdapter{}
	r := NewRouter(st, ad, logx.Nop())

	r.HandleUpdate(context.Background(), cbUpdate(42, cbNotifyToggle))
	if on := st.notify[42]; on {
		t.Fatal("first toggle must turn notifications off")
	}
	if ad.answers[len(ad.answers)-1].text != notifyOffToast {
		t.Fatalf("toast = %q", ad.answers[len(ad.answers)-1].text)
	}

	r.HandleUpdate(context.Background(), cbUpdate(42, cbNotifyToggle))
	if on := st.notify[42]; !on {
		t.Fatal("second toggle must turn notifications back on")
	}
	if ad.answers[len(ad.answers)-1].text != notifyOnToast {
		t.Fatalf("toast = %q", ad.answers[len(ad.answers)-1].text)
	}
}

func TestUnknownCallbackIgnored(t *testing.T) {
	ad := &fakeAdapter{}
	r := NewRouter(newFakeBotStore(), ad, logx.Nop())

	r.HandleUpdate(context.Background(), cbUpdate(42, "mystery"))

	if len(ad.sent)+len(ad.edited)+len(ad.answers) != 0 {
		t.Fatal("unknown callback must be a no-op")
	}
}
