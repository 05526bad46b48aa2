package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/powerca/backoffice/metrics"
	"github.com/powerca/backoffice/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeHubSpot struct {
	mu       sync.Mutex
	contacts map[string]string
	calls    []string
	events   []string
	conflict bool
	nextID   int
}

func newFakeHubSpot() *fakeHubSpot {
	return &fakeHubSpot{contacts: map[string]string{}}
}

func (f *fakeHubSpot) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)

		switch {
		case r.URL.Path == "/crm/v3/objects/contacts/search":
			var req searchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			email := req.FilterGroups[0].Filters[0].Value
			resp := searchResponse{}
			if id, ok := f.contacts[email]; ok {
				resp.Total = 1
				resp.Results = []Contact{{ID: id}}
			}
			json.NewEncoder(w).Encode(resp)

		case r.URL.Path == "/crm/v3/objects/contacts" && r.Method == http.MethodPost:
			var req propertiesPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			email := req.Properties["email"]
			if f.conflict {
				// someone else created the contact a moment ago
				f.contacts[email] = "existing"
				f.conflict = false
				w.WriteHeader(http.StatusConflict)
				return
			}
			f.nextID++
			id := "c" + string(rune('0'+f.nextID))
			f.contacts[email] = id
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Contact{ID: id})

		case strings.HasPrefix(r.URL.Path, "/crm/v3/objects/contacts/") && r.Method == http.MethodPatch:
			json.NewEncoder(w).Encode(Contact{ID: strings.TrimPrefix(r.URL.Path, "/crm/v3/objects/contacts/")})

		case r.URL.Path == "/events/v3/send":
			var payload eventPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			f.events = append(f.events, payload.EventName)
			w.WriteHeader(http.StatusNoContent)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func TestSync_CreatesThenUpdatesContact(t *testing.T) {
	fake := newFakeHubSpot()
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	m := metrics.Nop()
	s := NewSync(NewHubSpotClient(server.URL, "token-1"), quietLogger(), m)
	ctx := context.Background()

	trialEnds := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	user := &models.User{FullName: "Asha Rao", Email: "asha@firm.in", TrialEndsAt: &trialEnds}
	s.AfterUserCreate(ctx, user)
	s.AfterTrialStarted(ctx, user)

	assert.Equal(t, []string{
		"POST /crm/v3/objects/contacts/search",
		"POST /crm/v3/objects/contacts",
		"POST /events/v3/send",
		"POST /crm/v3/objects/contacts/search",
		"PATCH /crm/v3/objects/contacts/c1",
		"POST /events/v3/send",
	}, fake.calls)
	assert.Equal(t, []string{"user_registered", "trial_started"}, fake.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CRMSync.WithLabelValues(OpAfterUserCreate, "ok")))
}

func TestSync_CreateConflictFallsBackToUpdateOnce(t *testing.T) {
	fake := newFakeHubSpot()
	fake.conflict = true
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	s := NewSync(NewHubSpotClient(server.URL, "token-1"), quietLogger(), nil)
	s.AfterDemoScheduled(context.Background(), &models.DemoBooking{
		Name: "Ravi", Email: "ravi@firm.in", ScheduledAt: time.Date(2026, 10, 20, 10, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, []string{
		"POST /crm/v3/objects/contacts/search",
		"POST /crm/v3/objects/contacts",
		"POST /crm/v3/objects/contacts/search",
		"PATCH /crm/v3/objects/contacts/existing",
		"POST /events/v3/send",
	}, fake.calls)
}

type failingClient struct{ calls int }

func (f *failingClient) SearchContactByEmail(ctx context.Context, email string) (*Contact, error) {
	f.calls++
	return nil, errors.New("crm unavailable")
}

func (f *failingClient) CreateContact(ctx context.Context, properties map[string]string) (*Contact, error) {
	f.calls++
	return nil, errors.New("crm unavailable")
}

func (f *failingClient) UpdateContact(ctx context.Context, id string, properties map[string]string) (*Contact, error) {
	f.calls++
	return nil, errors.New("crm unavailable")
}

func (f *failingClient) TrackEvent(ctx context.Context, event Event) error {
	f.calls++
	return errors.New("crm unavailable")
}

type panickingClient struct{ failingClient }

func (p *panickingClient) SearchContactByEmail(ctx context.Context, email string) (*Contact, error) {
	panic("nil map in sdk")
}

func TestSync_NeverSurfacesFailures(t *testing.T) {
	for name, client := range map[string]Client{
		"erroring":  &failingClient{},
		"panicking": &panickingClient{},
	} {
		t.Run(name, func(t *testing.T) {
			m := metrics.Nop()
			s := NewSync(client, quietLogger(), m)
			ctx := context.Background()
			user := &models.User{FullName: "A B", Email: "a@b.com"}

			assert.NotPanics(t, func() {
				s.AfterUserCreate(ctx, user)
				s.AfterTrialStarted(ctx, user)
				s.AfterDemoScheduled(ctx, &models.DemoBooking{Name: "A", Email: "a@b.com"})
				s.AfterPaymentCompleted(ctx, PaymentEvent{Email: "a@b.com", Amount: 1180})
				s.TrackUserActivity(ctx, "a@b.com", "opened_dashboard", nil)
				s.UpdateUserProperties(ctx, "a@b.com", map[string]string{"city": "Pune"})
			})
			assert.Equal(t, 1.0, testutil.ToFloat64(m.CRMSync.WithLabelValues(OpAfterPaymentCompleted, "error")))
		})
	}
}

func TestSync_DisabledClientIsNoop(t *testing.T) {
	s := NewSync(NewHubSpotClient("http://127.0.0.1:1", ""), quietLogger(), nil)
	assert.NotPanics(t, func() {
		s.AfterPaymentCompleted(context.Background(), PaymentEvent{Email: "a@b.com"})
	})

	var nilSync *Sync
	assert.NotPanics(t, func() {
		nilSync.TrackUserActivity(context.Background(), "a@b.com", "x", nil)
	})

	client := NewHubSpotClient("http://127.0.0.1:1", "")
	contact, err := client.SearchContactByEmail(context.Background(), "a@b.com")
	assert.NoError(t, err)
	assert.Nil(t, contact)
}

func TestSync_SkipsEventsWithoutEmail(t *testing.T) {
	client := &failingClient{}
	m := metrics.Nop()
	s := NewSync(client, quietLogger(), m)

	s.AfterPaymentCompleted(context.Background(), PaymentEvent{Name: "Anonymous"})
	assert.Zero(t, client.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CRMSync.WithLabelValues(OpAfterPaymentCompleted, "skipped")))
}

func TestSplitName(t *testing.T) {
	first, last := splitName("  Asha  Devi Rao ")
	assert.Equal(t, "Asha", first)
	assert.Equal(t, "Devi Rao", last)

	first, last = splitName("Asha")
	assert.Equal(t, "Asha", first)
	assert.Empty(t, last)
}
