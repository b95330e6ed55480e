package dispatcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Symple44/TopSteel-sub008/internal/config"
	"github.com/Symple44/TopSteel-sub008/internal/metrics"
	"github.com/Symple44/TopSteel-sub008/internal/models"
)

// memStores is an in-memory implementation of the dispatcher's three store
// interfaces, mimicking the unique (subscription, event) constraint.
type memStores struct {
	mu         sync.Mutex
	subs       map[uuid.UUID]*models.Subscription
	events     map[uuid.UUID]*models.Event
	deliveries map[uuid.UUID]*models.Delivery
}

func newMemStores() *memStores {
	return &memStores{
		subs:       make(map[uuid.UUID]*models.Subscription),
		events:     make(map[uuid.UUID]*models.Event),
		deliveries: make(map[uuid.UUID]*models.Delivery),
	}
}

func (m *memStores) addSubscription(sub *models.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
}

func (m *memStores) ListActive(ctx context.Context, societeID string) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subscription
	for _, sub := range m.subs {
		if sub.IsActive && sub.SocieteID == societeID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (m *memStores) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, fmt.Errorf("subscription %s not found", id)
	}
	copied := *sub
	return &copied, nil
}

func (m *memStores) RecordOutcome(ctx context.Context, id uuid.UUID, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return fmt.Errorf("subscription %s not found", id)
	}
	sub.Metadata = sub.Metadata.ApplyOutcome(success, time.Now().UTC())
	return nil
}

func (m *memStores) Append(ctx context.Context, event *models.Event) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = uuid.New()
	event.Timestamp = time.Now().UTC()
	copied := *event
	m.events[event.ID] = &copied
	return event, nil
}

func (m *memStores) Create(ctx context.Context, sub *models.Subscription, event *models.Event) (*models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deliveries {
		if d.SubscriptionID == sub.ID && d.EventID == event.ID {
			copied := *d
			return &copied, nil
		}
	}
	delivery := &models.Delivery{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		EventID:        event.ID,
		URL:            sub.URL,
		Status:         models.DeliveryPending,
		CreatedAt:      time.Now().UTC(),
	}
	m.deliveries[delivery.ID] = delivery
	copied := *delivery
	return &copied, nil
}

func (m *memStores) Get(ctx context.Context, id uuid.UUID) (*models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return nil, fmt.Errorf("delivery %s not found", id)
	}
	copied := *d
	return &copied, nil
}

func (m *memStores) Update(ctx context.Context, delivery *models.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *delivery
	m.deliveries[delivery.ID] = &copied
	return nil
}

func (m *memStores) ListDuePending(ctx context.Context, now time.Time) ([]models.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Delivery
	for _, d := range m.deliveries {
		if d.Status != models.DeliveryPending {
			continue
		}
		if d.NextAttemptAt == nil || !d.NextAttemptAt.After(now) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memStores) delivery(t *testing.T, subID, eventID uuid.UUID) *models.Delivery {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deliveries {
		if d.SubscriptionID == subID && d.EventID == eventID {
			copied := *d
			return &copied
		}
	}
	return nil
}

func (m *memStores) subscription(id uuid.UUID) models.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.subs[id]
}

// eventStoreAdapter narrows memStores to the EventStore interface; GetByID
// collides with the subscription method name on the shared fake.
type eventStoreAdapter struct{ *memStores }

func (a eventStoreAdapter) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	event, ok := a.events[id]
	if !ok {
		return nil, fmt.Errorf("event %s not found", id)
	}
	copied := *event
	return &copied, nil
}

func newTestDispatcher(t *testing.T, stores *memStores) *Dispatcher {
	t.Helper()
	client := NewClient(&config.DispatcherConfig{
		HTTPTimeoutSeconds:   2,
		ProbeTimeoutSeconds:  1,
		MaxResponseBodyBytes: 4096,
	}, zap.NewNop())
	d := NewDispatcher(stores, eventStoreAdapter{stores}, stores, client, clockwork.NewRealClock(), metrics.New(), zap.NewNop(), 8)
	t.Cleanup(d.Stop)
	return d
}

func testSubscription(url string) *models.Subscription {
	return &models.Subscription{
		ID:        uuid.New(),
		SocieteID: "societe-1",
		URL:       url,
		Secret:    "0123456789abcdef",
		Events:    []models.EventType{models.EventPriceChanged},
		IsActive:  true,
		RetryPolicy: models.RetryPolicy{
			MaxRetries:        3,
			RetryDelayMs:      10,
			BackoffMultiplier: 2,
		},
		Metadata: models.NewSubscriptionStats("", ""),
	}
}

func TestDispatcherDeliversSignedEvent(t *testing.T) {
	type capture struct {
		signature string
		eventType string
		delivery  string
		body      []byte
	}
	captured := make(chan capture, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured <- capture{
			signature: r.Header.Get("X-Webhook-Signature"),
			eventType: r.Header.Get("X-Webhook-Event"),
			delivery:  r.Header.Get("X-Webhook-Delivery"),
			body:      body,
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	stores := newMemStores()
	sub := testSubscription(server.URL)
	stores.addSubscription(sub)
	d := newTestDispatcher(t, stores)

	event, err := d.Emit(context.Background(), EmitInput{
		Type:      models.EventPriceChanged,
		SocieteID: "societe-1",
		Data:      []byte(`{"price":42}`),
	})
	require.NoError(t, err)

	var got capture
	select {
	case got = <-captured:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook endpoint was never called")
	}

	expectedSig, err := Sign(got.body, sub.Secret)
	require.NoError(t, err)
	assert.Equal(t, expectedSig, got.signature)
	assert.Equal(t, string(models.EventPriceChanged), got.eventType)
	assert.NotEmpty(t, got.delivery)

	require.Eventually(t, func() bool {
		delivery := stores.delivery(t, sub.ID, event.ID)
		return delivery != nil && delivery.Status == models.DeliverySuccess
	}, 2*time.Second, 10*time.Millisecond)

	delivery := stores.delivery(t, sub.ID, event.ID)
	assert.Equal(t, 1, delivery.Attempts)
	require.NotNil(t, delivery.Response)
	assert.Equal(t, http.StatusOK, delivery.Response.StatusCode)
	assert.NotNil(t, delivery.LastAttempt)
	assert.Nil(t, delivery.NextAttemptAt)

	updated := stores.subscription(sub.ID)
	assert.Equal(t, 1, updated.Metadata.TotalCalls)
	assert.Equal(t, float64(100), updated.Metadata.SuccessRate)
	assert.NotNil(t, updated.Metadata.LastTriggered)
}

func TestDispatcherRetriesUntilBudgetExhausted(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	stores := newMemStores()
	sub := testSubscription(server.URL)
	stores.addSubscription(sub)
	d := newTestDispatcher(t, stores)

	event, err := d.Emit(context.Background(), EmitInput{
		Type:      models.EventPriceChanged,
		SocieteID: "societe-1",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		delivery := stores.delivery(t, sub.ID, event.ID)
		return delivery != nil && delivery.Status == models.DeliveryFailed
	}, 5*time.Second, 10*time.Millisecond)

	delivery := stores.delivery(t, sub.ID, event.ID)
	assert.Equal(t, 3, delivery.Attempts)
	assert.Equal(t, int32(3), hits.Load())
	require.NotNil(t, delivery.Response)
	assert.Equal(t, http.StatusServiceUnavailable, delivery.Response.StatusCode)
	assert.Equal(t, "HTTP 503", delivery.Response.Error)

	updated := stores.subscription(sub.ID)
	assert.Equal(t, 1, updated.Metadata.TotalCalls)
	assert.Equal(t, float64(0), updated.Metadata.SuccessRate)
}

func TestDispatcherSkipsNonMatchingSubscriptions(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	stores := newMemStores()

	otherType := testSubscription(server.URL)
	otherType.Events = []models.EventType{models.EventRuleDeleted}
	stores.addSubscription(otherType)

	minChange := 10.0
	filtered := testSubscription(server.URL)
	filtered.Filters = &models.SubscriptionFilters{MinPriceChange: &minChange}
	stores.addSubscription(filtered)

	inactive := testSubscription(server.URL)
	inactive.IsActive = false
	stores.addSubscription(inactive)

	d := newTestDispatcher(t, stores)

	change := 5.0
	event, err := d.Emit(context.Background(), EmitInput{
		Type:      models.EventPriceChanged,
		SocieteID: "societe-1",
		Metadata:  &models.EventMetadata{ChangePercent: &change},
	})
	require.NoError(t, err)

	// Give any stray attempt time to fire.
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, int32(0), hits.Load())
	assert.Nil(t, stores.delivery(t, otherType.ID, event.ID))
	assert.Nil(t, stores.delivery(t, filtered.ID, event.ID))
	assert.Nil(t, stores.delivery(t, inactive.ID, event.ID))
}

func TestDispatcherIgnoresTerminalDeliveries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	stores := newMemStores()
	sub := testSubscription(server.URL)
	stores.addSubscription(sub)
	d := newTestDispatcher(t, stores)

	event := &models.Event{Type: models.EventPriceChanged, SocieteID: "societe-1"}
	_, err := stores.Append(context.Background(), event)
	require.NoError(t, err)

	delivery, err := stores.Create(context.Background(), sub, event)
	require.NoError(t, err)
	delivery.Status = models.DeliverySuccess
	delivery.Attempts = 1
	require.NoError(t, stores.Update(context.Background(), delivery))

	d.attempt(context.Background(), delivery.ID)

	assert.Equal(t, int32(0), hits.Load())
	final := stores.delivery(t, sub.ID, event.ID)
	assert.Equal(t, models.DeliverySuccess, final.Status)
	assert.Equal(t, 1, final.Attempts)
}

func TestRecoverPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	stores := newMemStores()
	sub := testSubscription(server.URL)
	stores.addSubscription(sub)

	event := &models.Event{Type: models.EventPriceChanged, SocieteID: "societe-1"}
	_, err := stores.Append(context.Background(), event)
	require.NoError(t, err)
	pending, err := stores.Create(context.Background(), sub, event)
	require.NoError(t, err)

	d := newTestDispatcher(t, stores)
	n, err := d.RecoverPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Eventually(t, func() bool {
		delivery, err := stores.Get(context.Background(), pending.ID)
		return err == nil && delivery.Status == models.DeliverySuccess
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmitRejectsInvalidInput(t *testing.T) {
	stores := newMemStores()
	d := newTestDispatcher(t, stores)

	_, err := d.Emit(context.Background(), EmitInput{
		Type:      "order.shipped",
		SocieteID: "societe-1",
	})
	assert.Error(t, err)

	_, err = d.Emit(context.Background(), EmitInput{
		Type: models.EventPriceChanged,
	})
	assert.Error(t, err)
}
