package checkin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/geocoding"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/location"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/metrics"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/models"
	"github.com/lyhoanghaiceobmcgroup/felix-global-nexus/internal/notify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDispatcher struct {
	mu     sync.Mutex
	ok     bool
	events []models.CheckInEvent
}

func (d *fakeDispatcher) Dispatch(_ context.Context, e models.CheckInEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	return d.ok
}

func (d *fakeDispatcher) Events() []models.CheckInEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.CheckInEvent(nil), d.events...)
}

type fakeLookup struct {
	calls int
	fail  bool
}

func (l *fakeLookup) Lookup(ctx context.Context, lat, lng float64) string {
	if addr, ok := l.Resolve(ctx, lat, lng); ok {
		return addr
	}
	return models.FormatCoordinates(lat, lng)
}

func (l *fakeLookup) Resolve(_ context.Context, lat, lng float64) (string, bool) {
	l.calls++
	if l.fail {
		return "", false
	}
	return "Quận 1, " + models.FormatCoordinates(lat, lng), true
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.POST("/checkins", h.Create)
	r.GET("/geocode/reverse", h.Reverse)
	return r
}

func postCheckIn(t *testing.T, r http.Handler, body interface{}) (*httptest.ResponseRecorder, envelope, CheckInResponse) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/checkins", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	var data CheckInResponse
	if len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, &data))
	}
	return w, env, data
}

func validBody() map[string]interface{} {
	return map[string]interface{}{
		"full_name":     "Nguyễn Văn A",
		"phone_number":  "0901 234 567",
		"industry":      "Bất động sản",
		"attendee_type": "Thành viên",
		"timestamp":     "07:30:00 15/01/2024",
	}
}

func TestCreate_MemberWithExplicitLocation(t *testing.T) {
	d := &fakeDispatcher{ok: true}
	lookup := &fakeLookup{}
	r := newTestRouter(NewHandler(d, lookup, nil, nil, nil, nil))

	body := validBody()
	body["location"] = map[string]interface{}{"latitude": 10.7769, "longitude": 106.7009, "address": "Bến Thành"}
	w, env, data := postCheckIn(t, r, body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.Success)
	assert.True(t, data.Delivered)
	assert.Equal(t, DestinationMember, data.Destination)
	assert.NotEmpty(t, data.CheckInID)
	assert.Empty(t, data.LocationError)
	assert.Zero(t, lookup.calls, "address already known")

	events := d.Events()
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, models.AttendeeMember, e.AttendeeType)
	assert.Equal(t, "07:30:00 15/01/2024", e.Timestamp)
	require.NotNil(t, e.Location)
	assert.Equal(t, "Bến Thành", e.Location.Address)
}

func TestCreate_ExplicitLocationWithoutAddressIsLookedUp(t *testing.T) {
	d := &fakeDispatcher{ok: true}
	lookup := &fakeLookup{}
	r := newTestRouter(NewHandler(d, lookup, nil, nil, nil, nil))

	body := validBody()
	body["location"] = map[string]interface{}{"latitude": 10.5, "longitude": 106.25}
	w, _, data := postCheckIn(t, r, body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, lookup.calls)
	require.NotNil(t, data.Location)
	assert.Equal(t, "Quận 1, 10.5, 106.25", data.Location.Address)
}

func TestCreate_DeviceFixIsResolved(t *testing.T) {
	d := &fakeDispatcher{ok: true}
	r := newTestRouter(NewHandler(d, &fakeLookup{}, nil, nil, nil, nil))

	body := validBody()
	body["device"] = map[string]interface{}{
		"status": "granted",
		"fixes": []map[string]interface{}{
			{"latitude": 21.0285, "longitude": 105.8542, "accuracy": 25, "captured_at": time.Now().UTC().Format(time.RFC3339)},
		},
	}
	w, _, _ := postCheckIn(t, r, body)

	require.Equal(t, http.StatusCreated, w.Code)
	e := d.Events()[0]
	require.NotNil(t, e.Location)
	assert.Equal(t, 21.0285, e.Location.Latitude)
	assert.Equal(t, "Quận 1, 21.0285, 105.8542", e.Location.Address)
}

func TestCreate_LocationFailureDoesNotAbort(t *testing.T) {
	d := &fakeDispatcher{ok: true}
	m := metrics.New(prometheus.NewRegistry())
	r := newTestRouter(NewHandler(d, &fakeLookup{}, nil, m, nil, nil))

	body := validBody()
	body["device"] = map[string]interface{}{"status": "denied"}
	w, _, data := postCheckIn(t, r, body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "permission_denied", data.LocationError)
	assert.Nil(t, data.Location)
	assert.Nil(t, d.Events()[0].Location)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LocationFailures.WithLabelValues("permission_denied")))
}

func TestCreate_NoLocationAtAll(t *testing.T) {
	d := &fakeDispatcher{ok: true}
	r := newTestRouter(NewHandler(d, &fakeLookup{}, nil, nil, nil, nil))

	w, _, data := postCheckIn(t, r, validBody())

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, data.LocationError)
	assert.Nil(t, d.Events()[0].Location)
}

func TestCreate_UndeliveredIsBadGateway(t *testing.T) {
	d := &fakeDispatcher{ok: false}
	r := newTestRouter(NewHandler(d, &fakeLookup{}, nil, nil, nil, nil))

	w, env, data := postCheckIn(t, r, validBody())

	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
	assert.False(t, data.Delivered)
	assert.NotEmpty(t, data.CheckInID)
	assert.Len(t, d.Events(), 1, "single attempt")
}

func TestCreate_UnknownCategoryGoesToGuests(t *testing.T) {
	d := &fakeDispatcher{ok: true}
	r := newTestRouter(NewHandler(d, &fakeLookup{}, nil, nil, nil, nil))

	body := validBody()
	body["attendee_type"] = "Nhà tài trợ"
	w, _, data := postCheckIn(t, r, body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, DestinationGuest, data.Destination)
	assert.Equal(t, models.AttendeeType("Nhà tài trợ"), d.Events()[0].AttendeeType)
}

func TestCreate_EnglishAliasIsMember(t *testing.T) {
	d := &fakeDispatcher{ok: true}
	r := newTestRouter(NewHandler(d, &fakeLookup{}, nil, nil, nil, nil))

	body := validBody()
	body["attendee_type"] = "Member"
	_, _, data := postCheckIn(t, r, body)

	assert.Equal(t, DestinationMember, data.Destination)
	assert.Equal(t, models.AttendeeMember, d.Events()[0].AttendeeType)
}

func TestCreate_DefaultTimestampInVietnamTime(t *testing.T) {
	d := &fakeDispatcher{ok: true}
	h := NewHandler(d, &fakeLookup{}, nil, nil, nil, nil)
	h.now = func() time.Time { return time.Date(2024, 3, 1, 1, 2, 3, 0, time.UTC) }
	r := newTestRouter(h)

	body := validBody()
	delete(body, "timestamp")
	w, _, _ := postCheckIn(t, r, body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "08:02:03 01/03/2024", d.Events()[0].Timestamp)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"short name", func(b map[string]interface{}) { b["full_name"] = "A" }},
		{"short phone", func(b map[string]interface{}) { b["phone_number"] = "090123" }},
		{"letters in phone", func(b map[string]interface{}) { b["phone_number"] = "090-abc-defgh" }},
		{"short industry", func(b map[string]interface{}) { b["industry"] = "x" }},
		{"missing attendee type", func(b map[string]interface{}) { delete(b, "attendee_type") }},
		{"latitude out of range", func(b map[string]interface{}) {
			b["location"] = map[string]interface{}{"latitude": 91, "longitude": 0}
		}},
		{"missing longitude", func(b map[string]interface{}) {
			b["location"] = map[string]interface{}{"latitude": 10}
		}},
		{"bad device status", func(b map[string]interface{}) {
			b["device"] = map[string]interface{}{"status": "maybe"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{ok: true}
			r := newTestRouter(NewHandler(d, &fakeLookup{}, nil, nil, nil, nil))
			body := validBody()
			tt.mutate(body)

			w, env, _ := postCheckIn(t, r, body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			assert.Empty(t, d.Events(), "nothing dispatched")
		})
	}
}

func TestCreate_DevicePositionIsCachedPerDevice(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := &fakeDispatcher{ok: true}
	r := newTestRouter(NewHandler(d, &fakeLookup{}, location.NewRedisPositionCache(client, time.Minute), nil, nil, nil))

	first := validBody()
	first["device"] = map[string]interface{}{
		"device_id": "tablet-1",
		"fixes": []map[string]interface{}{
			{"latitude": 16.0544, "longitude": 108.2022, "accuracy": 10, "captured_at": time.Now().UTC().Format(time.RFC3339)},
		},
	}
	w, _, _ := postCheckIn(t, r, first)
	require.Equal(t, http.StatusCreated, w.Code)

	second := validBody()
	second["device"] = map[string]interface{}{"device_id": "tablet-1"}
	w, _, data := postCheckIn(t, r, second)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, data.LocationError)
	require.NotNil(t, data.Location)
	assert.Equal(t, 16.0544, data.Location.Latitude)
}

func TestReverse(t *testing.T) {
	r := newTestRouter(NewHandler(&fakeDispatcher{}, &fakeLookup{}, nil, nil, nil, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/geocode/reverse?latitude=10.5&longitude=106", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data struct {
			Address string `json:"address"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "Quận 1, 10.5, 106", env.Data.Address)

	for _, q := range []string{"latitude=abc&longitude=1", "latitude=10", "latitude=95&longitude=1"} {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/geocode/reverse?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

// End to end through the real dispatcher and geocoding client.
func TestCreate_EndToEnd(t *testing.T) {
	var sent notify.SendMessageRequest
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTEST-TOKEN-123/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer tg.Close()
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"display_name":"Phường Bến Nghé, Quận 1, TP. Hồ Chí Minh"}`))
	}))
	defer geo.Close()

	m := metrics.New(prometheus.NewRegistry())
	dispatcher := notify.NewDispatcher(notify.Config{
		BotToken:     "TEST-TOKEN-123",
		MemberChatID: "-100member",
		GuestChatID:  "-100guest",
		APIURL:       tg.URL,
		Timeout:      2 * time.Second,
	}, m, nil)
	lookup := geocoding.NewClient(geocoding.Config{URL: geo.URL, Timeout: 2 * time.Second}, nil, m, nil)
	r := newTestRouter(NewHandler(dispatcher, lookup, nil, m, nil, nil))

	body := validBody()
	body["attendee_type"] = "Khách mời"
	body["invited_by"] = "  Trần Thị B  "
	body["location"] = map[string]interface{}{"latitude": 10.7769, "longitude": 106.7009}
	w, _, data := postCheckIn(t, r, body)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, DestinationGuest, data.Destination)
	assert.Equal(t, "-100guest", sent.ChatID)
	assert.Equal(t, notify.ParseModeHTML, sent.ParseMode)
	assert.Contains(t, sent.Text, "Nguyễn Văn A")
	assert.Contains(t, sent.Text, "Trần Thị B")
	assert.Contains(t, sent.Text, "Phường Bến Nghé, Quận 1, TP. Hồ Chí Minh")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("delivered", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GeocodeLookups.WithLabelValues("resolved")))
}

func TestCreate_FailedLookupLeavesAddressEmpty(t *testing.T) {
	d := &fakeDispatcher{ok: true}
	lookup := &fakeLookup{fail: true}
	r := newTestRouter(NewHandler(d, lookup, nil, nil, nil, nil))

	body := validBody()
	body["location"] = map[string]interface{}{"latitude": 10.123, "longitude": 106.456}
	w, _, data := postCheckIn(t, r, body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, lookup.calls)
	require.NotNil(t, data.Location)
	assert.Empty(t, data.Location.Address)

	msg := notify.FormatMessage(d.Events()[0])
	assert.Contains(t, msg, "📍 Vị trí: 10.123, 106.456\n")
	assert.NotContains(t, msg, "🗺️ Địa chỉ:")
}

func TestCreate_GeocoderOutageSendsCoordinatesOnly(t *testing.T) {
	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer geo.Close()

	d := &fakeDispatcher{ok: true}
	lookup := geocoding.NewClient(geocoding.Config{URL: geo.URL, Timeout: 2 * time.Second}, nil, nil, nil)
	r := newTestRouter(NewHandler(d, lookup, nil, nil, nil, nil))

	body := validBody()
	body["device"] = map[string]interface{}{
		"fixes": []map[string]interface{}{
			{"latitude": 10.123, "longitude": 106.456, "accuracy": 20, "captured_at": time.Now().UTC().Format(time.RFC3339)},
		},
	}
	w, _, _ := postCheckIn(t, r, body)

	require.Equal(t, http.StatusCreated, w.Code)
	e := d.Events()[0]
	require.NotNil(t, e.Location)
	assert.Empty(t, e.Location.Address)
	assert.NotContains(t, notify.FormatMessage(e), "🗺️ Địa chỉ:")
}

func TestCreate_RefusedPermissionIgnoresCachedPosition(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	positions := location.NewRedisPositionCache(client, time.Minute)
	require.NoError(t, positions.Set(context.Background(), "dev-1", location.Position{
		Latitude: 10.5, Longitude: 106.5, Accuracy: 10, CapturedAt: time.Now(),
	}))

	for _, status := range []string{"denied", "unsupported"} {
		t.Run(status, func(t *testing.T) {
			d := &fakeDispatcher{ok: true}
			lookup := &fakeLookup{}
			r := newTestRouter(NewHandler(d, lookup, positions, nil, nil, nil))

			body := validBody()
			body["device"] = map[string]interface{}{"device_id": "dev-1", "status": status}
			w, _, data := postCheckIn(t, r, body)

			require.Equal(t, http.StatusCreated, w.Code)
			assert.NotEmpty(t, data.LocationError)
			assert.Nil(t, data.Location)
			assert.Nil(t, d.Events()[0].Location)
			assert.Zero(t, lookup.calls)
		})
	}
}

func TestCreate_MemberSpellingIsExact(t *testing.T) {
	for _, in := range []string{"member", "MEMBER", " Member ", "thành viên"} {
		t.Run(in, func(t *testing.T) {
			d := &fakeDispatcher{ok: true}
			r := newTestRouter(NewHandler(d, &fakeLookup{}, nil, nil, nil, nil))

			body := validBody()
			body["attendee_type"] = in
			_, _, data := postCheckIn(t, r, body)

			assert.Equal(t, DestinationGuest, data.Destination)
			assert.Equal(t, models.AttendeeType(in), d.Events()[0].AttendeeType)
		})
	}
}
