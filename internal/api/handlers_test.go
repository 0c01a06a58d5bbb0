package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"avl-gateway/internal/model"
	"avl-gateway/internal/store"
)

const (
	testKey  = "secret-key"
	testImei = "864275079658715"
)

type fakeStore struct {
	devices map[string]*model.Device
	records []model.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		devices: map[string]*model.Device{
			testImei: {Imei: testImei, ModemType: "FMC003", Approved: true},
		},
	}
}

func (f *fakeStore) GetDevice(_ context.Context, imei string) (*model.Device, error) {
	if dev, ok := f.devices[imei]; ok {
		return dev, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListDevices(context.Context) ([]model.Device, error) {
	out := []model.Device{}
	for _, d := range f.devices {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeStore) CreateDevice(_ context.Context, dev *model.Device) error {
	if _, ok := f.devices[dev.Imei]; ok {
		return store.ErrExists
	}
	f.devices[dev.Imei] = dev
	return nil
}

func (f *fakeStore) UpdateDevice(_ context.Context, imei string, fields map[string]interface{}) (*model.Device, error) {
	dev, ok := f.devices[imei]
	if !ok {
		return nil, store.ErrNotFound
	}
	if v, ok := fields["carBrand"]; ok {
		dev.CarBrand = v.(string)
	}
	if v, ok := fields["approved"]; ok {
		dev.Approved = v.(bool)
	}
	return dev, nil
}

func (f *fakeStore) SetApproved(ctx context.Context, imei string, approved bool) (*model.Device, error) {
	return f.UpdateDevice(ctx, imei, map[string]interface{}{"approved": approved})
}

func (f *fakeStore) DeleteDevice(_ context.Context, imei string) error {
	if _, ok := f.devices[imei]; !ok {
		return store.ErrNotFound
	}
	delete(f.devices, imei)
	return nil
}

func (f *fakeStore) FindRecent(_ context.Context, _, imei string, limit, skip int64) ([]model.Record, error) {
	out := []model.Record{}
	for i := len(f.records) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		if f.records[i].Imei == imei {
			if skip > 0 {
				skip--
				continue
			}
			out = append(out, f.records[i])
		}
	}
	return out, nil
}

func (f *fakeStore) FindLatest(ctx context.Context, modemType, imei string) (*model.Record, error) {
	recs, _ := f.FindRecent(ctx, modemType, imei, 1, 0)
	if len(recs) == 0 {
		return nil, store.ErrNotFound
	}
	return &recs[0], nil
}

func (f *fakeStore) FindRange(_ context.Context, _, imei, from, to string) ([]model.Record, error) {
	out := []model.Record{}
	for _, r := range f.records {
		if r.Imei == imei && r.Timestamp >= from && r.Timestamp <= to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) FindRaw(context.Context, string, string, int64) ([]model.RawFrame, error) {
	return []model.RawFrame{}, nil
}

func (f *fakeStore) CountRecords(_ context.Context, _, imei string) (int64, error) {
	var n int64
	for _, r := range f.records {
		if r.Imei == imei {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountSince(_ context.Context, _, imei, from string) (int64, error) {
	var n int64
	for _, r := range f.records {
		if r.Imei == imei && r.Timestamp >= from {
			n++
		}
	}
	return n, nil
}

func newTestRouter(f *fakeStore) http.Handler {
	h := NewHandler(f, nil, testKey, zap.NewNop())
	return NewRouter(h)
}

func do(t *testing.T, router http.Handler, method, path, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthNeedsNoKey(t *testing.T) {
	w := do(t, newTestRouter(newFakeStore()), http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestMissingKeyIsUnauthorized(t *testing.T) {
	router := newTestRouter(newFakeStore())

	for _, path := range []string{"/devices", "/devices/" + testImei, "/devices/" + testImei + "/records"} {
		if w := do(t, router, http.MethodGet, path, "", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without key = %d, want 401", path, w.Code)
		}
		if w := do(t, router, http.MethodGet, path, "wrong", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("GET %s with bad key = %d, want 401", path, w.Code)
		}
	}
}

func TestCreateDeviceValidation(t *testing.T) {
	router := newTestRouter(newFakeStore())

	w := do(t, router, http.MethodPost, "/devices", testKey, `{"imei":"12345"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("short imei = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/devices", testKey, `{"imei":"86427507965871a"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric imei = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/devices", testKey, `{"imei":"`+testImei+`"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate imei = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPost, "/devices", testKey, `{"imei":"864275079658716","approved":true}`)
	if w.Code != http.StatusCreated {
		t.Errorf("valid create = %d, want 201", w.Code)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	w := do(t, newTestRouter(newFakeStore()), http.MethodGet, "/devices/111111111111111", testKey, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestLatestRecord(t *testing.T) {
	f := newFakeStore()
	router := newTestRouter(f)

	w := do(t, router, http.MethodGet, "/devices/"+testImei+"/latest", testKey, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("no records = %d, want 404", w.Code)
	}

	f.records = append(f.records, model.Record{
		Imei:      testImei,
		Timestamp: "2024-01-01T00:00:00.000Z",
		Named:     map[string]interface{}{"ignition": int64(1)},
	})
	w = do(t, router, http.MethodGet, "/devices/"+testImei+"/latest", testKey, "")
	if w.Code != http.StatusOK {
		t.Errorf("with records = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ignition":1`) {
		t.Errorf("named projection missing from body: %s", w.Body.String())
	}
}

func TestApproveDefaultsTrue(t *testing.T) {
	f := newFakeStore()
	f.devices[testImei].Approved = false
	router := newTestRouter(f)

	w := do(t, router, http.MethodPatch, "/devices/"+testImei+"/approve", testKey, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !f.devices[testImei].Approved {
		t.Error("empty body must default to approved=true")
	}

	w = do(t, router, http.MethodPatch, "/devices/"+testImei+"/approve", testKey, `{"approved":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if f.devices[testImei].Approved {
		t.Error("approved=false not applied")
	}
}

func TestDailyRejectsBadDate(t *testing.T) {
	router := newTestRouter(newFakeStore())
	w := do(t, router, http.MethodGet, "/devices/"+testImei+"/daily/01-02-2024", testKey, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDailySummaryFromRecords(t *testing.T) {
	f := newFakeStore()
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		f.records = append(f.records, model.Record{
			Imei:      testImei,
			Timestamp: base.Add(time.Duration(i*10) * time.Second).Format(model.TimestampLayout),
			GPS:       model.GPS{Satellites: 9, Speed: 50},
			Named: map[string]interface{}{
				"ignition":      int64(1),
				"totalOdometer": int64(100000 + i*100),
			},
		})
	}
	router := newTestRouter(f)

	w := do(t, router, http.MethodGet, "/devices/"+testImei+"/daily/2024-01-01", testKey, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Data struct {
			TripCount  int     `json:"tripCount"`
			DistanceKm float64 `json:"distanceKm"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body.Data.TripCount != 1 {
		t.Errorf("tripCount = %d, want 1", body.Data.TripCount)
	}
	if body.Data.DistanceKm != 2.9 {
		t.Errorf("distanceKm = %v, want 2.9", body.Data.DistanceKm)
	}
}

func TestRecordsRangeValidation(t *testing.T) {
	router := newTestRouter(newFakeStore())
	w := do(t, router, http.MethodGet, "/devices/"+testImei+"/records/range?from=bogus&to=2024-01-02T00:00:00Z", testKey, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
