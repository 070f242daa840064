package registryhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeboard/tradeboard/internal/rbac"
	"github.com/tradeboard/tradeboard/internal/registry"
	"github.com/tradeboard/tradeboard/internal/registry/ingest"
	"github.com/tradeboard/tradeboard/internal/testutil"
)

const registryCSV = "TescilTarihi,SaticiSicilNo,UrunAdi,Tutar,Miktar,AnaGrupAdi\n" +
	"2024-01-15,S1,Buğday,100,10,Hububat\n" +
	"2024-02-10,S2,Arpa,300,30,Hububat\n" +
	"2024-03-05,S1,Nohut,50,5,Bakliyat\n"

// headerIdentities resolves the caller from the X-Test-User header.
type headerIdentities map[string]registry.Identity

func (h headerIdentities) Identity(r *http.Request) (registry.Identity, bool) {
	id, ok := h[r.Header.Get("X-Test-User")]
	return id, ok
}

var testUsers = headerIdentities{
	"admin":   {Username: "admin", Role: registry.RoleAdmin},
	"staff":   {Username: "staff", Role: registry.RoleStaff},
	"uye1":    {Username: "uye1", Role: registry.RoleMember, MemberID: "S1"},
	"bosuye":  {Username: "bosuye", Role: registry.RoleMember},
	"misafir": {Username: "misafir", Role: registry.Role("guest")},
}

type testEnv struct {
	router  http.Handler
	store   *ingest.Store
	mr      *miniredis.Miniredis
	unknown *atomic.Int32
}

func newTestEnv(t *testing.T, body string) testEnv {
	t.Helper()
	path := ""
	if body != "" {
		path = filepath.Join(t.TempDir(), "tescil.csv")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	store := ingest.NewStore(ingest.StoreConfig{Path: path}, nil)
	if path != "" {
		_, err := store.LoadFile(context.Background())
		require.NoError(t, err)
	}

	client, mr := testutil.Redis(t)
	return mountTestEnv(store, client, mr)
}

// mountTestEnv serves store through a router whose view cache lives in client.
func mountTestEnv(store *ingest.Store, client *redis.Client, mr *miniredis.Miniredis) testEnv {
	var unknown atomic.Int32
	evaluator := registry.Evaluator{OnUnknownRole: func(registry.Identity) { unknown.Add(1) }}
	h := NewHandler(nil, store, testUsers, NewCache(client, time.Minute), evaluator, 1<<20)
	h.WithNow(func() time.Time { return time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC) })

	r := chi.NewRouter()
	h.MountRoutes(r, rbac.Middleware{Identities: testUsers})
	return testEnv{router: r, store: store, mr: mr, unknown: &unknown}
}

func (e testEnv) do(t *testing.T, method, target, user string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set("Content-Type", contentType)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

type dashboardBody struct {
	Snapshot SnapshotInfo `json:"snapshot"`
	View     struct {
		Role     string                `json:"role"`
		MemberID string                `json:"member_id"`
		Options  map[string][]string   `json:"options"`
		Market   *registry.MarketShare `json:"market"`
		Panel    struct {
			TopSellers []registry.GroupSum `json:"top_sellers"`
		} `json:"panel"`
	} `json:"view"`
}

func decodeDashboard(t *testing.T, rr *httptest.ResponseRecorder) dashboardBody {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body dashboardBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestDashboardAdmin(t *testing.T) {
	e := newTestEnv(t, registryCSV)
	body := decodeDashboard(t, e.do(t, http.MethodGet, "/registry/dashboard", "admin", nil, ""))

	assert.True(t, body.Snapshot.Loaded)
	assert.Equal(t, 3, body.Snapshot.Rows)
	assert.Equal(t, "admin", body.View.Role)
	assert.Nil(t, body.View.Market)
	assert.Equal(t, []string{"S1", "S2"}, body.View.Options["seller_id"])
	require.NotEmpty(t, body.View.Panel.TopSellers)
	assert.Equal(t, "S2", body.View.Panel.TopSellers[0].Value)
}

func TestDashboardMemberMarketShare(t *testing.T) {
	e := newTestEnv(t, registryCSV)
	body := decodeDashboard(t, e.do(t, http.MethodGet, "/registry/dashboard?main_group=Hububat", "uye1", nil, ""))

	assert.Equal(t, "S1", body.View.MemberID)
	_, hasSeller := body.View.Options["seller_id"]
	assert.False(t, hasSeller)
	require.NotNil(t, body.View.Market)
	assert.InDelta(t, 100, body.View.Market.MemberAmount, 1e-9)
	assert.InDelta(t, 400, body.View.Market.GlobalAmount, 1e-9)
	assert.InDelta(t, 25, body.View.Market.SharePercent, 1e-9)
}

func TestDashboardServesCachedView(t *testing.T) {
	e := newTestEnv(t, registryCSV)
	decodeDashboard(t, e.do(t, http.MethodGet, "/registry/dashboard", "uye1", nil, ""))

	var cached string
	for _, key := range e.mr.Keys() {
		if strings.HasPrefix(key, "registry:view:member:S1:") {
			cached = key
		}
	}
	require.NotEmpty(t, cached)
	e.mr.Set(cached, `{"role":"member","member_id":"CACHED","options":{},"panel":{}}`)

	body := decodeDashboard(t, e.do(t, http.MethodGet, "/registry/dashboard", "uye1", nil, ""))
	assert.Equal(t, "CACHED", body.View.MemberID)

	// Reloading the same file content keeps the key.
	_, err := e.store.LoadFile(context.Background())
	require.NoError(t, err)
	body = decodeDashboard(t, e.do(t, http.MethodGet, "/registry/dashboard", "uye1", nil, ""))
	assert.Equal(t, "CACHED", body.View.MemberID)

	// Changed content moves it.
	path := e.store.Path()
	require.NoError(t, os.WriteFile(path, []byte(registryCSV+"2024-03-20,S1,Arpa,20,2,Hububat\n"), 0o600))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	_, err = e.store.LoadFile(context.Background())
	require.NoError(t, err)
	body = decodeDashboard(t, e.do(t, http.MethodGet, "/registry/dashboard", "uye1", nil, ""))
	assert.Equal(t, "S1", body.View.MemberID)
}

func TestDashboardCacheIsolatesProcessesSharingRedis(t *testing.T) {
	client, mr := testutil.Redis(t)
	ctx := context.Background()

	// Both stores are at their first load, so their in-process versions match.
	uploaded := ingest.NewStore(ingest.StoreConfig{}, nil)
	_, err := uploaded.LoadUpload(ctx, "tek.csv", []byte("TescilTarihi,SaticiSicilNo,UrunAdi,Tutar,Miktar\n2024-01-20,S9,Mısır,9999,1\n"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tescil.csv")
	require.NoError(t, os.WriteFile(path, []byte(registryCSV), 0o600))
	fromFile := ingest.NewStore(ingest.StoreConfig{Path: path}, nil)
	_, err = fromFile.LoadFile(ctx)
	require.NoError(t, err)
	require.Equal(t, uploaded.Current().Version, fromFile.Current().Version)
	require.NotEqual(t, uploaded.Current().ContentKey, fromFile.Current().ContentKey)

	a := mountTestEnv(uploaded, client, mr)
	b := mountTestEnv(fromFile, client, mr)

	first := decodeDashboard(t, a.do(t, http.MethodGet, "/registry/dashboard", "admin", nil, ""))
	require.Len(t, first.View.Panel.TopSellers, 1)
	assert.Equal(t, "S9", first.View.Panel.TopSellers[0].Value)

	second := decodeDashboard(t, b.do(t, http.MethodGet, "/registry/dashboard", "admin", nil, ""))
	require.Len(t, second.View.Panel.TopSellers, 2)
	assert.Equal(t, "S2", second.View.Panel.TopSellers[0].Value)
	assert.Equal(t, fromFile.Current().ContentKey, second.Snapshot.Content)

	again := decodeDashboard(t, a.do(t, http.MethodGet, "/registry/dashboard", "admin", nil, ""))
	require.Len(t, again.View.Panel.TopSellers, 1)
	assert.Equal(t, "S9", again.View.Panel.TopSellers[0].Value)
}

func TestDashboardUnknownRoleIsEmptyAndUncached(t *testing.T) {
	e := newTestEnv(t, registryCSV)
	for i := 0; i < 2; i++ {
		body := decodeDashboard(t, e.do(t, http.MethodGet, "/registry/dashboard", "misafir", nil, ""))
		assert.Empty(t, body.View.Panel.TopSellers)
	}
	assert.Equal(t, int32(2), e.unknown.Load())
	for _, key := range e.mr.Keys() {
		assert.False(t, strings.HasPrefix(key, "registry:view:"), key)
	}
}

func TestDashboardErrors(t *testing.T) {
	e := newTestEnv(t, registryCSV)
	cases := []struct {
		name   string
		target string
		user   string
		status int
	}{
		{"no identity", "/registry/dashboard", "", http.StatusUnauthorized},
		{"bad start", "/registry/dashboard?start=2024-13-01", "admin", http.StatusBadRequest},
		{"bad end", "/registry/dashboard?end=01.02.2024", "admin", http.StatusBadRequest},
		{"unknown field", "/registry/dashboard?renk=mavi", "admin", http.StatusBadRequest},
		{"member seller filter", "/registry/dashboard?seller_id=S2", "uye1", http.StatusForbidden},
		{"member without id", "/registry/dashboard", "bosuye", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := e.do(t, http.MethodGet, tc.target, tc.user, nil, "")
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestDashboardWithoutSnapshot(t *testing.T) {
	e := newTestEnv(t, "")
	rr := e.do(t, http.MethodGet, "/registry/dashboard", "admin", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = e.do(t, http.MethodGet, "/registry/status", "admin", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"loaded":false`)

	rr = e.do(t, http.MethodPost, "/registry/reload", "admin", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestExportCSVScopesMemberRows(t *testing.T) {
	e := newTestEnv(t, registryCSV)
	rr := e.do(t, http.MethodGet, "/registry/export.csv", "uye1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "uye_tescil_filtreli.csv")
	out := rr.Body.String()
	assert.True(t, strings.HasPrefix(out, "\ufeff"))
	assert.Contains(t, out, "Nohut")
	assert.NotContains(t, out, "S2")

	rr = e.do(t, http.MethodGet, "/registry/export.csv?start=2024-02-01&end=2024-02-28", "admin", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "\"tescil_filtreli.csv\"")
	assert.Contains(t, rr.Body.String(), "Arpa")
	assert.NotContains(t, rr.Body.String(), "Buğday")
}

func TestExportXLSXAndMonthly(t *testing.T) {
	e := newTestEnv(t, registryCSV)
	rr := e.do(t, http.MethodGet, "/registry/export.xlsx", "staff", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, contentTypes["xlsx"], rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")))

	rr = e.do(t, http.MethodGet, "/registry/export/monthly.csv", "admin", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "aylik_tescil.csv")
	assert.Contains(t, rr.Body.String(), "2024-03")

	rr = e.do(t, http.MethodGet, "/registry/export/top-products.csv", "uye1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "en_cok_islem_goren_urunler.csv")
	assert.Contains(t, rr.Body.String(), "Nohut")
	assert.NotContains(t, rr.Body.String(), "Arpa")

	rr = e.do(t, http.MethodGet, "/registry/export.csv?seller_id=S1", "uye1", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func multipartFile(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(uploadField, name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	e := newTestEnv(t, registryCSV)

	body, ct := multipartFile(t, "yeni.csv", "TescilTarihi;SaticiSicilNo;UrunAdi;Tutar;Miktar\n01.05.2024;S9;Mısır;70;7\n")
	rr := e.do(t, http.MethodPost, "/registry/upload", "staff", body, ct)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var info SnapshotInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, "upload", info.Kind)
	assert.Equal(t, 1, info.Rows)

	body, ct = multipartFile(t, "eksik.csv", "TescilTarihi,UrunAdi\n2024-01-01,Arpa\n")
	rr = e.do(t, http.MethodPost, "/registry/upload", "admin", body, ct)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, ingest.KindUpload, e.store.Current().Source.Kind)
	assert.Equal(t, 1, e.store.Current().Table.Len())

	body, ct = multipartFile(t, "rapor.pdf", "%PDF")
	rr = e.do(t, http.MethodPost, "/registry/upload", "admin", body, ct)
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)

	body, ct = multipartFile(t, "yeni.csv", registryCSV)
	rr = e.do(t, http.MethodPost, "/registry/upload", "uye1", body, ct)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestReloadRequiresAdmin(t *testing.T) {
	e := newTestEnv(t, registryCSV)
	before := e.store.Current().Version

	rr := e.do(t, http.MethodPost, "/registry/reload", "staff", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = e.do(t, http.MethodPost, "/registry/reload", "admin", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Greater(t, e.store.Current().Version, before)
	assert.Equal(t, ingest.KindFile, e.store.Current().Source.Kind)
}

func TestFilterDigestIgnoresSelectionOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := registry.FilterState{Start: start, Selections: map[registry.Field][]string{
		registry.FieldMainGroup:   {"Hububat", "Bakliyat"},
		registry.FieldProductName: {"Arpa"},
	}}
	b := registry.FilterState{Start: start, Selections: map[registry.Field][]string{
		registry.FieldProductName: {"Arpa"},
		registry.FieldMainGroup:   {"Bakliyat", "Hububat"},
		registry.FieldCropYear:    nil,
	}}
	assert.Equal(t, filterDigest(a), filterDigest(b))

	c := registry.FilterState{Start: start.AddDate(0, 0, 1), Selections: a.Selections}
	assert.NotEqual(t, filterDigest(a), filterDigest(c))
}
