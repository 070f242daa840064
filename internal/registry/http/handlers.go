package registryhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tradeboard/tradeboard/internal/platform/httpx"
	"github.com/tradeboard/tradeboard/internal/registry"
	"github.com/tradeboard/tradeboard/internal/registry/export"
	"github.com/tradeboard/tradeboard/internal/registry/ingest"
)

const (
	dateLayout     = "2006-01-02"
	requestTimeout = 5 * time.Second
	uploadField    = "file"
)

var errNoData = errors.New("registry: no data loaded")

// SnapshotStore is the subset of ingest.Store used by the handler.
type SnapshotStore interface {
	Current() *ingest.Snapshot
	LoadFile(ctx context.Context) (*ingest.Snapshot, error)
	LoadUpload(ctx context.Context, name string, data []byte) (*ingest.Snapshot, error)
}

// IdentityResolver returns the authenticated caller of a request.
type IdentityResolver interface {
	Identity(r *http.Request) (registry.Identity, bool)
}

// Handler serves the registry dashboard, exports and data source endpoints.
type Handler struct {
	logger     *slog.Logger
	store      SnapshotStore
	identities IdentityResolver
	cache      *Cache
	evaluator  registry.Evaluator
	validate   *validator.Validate
	uploadMax  int64
	csvPool    sync.Pool
	now        func() time.Time
}

// NewHandler constructs the registry HTTP handler.
func NewHandler(logger *slog.Logger, store SnapshotStore, identities IdentityResolver, cache *Cache, evaluator registry.Evaluator, uploadMax int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:     logger,
		store:      store,
		identities: identities,
		cache:      cache,
		evaluator:  evaluator,
		validate:   validator.New(),
		uploadMax:  uploadMax,
		now:        time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// SnapshotInfo describes the active data source.
type SnapshotInfo struct {
	Loaded   bool      `json:"loaded"`
	Source   string    `json:"source,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	Rows     int       `json:"rows"`
	Columns  []string  `json:"columns,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
	Version  int64     `json:"version,omitempty"`
	Content  string    `json:"content,omitempty"`
}

type dashboardResponse struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Snapshot    SnapshotInfo        `json:"snapshot"`
	View        registry.ViewResult `json:"view"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	filters, err := h.parseFilters(r)
	if err != nil {
		h.respondError(w, "parse filters", err)
		return
	}
	snap := h.store.Current()
	if snap == nil {
		h.respondError(w, "dashboard", errNoData)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	view, err := h.loadView(ctx, id, filters, snap)
	if err != nil {
		h.respondError(w, "load view", err)
		return
	}
	httpx.JSON(w, http.StatusOK, dashboardResponse{
		GeneratedAt: h.now().UTC(),
		Snapshot:    describe(snap),
		View:        view,
	})
}

// loadView serves cached views for known roles. Unknown roles are evaluated
// every time so the no-access hook fires on each request.
func (h *Handler) loadView(ctx context.Context, id registry.Identity, f registry.FilterState, snap *ingest.Snapshot) (registry.ViewResult, error) {
	if !id.Role.Known() {
		return h.evaluator.Evaluate(id, f, snap.Table)
	}
	key, err := h.cache.BuildKey(ctx, keyView(id, snap.ContentKey, f)...)
	if err != nil {
		h.logger.Warn("registry cache key", slog.Any("error", err))
		return h.evaluator.Evaluate(id, f, snap.Table)
	}
	return fetch(ctx, h.cache, key, func() (registry.ViewResult, error) {
		return h.evaluator.Evaluate(id, f, snap.Table)
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identity(w, r); !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, describe(h.store.Current()))
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv", func(buf *bytes.Buffer, view registry.ViewResult) error {
		return export.WriteTableCSV(buf, view.Scoped())
	})
}

func (h *Handler) handleXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", func(buf *bytes.Buffer, view registry.ViewResult) error {
		return export.WriteTableXLSX(buf, view.Scoped())
	})
}

func (h *Handler) handleMonthlyCSV(w http.ResponseWriter, r *http.Request) {
	h.summaryCSV(w, r, "aylik_tescil.csv", func(buf *bytes.Buffer, view registry.ViewResult) error {
		return export.WriteMonthlyCSV(buf, view.Panel.Monthly)
	})
}

func (h *Handler) handleTopProductsCSV(w http.ResponseWriter, r *http.Request) {
	h.summaryCSV(w, r, "en_cok_islem_goren_urunler.csv", func(buf *bytes.Buffer, view registry.ViewResult) error {
		return export.WriteGroupCSV(buf, registry.ColumnProductName, view.Panel.TopProducts)
	})
}

// summaryCSV exports a panel aggregate; unlike row exports the file name
// does not depend on the role.
func (h *Handler) summaryCSV(w http.ResponseWriter, r *http.Request, name string, write func(*bytes.Buffer, registry.ViewResult) error) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	view, ok := h.evaluate(w, r, id)
	if !ok {
		return
	}
	buf := h.buffer()
	defer h.release(buf)
	if err := write(buf, view); err != nil {
		h.respondError(w, "write "+name, err)
		return
	}
	h.attach(w, name, contentTypes["csv"], buf)
}

var contentTypes = map[string]string{
	"csv":  "text/csv; charset=utf-8",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, ext string, write func(*bytes.Buffer, registry.ViewResult) error) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	view, ok := h.evaluate(w, r, id)
	if !ok {
		return
	}
	buf := h.buffer()
	defer h.release(buf)
	if err := write(buf, view); err != nil {
		h.respondError(w, "write "+ext, err)
		return
	}
	h.attach(w, exportName(id.Role, ext), contentTypes[ext], buf)
}

// evaluate runs the pipeline uncached; exports need the scoped rows, which
// never leave the process.
func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request, id registry.Identity) (registry.ViewResult, bool) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.respondError(w, "parse filters", err)
		return registry.ViewResult{}, false
	}
	snap := h.store.Current()
	if snap == nil {
		h.respondError(w, "export", errNoData)
		return registry.ViewResult{}, false
	}
	view, err := h.evaluator.Evaluate(id, filters, snap.Table)
	if err != nil {
		h.respondError(w, "evaluate", err)
		return registry.ViewResult{}, false
	}
	return view, true
}

func exportName(role registry.Role, ext string) string {
	if role == registry.RoleMember {
		return "uye_tescil_filtreli." + ext
	}
	return "tescil_filtreli." + ext
}

func (h *Handler) attach(w http.ResponseWriter, filename, contentType string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logError("stream export", err)
	}
}

func (h *Handler) buffer() *bytes.Buffer {
	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func (h *Handler) release(buf *bytes.Buffer) {
	buf.Reset()
	h.csvPool.Put(buf)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadMax)
	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Problem(w, http.StatusRequestEntityTooLarge, "Dosya çok büyük", fmt.Sprintf("limit %d bytes", h.uploadMax))
			return
		}
		h.respondError(w, "read upload", validationError{field: uploadField})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(w, "read upload", err)
		return
	}
	snap, err := h.store.LoadUpload(r.Context(), header.Filename, data)
	if err != nil {
		h.respondError(w, "load upload", err)
		return
	}
	h.logger.Info("registry upload accepted",
		slog.String("user", id.Username),
		slog.String("file", header.Filename),
		slog.Int("rows", snap.Table.Len()))
	httpx.JSON(w, http.StatusOK, describe(snap))
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	snap, err := h.store.LoadFile(r.Context())
	if err != nil {
		h.respondError(w, "reload", err)
		return
	}
	h.logger.Info("registry reload requested", slog.String("user", id.Username))
	httpx.JSON(w, http.StatusOK, describe(snap))
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (registry.Identity, bool) {
	if h.identities != nil {
		if id, ok := h.identities.Identity(r); ok {
			return id, true
		}
	}
	httpx.Problem(w, http.StatusUnauthorized, "Oturum gerekli", "")
	return registry.Identity{}, false
}

type filterQuery struct {
	Start string `validate:"omitempty,datetime=2006-01-02"`
	End   string `validate:"omitempty,datetime=2006-01-02"`
}

// parseFilters reads start and end (YYYY-MM-DD) and repeated field
// selections, e.g. ?main_group=Hububat&main_group=Bakliyat.
func (h *Handler) parseFilters(r *http.Request) (registry.FilterState, error) {
	query := r.URL.Query()
	q := filterQuery{
		Start: strings.TrimSpace(query.Get("start")),
		End:   strings.TrimSpace(query.Get("end")),
	}
	if err := h.validate.Struct(q); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return registry.FilterState{}, validationError{field: strings.ToLower(fieldErrs[0].Field())}
		}
		return registry.FilterState{}, err
	}

	var f registry.FilterState
	if q.Start != "" {
		f.Start, _ = time.Parse(dateLayout, q.Start)
	}
	if q.End != "" {
		f.End, _ = time.Parse(dateLayout, q.End)
	}

	for key, values := range query {
		if key == "start" || key == "end" {
			continue
		}
		field, ok := registry.ParseField(key)
		if !ok {
			return registry.FilterState{}, fmt.Errorf("%w: %s", registry.ErrUnknownFilterField, key)
		}
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				if f.Selections == nil {
					f.Selections = make(map[registry.Field][]string)
				}
				f.Selections[field] = append(f.Selections[field], v)
			}
		}
	}
	return f, nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var (
		vErr      validationError
		schemaErr *registry.SchemaError
		accessErr *registry.AccessConfigError
	)
	switch {
	case errors.As(err, &vErr):
		httpx.Problem(w, http.StatusBadRequest, "Geçersiz parametre", vErr.Error())
	case errors.Is(err, registry.ErrUnknownFilterField):
		httpx.Problem(w, http.StatusBadRequest, "Geçersiz filtre", err.Error())
	case errors.Is(err, registry.ErrSellerFilterForbidden):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrForbidden, err.Error()))
	case errors.As(err, &accessErr):
		h.logger.Warn("registry access misconfigured", slog.String("user", accessErr.Username), slog.String("reason", accessErr.Reason))
		httpx.Problem(w, http.StatusForbidden, "Erişim yapılandırması eksik", "Hesabınıza üye numarası tanımlı değil.")
	case errors.As(err, &schemaErr):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnprocessable, schemaErr.Error()))
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnsupportedMedia, err.Error()))
	case errors.Is(err, errNoData), errors.Is(err, ingest.ErrNoSource):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrUnavailable, "veri kaynağı yok"))
	case errors.Is(err, context.DeadlineExceeded):
		h.logError(op, err)
		httpx.RespondError(w, httpx.ErrTimeout)
	default:
		h.logError(op, err)
		httpx.RespondError(w, err)
	}
}

func (h *Handler) logError(op string, err error) {
	if h.logger != nil {
		h.logger.Error(op, slog.Any("error", err))
	}
}

func describe(snap *ingest.Snapshot) SnapshotInfo {
	if snap == nil {
		return SnapshotInfo{}
	}
	return SnapshotInfo{
		Loaded:   true,
		Source:   snap.Source.String(),
		Kind:     string(snap.Source.Kind),
		Rows:     snap.Table.Len(),
		Columns:  snap.Table.Columns(),
		LoadedAt: snap.LoadedAt,
		Version:  snap.Version,
		Content:  snap.ContentKey,
	}
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	return fmt.Sprintf("invalid %s", v.field)
}
