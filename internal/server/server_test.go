package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math/big"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/filevault/internal/api/handlers"
	"github.com/bigkaa/filevault/internal/api/middleware"
	"github.com/bigkaa/filevault/internal/api/openapi"
	"github.com/bigkaa/filevault/internal/auth"
	"github.com/bigkaa/filevault/internal/repository"
	"github.com/bigkaa/filevault/internal/service"
	"github.com/bigkaa/filevault/internal/storage/filestore"
	"github.com/bigkaa/filevault/internal/storage/keyname"
	"github.com/bigkaa/filevault/internal/thumbnail"
)

const (
	testSecret   = "server-test-secret"
	testMaxBytes = 64 << 10
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestRoutes собирает обработчики поверх in-memory метаданных и временной директории.
func newTestRoutes(t *testing.T) Routes {
	t.Helper()
	return newTestRoutesWith(t, auth.NewIssuer(testSecret, time.Hour), auth.NewHS256Verifier(testSecret, 0))
}

// newTestRoutesWith собирает обработчики с заданной выдачей и проверкой токенов.
// issuer = nil — режим внешнего IdP: пользователи создаются при первом запросе.
func newTestRoutesWith(t *testing.T, issuer *auth.Issuer, verifier middleware.TokenVerifier) Routes {
	t.Helper()
	logger := testLogger()

	store, err := filestore.New(t.TempDir(), testMaxBytes)
	if err != nil {
		t.Fatalf("filestore.New() ошибка: %v", err)
	}
	files := repository.NewMemoryFileStore()
	thumbs := thumbnail.New(store, 64, logger)

	users := service.NewUserService(repository.NewMemoryUserStore(), issuer, logger)
	upload := service.NewUploadService(files, store, keyname.New(), thumbs,
		[]string{"image/png", "text/plain", "application/pdf"}, logger)
	filesSvc := service.NewFilesService(files, store, thumbs, service.NewRecordCache(100, 0), logger)

	spec, err := openapi.Load(context.Background())
	if err != nil {
		t.Fatalf("openapi.Load() ошибка: %v", err)
	}

	jwtAuth := middleware.NewJWTAuth(verifier, logger)
	if !users.LocalAuth() {
		jwtAuth.WithProvisioner(users)
	}
	return Routes{
		API:    handlers.NewAPIHandler(users, upload, filesSvc, store.MaxBytes(), logger),
		Health: handlers.NewHealthHandler(handlers.NewStorageChecker(store.DataDir())),
		Spec:   spec,
		Auth:   jwtAuth.Middleware(),
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return serveRoutes(t, newTestRoutes(t))
}

func serveRoutes(t *testing.T, routes Routes) *httptest.Server {
	t.Helper()
	logger := testLogger()
	router := NewRouter(routes,
		chimw.RequestID,
		middleware.RequestLogger(logger),
		middleware.MetricsMiddleware(),
		chimw.Recoverer,
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

// client — HTTP-клиент тестов с опциональным Bearer токеном.
type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path, contentType string, body io.Reader) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		c.t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *client) json(method, path string, body any) *http.Response {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	return c.do(method, path, "application/json", r)
}

// formPart — часть multipart-формы.
type formPart struct {
	name        string
	filename    string
	contentType string
	data        []byte
}

func (c *client) upload(parts ...formPart) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := textproto.MIMEHeader{}
		disp := fmt.Sprintf(`form-data; name=%q`, p.name)
		if p.filename != "" {
			disp += fmt.Sprintf(`; filename=%q`, p.filename)
		}
		h.Set("Content-Disposition", disp)
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(h)
		if err != nil {
			c.t.Fatal(err)
		}
		if _, err := w.Write(p.data); err != nil {
			c.t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		c.t.Fatal(err)
	}
	return c.do(http.MethodPost, "/api/v1/files/upload", mw.FormDataContentType(), &buf)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("декодирование ответа: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: статус %d, ожидался %d, тело: %s",
			resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	expectStatus(t, resp, status)
	if got := decode[errorBody](t, resp).Error.Code; got != code {
		t.Errorf("код ошибки = %q, ожидался %q", got, code)
	}
}

// register создаёт пользователя и возвращает клиента с его токеном.
func register(t *testing.T, base, email string) *client {
	t.Helper()
	c := &client{t: t, base: base}
	resp := c.json(http.MethodPost, "/api/v1/auth/register",
		map[string]string{"email": email, "password": "passw0rdX"})
	expectStatus(t, resp, http.StatusOK)
	c.token = decode[map[string]string](t, resp)["token"]
	if c.token == "" {
		t.Fatal("пустой токен")
	}
	return c
}

type fileView struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Mime           string   `json:"mime"`
	Size           int64    `json:"size"`
	Tags           []string `json:"tags"`
	IsPublic       bool     `json:"is_public"`
	State          string   `json:"state"`
	Path           string   `json:"path"`
	ThumbAvailable bool     `json:"thumb_available"`
}

type fileEnvelope struct {
	File fileView `json:"file"`
}

type listBody struct {
	Items    []fileView `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRoutesMatchOpenAPI(t *testing.T) {
	routes := newTestRoutes(t)
	router := NewRouter(routes)

	var registered []string
	err := chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		registered = append(registered, method+" "+route)
		return nil
	})
	if err != nil {
		t.Fatalf("chi.Walk() ошибка: %v", err)
	}
	sort.Strings(registered)

	documented := routes.Spec.Operations()
	if strings.Join(registered, "\n") != strings.Join(documented, "\n") {
		t.Errorf("маршруты расходятся с контрактом\nзарегистрированы:\n%s\nв контракте:\n%s",
			strings.Join(registered, "\n"), strings.Join(documented, "\n"))
	}
}

func TestPublicEndpoints(t *testing.T) {
	srv := newTestServer(t)
	c := &client{t: t, base: srv.URL}

	for _, path := range []string{"/health/live", "/health/ready", "/api/v1/openapi.json", "/metrics"} {
		expectStatus(t, c.do(http.MethodGet, path, "", nil), http.StatusOK)
	}
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)
	anon := &client{t: t, base: srv.URL}

	expectError(t, anon.do(http.MethodGet, "/api/v1/files", "", nil), http.StatusUnauthorized, "UNAUTHORIZED")

	alice := register(t, srv.URL, "Alice@Example.com")

	resp := alice.do(http.MethodGet, "/api/v1/me", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if me := decode[map[string]any](t, resp); me["email"] != "alice@example.com" {
		t.Errorf("email = %v", me["email"])
	}

	expectError(t, anon.json(http.MethodPost, "/api/v1/auth/register",
		map[string]string{"email": "alice@example.com", "password": "passw0rdX"}), http.StatusConflict, "CONFLICT")
	expectError(t, anon.json(http.MethodPost, "/api/v1/auth/register",
		map[string]string{"email": "bob@example.com", "password": "short"}), http.StatusBadRequest, "VALIDATION_ERROR")
	expectError(t, anon.json(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": "alice@example.com", "password": "wr0ngpass"}), http.StatusUnauthorized, "UNAUTHORIZED")

	resp = anon.json(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": "alice@example.com", "password": "passw0rdX"})
	expectStatus(t, resp, http.StatusOK)
}

func TestFileLifecycle(t *testing.T) {
	srv := newTestServer(t)
	alice := register(t, srv.URL, "alice@example.com")
	content := []byte("квартальный отчёт\n")

	resp := alice.upload(
		formPart{name: "tags", data: []byte(`["Work"," Work ","q3",""]`)},
		formPart{name: "folder", data: []byte("reports/2024")},
		formPart{name: "file", filename: "report.txt", contentType: "application/octet-stream", data: content},
	)
	expectStatus(t, resp, http.StatusCreated)
	f := decode[fileEnvelope](t, resp).File

	if f.Name != "report.txt" || f.Mime != "text/plain" || f.Size != int64(len(content)) {
		t.Errorf("неожиданная запись: %+v", f)
	}
	if strings.Join(f.Tags, ",") != "Work,q3" {
		t.Errorf("tags = %v, ожидалось [Work q3]", f.Tags)
	}
	if f.State != "ready" || f.IsPublic || f.ThumbAvailable {
		t.Errorf("неожиданное состояние: %+v", f)
	}
	if !strings.HasPrefix(f.Path, "reports/2024/") {
		t.Errorf("path = %q, ожидался префикс reports/2024/", f.Path)
	}

	resp = alice.do(http.MethodGet, "/api/v1/files/"+f.ID+"/download", "", nil)
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, content) {
		t.Errorf("содержимое = %q, ожидалось %q", body, content)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	expectError(t, alice.do(http.MethodGet, "/api/v1/files/"+f.ID+"/preview", "", nil),
		http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE")
	expectError(t, alice.do(http.MethodGet, "/api/v1/files/"+f.ID+"/thumb", "", nil),
		http.StatusNotFound, "NOT_FOUND")

	resp = alice.json(http.MethodPatch, "/api/v1/files/"+f.ID, map[string]any{"name": "итог.txt", "tags": []string{"Final"}})
	expectStatus(t, resp, http.StatusOK)
	if p := decode[fileEnvelope](t, resp).File; p.Name != "итог.txt" || strings.Join(p.Tags, ",") != "Final" {
		t.Errorf("после patch: %+v", p)
	}

	resp = alice.json(http.MethodPost, "/api/v1/files/"+f.ID+"/visibility", map[string]bool{"is_public": true})
	expectStatus(t, resp, http.StatusOK)
	if decode[fileEnvelope](t, resp).File.IsPublic {
		t.Error("is_public должен оставаться false")
	}

	// Мягкое удаление
	expectStatus(t, alice.do(http.MethodDelete, "/api/v1/files/"+f.ID, "", nil), http.StatusOK)
	expectError(t, alice.do(http.MethodDelete, "/api/v1/files/"+f.ID, "", nil), http.StatusNotFound, "NOT_FOUND")
	expectError(t, alice.do(http.MethodGet, "/api/v1/files/"+f.ID+"/download", "", nil), http.StatusNotFound, "NOT_FOUND")

	resp = alice.do(http.MethodGet, "/api/v1/files", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if l := decode[listBody](t, resp); l.Total != 0 || len(l.Items) != 0 {
		t.Errorf("active: total=%d, items=%d", l.Total, len(l.Items))
	}
	resp = alice.do(http.MethodGet, "/api/v1/files?state=deleted", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if l := decode[listBody](t, resp); l.Total != 1 || l.Items[0].State != "deleted" {
		t.Errorf("deleted: %+v", l)
	}

	// Восстановление
	expectStatus(t, alice.do(http.MethodPost, "/api/v1/files/"+f.ID+"/restore", "", nil), http.StatusOK)
	expectError(t, alice.do(http.MethodPost, "/api/v1/files/"+f.ID+"/restore", "", nil), http.StatusNotFound, "NOT_FOUND")
	expectStatus(t, alice.do(http.MethodGet, "/api/v1/files/"+f.ID+"/download", "", nil), http.StatusOK)
}

func TestUploadImage(t *testing.T) {
	srv := newTestServer(t)
	alice := register(t, srv.URL, "alice@example.com")

	resp := alice.upload(formPart{name: "file", filename: "photo.png", contentType: "image/png", data: pngBytes(t, 200, 100)})
	expectStatus(t, resp, http.StatusCreated)
	f := decode[fileEnvelope](t, resp).File
	if !f.ThumbAvailable {
		t.Fatal("ожидалось превью")
	}

	resp = alice.do(http.MethodGet, "/api/v1/files/"+f.ID+"/thumb", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	thumb, _, err := image.DecodeConfig(resp.Body)
	if err != nil {
		t.Fatalf("превью не декодируется: %v", err)
	}
	if thumb.Width != 64 || thumb.Height != 32 {
		t.Errorf("размер превью %dx%d, ожидалось 64x32", thumb.Width, thumb.Height)
	}

	resp = alice.do(http.MethodGet, "/api/v1/files/"+f.ID+"/preview", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if cd := resp.Header.Get("Content-Disposition"); !strings.HasPrefix(cd, "inline") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("ожидался X-Content-Type-Options: nosniff")
	}
}

func TestUploadRejections(t *testing.T) {
	srv := newTestServer(t)
	alice := register(t, srv.URL, "alice@example.com")

	expectError(t, alice.upload(formPart{name: "file", filename: "setup.exe",
		contentType: "application/x-msdownload", data: []byte("MZ\x90\x00")}),
		http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE")

	expectError(t, alice.upload(formPart{name: "file", filename: "big.txt",
		contentType: "text/plain", data: bytes.Repeat([]byte("a"), testMaxBytes+1)}),
		http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE")

	expectError(t, alice.upload(formPart{name: "tags", data: []byte(`["x"]`)}),
		http.StatusBadRequest, "VALIDATION_ERROR")

	expectError(t, alice.do(http.MethodPost, "/api/v1/files/upload", "application/json", strings.NewReader("{}")),
		http.StatusBadRequest, "VALIDATION_ERROR")

	resp := alice.do(http.MethodGet, "/api/v1/files?state=all", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if l := decode[listBody](t, resp); l.Total != 0 {
		t.Errorf("после отказов записей быть не должно, total=%d", l.Total)
	}
}

// TestUploadPaddedForm: лимит тела запроса срабатывает во время чтения
// части file, если до неё идут объёмные посторонние поля.
func TestUploadPaddedForm(t *testing.T) {
	srv := newTestServer(t)
	alice := register(t, srv.URL, "alice@example.com")

	parts := make([]formPart, 0, 19)
	for i := 0; i < 18; i++ {
		parts = append(parts, formPart{name: fmt.Sprintf("pad%d", i), data: bytes.Repeat([]byte("p"), 60<<10)})
	}
	parts = append(parts, formPart{name: "file", filename: "edge.txt",
		contentType: "text/plain", data: bytes.Repeat([]byte("a"), testMaxBytes)})

	expectError(t, alice.upload(parts...), http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE")

	resp := alice.do(http.MethodGet, "/api/v1/files?state=all", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if l := decode[listBody](t, resp); l.Total != 0 {
		t.Errorf("после отказа записей быть не должно, total=%d", l.Total)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	srv := newTestServer(t)
	alice := register(t, srv.URL, "alice@example.com")
	bob := register(t, srv.URL, "bob@example.com")

	resp := alice.upload(formPart{name: "file", filename: "secret.txt", contentType: "text/plain", data: []byte("тайна")})
	expectStatus(t, resp, http.StatusCreated)
	id := decode[fileEnvelope](t, resp).File.ID

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/files/" + id},
		{http.MethodGet, "/api/v1/files/" + id + "/download"},
		{http.MethodDelete, "/api/v1/files/" + id},
		{http.MethodPost, "/api/v1/files/" + id + "/restore"},
		{http.MethodGet, "/api/v1/files/not-a-uuid"},
		{http.MethodGet, "/api/v1/files/00000000-0000-0000-0000-000000000000/download"},
	} {
		expectError(t, bob.do(tc.method, tc.path, "", nil), http.StatusNotFound, "NOT_FOUND")
	}

	resp = bob.do(http.MethodGet, "/api/v1/files?state=all", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if l := decode[listBody](t, resp); l.Total != 0 {
		t.Errorf("bob видит чужие файлы: total=%d", l.Total)
	}

	expectStatus(t, alice.do(http.MethodGet, "/api/v1/files/"+id, "", nil), http.StatusOK)
}

func TestListValidation(t *testing.T) {
	srv := newTestServer(t)
	alice := register(t, srv.URL, "alice@example.com")

	expectError(t, alice.do(http.MethodGet, "/api/v1/files?state=archived", "", nil), http.StatusBadRequest, "VALIDATION_ERROR")
	expectError(t, alice.do(http.MethodGet, "/api/v1/files?page=abc", "", nil), http.StatusBadRequest, "VALIDATION_ERROR")

	resp := alice.do(http.MethodGet, "/api/v1/files?page=0&page_size=1000", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if l := decode[listBody](t, resp); l.Page != 1 || l.PageSize != 100 || l.Items == nil {
		t.Errorf("ожидалась нормализация page=1 page_size=100, получено %+v", l)
	}
}

const testKeyID = "idp-key"

// newIdPServer поднимает сервер в режиме внешнего IdP и возвращает
// функцию подписи RS256-токенов ключом из его JWKS.
func newIdPServer(t *testing.T) (*httptest.Server, func(sub int64, email string) string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	jwks, _ := json.Marshal(map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": testKeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	})
	kf, err := keyfunc.NewJWKSetJSON(jwks)
	if err != nil {
		t.Fatalf("keyfunc.NewJWKSetJSON() ошибка: %v", err)
	}

	srv := serveRoutes(t, newTestRoutesWith(t, nil, auth.NewVerifierWithKeyfunc(kf, time.Second)))
	sign := func(sub int64, email string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, auth.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   strconv.FormatInt(sub, 10),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Email: email,
		})
		token.Header["kid"] = testKeyID
		signed, err := token.SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return signed
	}
	return srv, sign
}

func TestExternalIdPFlow(t *testing.T) {
	srv, sign := newIdPServer(t)
	anon := &client{t: t, base: srv.URL}

	// Собственные токены не выдаются
	creds := map[string]string{"email": "a@example.com", "password": "passw0rdX"}
	expectError(t, anon.json(http.MethodPost, "/api/v1/auth/register", creds), http.StatusNotFound, "NOT_FOUND")
	expectError(t, anon.json(http.MethodPost, "/api/v1/auth/login", creds), http.StatusNotFound, "NOT_FOUND")

	idp := &client{t: t, base: srv.URL, token: sign(7, "idp@example.com")}

	resp := idp.do(http.MethodGet, "/api/v1/me", "", nil)
	expectStatus(t, resp, http.StatusOK)
	me := decode[map[string]any](t, resp)
	if me["id"] != float64(7) || me["email"] != "idp@example.com" {
		t.Errorf("/me = %v", me)
	}

	resp = idp.upload(formPart{name: "file", filename: "idp.txt", contentType: "text/plain", data: []byte("from idp")})
	expectStatus(t, resp, http.StatusCreated)
	f := decode[fileEnvelope](t, resp).File

	resp = idp.do(http.MethodGet, "/api/v1/files/"+f.ID+"/download", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if body, _ := io.ReadAll(resp.Body); string(body) != "from idp" {
		t.Errorf("download = %q", body)
	}

	// Другой пользователь IdP чужой файл не видит
	other := &client{t: t, base: srv.URL, token: sign(8, "")}
	expectError(t, other.do(http.MethodGet, "/api/v1/files/"+f.ID, "", nil), http.StatusNotFound, "NOT_FOUND")

	// HS256-токен в режиме IdP не принимается
	hs, _ := auth.NewIssuer(testSecret, time.Hour).Issue(7, "idp@example.com")
	forged := &client{t: t, base: srv.URL, token: hs}
	expectError(t, forged.do(http.MethodGet, "/api/v1/me", "", nil), http.StatusUnauthorized, "UNAUTHORIZED")
}
