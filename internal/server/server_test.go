package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"account-service/internal/audit"
	"account-service/internal/server"
	"account-service/internal/service"
	"account-service/internal/storage"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer() (*echo.Echo, *server.Server) {
	store := storage.NewMemoryStore()
	users := service.NewUserService(store, audit.NewWriter(store), 6)
	srv := server.NewServer(users, nil)

	e := echo.New()
	e.GET("/health", srv.HealthCheck)
	e.POST("/api/users", srv.CreateUser)
	e.GET("/api/users/:username", srv.GetUser)
	e.PUT("/api/users/:username", srv.UpdateUser)
	e.POST("/api/users/:username/password", srv.SetPassword)
	e.GET("/api/users/:username/logs", srv.GetLogs)
	e.PUT("/api/users/:username/attachments/:filename", srv.PutAttachment)
	e.GET("/api/users/:username/attachments/:filename", srv.GetAttachment)
	return e, srv
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Acting-User", "admin")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	e, _ := newTestServer()
	rec := doJSON(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateUserHandler(t *testing.T) {
	e, _ := newTestServer()

	rec := doJSON(e, http.MethodPost, "/api/users",
		`{"username":"alice","email":"a@x.com","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, "pending", body["status"])
	assert.NotContains(t, body, "password", "secrets must not leave the service")
	assert.NotContains(t, body, "apikey")
}

func TestCreateUserHandlerValidation(t *testing.T) {
	e, _ := newTestServer()

	rec := doJSON(e, http.MethodPost, "/api/users",
		`{"username":"alice","email":"not-an-email","password":"hunter22"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/users", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDuplicateUserHandler(t *testing.T) {
	e, _ := newTestServer()

	body := `{"username":"alice","email":"a@x.com","password":"hunter22"}`
	rec := doJSON(e, http.MethodPost, "/api/users", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/users", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUserHandler(t *testing.T) {
	e, _ := newTestServer()

	rec := doJSON(e, http.MethodPost, "/api/users",
		`{"username":"alice","email":"a@x.com","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/users/alice", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/users/nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateUserHandler(t *testing.T) {
	e, _ := newTestServer()

	rec := doJSON(e, http.MethodPost, "/api/users",
		`{"username":"alice","email":"a@x.com","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodPut, "/api/users/alice", `{"role":"admin"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "admin", body["role"])

	rec = doJSON(e, http.MethodPut, "/api/users/alice", `{"role":"root"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogsHandlerRecordsActor(t *testing.T) {
	e, _ := newTestServer()

	rec := doJSON(e, http.MethodPost, "/api/users",
		`{"username":"alice","email":"a@x.com","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/users/alice/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Logs []map[string]any `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Logs, 1)
	assert.Equal(t, "admin", body.Logs[0]["username"])
	assert.NotEmpty(t, body.Logs[0]["remote_addr"])
	assert.NotContains(t, body.Logs[0], "_id")
	assert.NotContains(t, body.Logs[0], "docid")
}

func TestAttachmentHandlers(t *testing.T) {
	e, _ := newTestServer()

	rec := doJSON(e, http.MethodPost, "/api/users",
		`{"username":"alice","email":"a@x.com","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/users/alice/attachments/notes.txt",
		strings.NewReader("some notes"))
	req.Header.Set(echo.HeaderContentType, "text/plain")
	req.Header.Set("X-Acting-User", "admin")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/users/alice/attachments/notes.txt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "some notes", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/plain")

	rec = doJSON(e, http.MethodGet, "/api/users/alice/attachments/missing.txt", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
