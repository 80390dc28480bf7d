package server

import (
	"database/sql"
	"errors"
	"io"
	"net/http"

	"account-service/internal/domain"
	"account-service/internal/service"

	log "github.com/sirupsen/logrus"

	"github.com/labstack/echo/v4"
)

// Server holds the echo handlers. It is thin glue around the user service;
// every mutation it triggers goes through a save context and lands in the
// log trail.
type Server struct {
	userService *service.UserService
	db          *sql.DB
}

func NewServer(userService *service.UserService, db *sql.DB) *Server {
	return &Server{
		userService: userService,
		db:          db,
	}
}

func (s *Server) HealthCheck(c echo.Context) error {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			log.WithField("error", err).Error("Health check failed: database is down")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  "database connection error",
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// actor builds the actor context stamped onto log entries. The acting
// username comes from the X-Acting-User header set by the authenticating
// front layer, which is outside this service.
func actor(c echo.Context) domain.Actor {
	return domain.Actor{
		Username:   c.Request().Header.Get("X-Acting-User"),
		RemoteAddr: c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	}
}

func (s *Server) CreateUser(c echo.Context) error {
	var req domain.CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	ctx := c.Request().Context()
	doc, err := s.userService.Create(ctx, actor(c), req)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, service.ScrubUser(doc))
}

func (s *Server) GetUser(c echo.Context) error {
	username := c.Param("username")
	if username == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "username is required",
		})
	}

	ctx := c.Request().Context()
	doc, err := s.userService.GetByUsername(ctx, username)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusOK, service.ScrubUser(doc))
}

func (s *Server) UpdateUser(c echo.Context) error {
	username := c.Param("username")
	var req domain.UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	ctx := c.Request().Context()
	doc, err := s.userService.Update(ctx, actor(c), username, req)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusOK, service.ScrubUser(doc))
}

func (s *Server) SetPassword(c echo.Context) error {
	username := c.Param("username")
	var req domain.SetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	ctx := c.Request().Context()
	if err := s.userService.SetPassword(ctx, actor(c), username, req.Password); err != nil {
		return s.writeError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *Server) ResetAPIKey(c echo.Context) error {
	username := c.Param("username")

	ctx := c.Request().Context()
	key, err := s.userService.ResetAPIKey(ctx, actor(c), username)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"apikey": key,
	})
}

func (s *Server) ListUsers(c echo.Context) error {
	ctx := c.Request().Context()
	users, err := s.userService.List(ctx)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"users": users,
	})
}

func (s *Server) GetLogs(c echo.Context) error {
	username := c.Param("username")

	ctx := c.Request().Context()
	entries, err := s.userService.Logs(ctx, username)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"logs": entries,
	})
}

func (s *Server) PutAttachment(c echo.Context) error {
	username := c.Param("username")
	filename := c.Param("filename")

	content, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
	}
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}

	ctx := c.Request().Context()
	doc, err := s.userService.AddAttachment(ctx, actor(c), username, filename, content, contentType)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, service.ScrubUser(doc))
}

func (s *Server) GetAttachment(c echo.Context) error {
	username := c.Param("username")
	filename := c.Param("filename")

	ctx := c.Request().Context()
	att, err := s.userService.GetAttachment(ctx, username, filename)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.Blob(http.StatusOK, att.ContentType, att.Content)
}

func (s *Server) DeleteAttachment(c echo.Context) error {
	username := c.Param("username")
	filename := c.Param("filename")

	ctx := c.Request().Context()
	if _, err := s.userService.DeleteAttachment(ctx, actor(c), username, filename); err != nil {
		return s.writeError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// writeError maps core errors onto HTTP statuses. A log write failure is a
// consistency gap between a committed document and its trail, so it is
// logged at error level for the operator before the 500 goes out.
func (s *Server) writeError(c echo.Context, err error) error {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": validationErr.Error(),
		})
	}
	if errors.Is(err, domain.ErrWriteConflict) {
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "document was modified concurrently, fetch and retry",
		})
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAttachmentNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "not found",
		})
	}
	var logErr *domain.LogWriteError
	if errors.As(err, &logErr) {
		log.WithError(logErr).WithFields(log.Fields{
			"doc_id": logErr.DocID,
			"rev":    logErr.Rev,
		}).Error("Document committed but log entry write failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "saved, but recording the audit log entry failed",
		})
	}
	var attErr *domain.AttachmentError
	if errors.As(err, &attErr) {
		log.WithError(attErr).WithField("doc_id", attErr.DocID).Error("Attachment operation failed after commit")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "saved, but an attachment operation failed",
		})
	}
	log.WithError(err).Error("Request failed")
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "internal server error",
	})
}
