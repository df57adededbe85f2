package http

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/logging"
	"github.com/fyrsmithlabs/reqengine/internal/pipeline"
)

const defaultHistoryLimit = 50

func (s *Server) handleEstimate(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}
	return c.JSON(http.StatusOK, pipeline.Estimate(req.Text))
}

func (s *Server) handleExtract(c echo.Context) error {
	var req TextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	out, err := s.svc.Extract(c.Request().Context(), req.Text, req.MaxUseCases)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// handleDocument accepts JSON or a multipart upload. Without a session id
// in the path a new session is created.
func (s *Server) handleDocument(c echo.Context) error {
	var req DocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		text, name, err := readUpload(c)
		if err != nil {
			return err
		}
		req.Text = text
		if req.Filename == "" {
			req.Filename = name
		}
	}

	ctx := logging.WithDocument(c.Request().Context(), req.Filename)
	sum, err := s.svc.ProcessDocument(ctx, pipeline.DocumentRequest{
		SessionID:      c.Param("id"),
		Text:           req.Text,
		ProjectContext: req.ProjectContext,
		Domain:         req.Domain,
		Filename:       req.Filename,
		MaxUseCases:    req.MaxUseCases,
	})
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

// readUpload returns the text of the "file" part and its name.
func readUpload(c echo.Context) (string, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "file part is required")
	}
	f, err := fh.Open()
	if err != nil {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	if !utf8.Valid(data) {
		return "", "", echo.NewHTTPError(http.StatusBadRequest, "upload is not UTF-8 text")
	}
	return string(data), fh.Filename, nil
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req SessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := s.svc.Store().CreateSession(c.Request().Context(), req.ProjectContext, req.Domain, req.Title)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleListSessions(c echo.Context) error {
	list, err := s.svc.Store().ListSessions(c.Request().Context())
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, SessionsResponse{Sessions: list})
}

func (s *Server) handleGetSession(c echo.Context) error {
	ctx := c.Request().Context()
	sess, err := s.svc.Store().GetSession(ctx, c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	titles, err := s.svc.Store().Titles(ctx, sess.ID)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{Session: sess, UseCaseCount: len(titles)})
}

func (s *Server) handleRenameSession(c echo.Context) error {
	var req RenameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title field is required")
	}
	ctx := c.Request().Context()
	if err := s.svc.Store().UpdateSessionTitle(ctx, c.Param("id"), title); err != nil {
		return s.httpError(c, err)
	}
	sess, err := s.svc.Store().GetSession(ctx, c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if err := s.svc.Store().DeleteSession(c.Request().Context(), c.Param("id")); err != nil {
		return s.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleHistory(c echo.Context) error {
	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	ctx := c.Request().Context()
	sess, err := s.svc.Store().GetSession(ctx, c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	msgs, err := s.svc.Store().Messages(ctx, sess.ID, limit)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, HistoryResponse{SessionID: sess.ID, Messages: msgs})
}

func (s *Server) handleUseCases(c echo.Context) error {
	ctx := c.Request().Context()
	sess, err := s.svc.Store().GetSession(ctx, c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	list, err := s.svc.Store().UseCases(ctx, sess.ID)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, UseCasesResponse{SessionID: sess.ID, UseCases: list})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ans, err := s.svc.Query(c.Request().Context(), c.Param("id"), req.Question)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, ans)
}

func (s *Server) handleSummarize(c echo.Context) error {
	sum, err := s.svc.SummarizeSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (s *Server) handleLatestSummary(c echo.Context) error {
	sum, err := s.svc.Store().LatestSummary(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

func (s *Server) handleRefine(c echo.Context) error {
	var req RefineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	stored, err := s.svc.Refine(ctx, c.Param("id"), req.RefinementType)
	if err != nil {
		return s.httpError(c, err)
	}
	s.logger.Debug(ctx, "refine served", zap.String("use_case.id", stored.ID))
	return c.JSON(http.StatusOK, stored)
}

func (s *Server) handleValidation(c echo.Context) error {
	report, err := s.svc.Validation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleDeleteUseCase(c echo.Context) error {
	if err := s.svc.DeleteUseCase(c.Request().Context(), c.Param("id")); err != nil {
		return s.httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
