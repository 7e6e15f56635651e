// Package server exposes thesis generation, review and export over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"thesis_generator/exporter"
	"thesis_generator/generator"
	"thesis_generator/logger"
)

const (
	DefaultSessionCapacity = 256
	DefaultRequestTimeout  = 3 * time.Minute
)

// Options configures the HTTP surface. Zero values take the defaults.
type Options struct {
	RequestTimeout  time.Duration
	SessionCapacity int
	CORSOrigins     []string
	Log             *zap.Logger

	// TrustedProxies 为空时 ClientIP 只取连接地址，忽略 X-Forwarded-For。
	TrustedProxies []string
}

type Server struct {
	genAgent *generator.Agent
	store    *sessionStore
	timeout  time.Duration
	origins  []string
	log      *zap.Logger
	engine   *gin.Engine
}

func New(genAgent *generator.Agent, opts Options) (*Server, error) {
	if genAgent == nil {
		return nil, errors.New("generator agent required")
	}
	store, err := newStore(opts.SessionCapacity)
	if err != nil {
		return nil, err
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	s := &Server{
		genAgent: genAgent,
		store:    store,
		timeout:  timeout,
		origins:  opts.CORSOrigins,
		log:      logger.OrNop(opts.Log).With(zap.String("component", "server")),
	}
	if s.engine, err = s.routes(opts.TrustedProxies); err != nil {
		return nil, err
	}
	return s, nil
}

// Routes returns the handler built by New.
func (s *Server) Routes() http.Handler { return s.engine }

// 客户端 IP 即限流 identity，只信任显式配置的代理。
func (s *Server) routes(trustedProxies []string) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))
	r.Use(corsMiddleware(s.origins))

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	{
		api.POST("/theses", s.handleThesisCreate)
		api.GET("/theses/:id", s.handleThesisGet)
		api.POST("/theses/:id/revisions", s.handleThesisReview)
		api.GET("/theses/:id/export", s.handleThesisExport)
		api.POST("/revisions", s.handleReview)
	}
	return r, nil
}

// --- Handlers ---

type sessionResp struct {
	SessionID string             `json:"sessionId"`
	Request   generator.Request  `json:"request"`
	Document  generator.Document `json:"document"`
	History   []generator.Turn   `json:"history"`
	CreatedAt time.Time          `json:"createdAt"`
}

type reviewReq struct {
	Text string `json:"text"`
}

type reviewResp struct {
	Suggestions []string         `json:"suggestions"`
	History     []generator.Turn `json:"history,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.store.len()})
}

func (s *Server) handleThesisCreate(c *gin.Context) {
	var req generator.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "Request body must be a JSON object.")
		return
	}

	id := uuid.NewString()
	sess := generator.NewSession(id, req, s.genAgent)
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()
	if _, err := sess.Propose(ctx, c.ClientIP()); err != nil {
		s.respondGenerationError(c, err)
		return
	}
	s.store.set(id, sess)
	c.JSON(http.StatusCreated, toSessionResp(sess))
}

func (s *Server) handleThesisGet(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSessionResp(sess))
}

// handleThesisReview 把稿件渲染成 Markdown 交给模型审阅，结果追加到 session 历史。
func (s *Server) handleThesisReview(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()
	suggestions, err := sess.Review(ctx, exporter.Markdown(sess.Document))
	if err != nil {
		s.respondRevisionError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviewResp{Suggestions: suggestions, History: sess.History()})
}

func (s *Server) handleThesisExport(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	format, err := exporter.ParseFormat(c.Query("format"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "Format must be markdown, html or doc.")
		return
	}
	body, err := exporter.Render(sess.Document, format)
	if err != nil {
		s.log.Error("export failed", zap.String("session_id", sess.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "export", "The thesis could not be exported.")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exporter.FileName(sess.Document, format)))
	c.Data(http.StatusOK, format.ContentType(), body)
}

func (s *Server) handleReview(c *gin.Context) {
	var req reviewReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		respondError(c, http.StatusBadRequest, "bad_request", "Text to review is required.")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
	defer cancel()
	suggestions, err := s.genAgent.RevisionSuggestions(ctx, req.Text)
	if err != nil {
		s.respondRevisionError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviewResp{Suggestions: suggestions})
}

// --- Helpers ---

func (s *Server) session(c *gin.Context) (*generator.Session, bool) {
	sess, ok := s.store.get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "not_found", "Session not found.")
		return nil, false
	}
	return sess, true
}

func toSessionResp(sess *generator.Session) sessionResp {
	return sessionResp{
		SessionID: sess.ID,
		Request:   sess.Request,
		Document:  sess.Document,
		History:   sess.History(),
		CreatedAt: sess.CreatedAt,
	}
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, errorEnvelope{Error: apiError{Message: msg, Code: code}})
}

func (s *Server) respondGenerationError(c *gin.Context, err error) {
	var gerr *generator.GenerationError
	if !errors.As(err, &gerr) {
		s.log.Error("generation failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "internal", "Internal error.")
		return
	}

	status := http.StatusBadGateway
	switch gerr.Kind {
	case generator.KindRateLimit:
		status = http.StatusTooManyRequests
		secs := int(math.Ceil(gerr.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		c.Header("Retry-After", strconv.Itoa(secs))
	case generator.KindValidation:
		status = http.StatusBadRequest
	}
	if status == http.StatusBadGateway {
		s.log.Error("generation failed", zap.String("kind", string(gerr.Kind)), zap.Error(err))
	}
	respondError(c, status, string(gerr.Kind), gerr.UserMessage())
}

func (s *Server) respondRevisionError(c *gin.Context, err error) {
	s.log.Error("revision failed", zap.Error(err))
	respondError(c, http.StatusBadGateway, "revision", "Could not get revision suggestions. Please try again.")
}
