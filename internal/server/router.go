package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loykin/readyup/internal/graph"
)

// Router provides embeddable HTTP handlers for submitting and
// inspecting readiness runs.
// Endpoints:
//
//	POST   {basePath}/runs          body: {"services": [Spec JSON...]}
//	GET    {basePath}/runs          list run summaries
//	GET    {basePath}/runs/:id      run status plus report when finished
//	DELETE {basePath}/runs/:id      cancel a running run
//	GET    {basePath}/healthz       liveness of the daemon itself
//	GET    {basePath}/metrics       prometheus exposition
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	reg      *Registry
	basePath string
}

func NewRouter(reg *Registry, basePath string) *Router {
	return &Router{reg: reg, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/runs", r.handleSubmit)
	group.GET("/runs", r.handleList)
	group.GET("/runs/:id", r.handleGet)
	group.DELETE("/runs/:id", r.handleCancel)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, reg *Registry) *http.Server {
	router := NewRouter(reg, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type submitReq struct {
	Services []graph.Spec `json:"services"`
}

type submitResp struct {
	ID string `json:"id"`
}

func (r *Router) handleSubmit(c *gin.Context) {
	var req submitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if len(req.Services) == 0 {
		c.JSON(http.StatusBadRequest, errorResp{Error: "services required"})
		return
	}
	for _, s := range req.Services {
		if !isSafeName(s.Name) {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid service name: allowed [A-Za-z0-9._-]"})
			return
		}
	}
	id := r.reg.Submit(req.Services)
	c.JSON(http.StatusAccepted, submitResp{ID: id})
}

func (r *Router) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, r.reg.List())
}

func (r *Router) handleGet(c *gin.Context) {
	run, err := r.reg.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (r *Router) handleCancel(c *gin.Context) {
	if err := r.reg.Cancel(c.Param("id")); err != nil {
		if errors.Is(err, ErrRunNotFound) {
			c.JSON(http.StatusNotFound, errorResp{Error: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
