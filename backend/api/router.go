package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"halo/backend/domain"
	"halo/backend/repository"
	"halo/backend/service"
)

type Router struct {
	service *service.Facade
}

func NewRouter(svc *service.Facade) *gin.Engine {
	r := &Router{service: svc}
	engine := gin.New()
	engine.Use(gin.Recovery())
	r.register(engine)
	return engine
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (r *Router) register(engine *gin.Engine) {
	engine.Use(corsMiddleware())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})

	profiles := engine.Group("/profiles")
	{
		profiles.GET("", r.listProfiles)
		profiles.POST("", r.createProfile)
		profiles.PUT(":id", r.updateProfile)
		profiles.DELETE(":id", r.deleteProfile)
		profiles.POST(":id/rename", r.renameProfile)
		profiles.POST(":id/select", r.selectProfile)
	}

	proxy := engine.Group("/proxy")
	{
		proxy.GET("/status", r.getStatus)
		proxy.POST("/start", r.startProxy)
		proxy.POST("/stop", r.stopProxy)
		proxy.GET("/logs", r.getKernelLogs)
	}

	settings := engine.Group("/settings")
	{
		settings.PUT("/system-proxy", r.setSystemProxyPref)
		settings.PUT("/autostart", r.setAutostartPref)
	}

	// geo-IP 压缩结果（调试/预览用，暂未并入系统代理例外列表）
	engine.GET("/geo/wildcards", r.getGeoWildcards)
}

type profileRequest struct {
	Name        string `json:"name" binding:"required"`
	Server      string `json:"server"`
	Listen      string `json:"listen"`
	Token       string `json:"token"`
	IP          string `json:"ip"`
	DNS         string `json:"dns"`
	ECH         string `json:"ech"`
	RoutingMode string `json:"routing_mode"`
}

func buildProfileFromRequest(req profileRequest) domain.ServerProfile {
	return domain.ServerProfile{
		Name:        strings.TrimSpace(req.Name),
		Server:      strings.TrimSpace(req.Server),
		Listen:      strings.TrimSpace(req.Listen),
		Token:       strings.TrimSpace(req.Token),
		IP:          strings.TrimSpace(req.IP),
		DNS:         strings.TrimSpace(req.DNS),
		ECH:         strings.TrimSpace(req.ECH),
		RoutingMode: domain.RoutingMode(req.RoutingMode),
	}.Normalize()
}

// ========== 配置 ==========

func (r *Router) listProfiles(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := r.service.Profiles().List(ctx)
	if err != nil {
		handleError(c, err)
		return
	}
	current := ""
	if p, err := r.service.Profiles().Current(ctx); err == nil {
		current = p.ID
	}
	c.JSON(http.StatusOK, gin.H{
		"profiles":           list,
		"current_profile_id": current,
	})
}

func (r *Router) createProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	created, err := r.service.AddProfile(c.Request.Context(), buildProfileFromRequest(req))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (r *Router) updateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := r.service.SaveProfile(c.Request.Context(), c.Param("id"), buildProfileFromRequest(req))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (r *Router) deleteProfile(c *gin.Context) {
	if err := r.service.DeleteProfile(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) renameProfile(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	renamed, err := r.service.RenameProfile(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, renamed)
}

func (r *Router) selectProfile(c *gin.Context) {
	if err := r.service.SwitchProfile(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, r.service.Status(c.Request.Context()))
}

// ========== 启停与状态 ==========

func (r *Router) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.service.Status(c.Request.Context()))
}

func (r *Router) startProxy(c *gin.Context) {
	if err := r.service.StartProxy(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, r.service.Status(c.Request.Context()))
}

func (r *Router) stopProxy(c *gin.Context) {
	r.service.StopProxy(c.Request.Context())
	c.JSON(http.StatusOK, r.service.Status(c.Request.Context()))
}

func (r *Router) getKernelLogs(c *gin.Context) {
	var since uint64
	if raw := c.Query("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(c, errors.New("invalid 'since' parameter: must be a non-negative integer"))
			return
		}
		since = v
	}
	c.JSON(http.StatusOK, r.service.Logs(since))
}

// ========== 偏好 ==========

func (r *Router) setSystemProxyPref(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := r.service.SetSystemProxyPref(c.Request.Context(), req.Enabled); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, r.service.Status(c.Request.Context()))
}

func (r *Router) setAutostartPref(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := r.service.SetAutostartPref(c.Request.Context(), req.Enabled); err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, r.service.Status(c.Request.Context()))
}

// ========== geo ==========

func (r *Router) getGeoWildcards(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"wildcards": r.service.GeoWildcards()})
}

// ========== 错误处理 ==========

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidData):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrProfileNotFound), errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNameConflict),
		errors.Is(err, repository.ErrLastProfile),
		errors.Is(err, repository.ErrProcessRunning),
		errors.Is(err, repository.ErrProcessNotRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
