package server

import (
	"log"
	"net/http"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/build"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/project"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/queue"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/sandbox"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up the API surface on the Gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	api := router.Group("/api")

	// Sandboxes.
	api.GET("/projects/:projectId/sessions/:sessionId/sandbox", s.handleGetSandbox)
	api.POST("/projects/:projectId/sessions/:sessionId/sandbox", s.handleCreateSandbox)
	api.POST("/projects/:projectId/sessions/:sessionId/sandbox/stop", s.handleStopSandbox)
	api.DELETE("/projects/:projectId/sessions/:sessionId/sandbox", s.handleTeardownSandbox)
	api.GET("/projects/:projectId/sessions/:sessionId/sandbox/health", s.handleSandboxHealth)
	api.GET("/projects/:projectId/sandboxes", s.handleListSandboxes)

	// Sessions.
	api.POST("/projects/:projectId/sessions", s.handleCreateSession)

	// Environment analysis.
	api.POST("/projects/:projectId/environment", s.handleTriggerEnvironment)
	api.POST("/projects/:projectId/environment/:jobId/confirm", s.handleConfirmEnvironment)
	api.POST("/environment-jobs/:jobId/cancel", s.handleCancelEnvironment)

	// Builds.
	api.POST("/projects/:projectId/sessions/:sessionId/builds", s.handleTriggerBuild)
	api.GET("/builds/:jobId", s.handleGetBuild)
	api.GET("/sessions/:sessionId/builds/latest", s.handleLatestBuild)
	api.POST("/builds/:jobId/progress", s.handleBuildProgress)
	api.POST("/builds/:jobId/cancel", s.handleCancelBuild)
	api.POST("/builds/:jobId/restart", s.handleRestartBuild)
	api.POST("/builds/:jobId/submit", s.handleSubmitBuild)

	// Deploys and workflows.
	api.POST("/projects/:projectId/deploys", s.handleTriggerDeploy)
	api.POST("/deploy-jobs/:jobId/cancel", s.handleCancelDeploy)
	api.POST("/projects/:projectId/vamos", s.handleTriggerVamos)
	api.POST("/vamos-jobs/:jobId/cancel", s.handleCancelVamos)

	// Maintenance.
	api.POST("/projects/:projectId/maintenance/:jobType", s.handleToggleMaintenance)
}

func (s *Server) handleGetSandbox(c *gin.Context) {
	projectID, sessionID := c.Param("projectId"), c.Param("sessionId")
	sb, err := s.registry.Get(c.Request.Context(), projectID, sessionID)
	if err != nil {
		respondErr(c, err)
		return
	}
	// Preview access; the idle reaper watches this timestamp.
	if err := project.TouchSession(s.db, sessionID); err != nil {
		log.Printf("server: touch session %s: %v", sessionID, err)
	}
	respondOK(c, sb)
}

type createSandboxRequest struct {
	BranchName   string `json:"branchName"`
	RepoURL      string `json:"repoUrl" binding:"required"`
	GithubToken  string `json:"githubToken" binding:"required"`
	Mode         string `json:"mode"`
	OrgID        string `json:"orgId"`
	ServicesMode string `json:"servicesMode"`
}

func (s *Server) handleCreateSandbox(c *gin.Context) {
	var req createSandboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
		return
	}
	projectID, sessionID := c.Param("projectId"), c.Param("sessionId")

	branch := req.BranchName
	if branch == "" {
		session, err := project.GetSession(s.db, sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		branch = session.BranchName
	}

	sb, err := s.registry.Create(c.Request.Context(), sandbox.CreateParams{
		ProjectID:    projectID,
		SessionID:    sessionID,
		BranchName:   branch,
		RepoURL:      req.RepoURL,
		GithubToken:  req.GithubToken,
		Mode:         req.Mode,
		OrgID:        req.OrgID,
		ServicesMode: req.ServicesMode,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondCreated(c, sb)
}

func (s *Server) handleStopSandbox(c *gin.Context) {
	if err := s.registry.Stop(c.Request.Context(), c.Param("projectId"), c.Param("sessionId")); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, nil)
}

func (s *Server) handleTeardownSandbox(c *gin.Context) {
	if err := s.registry.Teardown(c.Request.Context(), c.Param("projectId"), c.Param("sessionId")); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, nil)
}

func (s *Server) handleSandboxHealth(c *gin.Context) {
	health, err := s.health.Check(c.Request.Context(), c.Param("projectId"), c.Param("sessionId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, health)
}

func (s *Server) handleListSandboxes(c *gin.Context) {
	list, err := s.registry.ListProject(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, list)
}

type createSessionRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
		return
	}
	session, err := project.CreateSession(s.db, c.Param("projectId"), req.Title)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondCreated(c, session)
}

type triggerJobRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}

func (s *Server) handleTriggerEnvironment(c *gin.Context) {
	var req triggerJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
		return
	}
	job, err := s.dispatcher.TriggerEnvironment(c.Request.Context(), c.Param("projectId"), req.SessionID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondCreated(c, job)
}

func (s *Server) handleConfirmEnvironment(c *gin.Context) {
	err := s.dispatcher.ConfirmEnvironment(c.Request.Context(), c.Param("projectId"), c.Param("jobId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, nil)
}

func (s *Server) handleCancelEnvironment(c *gin.Context) {
	result, err := s.dispatcher.CancelEnvironment(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

type triggerBuildRequest struct {
	TotalTickets int `json:"totalTickets" binding:"required"`
}

func (s *Server) handleTriggerBuild(c *gin.Context) {
	var req triggerBuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
		return
	}
	job, err := s.builds.Trigger(c.Request.Context(), c.Param("projectId"), c.Param("sessionId"), req.TotalTickets)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondCreated(c, job)
}

func (s *Server) handleGetBuild(c *gin.Context) {
	job, err := s.builds.Get(c.Param("jobId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, job)
}

func (s *Server) handleLatestBuild(c *gin.Context) {
	job, err := s.builds.Latest(c.Param("sessionId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, job)
}

func (s *Server) handleBuildProgress(c *gin.Context) {
	var report queue.ProgressReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
		return
	}
	if err := s.builds.ReportProgress(c.Param("jobId"), report); err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, nil)
}

type cancelBuildRequest struct {
	GithubToken string `json:"githubToken"`
}

func (s *Server) handleCancelBuild(c *gin.Context) {
	var req cancelBuildRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
			return
		}
	}
	result, err := s.builds.Cancel(c.Request.Context(), build.CancelParams{
		BuildJobID:  c.Param("jobId"),
		GithubToken: req.GithubToken,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

func (s *Server) handleRestartBuild(c *gin.Context) {
	job, err := s.builds.Restart(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondCreated(c, job)
}

type submitBuildRequest struct {
	GithubToken string `json:"githubToken" binding:"required"`
}

func (s *Server) handleSubmitBuild(c *gin.Context) {
	var req submitBuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
		return
	}
	sub, err := s.builds.Submit(c.Request.Context(), c.Param("jobId"), req.GithubToken)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, sub)
}

func (s *Server) handleTriggerDeploy(c *gin.Context) {
	var req triggerJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
		return
	}
	job, err := s.dispatcher.TriggerDeploy(c.Request.Context(), c.Param("projectId"), req.SessionID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondCreated(c, job)
}

func (s *Server) handleCancelDeploy(c *gin.Context) {
	result, err := s.dispatcher.CancelDeploy(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

type triggerVamosRequest struct {
	SessionID   string `json:"sessionId" binding:"required"`
	TotalPhases int    `json:"totalPhases" binding:"required"`
}

func (s *Server) handleTriggerVamos(c *gin.Context) {
	var req triggerVamosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
		return
	}
	job, err := s.dispatcher.TriggerVamos(c.Request.Context(), c.Param("projectId"), req.SessionID, req.TotalPhases)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondCreated(c, job)
}

func (s *Server) handleCancelVamos(c *gin.Context) {
	result, err := s.dispatcher.CancelVamos(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, result)
}

type toggleMaintenanceRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) handleToggleMaintenance(c *gin.Context) {
	var req toggleMaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
		return
	}
	cfg, err := s.scheduler.Toggle(c.Request.Context(), c.Param("projectId"), c.Param("jobType"), *req.Enabled)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, cfg)
}
