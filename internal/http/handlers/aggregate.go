package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/aggsync/internal/data/aggregates"
	"github.com/yungbote/aggsync/internal/data/repos"
	"github.com/yungbote/aggsync/internal/http/response"
	"github.com/yungbote/aggsync/internal/platform/apierr"
	"github.com/yungbote/aggsync/internal/platform/dbctx"
	"github.com/yungbote/aggsync/internal/platform/logger"
)

type AggregateHandler struct {
	log    *logger.Logger
	engine *aggregates.Engine
	runs   repos.RefreshRunRepo
}

func NewAggregateHandler(log *logger.Logger, engine *aggregates.Engine, runs repos.RefreshRunRepo) *AggregateHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AggregateHandler{log: log.With("handler", "AggregateHandler"), engine: engine, runs: runs}
}

// GET /api/aggregates
func (h *AggregateHandler) List(c *gin.Context) {
	response.RespondOK(c, gin.H{"aggregates": h.engine.Registry().All()})
}

// GET /api/aggregates/:name/parents/:id
func (h *AggregateHandler) Compute(c *gin.Context) {
	name, id := c.Param("name"), strings.TrimSpace(c.Param("id"))
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	stored, found, err := h.engine.Stored(dbc, name, id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if !found {
		response.RespondErr(c, apierr.NotFound("parent_not_found", fmt.Errorf("no parent %q for %s", id, name)))
		return
	}
	v, err := h.engine.Compute(dbc, name, id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"definition": name, "parent_id": id, "value": v, "stored": stored, "in_sync": v.Equal(stored)})
}

// POST /api/aggregates/:name/parents/:id/refresh
func (h *AggregateHandler) UpdateParent(c *gin.Context) {
	name, id := c.Param("name"), strings.TrimSpace(c.Param("id"))
	res, err := h.engine.Update(dbctx.Context{Ctx: c.Request.Context()}, name, id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if !res.Resolved {
		response.RespondErr(c, apierr.NotFound("parent_not_found", fmt.Errorf("no parent %q for %s", id, name)))
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}

// POST /api/aggregates/:name/refresh
func (h *AggregateHandler) Refresh(c *gin.Context) {
	report, err := h.engine.Refresh(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report": report})
}

type refreshAllRequest struct {
	Names []string `json:"names"`
}

// POST /api/aggregates/refresh
func (h *AggregateHandler) RefreshAll(c *gin.Context) {
	var req refreshAllRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondErr(c, apierr.BadRequest("invalid_request", err))
			return
		}
	}
	reports, err := h.engine.RefreshAll(c.Request.Context(), req.Names...)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reports": reports})
}

// GET /api/aggregates/:name/verify
func (h *AggregateHandler) Verify(c *gin.Context) {
	report, err := h.engine.Verify(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"report": report, "ok": report.OK()})
}

// GET /api/aggregates/:name/runs?limit=N
func (h *AggregateHandler) Runs(c *gin.Context) {
	def, err := h.engine.Registry().Lookup(c.Param("name"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	limit := 20
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			response.RespondErr(c, apierr.BadRequest("invalid_limit", fmt.Errorf("limit must be 1..500, got %q", raw)))
			return
		}
		limit = n
	}
	if h.runs == nil {
		response.RespondOK(c, gin.H{"runs": []any{}})
		return
	}
	runs, err := h.runs.ListRecent(dbctx.Context{Ctx: c.Request.Context()}, def.Name, limit)
	if err != nil {
		h.log.Error("list refresh runs failed", "definition", def.Name, "error", err)
		response.RespondErr(c, apierr.New(http.StatusInternalServerError, "list_runs_failed", err))
		return
	}
	response.RespondOK(c, gin.H{"runs": runs})
}
