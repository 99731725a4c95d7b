package httpapi

import (
	"net/http"

	"mailsync/internal/apperr"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerKanbanRoutes(v1 *gin.RouterGroup) {
	k := v1.Group("/kanban/columns")
	k.GET("", s.listColumns)
	k.POST("", s.createColumn)
	k.POST("/initialize", s.initializeColumns)
	k.PATCH("/:id", s.updateColumn)
	k.DELETE("/:id", s.deleteColumn)
}

func (s *Server) listColumns(c *gin.Context) {
	uid := userID(c)
	columns, err := s.columnMgr.ListForUser(uid)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(columns))
	for _, col := range columns {
		out = append(out, columnView(col))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

type createColumnRequest struct {
	Title      string `json:"title" binding:"required"`
	LabelToken string `json:"labelToken"`
	ColorTag   string `json:"colorTag"`
	OrderIndex *int   `json:"orderIndex"`
	IsDefault  bool   `json:"isDefault"`
}

// createColumn implements POST /kanban/columns. orderIndex omitted
// means "append" (Manager.Create treats a negative index as omitted).
func (s *Server) createColumn(c *gin.Context) {
	uid := userID(c)
	var req createColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.New(apperr.Validation, "invalid column request", err))
		return
	}
	orderIndex := -1
	if req.OrderIndex != nil {
		orderIndex = *req.OrderIndex
	}
	col, err := s.columnMgr.Create(uid, req.Title, req.LabelToken, req.ColorTag, orderIndex, req.IsDefault)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, columnView(col))
}

type updateColumnRequest struct {
	Title      *string `json:"title"`
	LabelToken *string `json:"labelToken"`
	ColorTag   *string `json:"colorTag"`
	OrderIndex *int    `json:"orderIndex"`
}

// updateColumn implements PATCH /kanban/columns/{id}: renaming,
// recoloring, relabeling, and gap-preserving reorder all go through the
// Column Manager's single transactional Update.
func (s *Server) updateColumn(c *gin.Context) {
	uid := userID(c)
	var req updateColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.New(apperr.Validation, "invalid column update", err))
		return
	}
	col, err := s.columnMgr.Update(uid, c.Param("id"), req.Title, req.LabelToken, req.ColorTag, req.OrderIndex)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, columnView(col))
}

// deleteColumn implements DELETE /kanban/columns/{id}: forbidden
// for default columns, re-densifies remaining order indexes.
func (s *Server) deleteColumn(c *gin.Context) {
	uid := userID(c)
	if err := s.columnMgr.Delete(uid, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// initializeColumns implements POST /kanban/columns/initialize:
// idempotently seeds the default board for a user with no columns yet.
func (s *Server) initializeColumns(c *gin.Context) {
	uid := userID(c)
	columns, err := s.columnMgr.Initialize(uid)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(columns))
	for _, col := range columns {
		out = append(out, columnView(col))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}
