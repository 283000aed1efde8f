package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/rollcall/internal/api"
	"github.com/roach88/rollcall/internal/attendance"
)

// sheetFromPath reads :date, :scope and the optional ?type= query.
func sheetFromPath(c *gin.Context) (attendance.Sheet, error) {
	sheet := attendance.Sheet{
		Date:        attendance.Date(c.Param("date")),
		ScopeID:     c.Param("scope"),
		SubjectType: attendance.SubjectType(c.Query("type")),
	}
	return sheet.Normalize(false)
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.svc.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, api.HealthResponse{Status: "error", Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, api.HealthResponse{Status: "healthy"})
}

func (s *Server) handleGet(c *gin.Context) {
	sheet, err := sheetFromPath(c)
	if err != nil {
		writeError(c, err, false)
		return
	}

	records, err := s.svc.Get(c.Request.Context(), sheet)
	if err != nil {
		writeError(c, err, false)
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}

	c.JSON(http.StatusOK, api.SheetResponse{
		Date:        sheet.Date,
		ScopeID:     sheet.ScopeID,
		SubjectType: sheet.SubjectType,
		Records:     records,
	})
}

func (s *Server) handleCommit(c *gin.Context) {
	var req api.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, attendance.Invalid("body", "malformed JSON: %v", err), false)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(c, validationError(err), false)
		return
	}

	sheet, err := sheetFromPath(c)
	if err != nil {
		writeError(c, err, false)
		return
	}
	sheet.SubjectType = attendance.SubjectType(req.SubjectType)

	entries := req.ToEntries()
	if err := s.svc.BulkUpsert(c.Request.Context(), sheet, entries, editorFrom(c)); err != nil {
		writeError(c, err, false)
		return
	}
	c.JSON(http.StatusOK, api.CommitResponse{Written: len(entries)})
}

func (s *Server) handleInitialize(c *gin.Context) {
	sheet, err := sheetFromPath(c)
	if err != nil {
		writeError(c, err, false)
		return
	}
	if sheet.SubjectType == "" {
		sheet.SubjectType = attendance.SubjectPlayer
	}

	created, err := s.svc.Initialize(c.Request.Context(), sheet)
	if err != nil {
		writeError(c, err, true)
		return
	}
	c.JSON(http.StatusOK, api.InitializeResponse{Created: created})
}
