package attendance

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"classroll/internal/auth"
)

// Handler exposes the service over HTTP.
type Handler struct {
	svc *Service
}

// RegisterRoutes mounts the teacher attendance routes. r must already run
// auth.TeacherAuth.
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.GET("/sessions/:id/roster", h.roster)
	r.POST("/sessions/:id/attendance", h.bulkMark)
	r.POST("/sessions/:id/attendance/mark-all", h.markAll)
	r.GET("/sessions/:id/report", h.report)
	r.PATCH("/attendance/:id", h.updateRecord)
	r.GET("/courses/:id/stats", h.courseStats)
}

// pathID parses the :id parameter; what names it in the error.
func pathID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrInvalid(what+" id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func sessionID(c *gin.Context) (int64, bool) { return pathID(c, "session") }

func fail(c *gin.Context, err error) {
	c.JSON(toHTTPStatus(err), errorBody(err))
}

func (h *Handler) roster(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	actor, _ := auth.ActorFrom(c)
	resp, err := h.svc.GetRoster(c.Request.Context(), actor.TeacherID, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) bulkMark(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req BulkMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrInvalid("request body must be JSON with attendanceRecords"))
		return
	}
	actor, _ := auth.ActorFrom(c)
	res, err := h.svc.BulkMark(c.Request.Context(), actor.TeacherID, id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) markAll(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req MarkAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrInvalid("request body must be JSON with status"))
		return
	}
	actor, _ := auth.ActorFrom(c)
	stats, err := h.svc.MarkAll(c.Request.Context(), actor, id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statistics": stats})
}

func (h *Handler) report(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	actor, _ := auth.ActorFrom(c)
	rep, err := h.svc.Report(c.Request.Context(), actor.TeacherID, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) updateRecord(c *gin.Context) {
	id, ok := pathID(c, "attendance")
	if !ok {
		return
	}
	var req UpdateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrInvalid("request body must be JSON with status or remarks"))
		return
	}
	actor, _ := auth.ActorFrom(c)
	rec, err := h.svc.UpdateRecord(c.Request.Context(), actor.TeacherID, id, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) courseStats(c *gin.Context) {
	id, ok := pathID(c, "course offering")
	if !ok {
		return
	}
	actor, _ := auth.ActorFrom(c)
	stats, err := h.svc.CourseStats(c.Request.Context(), actor.TeacherID, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
