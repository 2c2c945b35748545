package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"nodue/internal/attendance"
	"nodue/internal/recognizer"
)

// Extractor turns a timetable image into slot tuples.
type Extractor interface {
	Extract(ctx context.Context, image io.Reader, filename string) ([]attendance.SlotInput, error)
}

// Handler serves the attendance API.
type Handler struct {
	svc      *attendance.Service
	rec      Extractor
	accounts *AccountHandler
}

// NewHandler builds the handler. rec may be nil when recognition is not configured.
func NewHandler(svc *attendance.Service, rec Extractor, accounts *AccountHandler) *Handler {
	return &Handler{svc: svc, rec: rec, accounts: accounts}
}

// RegisterRoutes mounts every /v1 route on r.
func RegisterRoutes(r gin.IRouter, h *Handler) {
	v1 := r.Group("/v1")

	v1.POST("/profile", h.CreateProfile)
	v1.GET("/profile", h.GetProfile)
	v1.PATCH("/profile", h.UpdateProfile)
	v1.PUT("/profile/goal", h.UpdateGoal)
	v1.POST("/profile/advanced-mode", h.ToggleAdvancedMode)

	v1.GET("/days", h.ListDays)
	v1.POST("/days/:date", h.MarkDay)
	v1.GET("/subjects", h.ListSubjects)
	v1.POST("/subjects", h.MarkSubject)

	v1.GET("/timetable", h.ListTimetable)
	v1.POST("/timetable", h.AddSlot)
	v1.DELETE("/timetable/:id", h.DeleteSlot)
	v1.POST("/timetable/import", h.ImportTimetable)

	v1.GET("/dashboard", h.Dashboard)
	v1.GET("/schedule/:date", h.Schedule)
	v1.POST("/reset", h.Reset)

	a := h.accounts
	v1.POST("/auth/signup", a.SignUp)
	v1.POST("/auth/signin", a.SignIn)
	v1.POST("/auth/refresh", a.Refresh)
	v1.POST("/auth/signout", a.SignOut)
	v1.POST("/sync", a.requireBearer(), a.Sync)
}

// ---- profile ----

func (h *Handler) CreateProfile(c *gin.Context) {
	var in attendance.ProfileInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, ErrInvalid("name, institution_name and semester are required"))
		return
	}
	p, notices := h.svc.CreateProfile(c.Request.Context(), in)
	c.JSON(http.StatusCreated, gin.H{"profile": p, "notices": notices})
}

func (h *Handler) GetProfile(c *gin.Context) {
	p, err := h.svc.Profile()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var in attendance.ProfilePatch
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, ErrInvalid("invalid json"))
		return
	}
	p, notices, err := h.svc.UpdateProfile(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p, "notices": notices})
}

func (h *Handler) UpdateGoal(c *gin.Context) {
	var in struct {
		AttendanceGoal *int `json:"attendance_goal"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.AttendanceGoal == nil {
		fail(c, ErrInvalid("attendance_goal is required"))
		return
	}
	p, notices, err := h.svc.UpdateGoal(c.Request.Context(), *in.AttendanceGoal)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p, "notices": notices})
}

// ToggleAdvancedMode flips the mode, or sets it when the body carries "enabled".
func (h *Handler) ToggleAdvancedMode(c *gin.Context) {
	var in struct {
		Enabled *bool `json:"enabled"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			fail(c, ErrInvalid("invalid json"))
			return
		}
	}
	var (
		p       attendance.Profile
		notices []attendance.Notice
		err     error
	)
	if in.Enabled != nil {
		p, notices, err = h.svc.SetAdvancedMode(c.Request.Context(), *in.Enabled)
	} else {
		p, notices, err = h.svc.ToggleAdvancedMode(c.Request.Context())
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p, "notices": notices})
}

// ---- attendance ----

func (h *Handler) ListDays(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.svc.Days()})
}

func (h *Handler) MarkDay(c *gin.Context) {
	var in struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, ErrInvalid("status is required"))
		return
	}
	status, err := attendance.ParseStatus(in.Status)
	if err != nil {
		fail(c, err)
		return
	}
	outcome, notices, err := h.svc.MarkDay(c.Request.Context(), c.Param("date"), status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome, "items": h.svc.Days(), "notices": notices})
}

func (h *Handler) ListSubjects(c *gin.Context) {
	date := strings.TrimSpace(c.Query("date"))
	if date != "" {
		if _, err := attendance.ParseDate(date); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": h.svc.Subjects(date)})
}

func (h *Handler) MarkSubject(c *gin.Context) {
	var in attendance.SubjectMark
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, ErrInvalid("date, subject_name and status are required"))
		return
	}
	outcome, notices, err := h.svc.MarkSubject(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome, "items": h.svc.Subjects(strings.TrimSpace(in.Date)), "notices": notices})
}

// ---- timetable ----

func (h *Handler) ListTimetable(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.svc.Timetable()})
}

func (h *Handler) AddSlot(c *gin.Context) {
	var in attendance.SlotInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, ErrInvalid("invalid json"))
		return
	}
	slot, notices, err := h.svc.AddSlot(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"slot": slot, "notices": notices})
}

func (h *Handler) DeleteSlot(c *gin.Context) {
	notices, err := h.svc.DeleteSlot(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id"), "notices": notices})
}

// ImportTimetable accepts either a multipart "image" for the recognizer or a
// JSON body of slot tuples. Nothing is imported unless every tuple is valid.
func (h *Handler) ImportTimetable(c *gin.Context) {
	var slots []attendance.SlotInput
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		extracted, err := h.extract(c)
		if err != nil {
			fail(c, err)
			return
		}
		slots = extracted
	} else {
		var in struct {
			Slots []attendance.SlotInput `json:"slots"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			fail(c, ErrInvalid("invalid json"))
			return
		}
		slots = in.Slots
	}

	added, notices, err := h.svc.ImportSlots(c.Request.Context(), slots)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"items": added, "notices": notices})
}

func (h *Handler) extract(c *gin.Context) ([]attendance.SlotInput, error) {
	if h.rec == nil {
		return nil, recognizer.ErrDisabled
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return nil, ErrInvalid("multipart field \"image\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, ErrInvalid("image could not be read")
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 90*time.Second)
	defer cancel()
	slots, err := h.rec.Extract(ctx, f, fh.Filename)
	if err != nil && !errors.Is(err, recognizer.ErrDisabled) && !errors.Is(err, recognizer.ErrEmptyExtraction) {
		return nil, ErrUnavailable("timetable recognition failed: " + err.Error())
	}
	return slots, err
}

// ---- views ----

func (h *Handler) Dashboard(c *gin.Context) {
	d, err := h.svc.Dashboard()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) Schedule(c *gin.Context) {
	items, err := h.svc.Schedule(c.Param("date"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": c.Param("date"), "items": items})
}

func (h *Handler) Reset(c *gin.Context) {
	notices := h.svc.Reset(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"reset": true, "notices": notices})
}

func fail(c *gin.Context, err error) {
	api := fromError(err)
	c.AbortWithStatusJSON(toHTTPStatus(api.Code), errDTO{Error: api})
}
