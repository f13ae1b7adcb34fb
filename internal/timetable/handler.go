package timetable

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"timetabler/internal/extract"
	"timetabler/internal/intake"
	"timetabler/internal/logging"
	"timetabler/internal/normalize"
	"timetabler/pkg/models"
)

// DefaultMaxUpload caps the size of an uploaded document.
const DefaultMaxUpload = 20 << 20

// Reader is the read side of the timetable store.
type Reader interface {
	Get(ctx context.Context, id string) (*models.Timetable, error)
	List(ctx context.Context) ([]models.TimetableSummary, error)
}

type Handler struct {
	Service   *Service
	Repo      Reader
	Taxonomy  TaxonomySource
	Colors    normalize.Normalizer
	MaxUpload int64
	// Guard runs before the upload route; nil means open.
	Guard gin.HandlerFunc

	log *zap.Logger
}

func NewHandler(svc *Service, repo Reader, tax TaxonomySource, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Service:   svc,
		Repo:      repo,
		Taxonomy:  tax,
		Colors:    svc.deps.Normalizer,
		MaxUpload: DefaultMaxUpload,
		log:       log.Named("http"),
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	upload := []gin.HandlerFunc{h.upload}
	if h.Guard != nil {
		upload = append([]gin.HandlerFunc{h.Guard}, upload...)
	}
	rg.POST("/upload", upload...)                 // POST /upload
	rg.GET("/timetable/:id", h.get)               // GET /timetable/:id
	rg.GET("/timetables", h.list)                 // GET /timetables
	rg.GET("/taxonomy/:level/:grade", h.subjects) // GET /taxonomy/elementary/1
}

func (h *Handler) upload(c *gin.Context) {
	if c.Request.ContentLength > h.MaxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUpload)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}

	level, grade, err := ResolveGrade(c.PostForm("level"), c.PostForm("grade"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}

	kind, err := intake.Detect(fh.Header.Get("Content-Type"), fh.Filename, data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tt, err := h.Service.Process(c.Request.Context(), Document{Kind: kind, Data: data}, level, grade)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tt)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "processing failed"

	var fe *extract.FailedError
	switch {
	case IsClientError(err):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.As(err, &fe) && fe.Timeout:
		status, msg = http.StatusGatewayTimeout, fe.Error()
	case errors.As(err, &fe):
		status, msg = http.StatusBadGateway, fe.Error()
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("upload failed",
			zap.String("request_id", logging.RequestID(c)),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}

// get answers with the stored document itself, without the id wrapper
// that /upload returns.
func (h *Handler) get(c *gin.Context) {
	tt, err := h.Repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	if tt == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, tt.Data)
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.Repo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"timetables": items})
}

type subjectView struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
	Color   string   `json:"color"`
}

func (h *Handler) subjects(c *gin.Context) {
	level, grade, err := ResolveGrade(c.Param("level"), c.Param("grade"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, ok := h.Taxonomy.Current().Lookup(level, grade)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no subjects for grade"})
		return
	}

	out := make([]subjectView, 0, len(b.Subjects))
	for _, s := range b.Subjects {
		out = append(out, subjectView{Name: s.Name, Aliases: s.Aliases, Color: h.Colors.Color(s)})
	}
	c.JSON(http.StatusOK, gin.H{
		"school_level": level,
		"grade":        grade,
		"label":        GradeLabel(level, grade),
		"subjects":     out,
	})
}
