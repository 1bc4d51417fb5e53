package ui

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/Brownie44l1/plant-identifier/internal/upload"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/starfederation/datastar-go/datastar"
	"go.uber.org/zap"
)

const (
	// SessionName is the cookie that binds a browser to its form.
	SessionName = "plantid"
	formIDKey   = "form_id"

	Title = "Medicinal Plant Identifier"
)

// NewSessionStore returns the cookie store used for form sessions.
func NewSessionStore(secret string) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.MaxAge(86400)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	return store
}

type Options struct {
	Registry *upload.Registry
	Previews *upload.Previews
	Sessions sessions.Store
	MaxBytes int64
	Logger   *zap.Logger
}

type Handlers struct {
	registry  *upload.Registry
	previews  *upload.Previews
	sessions  sessions.Store
	templates *template.Template
	maxBytes  int64
	logger    *zap.Logger
}

func NewHandlers(opts Options) (*Handlers, error) {
	tmpl, err := Templates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		registry:  opts.Registry,
		previews:  opts.Previews,
		sessions:  opts.Sessions,
		templates: tmpl,
		maxBytes:  opts.MaxBytes,
		logger:    logger.Named("ui"),
	}, nil
}

func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/", h.Page)

	ui := router.Group("/ui")
	ui.GET("/form", h.Form)
	ui.POST("/select", h.Select)
	ui.GET("/preview/:id", h.Preview)
	ui.POST("/submit", h.Submit)
}

type pageData struct {
	Title       string
	DatastarURL string
	Form        upload.View
}

func (h *Handlers) Page(c *gin.Context) {
	_, form := h.form(c)
	c.Render(http.StatusOK, render.HTML{
		Template: h.templates,
		Name:     "page",
		Data: pageData{
			Title:       Title,
			DatastarURL: DatastarURL,
			Form:        form.View(),
		},
	})
}

// Form renders the current form fragment.
func (h *Handlers) Form(c *gin.Context) {
	_, form := h.form(c)
	h.fragment(c, http.StatusOK, form.View())
}

// Select applies a drop or picker selection sent as one or more "file" parts
// and answers with the re-rendered fragment.
func (h *Handlers) Select(c *gin.Context) {
	id, form := h.form(c)
	status := http.StatusOK

	files, err := h.readFiles(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		} else {
			status = http.StatusUnprocessableEntity
		}
		h.logger.Debug("unreadable selection", zap.Error(err))
		files = nil
	}

	err = form.Select(files)
	if errors.Is(err, upload.ErrClosed) {
		// Swept between lookup and use.
		form = h.registry.Get(id)
		err = form.Select(files)
	}
	if err != nil && status == http.StatusOK {
		status = http.StatusUnprocessableEntity
	}

	h.fragment(c, status, form.View())
}

func (h *Handlers) readFiles(c *gin.Context) ([]upload.File, error) {
	if c.Request.ContentLength > h.maxBytes {
		return nil, &http.MaxBytesError{Limit: h.maxBytes}
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	mf, err := c.MultipartForm()
	if err != nil {
		return nil, err
	}

	headers := mf.File["file"]
	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", fh.Filename, err)
		}
		files = append(files, upload.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Preview serves the image behind a preview handle until it is released.
func (h *Handlers) Preview(c *gin.Context) {
	f, ok := h.previews.Open(c.Param("id"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Cache-Control", "private, no-store")
	c.Data(http.StatusOK, f.ContentType, f.Data)
}

// Submit streams the loading state, sends the selected image for
// prediction and streams the outcome.
func (h *Handlers) Submit(c *gin.Context) {
	id, form := h.form(c)
	run, startErr := form.Start(c.Request.Context())
	if errors.Is(startErr, upload.ErrClosed) {
		// Swept between lookup and use.
		form = h.registry.Get(id)
		run, startErr = form.Start(c.Request.Context())
	}

	sse := datastar.NewSSE(c.Writer, c.Request)
	if err := h.patch(sse, form.View()); err != nil {
		_ = sse.ConsoleError(err)
	}
	if startErr != nil {
		h.logger.Debug("submit refused", zap.Error(startErr))
		return
	}

	if err := run(); err != nil {
		if errors.Is(err, upload.ErrSuperseded) {
			return
		}
		_ = sse.ConsoleError(err)
		return
	}

	if err := h.patch(sse, form.View()); err != nil {
		_ = sse.ConsoleError(err)
	}
}

// form resolves the caller's form, issuing a session cookie on first use.
func (h *Handlers) form(c *gin.Context) (string, *upload.Form) {
	session, err := h.sessions.Get(c.Request, SessionName)
	if err != nil {
		h.logger.Debug("discarding unreadable session", zap.Error(err))
	}

	id, _ := session.Values[formIDKey].(string)
	if id == "" {
		id = uuid.NewString()
		session.Values[formIDKey] = id
		if err := session.Save(c.Request, c.Writer); err != nil {
			h.logger.Warn("failed to save session", zap.Error(err))
		}
	}
	return id, h.registry.Get(id)
}

func (h *Handlers) fragment(c *gin.Context, status int, v upload.View) {
	c.Render(status, render.HTML{Template: h.templates, Name: "form", Data: v})
}

func (h *Handlers) patch(sse *datastar.ServerSentEventGenerator, v upload.View) error {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, "form", v); err != nil {
		return fmt.Errorf("render form: %w", err)
	}
	return sse.PatchElements(buf.String())
}
