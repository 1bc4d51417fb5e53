package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Brownie44l1/plant-identifier/internal/model"
	"github.com/Brownie44l1/plant-identifier/internal/preprocess"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	msgModelNotLoaded  = "Model not loaded properly"
	msgNoFile          = "No image file provided. Use 'file' as the form field name"
	msgPredictFailed   = "Prediction failed"
	msgPreprocessError = "Failed to preprocess image"
)

type Handler struct {
	predictor model.Predictor
	maxBytes  int64
	logger    *zap.Logger
}

func NewHandler(predictor model.Predictor, maxBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		predictor: predictor,
		maxBytes:  maxBytes,
		logger:    logger.Named("predict"),
	}
}

// Register mounts the prediction API on router.
func (h *Handler) Register(router gin.IRouter) {
	router.GET("/health", h.Health)

	api := router.Group("/api")
	api.POST("/predict/", h.Predict)
	api.POST("/predict", h.Predict)
	api.POST("/predict/tensor", h.PredictTensor)
	api.GET("/classes", h.Classes)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": h.predictor.Ready(),
	})
}

func (h *Handler) Classes(c *gin.Context) {
	md := h.predictor.Metadata()
	c.JSON(http.StatusOK, gin.H{
		"classes":    md.Classes,
		"image_size": md.ImageSize,
	})
}

// PredictTensor classifies a raw, already preprocessed input tensor.
func (h *Handler) PredictTensor(c *gin.Context) {
	if !h.predictor.Ready() {
		respondError(c, http.StatusServiceUnavailable, msgModelNotLoaded)
		return
	}

	var req model.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid JSON")
		return
	}

	expectedSize := h.predictor.Metadata().InputSize()
	if len(req.Image) != expectedSize {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("Expected %d values, got %d", expectedSize, len(req.Image)))
		return
	}

	result, err := h.predictor.Predict(req.Image)
	if err != nil {
		h.logger.Error("tensor prediction failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, msgPredictFailed)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Predict classifies an uploaded JPEG or PNG sent as the multipart field "file".
func (h *Handler) Predict(c *gin.Context) {
	if !h.predictor.Ready() {
		respondError(c, http.StatusOK, msgModelNotLoaded)
		return
	}

	if c.Request.ContentLength > h.maxBytes {
		h.tooLarge(c)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.tooLarge(c)
			return
		}
		respondError(c, http.StatusBadRequest, msgNoFile)
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()

	h.logger.Debug("received file", zap.String("name", header.Filename), zap.Int64("bytes", header.Size))

	img, format, err := preprocess.Decode(file)
	if err != nil {
		respondError(c, http.StatusBadRequest, preprocess.ErrUnsupportedFormat.Error())
		return
	}

	md := h.predictor.Metadata()
	input, err := preprocess.Tensor(img, preprocess.Options{
		Size:   md.ImageSize,
		Layout: md.Layout,
		Scale:  md.PixelScale(),
	})
	if err != nil {
		h.logger.Error("preprocessing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, msgPreprocessError)
		return
	}

	result, err := h.predictor.Predict(input)
	if err != nil {
		if errors.Is(err, model.ErrNotLoaded) {
			respondError(c, http.StatusOK, msgModelNotLoaded)
			return
		}
		h.logger.Error("prediction failed", zap.String("name", header.Filename), zap.Error(err))
		respondError(c, http.StatusInternalServerError, msgPredictFailed)
		return
	}

	h.logger.Info("prediction",
		zap.String("name", header.Filename),
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
		zap.String("class", result.Class),
		zap.Float32("confidence", result.Confidence))

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"prediction": result.Class,
		"confidence": result.Confidence,
	})
}

func (h *Handler) tooLarge(c *gin.Context) {
	respondError(c, http.StatusRequestEntityTooLarge,
		fmt.Sprintf("File size exceeds limit of %dMB", h.maxBytes>>20))
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   message,
	})
}
