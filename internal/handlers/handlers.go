package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mssola/useragent"

	"github.com/propertyafrica/kyc-api/internal/auth"
	"github.com/propertyafrica/kyc-api/internal/imagedecode"
	"github.com/propertyafrica/kyc-api/internal/repository"
	"github.com/propertyafrica/kyc-api/internal/usecase"
	"github.com/propertyafrica/kyc-api/internal/verifier"
)

// MaxUploadSize is the default per-document upload limit.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and form fields on top of the
// image itself.
const multipartOverhead = 1 << 20

// Service is the KYC document flow the handlers drive.
type Service interface {
	VerifyDocument(ctx context.Context, req usecase.VerifyRequest) (string, verifier.Result, error)
	GetResult(ctx context.Context, userID, requestID string) (*repository.VerificationLog, error)
	GetDuplicateReport(ctx context.Context, userID, requestID string) (*usecase.DuplicateReport, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// Options tunes route registration.
type Options struct {
	MaxUploadSize int64
	CORSOrigins   []string
	Metrics       http.Handler
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc Service, authMiddleware gin.HandlerFunc, opts Options) {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = MaxUploadSize
	}
	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig(opts.CORSOrigins)))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	kyc := router.Group("/kyc", authMiddleware)
	kyc.POST("/documents", verifyDocument(svc, opts.MaxUploadSize))
	kyc.GET("/documents/:id", getResult(svc))
	kyc.GET("/documents/:id/duplicates", getDuplicates(svc))
	kyc.GET("/metrics", auth.RequireRole(auth.RoleAdmin), getMetrics(svc))
}

func verifyDocument(svc Service, maxUpload int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload+multipartOverhead)

		file, err := c.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > maxUpload {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		if mime := imagedecode.Sniff(data); !imagedecode.IsSupported(mime) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": fmt.Sprintf("unsupported content type %s", mime)})
			return
		}

		docType, err := usecase.ParseDocumentType(c.PostForm("document_type"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		requestID, result, err := svc.VerifyDocument(c.Request.Context(), usecase.VerifyRequest{
			UserID:       userID,
			DocumentType: docType,
			ClientDevice: clientDevice(c.Request.UserAgent()),
			Image:        data,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification could not be recorded"})
			return
		}

		errs := result.Errors
		if errs == nil {
			errs = []string{}
		}
		c.JSON(http.StatusOK, gin.H{
			"request_id":    requestID,
			"document_type": docType,
			"isValid":       result.IsValid,
			"faceMatched":   result.FaceMatched,
			"extractedText": result.ExtractedText,
			"errors":        errs,
		})
	}
}

func getResult(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		log, err := svc.GetResult(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			respondLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, log)
	}
}

func getDuplicates(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())
		report, err := svc.GetDuplicateReport(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			respondLookupError(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

func getMetrics(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "metrics unavailable"})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
}

// clientDevice renders a short description such as "Chrome 120.0 on Android 14".
func clientDevice(header string) string {
	if header == "" {
		return ""
	}
	ua := useragent.New(header)
	name, version := ua.Browser()
	device := name
	if version != "" {
		device += " " + version
	}
	if os := ua.OS(); os != "" {
		device += " on " + os
	}
	if ua.Mobile() {
		device += " (mobile)"
	}
	if len(device) > 128 {
		device = device[:128]
	}
	return device
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "Content-Length", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
