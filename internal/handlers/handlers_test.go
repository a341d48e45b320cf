package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/propertyafrica/kyc-api/internal/auth"
	"github.com/propertyafrica/kyc-api/internal/repository"
	"github.com/propertyafrica/kyc-api/internal/usecase"
	"github.com/propertyafrica/kyc-api/internal/verifier"
)

const testJWTSecret = "test-secret"

type stubService struct {
	lastRequest usecase.VerifyRequest
	result      verifier.Result
	verifyErr   error
	log         *repository.VerificationLog
	lookupErr   error
}

func (s *stubService) VerifyDocument(ctx context.Context, req usecase.VerifyRequest) (string, verifier.Result, error) {
	s.lastRequest = req
	return "req-1", s.result, s.verifyErr
}

func (s *stubService) GetResult(ctx context.Context, userID, requestID string) (*repository.VerificationLog, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.log, nil
}

func (s *stubService) GetDuplicateReport(ctx context.Context, userID, requestID string) (*usecase.DuplicateReport, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return &usecase.DuplicateReport{Request: s.log, Duplicates: []*repository.VerificationLog{}}, nil
}

func (s *stubService) GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error) {
	return &usecase.MetricsSummary{TotalRequests: 7}, nil
}

func newTestRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, svc, auth.JWTMiddleware(testJWTSecret, ""), Options{CORSOrigins: []string{"*"}})
	return router
}

func TestVerifyRejectsLargeUpload(t *testing.T) {
	router := newTestRouter(&stubService{})

	token := buildTestToken(t, "user-123", auth.RoleSeller)
	body, contentType := buildMultipartBody(t, "image/png", bytes.Repeat([]byte("a"), MaxUploadSize+1), "national_id")

	resp := serve(router, http.MethodPost, "/kyc/documents", body, contentType, token)

	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestVerifyRejectsUnsupportedContentType(t *testing.T) {
	router := newTestRouter(&stubService{})

	token := buildTestToken(t, "user-123", auth.RoleSeller)
	body, contentType := buildMultipartBody(t, "text/plain", []byte("hello"), "national_id")

	resp := serve(router, http.MethodPost, "/kyc/documents", body, contentType, token)

	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected status %d, got %d", http.StatusUnsupportedMediaType, resp.Code)
	}
}

func TestVerifyRejectsUnknownDocumentType(t *testing.T) {
	router := newTestRouter(&stubService{})

	token := buildTestToken(t, "user-123", auth.RoleBuyer)
	body, contentType := buildMultipartBody(t, "image/png", pngPayload(t), "selfie")

	resp := serve(router, http.MethodPost, "/kyc/documents", body, contentType, token)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.Code)
	}
}

func TestVerifyRequiresToken(t *testing.T) {
	router := newTestRouter(&stubService{})
	body, contentType := buildMultipartBody(t, "image/png", pngPayload(t), "passport")

	resp := serve(router, http.MethodPost, "/kyc/documents", body, contentType, "")

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, resp.Code)
	}
}

func TestVerifyReturnsVerdict(t *testing.T) {
	svc := &stubService{result: verifier.Result{
		IsValid:       false,
		FaceMatched:   false,
		ExtractedText: "REPUBLIC OF GHANA",
		Errors:        []string{verifier.NoFaceDetected},
	}}
	router := newTestRouter(svc)

	token := buildTestToken(t, "user-123", auth.RoleAgent)
	body, contentType := buildMultipartBody(t, "image/png", pngPayload(t), "passport")

	resp := serve(router, http.MethodPost, "/kyc/documents", body, contentType, token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		RequestID     string   `json:"request_id"`
		DocumentType  string   `json:"document_type"`
		IsValid       bool     `json:"isValid"`
		FaceMatched   bool     `json:"faceMatched"`
		ExtractedText string   `json:"extractedText"`
		Errors        []string `json:"errors"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if payload.RequestID != "req-1" || payload.DocumentType != "passport" || payload.IsValid {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if len(payload.Errors) != 1 || payload.Errors[0] != verifier.NoFaceDetected {
		t.Fatalf("unexpected errors: %v", payload.Errors)
	}
	if svc.lastRequest.UserID != "user-123" || svc.lastRequest.DocumentType != usecase.DocumentPassport {
		t.Fatalf("unexpected request: %+v", svc.lastRequest)
	}
}

func TestGetResultNotFound(t *testing.T) {
	router := newTestRouter(&stubService{lookupErr: repository.ErrNotFound})
	token := buildTestToken(t, "user-123", auth.RoleBuyer)

	resp := serve(router, http.MethodGet, "/kyc/documents/missing", nil, "", token)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}

	resp = serve(router, http.MethodGet, "/kyc/documents/missing/duplicates", nil, "", token)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestGetResultReturnsLog(t *testing.T) {
	router := newTestRouter(&stubService{log: &repository.VerificationLog{RequestID: "req-1", UserID: "user-123", IsValid: true, Errors: []string{}}})
	token := buildTestToken(t, "user-123", auth.RoleBuyer)

	resp := serve(router, http.MethodGet, "/kyc/documents/req-1", nil, "", token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var log repository.VerificationLog
	if err := json.Unmarshal(resp.Body.Bytes(), &log); err != nil {
		t.Fatalf("invalid response json: %v", err)
	}
	if log.RequestID != "req-1" || !log.IsValid {
		t.Fatalf("unexpected log: %+v", log)
	}
}

func TestMetricsRequiresAdmin(t *testing.T) {
	router := newTestRouter(&stubService{})

	resp := serve(router, http.MethodGet, "/kyc/metrics", nil, "", buildTestToken(t, "user-123", auth.RoleSeller))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}

	resp = serve(router, http.MethodGet, "/kyc/metrics", nil, "", buildTestToken(t, "ops", auth.RoleAdmin))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
}

func TestClientDevice(t *testing.T) {
	ua := "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	got := clientDevice(ua)
	if got == "" || !bytes.Contains([]byte(got), []byte("Chrome")) || !bytes.Contains([]byte(got), []byte("(mobile)")) {
		t.Fatalf("unexpected device description: %q", got)
	}
	if clientDevice("") != "" {
		t.Fatal("expected empty description for missing header")
	}
}

func serve(router *gin.Engine, method, path string, body *bytes.Buffer, contentType, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, body)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func pngPayload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func buildMultipartBody(t *testing.T, contentType string, payload []byte, documentType string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if documentType != "" {
		if err := writer.WriteField("document_type", documentType); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func buildTestToken(t *testing.T, subject, role string) string {
	t.Helper()

	claims := auth.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
