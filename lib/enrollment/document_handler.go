package enrollment

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"tsa/lib/api"
	"tsa/lib/apperrors"
	"tsa/lib/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultMaxDocumentSizeBytes = 10 * 1024 * 1024

// uploadDocument handles POST /enrollment/documents
func (h *Handler) uploadDocument(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var uploadRequest models.DocumentUploadRequest
	if err := api.ParseJSONBody(request.Body, &uploadRequest); err != nil {
		return api.FromError(invalidBody(err), h.Logger), nil
	}
	if err := h.Validator.ValidateRequest(&uploadRequest); err != nil {
		return api.FromError(err, h.Logger), nil
	}
	if !models.ValidDocumentType(uploadRequest.DocumentType) {
		return api.ValidationErrorResponse("Invalid document type: "+uploadRequest.DocumentType, []string{"document_type"}, h.Logger), nil
	}

	enrollment, err := h.loadEnrollment(ctx, uploadRequest.EnrollmentID)
	if err != nil {
		return api.FromError(err, h.Logger), nil
	}

	content, err := h.decodeDocument(uploadRequest.FileData)
	if err != nil {
		return api.FromError(err, h.Logger), nil
	}

	documentID := uuid.New().String()
	contentType := http.DetectContentType(content)
	key := documentKey(enrollment.EnrollmentID, uploadRequest.DocumentType, documentID, uploadRequest.FileName)

	err = h.Documents.UploadDocument(ctx, key, content, contentType, map[string]string{
		"enrollment_id": enrollment.EnrollmentID,
		"document_type": uploadRequest.DocumentType,
		"document_id":   documentID,
	})
	if err != nil {
		return api.FromError(apperrors.Internal(err), h.Logger), nil
	}

	var fileName string
	if uploadRequest.FileName != "" {
		fileName = filepath.Base(uploadRequest.FileName)
	}

	record := models.DocumentRecord{
		DocumentID:   documentID,
		DocumentType: uploadRequest.DocumentType,
		FileName:     fileName,
		S3Key:        key,
		ContentType:  contentType,
		SizeBytes:    len(content),
		Status:       models.DocumentStatusUploaded,
		UploadedAt:   h.timestamp().Format(time.RFC3339),
	}

	updated, err := h.Manager.AddDocument(ctx, enrollment.EnrollmentID, record)
	if err != nil {
		return api.FromError(storeError(err), h.Logger), nil
	}

	h.Logger.WithFields(logrus.Fields{
		"operation":     "UploadDocument",
		"enrollment_id": enrollment.EnrollmentID,
		"document_id":   documentID,
		"document_type": uploadRequest.DocumentType,
		"size_bytes":    len(content),
	}).Info("Enrollment document uploaded")

	h.audit(ctx, updated, models.AuditDocumentUploaded, 0, uploadRequest.DocumentType)

	return api.SuccessResponse(http.StatusOK, models.DocumentUploadResponse{
		DocumentID:   documentID,
		DocumentType: uploadRequest.DocumentType,
	}, h.Logger), nil
}

// decodeDocument accepts plain base64 or a data URL and enforces the size limit
func (h *Handler) decodeDocument(fileData string) ([]byte, error) {
	encoded := strings.TrimSpace(fileData)
	if strings.HasPrefix(encoded, "data:") {
		if idx := strings.Index(encoded, ","); idx >= 0 {
			encoded = encoded[idx+1:]
		}
	}

	limit := h.MaxDocumentSizeBytes
	if limit <= 0 {
		limit = defaultMaxDocumentSizeBytes
	}
	// padding trims at most two bytes off the decoded length
	if base64.StdEncoding.DecodedLen(len(encoded)) > limit+2 {
		return nil, sizeLimitError(limit)
	}

	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperrors.Validation("file_data must be base64 encoded", "file_data")
	}
	if len(content) == 0 {
		return nil, apperrors.Validation("file_data is empty", "file_data")
	}
	if len(content) > limit {
		return nil, sizeLimitError(limit)
	}
	return content, nil
}

func sizeLimitError(limit int) error {
	return apperrors.Validation(fmt.Sprintf("file exceeds the %d MiB limit", limit/(1024*1024)), "file_data")
}

// documentKey is enrollments/{enrollment_id}/{document_type}/{document_id}{ext}
func documentKey(enrollmentID, documentType, documentID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(fileName)))
	if len(ext) > 10 || strings.ContainsAny(ext, " /\\") {
		ext = ""
	}
	return fmt.Sprintf("enrollments/%s/%s/%s%s", enrollmentID, documentType, documentID, ext)
}
