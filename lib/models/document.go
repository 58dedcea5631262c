package models

// Document type constants
const (
	DocumentTypeBirthCertificate   = "birth_certificate"
	DocumentTypeImmunizationRecord = "immunization_records"
	DocumentTypeProofOfResidence   = "proof_of_residence"
	DocumentTypeReportCard         = "previous_report_card"
	DocumentTypePhysicalExam       = "physical_exam"
	DocumentTypeOther              = "other"
)

// Document status constants
const (
	DocumentStatusPending  = "pending"
	DocumentStatusUploaded = "uploaded"
)

// RequiredDocumentTypes are reported in documents_status until uploaded
var RequiredDocumentTypes = []string{
	DocumentTypeBirthCertificate,
	DocumentTypeImmunizationRecord,
	DocumentTypeProofOfResidence,
}

// ValidDocumentType checks if the document type is accepted for upload
func ValidDocumentType(documentType string) bool {
	switch documentType {
	case DocumentTypeBirthCertificate, DocumentTypeImmunizationRecord, DocumentTypeProofOfResidence,
		DocumentTypeReportCard, DocumentTypePhysicalExam, DocumentTypeOther:
		return true
	default:
		return false
	}
}

// DocumentRecord is the metadata kept on the enrollment for an uploaded document
type DocumentRecord struct {
	DocumentID   string `json:"document_id" dynamodbav:"document_id"`
	DocumentType string `json:"document_type" dynamodbav:"document_type"`
	FileName     string `json:"file_name,omitempty" dynamodbav:"file_name,omitempty"`
	S3Key        string `json:"s3_key" dynamodbav:"s3_key"`
	ContentType  string `json:"content_type" dynamodbav:"content_type"`
	SizeBytes    int    `json:"size_bytes" dynamodbav:"size_bytes"`
	Status       string `json:"status" dynamodbav:"status"`
	UploadedAt   string `json:"uploaded_at" dynamodbav:"uploaded_at"`
}

// DocumentUploadRequest is the body of POST /enrollment/documents
type DocumentUploadRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required,notblank"`
	DocumentType string `json:"document_type" validate:"required,notblank"`
	FileData     string `json:"file_data" validate:"required,notblank"`
	FileName     string `json:"file_name" validate:"omitempty,max=255"`
}

// DocumentUploadResponse is returned after a document is stored
type DocumentUploadResponse struct {
	DocumentID   string `json:"document_id"`
	DocumentType string `json:"document_type"`
}
