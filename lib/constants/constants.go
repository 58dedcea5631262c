package constants

const (
	SSM_PARAMETER_PATH     = "/tsa"
	DATABASE_RDS_ENDPOINT  = "/tsa/DATABASE_RDS_ENDPOINT"
	DATABASE_PORT          = "/tsa/DATABASE_PORT"
	DATABASE_NAME          = "/tsa/DATABASE_NAME"
	DATABASE_USERNAME      = "/tsa/DATABASE_USERNAME"
	DATABASE_PASSWORD      = "/tsa/DATABASE_PASSWORD"
	SSL_MODE               = "/tsa/SSL_MODE"
	ENROLLMENTS_TABLE      = "/tsa/ENROLLMENTS_TABLE"
	INVITATIONS_TABLE      = "/tsa/INVITATIONS_TABLE"
	EVENTS_TABLE           = "/tsa/EVENTS_TABLE"
	DOCUMENTS_BUCKET       = "/tsa/DOCUMENTS_BUCKET"
	ENROLLMENT_TOPIC_ARN   = "/tsa/ENROLLMENT_TOPIC_ARN"
	PARENT_USER_POOL_ID    = "/tsa/PARENT_USER_POOL_ID"
	EDFI_SCHOOL_ID         = "/tsa/EDFI_SCHOOL_ID"
	DRIVER_NAME            = "postgres"
	DEFAULT_REGION         = "us-east-2"
	LOCALSTACK_ENDPOINT    = "http://docker.for.mac.host.internal:4566"
	INVITATION_TOKEN_INDEX = "invitation_token-index"
)
