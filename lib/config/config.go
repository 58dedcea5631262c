// Package config turns the SSM parameters fetched at cold start into an
// explicit Config value that is handed to each component's constructor.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"tsa/lib/constants"
)

// DatabaseConfig holds the compliance database connection settings.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	Username string
	Password string
	SSLMode  string
}

// TablesConfig names the DynamoDB tables used by the enrollment workflow.
type TablesConfig struct {
	Enrollments string
	Invitations string
	Events      string
}

// Config is the full runtime configuration of the parent enrollment Lambda.
type Config struct {
	IsLocal              bool
	Region               string
	Database             DatabaseConfig
	Tables               TablesConfig
	DocumentsBucket      string
	EnrollmentTopicARN   string
	ParentUserPoolID     string
	SchoolID             int64
	MaxDocumentSizeBytes int
}

const defaultMaxDocumentSizeBytes = 10 * 1024 * 1024

// New builds a Config from the SSM parameter map. Database and table
// settings are required; the topic and user pool are optional and their
// collaborators become no-ops when unset.
func New(params map[string]string, isLocal bool, region string) (*Config, error) {
	if region == "" {
		region = constants.DEFAULT_REGION
	}

	cfg := &Config{
		IsLocal: isLocal,
		Region:  region,
		Database: DatabaseConfig{
			Host:     params[constants.DATABASE_RDS_ENDPOINT],
			Port:     params[constants.DATABASE_PORT],
			Name:     params[constants.DATABASE_NAME],
			Username: params[constants.DATABASE_USERNAME],
			Password: params[constants.DATABASE_PASSWORD],
			SSLMode:  params[constants.SSL_MODE],
		},
		Tables: TablesConfig{
			Enrollments: params[constants.ENROLLMENTS_TABLE],
			Invitations: params[constants.INVITATIONS_TABLE],
			Events:      params[constants.EVENTS_TABLE],
		},
		DocumentsBucket:      params[constants.DOCUMENTS_BUCKET],
		EnrollmentTopicARN:   params[constants.ENROLLMENT_TOPIC_ARN],
		ParentUserPoolID:     params[constants.PARENT_USER_POOL_ID],
		MaxDocumentSizeBytes: defaultMaxDocumentSizeBytes,
	}

	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "require"
	}

	required := map[string]string{
		constants.DATABASE_RDS_ENDPOINT: cfg.Database.Host,
		constants.DATABASE_PORT:         cfg.Database.Port,
		constants.DATABASE_NAME:         cfg.Database.Name,
		constants.DATABASE_USERNAME:     cfg.Database.Username,
		constants.ENROLLMENTS_TABLE:     cfg.Tables.Enrollments,
		constants.INVITATIONS_TABLE:     cfg.Tables.Invitations,
		constants.EVENTS_TABLE:          cfg.Tables.Events,
		constants.DOCUMENTS_BUCKET:      cfg.DocumentsBucket,
		constants.EDFI_SCHOOL_ID:        params[constants.EDFI_SCHOOL_ID],
	}
	var missing []string
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required parameters: %s", strings.Join(missing, ", "))
	}

	schoolID, err := strconv.ParseInt(params[constants.EDFI_SCHOOL_ID], 10, 64)
	if err != nil || schoolID <= 0 {
		return nil, fmt.Errorf("invalid %s: %q", constants.EDFI_SCHOOL_ID, params[constants.EDFI_SCHOOL_ID])
	}
	cfg.SchoolID = schoolID

	return cfg, nil
}
