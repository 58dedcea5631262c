package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"tsa/lib/clients"
	"tsa/lib/config"
	"tsa/lib/data"
	"tsa/lib/enrollment"
	"tsa/lib/util"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	logger        *logrus.Logger
	isLocal       bool
	ssmRepository data.SSMRepository
	cfg           *config.Config
	sqlDB         *sql.DB
	handler       *enrollment.Handler
)

func main() {
	lambda.Start(handler.Handle)
}

func init() {
	var err error
	ctx := context.Background()

	isLocal = parseIsLocal()
	loadLocalEnv(isLocal)

	// Logger Setup
	logger = setupLogger(isLocal)

	awsCfg, err := clients.LoadAWSConfig(ctx, isLocal, os.Getenv("AWS_REGION"))
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "init",
			"error":     err.Error(),
		}).Fatal("Error loading AWS configuration")
	}

	// Retrieve all required configuration parameters from SSM
	ssmRepository = &data.SSMDao{
		SSM:    clients.NewSSMClient(awsCfg),
		Logger: logger,
	}
	ssmParams, err := ssmRepository.GetParameters(ctx)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "init",
			"error":     err.Error(),
		}).Fatal("Error while getting SSM params from parameter store")
	}

	cfg, err = config.New(ssmParams, isLocal, awsCfg.Region)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "init",
			"error":     err.Error(),
		}).Fatal("Invalid enrollment configuration")
	}

	// Initialize PostgreSQL database connection
	sqlDB, err = clients.NewPostgresSQLClient(cfg.Database)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"operation": "init",
			"error":     err.Error(),
		}).Fatal("Error setting up PostgreSQL client")
	}

	handler = setupHandler(awsCfg, cfg, sqlDB)

	logger.WithFields(logrus.Fields{
		"operation": "init",
		"school_id": cfg.SchoolID,
		"region":    cfg.Region,
	}).Info("Parent Enrollment Lambda initialization completed successfully")
}

func parseIsLocal() bool {
	isLocal, _ := strconv.ParseBool(os.Getenv("IS_LOCAL"))
	return isLocal
}

// loadLocalEnv reads a .env file when running outside Lambda
func loadLocalEnv(isLocal bool) {
	if !isLocal {
		return
	}
	if err := godotenv.Load(); err != nil {
		fmt.Println("no .env file found, using process environment")
	}
}

func setupLogger(isLocal bool) *logrus.Logger {
	logger := logrus.New()
	util.SetLogLevel(logger, os.Getenv("LOG_LEVEL"))
	logger.SetFormatter(&logrus.JSONFormatter{PrettyPrint: isLocal})
	return logger
}

func setupHandler(awsCfg aws.Config, cfg *config.Config, db *sql.DB) *enrollment.Handler {
	dynamoClient := clients.NewDynamoDBClient(awsCfg)

	enrollmentRepository := &data.EnrollmentDao{
		Client:           dynamoClient,
		Logger:           logger,
		EnrollmentsTable: cfg.Tables.Enrollments,
		InvitationsTable: cfg.Tables.Invitations,
	}
	invitationRepository := &data.InvitationDao{
		Client:           dynamoClient,
		Logger:           logger,
		InvitationsTable: cfg.Tables.Invitations,
	}
	scheduleRepository := &data.ScheduleDao{
		Client:      dynamoClient,
		Logger:      logger,
		EventsTable: cfg.Tables.Events,
	}
	complianceRepository := &data.ComplianceDao{
		DB:     db,
		Logger: logger,
	}
	identityRepository := &data.IdentityDao{
		Client:     clients.NewCognitoIdentityProviderClient(awsCfg),
		Logger:     logger,
		UserPoolID: cfg.ParentUserPoolID,
	}
	notificationRepository := &data.NotificationDao{
		Client:   clients.NewSNSClient(awsCfg),
		Logger:   logger,
		TopicARN: cfg.EnrollmentTopicARN,
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.WithFields(logrus.Fields{
			"operation":         "setupHandler",
			"enrollments_table": cfg.Tables.Enrollments,
			"invitations_table": cfg.Tables.Invitations,
			"events_table":      cfg.Tables.Events,
			"documents_bucket":  cfg.DocumentsBucket,
		}).Debug("Enrollment repositories initialized")
	}

	return &enrollment.Handler{
		Manager:              enrollment.NewManager(enrollmentRepository, invitationRepository, logger),
		Materializer:         enrollment.NewMaterializer(complianceRepository, cfg.SchoolID, logger),
		Validator:            enrollment.NewStepValidator(),
		Invitations:          invitationRepository,
		Schedules:            scheduleRepository,
		Identities:           identityRepository,
		Notifications:        notificationRepository,
		Documents:            clients.NewS3Client(awsCfg, cfg.IsLocal, cfg.DocumentsBucket),
		Logger:               logger,
		MaxDocumentSizeBytes: cfg.MaxDocumentSizeBytes,
	}
}
