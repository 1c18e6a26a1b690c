package db

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"minesim-session-go/internal/config"
	"minesim-session-go/internal/logging"
)

// Clients bundles the Firebase clients used by the session agent.
type Clients struct {
	Firestore *firestore.Client
	Auth      *auth.Client
}

// Close releases the Firestore connection. The Auth client holds no connection.
func (c *Clients) Close() error {
	if c == nil || c.Firestore == nil {
		return nil
	}
	return c.Firestore.Close()
}

// InitFirebase initializes the Firebase Admin SDK and returns Firestore and Auth clients.
// It uses credentials and project ID from the provided appConfig.
func InitFirebase(ctx context.Context, appConfig *config.Config, logger *zap.Logger) (*Clients, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("InitFirebase: appConfig cannot be nil")
	}
	logger = logging.OrNop(logger)

	credsOption, err := credentialsOption(appConfig, logger)
	if err != nil {
		return nil, err
	}

	firebaseAppConfig := &firebase.Config{ProjectID: appConfig.FirebaseProjectID}

	var app *firebase.App
	if credsOption != nil {
		app, err = firebase.NewApp(ctx, firebaseAppConfig, credsOption)
	} else {
		// Application Default Credentials (GCE, Cloud Run, local gcloud login).
		app, err = firebase.NewApp(ctx, firebaseAppConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}

	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("app.Firestore: %w", err)
	}
	logger.Info("Firestore client initialized", zap.String("projectId", appConfig.FirebaseProjectID))

	authClient, err := app.Auth(ctx)
	if err != nil {
		// Close Firestore client if Auth client fails, as Init is considered failed.
		fsClient.Close()
		return nil, fmt.Errorf("app.Auth: %w", err)
	}
	logger.Info("Firebase Auth client initialized")

	return &Clients{Firestore: fsClient, Auth: authClient}, nil
}

// credentialsOption picks the credential source: a service account file, a
// base64 encoded service account JSON, or nil for ADC.
func credentialsOption(appConfig *config.Config, logger *zap.Logger) (option.ClientOption, error) {
	switch {
	case appConfig.GoogleApplicationCredentials != "":
		path := appConfig.GoogleApplicationCredentials
		if _, err := os.Stat(path); os.IsNotExist(err) {
			// The SDK may still succeed through ADC, so only warn.
			logger.Warn("Credentials file does not exist", zap.String("path", path))
		}
		logger.Info("Initializing Firebase with credentials file", zap.String("path", path))
		return option.WithCredentialsFile(path), nil
	case appConfig.FirebaseServiceAccountJSONBase64 != "":
		decodedJSON, err := base64.StdEncoding.DecodeString(appConfig.FirebaseServiceAccountJSONBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode FirebaseServiceAccountJSONBase64: %w", err)
		}
		logger.Info("Initializing Firebase with base64 encoded service account JSON")
		return option.WithCredentialsJSON(decodedJSON), nil
	default:
		logger.Info("Initializing Firebase using Application Default Credentials (ADC)")
		return nil, nil
	}
}
