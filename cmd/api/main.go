package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	"swapmeet/internal/adapter/api"
	"swapmeet/internal/adapter/api/handler"
	apimiddleware "swapmeet/internal/adapter/api/middleware"
	"swapmeet/internal/adapter/api/router"
	"swapmeet/internal/adapter/repository"
	"swapmeet/internal/infrastructure/storage"
	"swapmeet/internal/infrastructure/websocket"
	"swapmeet/internal/usecase"
	"swapmeet/pkg/config"
	"swapmeet/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.SetEnvironment(cfg.Environment)

	ctx := context.Background()

	var opts []option.ClientOption
	serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
	if serviceAccountPath != "" {
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, serviceAccountPath)
	if err != nil {
		log.Fatalf("Failed to initialize Cloud Storage: %v", err)
	}
	defer storageClient.Close()

	conversationRepo := repository.NewFirestoreConversationRepository(firestoreClient)
	messageRepo := repository.NewFirestoreMessageRepository(firestoreClient)
	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	itemRepo := repository.NewFirestoreItemRepository(firestoreClient)

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)

	conversationUseCase := usecase.NewConversationUseCase(
		conversationRepo,
		messageRepo,
		userRepo,
		itemRepo,
		wsManager,
		cfg.MessageWindow,
	)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)

	conversationHandler := handler.NewConversationHandler(conversationUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, conversationUseCase, authMiddleware)
	fileHandler := handler.NewFileHandler(storageClient)
	healthHandler := handler.NewHealthHandler()

	router.Setup(e, conversationHandler, wsHandler, fileHandler, healthHandler, authMiddleware)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
