package handler

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"swapmeet/internal/infrastructure/storage"
	"swapmeet/pkg/errors"
	"swapmeet/pkg/logger"
	"swapmeet/pkg/response"
)

// FileHandler uploads chat image attachments. The returned URL goes into a
// message's image_url field.
type FileHandler struct {
	storageClient *storage.CloudStorageClient
	maxFileSize   int64
}

func NewFileHandler(storageClient *storage.CloudStorageClient) *FileHandler {
	return &FileHandler{
		storageClient: storageClient,
		maxFileSize:   5 * 1024 * 1024,
	}
}

func (h *FileHandler) UploadChatImage(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.Error(c, errors.BadRequest("Missing or invalid file", err))
	}

	if file.Size > h.maxFileSize {
		return response.Error(c, errors.BadRequest(fmt.Sprintf("File size exceeds maximum allowed (%dMB)", h.maxFileSize/(1024*1024)), nil))
	}

	fileType := file.Header.Get("Content-Type")
	if !isAllowedImageType(fileType) {
		return response.Error(c, errors.BadRequest("File type not supported", nil))
	}

	src, err := file.Open()
	if err != nil {
		return response.Error(c, errors.OperationFailed("Unable to read file", err))
	}
	defer src.Close()

	url, err := h.storageClient.UploadFile(c.Request().Context(), src, fileType, "chat-images")
	if err != nil {
		logger.Error("UploadChatImage: storage upload failed: %v", err)
		return response.Error(c, errors.OperationFailed("Failed to upload file", err))
	}

	return response.Success(c, map[string]interface{}{
		"url":      url,
		"filename": file.Filename,
		"size":     file.Size,
	})
}

func isAllowedImageType(fileType string) bool {
	switch fileType {
	case "image/jpeg", "image/jpg", "image/png", "image/gif":
		return true
	}
	return false
}
