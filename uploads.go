package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/terrafile/landregistry_backend/config"
	"github.com/terrafile/landregistry_backend/middlewares"
	"github.com/terrafile/landregistry_backend/utils"
)

type uploadDocContext struct {
	// Kind is the document category: field_report, deed_scan, national_id,
	// site_photo. It becomes a path segment in the object key.
	Kind   string `json:"kind"`
	CaseId int    `json:"caseId"`
}

type uploadSignRequest struct {
	FileName string           `json:"fileName"`
	MimeType string           `json:"mimeType"`
	Size     int64            `json:"size"`
	Context  uploadDocContext `json:"context"`
}

type uploadCompleteRequest struct {
	ObjectKey string           `json:"objectKey"`
	MimeType  string           `json:"mimeType"`
	Context   uploadDocContext `json:"context"`
}

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

var documentMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// signUploadHandler issues a short-lived signed PUT URL for a registry
// document. The browser uploads straight to the bucket; object keys are
// namespaced per user so one applicant cannot overwrite another's documents.
func signUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		actor, _ := middlewares.ActorFromContext(c)

		var req uploadSignRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.FileName == "" || req.MimeType == "" || req.Size <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "fileName, mimeType and size are required"})
			return
		}
		if req.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}
		if !documentMimeTypes[req.MimeType] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
			return
		}

		kind := sanitizeSegment(strings.ToLower(strings.TrimSpace(req.Context.Kind)))
		if kind == "" {
			kind = "documents"
		}

		ext := strings.ToLower(filepath.Ext(req.FileName))
		if ext == "" {
			ext = extensionFromMimeType(req.MimeType)
		}
		if ext == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file extension is required"})
			return
		}

		objectKey := path.Join("users", strconv.Itoa(actor.Id), kind, uuid.New().String()+ext)

		signed, err := utils.SignUpload(objectKey, req.MimeType, 15*time.Minute)
		if err != nil {
			logUploadError(logger, err, c)
			message := "failed to sign upload"
			if !strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
				message = fmt.Sprintf("failed to sign upload: %v", err)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": message})
			return
		}

		logger.WithFields(logrus.Fields{
			"user_id":    actor.Id,
			"mime_type":  req.MimeType,
			"size":       req.Size,
			"object_key": objectKey,
		}).Info("[upload.sign]")

		c.JSON(http.StatusOK, gin.H{"data": signed})
	}
}

// completeUploadHandler acknowledges a finished upload. Image uploads get a
// thumbnail generated server side for listing views.
func completeUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		actor, _ := middlewares.ActorFromContext(c)

		var req uploadCompleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.ObjectKey == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "objectKey is required"})
			return
		}
		ownPrefix := path.Join("users", strconv.Itoa(actor.Id)) + "/"
		if !strings.HasPrefix(req.ObjectKey, ownPrefix) && !actor.IsAdmin() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid object key"})
			return
		}

		bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
		response := gin.H{
			"objectKey": req.ObjectKey,
			"accessUrl": utils.BuildObjectAccessURL(bucket, req.ObjectKey),
		}

		if imageMimeTypes[req.MimeType] {
			thumbnailKey, err := createThumbnail(c.Request.Context(), req.ObjectKey)
			if err != nil {
				logUploadError(logger, err, c)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate thumbnail"})
				return
			}
			response["thumbnailObjectKey"] = thumbnailKey
			response["thumbnailUrl"] = utils.BuildObjectAccessURL(bucket, thumbnailKey)
		}

		logger.WithFields(logrus.Fields{
			"object_key": req.ObjectKey,
			"status":     "completed",
		}).Info("[upload.complete]")

		c.JSON(http.StatusOK, gin.H{"data": response})
	}
}

func createThumbnail(ctx context.Context, objectKey string) (string, error) {
	client, err := utils.GetGCSClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	bucket := strings.TrimSpace(os.Getenv("GCS_BUCKET"))
	if bucket == "" {
		return "", errors.New("GCS_BUCKET is required")
	}

	reader, err := client.Bucket(bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxUploadSizeBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > maxUploadSizeBytes {
		return "", errors.New("file size exceeds 5MB limit")
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return "", err
	}

	thumbnailKey := thumbnailObjectKey(objectKey)
	if err := utils.UploadBytesToGCS(ctx, thumbnailKey, buf.Bytes(), "image/jpeg"); err != nil {
		return "", err
	}
	return thumbnailKey, nil
}

func thumbnailObjectKey(objectKey string) string {
	dir := path.Dir(objectKey)
	filename := path.Base(objectKey)
	return path.Join(dir, "thumbnails", filename)
}

func sanitizeSegment(input string) string {
	var out strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func extensionFromMimeType(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "application/pdf":
		return ".pdf"
	default:
		return ""
	}
}

func logUploadError(logger *logrus.Logger, err error, c *gin.Context) {
	requestID := strings.TrimSpace(c.GetHeader("X-Correlation-Id"))
	if requestID == "" {
		requestID = fmt.Sprintf("upload-%d", time.Now().UnixNano())
	}
	logger.WithFields(logrus.Fields{
		"error":      err.Error(),
		"request_id": requestID,
	}).Error("[upload.error]")
}
