package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/mq"
	"github.com/shaiso/Mindscope/internal/storage"
	"github.com/shaiso/Mindscope/internal/telemetry"
)

// multipartMemory — часть multipart-формы, которая держится в памяти.
const multipartMemory = 32 << 20

// Upload принимает видео и запускает pipeline.
// POST /api/v1/upload (multipart: file, owner_id)
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			TooLarge(w, "file is too large")
			return
		}
		BadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		BadRequest(w, "file is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		BadRequest(w, "file must be a video")
		return
	}

	owner := strings.TrimSpace(r.FormValue("owner_id"))
	if owner == "" {
		owner = strings.TrimSpace(r.Header.Get("X-Owner-ID"))
	}
	if owner == "" {
		owner = domain.AnonymousOwner
	}

	artifactID := uuid.New().String()
	key := storage.VideoKey(artifactID, header.Filename)
	logger := telemetry.WithArtifactID(h.logger, artifactID)

	if err := h.videos.UploadStream(r.Context(), file, header.Size, key, contentType); err != nil {
		InternalError(w, logger, err)
		return
	}

	event, err := domain.EntryContract.Entry(artifactID, owner, map[string]string{
		domain.PayloadFilename:     key,
		domain.PayloadOriginalName: header.Filename,
	})
	if err != nil {
		InternalError(w, logger, err)
		return
	}

	// Событие публикуется только после того, как видео сохранено
	if err := h.publisher.Publish(r.Context(), mq.Queue(domain.EntryContract.Next), event); err != nil {
		logger.Error("video stored but pipeline event not published", "key", key, "error", err)
		InternalError(w, logger, err)
		return
	}

	logger.Info("upload accepted",
		"owner_id", owner,
		"key", key,
		"size", header.Size,
		"original_name", header.Filename,
	)

	Accepted(w, UploadResponse{
		VideoID:  artifactID,
		OwnerID:  owner,
		Filename: key,
		Status:   UploadStatusStarted,
	})
}
