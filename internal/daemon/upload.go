package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crewdesk/relay/internal/chat"
	"github.com/crewdesk/relay/internal/config"
	"github.com/crewdesk/relay/internal/identity"
	"github.com/crewdesk/relay/internal/upload"
	"github.com/crewdesk/relay/protocol"
)

// uploadHandler receives attachment files over HTTP. Uploads run outside
// the websocket; progress is published on the bus and relayed to the
// conversation room, and the returned descriptor goes into a later
// message:send.
type uploadHandler struct {
	cfg      *config.Config
	verifier identity.Verifier
	svc      *chat.Service
	pub      *upload.Publisher
	logger   *zap.Logger
}

func (h *uploadHandler) handle(c *fiber.Ctx) error {
	credential := c.Query("token")
	if credential == "" {
		credential = c.Get("Authorization")
	}
	principal, err := h.verifier.Verify(context.Background(), credential)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "handshake failed")
	}

	conversationID := c.Query("conversationId")
	ids, err := h.svc.ParticipantIDs(conversationID)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	member := false
	for _, id := range ids {
		if id == principal.ID {
			member = true
			break
		}
	}
	if !member {
		return fiber.NewError(fiber.StatusForbidden, "not a participant")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing file")
	}
	if file.Size > h.cfg.MaxAttachmentSize {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "file too large")
	}

	uploadID := uuid.NewString()
	storedName := uploadID + filepath.Ext(file.Filename)
	if err := os.MkdirAll(h.cfg.UploadDir, 0700); err != nil {
		return fiber.ErrInternalServerError
	}

	src, err := file.Open()
	if err != nil {
		return fiber.ErrInternalServerError
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(filepath.Join(h.cfg.UploadDir, storedName))
	if err != nil {
		return fiber.ErrInternalServerError
	}
	defer func() { _ = dst.Close() }()

	// Copy in chunks, relaying percentage milestones to the room.
	var written int64
	buf := make([]byte, 256<<10)
	lastPercent := -1
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				h.pub.Error(conversationID, uploadID, "write failed")
				return fiber.ErrInternalServerError
			}
			written += int64(n)
			percent := int(written * 100 / file.Size)
			if percent != lastPercent {
				h.pub.Progress(conversationID, uploadID, percent)
				lastPercent = percent
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			h.pub.Error(conversationID, uploadID, "read failed")
			return fiber.ErrInternalServerError
		}
	}

	att := protocol.Attachment{
		StoredName:   storedName,
		OriginalName: file.Filename,
		MimeType:     file.Header.Get("Content-Type"),
		Size:         written,
		URL:          "/uploads/" + storedName,
	}
	h.pub.Complete(conversationID, uploadID, att)
	h.logger.Info("upload stored",
		zap.String("user", principal.ID),
		zap.String("conversation", conversationID),
		zap.Int64("size", written))

	return c.JSON(fiber.Map{"uploadId": uploadID, "attachment": att})
}
