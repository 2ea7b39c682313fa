package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
	"github.com/arvichandar/facemark-api/pkg/response"
	"github.com/arvichandar/facemark-api/pkg/storage"
)

// PhotoHandler serves reference photos through signed tokens so the photo
// directory is never exposed directly.
type PhotoHandler struct {
	store  *storage.LocalStorage
	signer *storage.SignedURLSigner
}

// NewPhotoHandler creates a new handler.
func NewPhotoHandler(store *storage.LocalStorage, signer *storage.SignedURLSigner) *PhotoHandler {
	return &PhotoHandler{store: store, signer: signer}
}

// Download godoc
// @Summary Download a reference photo
// @Description Serve a photo referenced by a signed, expiring token
// @Tags Students
// @Produce jpeg
// @Param token path string true "Signed photo token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /photos/{token} [get]
func (h *PhotoHandler) Download(c *gin.Context) {
	_, relPath, _, err := h.signer.Parse(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired photo token"))
		return
	}

	file, err := h.store.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "photo not found"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "photo not found"))
		return
	}

	c.Header("Cache-Control", "private, max-age=300")
	http.ServeContent(c.Writer, c.Request, relPath, info.ModTime(), file)
}
