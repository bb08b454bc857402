package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NotARoomba/canvas/internal/data/repos"
	"github.com/NotARoomba/canvas/internal/domain"
	"github.com/NotARoomba/canvas/internal/http/response"
	"github.com/NotARoomba/canvas/internal/platform/apierr"
	"github.com/NotARoomba/canvas/internal/platform/imagex"
	"github.com/NotARoomba/canvas/internal/platform/logger"
	"github.com/NotARoomba/canvas/internal/services"
)

// assets never change once stored
const assetCacheControl = "public, max-age=31536000, immutable"

type AssetHandler struct {
	log    *logger.Logger
	assets services.AssetService
}

func NewAssetHandler(log *logger.Logger, assets services.AssetService) *AssetHandler {
	return &AssetHandler{log: log.With("handler", "AssetHandler"), assets: assets}
}

// GET /images/:id
func (h *AssetHandler) GetImage(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	width := 0
	if raw := c.Query("w"); raw != "" {
		if width, err = positiveInt(raw, "w"); err != nil {
			response.RespondError(c, err)
			return
		}
	}

	img, err := h.assets.LoadImage(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, assetError(err, domain.StatusImageNotFound))
		return
	}
	if len(img.Data) == 0 {
		if img.Asset.SourceURL != nil && *img.Asset.SourceURL != "" {
			c.Redirect(http.StatusFound, *img.Asset.SourceURL)
			return
		}
		response.RespondError(c, apierr.NotFound(domain.StatusImageNotFound, errors.New("image has no content")))
		return
	}

	data, mime := img.Data, img.MimeType
	if width > 0 {
		thumb, thumbMime, err := imagex.Thumbnail(data, width)
		if err != nil {
			h.log.Warn("Thumbnail failed; serving original", "image_id", id, "width", width, "error", err)
		} else {
			data, mime = thumb, thumbMime
		}
	}
	c.Header("Content-Disposition", "inline")
	c.Header("Cache-Control", assetCacheControl)
	c.Data(http.StatusOK, mime, data)
}

// GET /tts/:id
func (h *AssetHandler) GetAudio(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		response.RespondError(c, err)
		return
	}
	_, data, err := h.assets.LoadAudio(c.Request.Context(), id)
	if err != nil {
		response.RespondError(c, assetError(err, domain.StatusAudioNotFound))
		return
	}
	c.Header("Content-Disposition", "inline")
	c.Header("Cache-Control", assetCacheControl)
	c.Data(http.StatusOK, services.AudioMimeType, data)
}

func assetError(err error, notFound domain.StatusCode) error {
	if errors.Is(err, repos.ErrAssetNotFound) {
		return apierr.NotFound(notFound, err)
	}
	return err
}
