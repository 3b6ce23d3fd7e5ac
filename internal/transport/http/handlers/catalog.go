package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/annamusic/anna-api/internal/transport/http/middleware"
	"github.com/annamusic/anna-api/internal/usecase"
)

// CatalogHandler exposes the song catalog and favorites endpoints.
type CatalogHandler struct {
	catalog *usecase.CatalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *usecase.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListSongs returns catalog entries, optionally filtered by instrument.
func (h *CatalogHandler) ListSongs(c *gin.Context) {
	songs, err := h.catalog.ListSongs(c.Request.Context(), c.Query("instrument"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list songs"))
		return
	}

	c.JSON(http.StatusOK, songs)
}

// GetSong returns a single catalog entry.
func (h *CatalogHandler) GetSong(c *gin.Context) {
	song, err := h.catalog.GetSong(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSongNotFound, Status: http.StatusNotFound, Message: "Song not found"},
		}, http.StatusInternalServerError, "failed to load song")
		return
	}

	c.JSON(http.StatusOK, song)
}

// CreateSong adds a catalog entry. Admin only.
func (h *CatalogHandler) CreateSong(c *gin.Context) {
	var req SongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "title and instrument are required"))
		return
	}

	song, err := h.catalog.CreateSong(c.Request.Context(), songInputFromRequest(req))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to create song"))
		return
	}

	c.JSON(http.StatusCreated, song)
}

// UpdateSong replaces a catalog entry. Admin only.
func (h *CatalogHandler) UpdateSong(c *gin.Context) {
	var req SongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "title and instrument are required"))
		return
	}

	song, err := h.catalog.UpdateSong(c.Request.Context(), c.Param("id"), songInputFromRequest(req))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSongNotFound, Status: http.StatusNotFound, Message: "Song not found"},
		}, http.StatusInternalServerError, "failed to update song")
		return
	}

	c.JSON(http.StatusOK, song)
}

// DeleteSong removes a catalog entry. Admin only.
func (h *CatalogHandler) DeleteSong(c *gin.Context) {
	if err := h.catalog.DeleteSong(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSongNotFound, Status: http.StatusNotFound, Message: "Song not found"},
		}, http.StatusInternalServerError, "failed to delete song")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Song deleted"})
}

// GetFavorites returns the caller's bookmarked song ids.
func (h *CatalogHandler) GetFavorites(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	favorites, err := h.catalog.GetFavorites(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load favorites"))
		return
	}

	c.JSON(http.StatusOK, favorites.SongIDs)
}

// ToggleFavorite adds or removes a song from the caller's favorites.
func (h *CatalogHandler) ToggleFavorite(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ToggleFavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "songId is required"))
		return
	}

	favorites, added, err := h.catalog.ToggleFavorite(c.Request.Context(), userID, req.SongID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSongNotFound, Status: http.StatusNotFound, Message: "Song not found"},
		}, http.StatusInternalServerError, "failed to update favorites")
		return
	}

	c.JSON(http.StatusOK, ToggleFavoriteResponse{
		Added:   added,
		SongIDs: favorites.SongIDs,
	})
}

func songInputFromRequest(req SongRequest) usecase.SongInput {
	return usecase.SongInput{
		Title:         req.Title,
		Instrument:    req.Instrument,
		Lyrics:        req.Lyrics,
		ChordDiagrams: req.ChordDiagrams,
		Documents:     req.Documents,
	}
}
