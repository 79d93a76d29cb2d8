package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/luiggisao1/turbonote/internal/auth"
	"github.com/luiggisao1/turbonote/internal/storage"
	"github.com/luiggisao1/turbonote/internal/validation"
	"log/slog"
)

// NoteStore is the slice of the storage layer the notes handlers consume.
// Every method is scoped to one owner; a note of another user behaves exactly
// like a note that does not exist.
type NoteStore interface {
	CreateNote(ctx context.Context, userID uuid.UUID, title, content, category string) (*storage.Note, error)
	GetNote(ctx context.Context, userID uuid.UUID, noteID uuid.UUID) (*storage.Note, error)
	UpdateNote(ctx context.Context, userID uuid.UUID, noteID uuid.UUID, title, content, category *string) (*storage.Note, error)
	DeleteNote(ctx context.Context, userID uuid.UUID, noteID uuid.UUID) (bool, error)
	ListNotes(ctx context.Context, userID uuid.UUID, category string, limit int, cursor string) ([]storage.Note, string, error)
	CountNotes(ctx context.Context, userID uuid.UUID) (int64, error)
	CountNotesByCategory(ctx context.Context, userID uuid.UUID) ([]storage.CategoryCount, error)
}

type NotesHandler struct {
	Store  NoteStore
	Logger *slog.Logger
}

type noteRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

type noteUpdateRequest struct {
	Title    *string `json:"title"`
	Content  *string `json:"content"`
	Category *string `json:"category"`
}

type noteItem struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

type notesListResponse struct {
	Notes      []noteItem `json:"notes"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

func NewNotesHandler(store NoteStore, logger *slog.Logger) *NotesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotesHandler{Store: store, Logger: logger}
}

func (h *NotesHandler) RegisterRoutes(r *gin.Engine, authenticated gin.HandlerFunc) {
	group := r.Group("/notes", authenticated)
	group.GET("/", h.List)
	group.POST("/", h.Create)
	group.GET("/count/", h.Count)
	group.GET("/counts-by-category/", h.CountsByCategory)
	group.GET("/:id/", h.Get)
	group.PUT("/:id/", h.Update)
	group.PATCH("/:id/", h.Update)
	group.DELETE("/:id/", h.Delete)
}

func (h *NotesHandler) List(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHENTICATED", Message: "authentication required"})
		return
	}

	limit := parseLimit(c.Query("limit"))
	cursor := c.Query("cursor")
	category := c.Query("category")

	notes, nextCursor, err := h.Store.ListNotes(c.Request.Context(), user.ID, category, limit, cursor)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidCursor) {
			c.JSON(http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: "invalid cursor"})
			return
		}
		h.Logger.Error("list notes failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	items := make([]noteItem, 0, len(notes))
	for _, note := range notes {
		items = append(items, toNoteItem(&note))
	}

	c.JSON(http.StatusOK, notesListResponse{Notes: items, NextCursor: nextCursor})
}

func (h *NotesHandler) Create(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHENTICATED", Message: "authentication required"})
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: "invalid payload"})
		return
	}

	if errs := validation.ValidateNote(req.Title, req.Category); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: "invalid note", Fields: errs})
		return
	}

	note, err := h.Store.CreateNote(c.Request.Context(), user.ID, req.Title, req.Content, req.Category)
	if err != nil {
		h.Logger.Error("create note failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	c.JSON(http.StatusCreated, toNoteItem(note))
}

func (h *NotesHandler) Get(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHENTICATED", Message: "authentication required"})
		return
	}

	noteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "note not found"})
		return
	}

	note, err := h.Store.GetNote(c.Request.Context(), user.ID, noteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "note not found"})
			return
		}
		h.Logger.Error("get note failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, toNoteItem(note))
}

func (h *NotesHandler) Update(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHENTICATED", Message: "authentication required"})
		return
	}

	noteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "note not found"})
		return
	}

	var req noteUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: "invalid payload"})
		return
	}

	if errs := validateNoteUpdate(&req); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "VALIDATION_ERROR", Message: "invalid note", Fields: errs})
		return
	}

	note, err := h.Store.UpdateNote(c.Request.Context(), user.ID, noteID, req.Title, req.Content, req.Category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "note not found"})
			return
		}
		h.Logger.Error("update note failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, toNoteItem(note))
}

func (h *NotesHandler) Delete(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHENTICATED", Message: "authentication required"})
		return
	}

	noteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "note not found"})
		return
	}

	deleted, err := h.Store.DeleteNote(c.Request.Context(), user.ID, noteID)
	if err != nil {
		h.Logger.Error("delete note failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, errorResponse{Code: "NOT_FOUND", Message: "note not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *NotesHandler) Count(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHENTICATED", Message: "authentication required"})
		return
	}

	count, err := h.Store.CountNotes(c.Request.Context(), user.ID)
	if err != nil {
		h.Logger.Error("count notes failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	c.JSON(http.StatusOK, countResponse{Count: count})
}

func (h *NotesHandler) CountsByCategory(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Code: "UNAUTHENTICATED", Message: "authentication required"})
		return
	}

	counts, err := h.Store.CountNotesByCategory(c.Request.Context(), user.ID)
	if err != nil {
		h.Logger.Error("count notes by category failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}

	result := make(map[string]int64, len(counts))
	for _, cc := range counts {
		result[cc.Category] = cc.Total
	}

	c.JSON(http.StatusOK, result)
}

func validateNoteUpdate(req *noteUpdateRequest) validation.ValidationErrors {
	var errs validation.ValidationErrors
	if req.Title != nil {
		if *req.Title == "" {
			errs = append(errs, validation.FieldError{Field: "title", Message: "title must not be empty"})
		} else if utf8.RuneCountInString(*req.Title) > 200 {
			errs = append(errs, validation.FieldError{Field: "title", Message: "title must be at most 200 characters"})
		}
	}
	if req.Category != nil && !validation.ValidCategory(*req.Category) {
		errs = append(errs, validation.FieldError{Field: "category", Message: "unknown category"})
	}
	return errs
}

func toNoteItem(note *storage.Note) noteItem {
	return noteItem{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		Category:  note.Category,
		CreatedAt: note.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: note.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func parseLimit(raw string) int {
	if raw == "" {
		return 0
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return val
}
