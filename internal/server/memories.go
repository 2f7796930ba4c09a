package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/lazypower/memkeeper/internal/store"
)

type imageResponse struct {
	ID       int64  `json:"id"`
	URL      string `json:"url"`
	MemoryID int64  `json:"memory_id"`
}

type memoryResponse struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Note      *string         `json:"note"`
	CreatedAt time.Time       `json:"created_at"`
	OwnerID   int64           `json:"owner_id"`
	Images    []imageResponse `json:"images"`
}

func newMemoryResponse(m *store.Memory) memoryResponse {
	resp := memoryResponse{
		ID:        m.ID,
		Title:     m.Title,
		Note:      m.Note,
		CreatedAt: m.CreatedAt,
		OwnerID:   m.OwnerID,
		Images:    make([]imageResponse, 0, len(m.Images)),
	}
	for _, img := range m.Images {
		resp.Images = append(resp.Images, imageResponse{ID: img.ID, URL: img.URL, MemoryID: img.MemoryID})
	}
	return resp
}

// memoryInput is a create or update request, from a form or JSON.
// Nil Title/Note mean the field was absent.
type memoryInput struct {
	Title *string
	Note  *string
	URLs  []string
	Files []*multipart.FileHeader
}

var errBodyTooLarge = errors.New("request body too large")

// tooLarge reports whether err came from the request body limit. The
// multipart reader does not always wrap the underlying error.
func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

// splitURLs splits a comma-separated URL list, dropping blanks.
func splitURLs(s string) []string {
	return store.CleanURLs(strings.Split(s, ","))
}

func formField(values map[string][]string, key string) *string {
	vs, ok := values[key]
	if !ok || len(vs) == 0 {
		return nil
	}
	v := vs[0]
	return &v
}

// parseMemoryInput reads a JSON, multipart or urlencoded memory body.
func (s *Server) parseMemoryInput(w http.ResponseWriter, r *http.Request) (memoryInput, error) {
	var in memoryInput
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	if isJSON(r) {
		var req struct {
			Title     *string  `json:"title"`
			Note      *string  `json:"note"`
			ImageURL  string   `json:"image_url"`
			ImageURLs []string `json:"image_urls"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if tooLarge(err) {
				return in, errBodyTooLarge
			}
			return in, fmt.Errorf("decode json: %w", err)
		}
		in.Title, in.Note = req.Title, req.Note
		in.URLs = append(splitURLs(req.ImageURL), store.CleanURLs(req.ImageURLs)...)
		return in, nil
	}

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var err error
	if mt == "multipart/form-data" {
		err = r.ParseMultipartForm(8 << 20)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		if tooLarge(err) {
			return in, errBodyTooLarge
		}
		return in, fmt.Errorf("parse form: %w", err)
	}

	in.Title = formField(r.PostForm, "title")
	in.Note = formField(r.PostForm, "note")
	for _, v := range r.PostForm["image_urls"] {
		in.URLs = append(in.URLs, splitURLs(v)...)
	}
	if r.MultipartForm != nil {
		in.Files = r.MultipartForm.File["images"]
	}
	return in, nil
}

// badInput answers a request whose body could not be parsed.
func badInput(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid request body")
}

// uploadFiles stores each named file and returns the URLs that succeeded.
// Failures are logged and skipped.
func (s *Server) uploadFiles(r *http.Request, files []*multipart.FileHeader) []string {
	var urls []string
	for _, fh := range files {
		if fh.Filename == "" {
			continue
		}
		if s.images == nil {
			s.log.Warn("upload skipped, no image store configured", "file", fh.Filename)
			continue
		}
		url, err := s.saveFile(r, fh)
		if err != nil {
			s.log.Warn("image upload failed",
				"file", fh.Filename,
				"size", fh.Size,
				"store", s.images.Name(),
				"error", err,
			)
			continue
		}
		urls = append(urls, url)
	}
	return urls
}

func (s *Server) saveFile(r *http.Request, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return s.images.Save(r.Context(), fh.Filename, f)
}

func cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	in, err := s.parseMemoryInput(w, r)
	defer cleanupForm(r)
	if err != nil {
		badInput(w, err)
		return
	}
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	title := strings.TrimSpace(*in.Title)

	urls := append(s.uploadFiles(r, in.Files), in.URLs...)
	m, err := s.store.CreateMemory(r.Context(), u.ID, title, in.Note, urls)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	s.log.Info("memory created", "user_id", u.ID, "memory_id", m.ID, "images", len(m.Images))
	writeJSON(w, http.StatusOK, newMemoryResponse(m))
}

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())

	skip, ok := queryInt(r, "skip", 0)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "skip must be an integer")
		return
	}
	limit, ok := queryInt(r, "limit", store.MaxListLimit)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "limit must be an integer")
		return
	}

	memories, err := s.store.ListMemories(r.Context(), u.ID, skip, limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	resp := make([]memoryResponse, 0, len(memories))
	for i := range memories {
		resp = append(resp, newMemoryResponse(&memories[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	id, ok := pathID(r, "memoryID")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Invalid memory id")
		return
	}

	m, err := s.store.GetMemory(r.Context(), u.ID, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Memory not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMemoryResponse(m))
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	id, ok := pathID(r, "memoryID")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Invalid memory id")
		return
	}

	in, err := s.parseMemoryInput(w, r)
	defer cleanupForm(r)
	if err != nil {
		badInput(w, err)
		return
	}

	upd := store.MemoryUpdate{Note: in.Note}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			writeError(w, http.StatusBadRequest, "Title cannot be empty")
			return
		}
		upd.Title = &title
	}

	// Check ownership before uploading anything.
	if _, err := s.store.GetMemory(r.Context(), u.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Memory not found")
			return
		}
		s.internalError(w, r, err)
		return
	}

	upd.ImageURLs = append(s.uploadFiles(r, in.Files), in.URLs...)
	m, err := s.store.UpdateMemory(r.Context(), u.ID, id, upd)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Memory not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMemoryResponse(m))
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	id, ok := pathID(r, "memoryID")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Invalid memory id")
		return
	}

	err := s.store.DeleteMemory(r.Context(), u.ID, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Memory not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.log.Info("memory deleted", "user_id", u.ID, "memory_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Memory deleted"})
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	id, ok := pathID(r, "imageID")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "Invalid image id")
		return
	}

	err := s.store.DeleteImage(r.Context(), u.ID, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Image not found or access denied")
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Image deleted successfully"})
}
