package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

const (
	defaultMaxUploadMB = 256
	multipartMemory    = 32 << 20
	keepAliveInterval  = 15 * time.Second
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	LastTrainedAt  *time.Time `json:"last_trained_at"`
	VectorsIndexed int        `json:"vectors_indexed"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := s.deps.Index.Info()
	s.respondJSON(w, http.StatusOK, statusResponse{
		LastTrainedAt:  info.LastTrainedAt,
		VectorsIndexed: info.VectorCount,
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	count, err := s.deps.Documents.Count(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	info := s.deps.Index.Info()
	resp := models.ServiceInfo{
		PDFCount:       count,
		VectorsIndexed: info.VectorCount,
		LastTrainedAt:  info.LastTrainedAt,
		EmbeddingModel: info.EmbeddingModel,
		LLMModel:       info.LLMModel,
		Training:       s.deps.Progress.Snapshot(),
	}
	if bytes, err := s.deps.Documents.DiskUsage(); err == nil {
		resp.DiskUsageBytes = bytes
	} else {
		s.logger.Warn("info: disk usage failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func fileInfo(doc *models.Document) models.FileInfo {
	return models.FileInfo{
		Filename:   doc.Filename,
		Pages:      doc.Pages,
		Size:       humanize.IBytes(uint64(doc.Size)),
		SizeBytes:  doc.Size,
		UploadedAt: doc.UploadedAt,
	}
}

// handleUpload stores each PDF of the multipart "files" field. Files that are not
// valid PDFs are skipped; the response lists only accepted files.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxMB := s.config.MaxUploadMB
	if maxMB <= 0 {
		maxMB = defaultMaxUploadMB
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMB<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload exceeds "+humanize.IBytes(uint64(maxMB)<<20))
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		s.respondError(w, http.StatusBadRequest, "No files part")
		return
	}

	accepted := make([]models.FileInfo, 0, len(files))
	for _, fh := range files {
		if fh.Filename == "" {
			continue
		}
		doc, err := s.saveUpload(r, fh)
		if err != nil {
			level := zap.WarnLevel
			if statusFor(err) >= 500 {
				level = zap.ErrorLevel
			}
			s.logger.Log(level, "upload rejected", zap.String("file", fh.Filename), zap.Error(err))
			continue
		}
		accepted = append(accepted, fileInfo(doc))
	}
	s.respondJSON(w, http.StatusOK, accepted)
}

func (s *Server) saveUpload(r *http.Request, fh *multipart.FileHeader) (*models.Document, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return s.deps.Documents.Save(r.Context(), fh.Filename, content)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	docs, err := s.deps.Documents.List(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	out := make([]models.FileInfo, len(docs))
	for i, d := range docs {
		out[i] = fileInfo(d)
	}
	s.respondJSON(w, http.StatusOK, out)
}

// filenameParam returns the decoded {filename} segment. chi routes on RawPath when
// the request carries one (e.g. an encoded slash) and on the decoded Path otherwise,
// so only the former still needs unescaping.
func filenameParam(r *http.Request) (string, error) {
	name := chi.URLParam(r, "filename")
	if r.URL.RawPath == "" {
		return name, nil
	}
	return url.PathUnescape(name)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	name, err := filenameParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	if err := s.deps.Trainer.RemoveDocument(r.Context(), name); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"filename": name, "status": "deleted"})
}

func (s *Server) handleViewFile(w http.ResponseWriter, r *http.Request) {
	name, err := filenameParam(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	f, doc, err := s.deps.Documents.Open(r.Context(), name)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename=\""+url.PathEscape(doc.Filename)+"\"")
	http.ServeContent(w, r, doc.Filename, doc.UploadedAt, f)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	runID, err := s.deps.Trainer.Start()
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"status": "started", "run_id": runID})
}

func (s *Server) handleTrainStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.deps.Progress.Snapshot())
}

// handleTrainEvents streams every training state change as a "progress" event.
func (s *Server) handleTrainEvents(w http.ResponseWriter, r *http.Request) {
	states, cancel := s.deps.Progress.Subscribe()
	defer cancel()
	stream, ok := newEventStream(w)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := stream.send("progress", state); err != nil {
				return
			}
		case <-ticker.C:
			if err := stream.comment(); err != nil {
				return
			}
		}
	}
}
