package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"podcastgen/internal/logger"
	"podcastgen/internal/processor"
	"podcastgen/internal/registry"
	"podcastgen/internal/types"
)

// runLookup is satisfied by *registry.Registry.
type runLookup interface {
	Get(ctx context.Context, id string) (registry.Run, error)
	Artifact(ctx context.Context, id string) (types.PodcastArtifact, error)
}

// artifactIndex is satisfied by storage.ArtifactStore.
type artifactIndex interface {
	Exists(ctx context.Context, name string) (bool, error)
}

type server struct {
	proc       *processor.Processor
	runs       runLookup
	artifacts  artifactIndex
	log        *logger.Logger
	uploadsDir string
	publicDir  string
	maxUpload  int64
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /api/asr", s.handleASR)
	mux.HandleFunc("POST /api/generate-from-transcript", s.handleTranscript)
	mux.HandleFunc("POST /api/generate-from-conversation", s.handleConversation)
	mux.HandleFunc("POST /api/generate-from-audio", s.handleAudio)
	mux.HandleFunc("GET /api/runs/{id}", s.handleRun)
	mux.Handle("GET /public/", http.StripPrefix("/public/", http.FileServer(http.Dir(s.publicDir))))

	return s.logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		reqLog := s.log.WithRequest(r)
		rec.Header().Set("X-Request-ID", logger.RequestID(r))
		next.ServeHTTP(rec, r)
		reqLog.WithFields(logrus.Fields{
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request handled")
	})
}

type transcriptRequest struct {
	Transcript string `json:"transcript"`
	Voice      string `json:"voice"`
}

type conversationRequest struct {
	Conversation string `json:"conversation"`
	Voice1       string `json:"voice1"`
	Voice2       string `json:"voice2"`
}

func (s *server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalid(w, "Valid transcript text is required")
		return
	}
	res := s.proc.Text(detach(r), req.Transcript, types.VoiceProfile{ID: req.Voice})
	writeResult(w, res)
}

func (s *server) handleConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalid(w, "Valid conversation text is required")
		return
	}
	res := s.proc.Conversation(detach(r), req.Conversation,
		types.VoiceProfile{ID: req.Voice1}, types.VoiceProfile{ID: req.Voice2})
	writeResult(w, res)
}

func (s *server) handleASR(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.receiveUpload(w, r)
	if !ok {
		return
	}
	writeResult(w, s.proc.Transcribe(detach(r), asset))
}

func (s *server) handleAudio(w http.ResponseWriter, r *http.Request) {
	asset, ok := s.receiveUpload(w, r)
	if !ok {
		return
	}
	voice := types.VoiceProfile{ID: r.FormValue("voice")}
	writeResult(w, s.proc.Audio(detach(r), asset, voice))
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, "run registry disabled", http.StatusNotFound)
		return
	}
	id := r.PathValue("id")
	run, err := s.runs.Get(r.Context(), id)
	if errors.Is(err, registry.ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("run_id", id).Error("run lookup failed")
		http.Error(w, "run lookup failed", http.StatusInternalServerError)
		return
	}
	body := struct {
		registry.Run
		DurationMs int64                  `json:"duration_ms"`
		Artifact   *types.PodcastArtifact `json:"artifact,omitempty"`
		Available  *bool                  `json:"available,omitempty"`
	}{Run: run, DurationMs: run.Duration().Milliseconds()}
	if run.ArtifactID != "" {
		if a, err := s.runs.Artifact(r.Context(), run.ArtifactID); err == nil {
			body.Artifact = &a
			body.Available = s.artifactAvailable(r.Context(), a)
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// artifactAvailable reports whether the stored file still exists, or nil
// when that cannot be determined.
func (s *server) artifactAvailable(ctx context.Context, a types.PodcastArtifact) *bool {
	if s.artifacts == nil || a.Filename == "" {
		return nil
	}
	ok, err := s.artifacts.Exists(ctx, a.Filename)
	if err != nil {
		s.log.WithError(err).WithField("artifact", a.Filename).Warn("artifact check failed")
		return nil
	}
	return &ok
}

// receiveUpload stores the multipart "audio" field under the uploads
// directory. From here on the pipeline owns the file and deletes it.
func (s *server) receiveUpload(w http.ResponseWriter, r *http.Request) (types.UploadedAudioAsset, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeInvalid(w, "File size exceeds the upload limit")
			return types.UploadedAudioAsset{}, false
		}
		writeInvalid(w, "Audio file is required")
		return types.UploadedAudioAsset{}, false
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeInvalid(w, "Audio file is required")
		return types.UploadedAudioAsset{}, false
	}
	defer file.Close()

	if header.Size > s.maxUpload {
		writeInvalid(w, "File size exceeds the upload limit")
		return types.UploadedAudioAsset{}, false
	}
	mimeType := header.Header.Get("Content-Type")
	if !types.IsAllowedAudioMIME(mimeType) {
		writeInvalid(w, "Invalid file type. Only audio files are allowed.")
		return types.UploadedAudioAsset{}, false
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	path := filepath.Join(s.uploadsDir, uuid.NewString()+ext)
	n, err := saveFile(path, file)
	if err != nil {
		os.Remove(path)
		s.log.WithError(err).Error("failed to store upload")
		writeResult(w, processor.Result{
			Message: "Failed to store the uploaded file.",
			Kind:    types.KindStorageFailed,
			Status:  http.StatusInternalServerError,
		})
		return types.UploadedAudioAsset{}, false
	}
	return types.UploadedAudioAsset{
		Path:         path,
		MIMEType:     mimeType,
		OriginalName: header.Filename,
		Size:         n,
	}, true
}

func saveFile(path string, src io.Reader) (int64, error) {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// detach keeps a workflow running when the client goes away; the processor
// timeout still bounds it.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	return dec.Decode(v)
}

func writeInvalid(w http.ResponseWriter, msg string) {
	writeResult(w, processor.Result{
		Message: msg,
		Kind:    types.KindInvalidInput,
		Status:  http.StatusBadRequest,
	})
}

func writeResult(w http.ResponseWriter, res processor.Result) {
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
