package recording

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/journeyforge/pkg/fsutil"
	"github.com/entrhq/journeyforge/pkg/logging"
	"github.com/entrhq/journeyforge/pkg/page"
)

// MetadataFile is the name of the document written per session.
const MetadataFile = "metadata.json"

// FileSink writes each session to <outputDir>/<journey>-<id>/metadata.json.
type FileSink struct {
	outputDir string
	logger    *logging.Logger
	now       func() time.Time
}

// NewFileSink creates a sink rooted at outputDir.
func NewFileSink(outputDir string, logger *logging.Logger) *FileSink {
	if logger == nil {
		logger = logging.Discard()
	}
	return &FileSink{outputDir: outputDir, logger: logger, now: time.Now}
}

// Start opens a session directory for the run.
func (s *FileSink) Start(ctx context.Context, p page.Controller, opts StartOptions) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := opts.OutputDir
	if root == "" {
		root = s.outputDir
	}
	if root == "" {
		return nil, fmt.Errorf("recording output directory is not configured")
	}

	id := uuid.NewString()
	dir := filepath.Join(root, fsutil.SanitizeName(opts.JourneyName, "journey")+"-"+id[:8])
	if err := fsutil.EnsureDir(dir); err != nil {
		return nil, err
	}

	h := &fileHandle{
		dir:    dir,
		opts:   opts,
		logger: s.logger,
		now:    s.now,
		meta: Metadata{
			SessionID:   id,
			JourneyName: opts.JourneyName,
			StartTime:   s.now(),
		},
		startURL: p.URL(),
	}
	if opts.CaptureVideo {
		if vs, ok := p.(page.VideoSource); ok {
			h.video = vs
		} else {
			s.logger.Warnf("video capture requested but page does not record video")
		}
	}
	s.logger.Infof("recording session %s started in %s", id, dir)
	return h, nil
}

type fileHandle struct {
	mu sync.Mutex

	dir      string
	opts     StartOptions
	logger   *logging.Logger
	now      func() time.Time
	video    page.VideoSource
	startURL string

	meta    Metadata
	actions []Action
	errors  []Error
	stopped bool
	closed  bool
}

func (h *fileHandle) SessionID() string {
	return h.meta.SessionID
}

func (h *fileHandle) CaptureAction(action Action) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.closed {
		return fmt.Errorf("recording session %s is not active", h.meta.SessionID)
	}
	if !h.opts.CaptureAll && !interactionTypes[action.Type] {
		return nil
	}
	if action.TimestampMs == 0 {
		action.TimestampMs = h.now().UnixMilli()
	}
	h.actions = append(h.actions, action)
	return nil
}

func (h *fileHandle) CaptureError(rec Error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped || h.closed {
		return fmt.Errorf("recording session %s is not active", h.meta.SessionID)
	}
	if rec.TimestampMs == 0 {
		rec.TimestampMs = h.now().UnixMilli()
	}
	h.errors = append(h.errors, rec)
	return nil
}

// Stop writes metadata.json. A second Stop returns the same metadata.
func (h *fileHandle) Stop(ctx context.Context) (*Metadata, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		md := h.meta
		return &md, nil
	}
	if h.closed {
		return nil, fmt.Errorf("recording session %s was cleaned up", h.meta.SessionID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.meta.EndTime = h.now()
	h.meta.Actions = len(h.actions)
	h.meta.Errors = len(h.errors)

	doc := document{
		Metadata:   h.meta,
		StartURL:   h.startURL,
		DurationMs: h.meta.EndTime.Sub(h.meta.StartTime).Milliseconds(),
		ActionList: h.actions,
		ErrorList:  h.errors,
	}
	if doc.ActionList == nil {
		doc.ActionList = []Action{}
	}
	if doc.ErrorList == nil {
		doc.ErrorList = []Error{}
	}
	if h.video != nil {
		path, err := h.video.VideoPath()
		if err != nil {
			h.logger.Warnf("recording %s: video unavailable: %v", h.meta.SessionID, err)
			doc.VideoStatus = "unavailable"
		} else {
			h.meta.VideoPath = path
			doc.VideoPath = path
			doc.VideoStatus = "pending_page_close"
		}
	}

	path := filepath.Join(h.dir, MetadataFile)
	h.meta.MetadataPath = path
	doc.MetadataPath = path

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recording metadata: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write recording metadata: %w", err)
	}

	h.stopped = true
	h.logger.Infof("recording session %s stopped: %d actions, %d errors", h.meta.SessionID, h.meta.Actions, h.meta.Errors)
	md := h.meta
	return &md, nil
}

// Cleanup drops buffered records. A session that never stopped leaves no
// artifacts behind, so its directory is removed when empty.
func (h *fileHandle) Cleanup() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	h.actions = nil
	h.errors = nil

	if h.stopped {
		return nil
	}
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to inspect recording directory: %w", err)
	}
	if len(entries) == 0 {
		if err := os.Remove(h.dir); err != nil {
			return fmt.Errorf("failed to remove recording directory: %w", err)
		}
	}
	return nil
}
