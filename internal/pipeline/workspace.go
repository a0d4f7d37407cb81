package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorkspacePrefix marks directories created by NewWorkspace under the scratch root
const WorkspacePrefix = "job-"

const (
	imagesDirName   = "detections"
	archiveFileName = "detections.zip"
	defaultVideoExt = ".mp4"
)

// Workspace is the scratch directory of a single job:
//
//	<root>/job-<id>/input.<ext>
//	<root>/job-<id>/detections/frame_<n>.jpg
//	<root>/job-<id>/detections.zip
type Workspace struct {
	ID   string
	Root string
}

// NewWorkspace creates the scratch directory for job id under scratchRoot
func NewWorkspace(scratchRoot, id string) (*Workspace, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, fmt.Errorf("invalid job id %q", id)
	}
	if err := os.MkdirAll(scratchRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch root: %w", err)
	}

	root := filepath.Join(scratchRoot, WorkspacePrefix+id)
	if err := os.Mkdir(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	if err := os.Mkdir(filepath.Join(root, imagesDirName), 0o755); err != nil {
		os.RemoveAll(root)
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}

	return &Workspace{ID: id, Root: root}, nil
}

// VideoPath returns where the upload is stored, keeping the upload's extension
func (w *Workspace) VideoPath(uploadName string) string {
	ext := strings.ToLower(filepath.Ext(uploadName))
	if ext == "" || len(ext) > 8 || strings.ContainsAny(ext, `/\`) {
		ext = defaultVideoExt
	}
	return filepath.Join(w.Root, "input"+ext)
}

// ImagesDir holds the annotated frames
func (w *Workspace) ImagesDir() string {
	return filepath.Join(w.Root, imagesDirName)
}

// FramePath returns the image path for a 1-based frame index
func (w *Workspace) FramePath(index int) string {
	return filepath.Join(w.ImagesDir(), fmt.Sprintf("frame_%d.jpg", index))
}

// ArchivePath returns the ZIP location
func (w *Workspace) ArchivePath() string {
	return filepath.Join(w.Root, archiveFileName)
}

// Cleanup removes the workspace and everything in it
func (w *Workspace) Cleanup() error {
	if err := os.RemoveAll(w.Root); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", w.Root, err)
	}
	return nil
}
