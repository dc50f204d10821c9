package media

import (
	"log"
	"os"
	"path/filepath"
)

// Workspace is the temporary working directory for one pipeline invocation.
// Every intermediate file (downloaded clips, concat manifests, encode
// outputs) lives inside it, so a single Cleanup removes them all on both
// success and failure paths.
type Workspace struct {
	Dir string
}

func NewWorkspace(root string) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, err
		}
	}
	dir, err := os.MkdirTemp(root, "pipeline-*")
	if err != nil {
		return nil, err
	}
	return &Workspace{Dir: dir}, nil
}

// Path resolves a file name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

func (w *Workspace) Cleanup() {
	if err := os.RemoveAll(w.Dir); err != nil {
		log.Printf("workspace cleanup failed for %s: %v", w.Dir, err)
	}
}
