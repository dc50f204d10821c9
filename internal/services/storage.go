package services

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ArtifactStore persists finished media artifacts durably and hands out
// retrievable URLs. Artifacts are immutable: regeneration stores a new file
// under a fresh id and the segment row's URL is overwritten.
type ArtifactStore struct {
	basePath string
	baseURL  string
}

func NewArtifactStore(basePath, baseURL string) (*ArtifactStore, error) {
	dir := filepath.Join(basePath, "artifacts")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &ArtifactStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// Save copies localPath into the store and returns the artifact's public
// URL. The source file (inside a pipeline workspace) is left for the
// workspace cleanup to remove.
func (s *ArtifactStore) Save(localPath string) (string, error) {
	ext := filepath.Ext(localPath)
	name := uuid.New().String() + ext
	destPath := filepath.Join(s.basePath, "artifacts", name)

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact source: %w", err)
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		os.Remove(destPath)
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := dest.Close(); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	return s.baseURL + "/media/artifacts/" + name, nil
}

// FileServer serves stored artifacts under /media/.
func (s *ArtifactStore) FileServer() http.Handler {
	return http.StripPrefix("/media/", http.FileServer(http.Dir(s.basePath)))
}
