package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/polyfetch/internal/utils"
)

// LocalSink writes files below a directory. Each file is written to a
// temporary name first and renamed into place.
type LocalSink struct {
	root string
}

func NewLocalSink(root string) (*LocalSink, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %v", err)
	}
	return &LocalSink{root: root}, nil
}

func (s *LocalSink) Location() string {
	return s.root
}

func (s *LocalSink) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rel, err := cleanName(name)
	if err != nil {
		return err
	}
	finalPath := filepath.Join(s.root, filepath.FromSlash(rel))
	tempDir := filepath.Join(s.root, utils.TempDirName)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return fmt.Errorf("error creating temp directory: %v", err)
	}
	tempPath := filepath.Join(tempDir, fmt.Sprintf("%s.%s.part", filepath.Base(rel), uuid.NewString()))
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("error writing temp file: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("error creating directory for %s: %v", rel, err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("error renaming (finalizing) output file: %v", err)
	}
	log.Debug().Str("op", "sink/local").Msgf("Wrote %d bytes to %s", len(data), finalPath)
	return nil
}

// Close removes the temporary directory if nothing is left in it.
func (s *LocalSink) Close() error {
	tempDir := filepath.Join(s.root, utils.TempDirName)
	files, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return os.Remove(tempDir)
	}
	return nil
}
