package sink

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// Sink stores downloaded files under a destination chosen when it was opened.
type Sink interface {
	Write(ctx context.Context, name string, data []byte) error
	// Location describes where files end up, for display.
	Location() string
}

// Open returns an S3 sink for s3:// destinations and a local one otherwise.
func Open(ctx context.Context, dest, profile string) (Sink, error) {
	if strings.HasPrefix(dest, "s3://") {
		bucket, prefix, err := parseS3URL(dest)
		if err != nil {
			return nil, err
		}
		return NewS3Sink(ctx, bucket, prefix, profile)
	}
	return NewLocalSink(dest)
}

// cleanName turns an entry name into a slash-separated relative path and
// rejects names that would escape the destination.
func cleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	cleaned := path.Clean("/" + name)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(path.Clean(name), "./") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return cleaned, nil
}
