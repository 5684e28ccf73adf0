package poly

import (
	"fmt"
	"strings"
)

type Asset struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	AuthorName  string   `json:"authorName"`
	Description string   `json:"description"`
	CreateTime  string   `json:"createTime"`
	UpdateTime  string   `json:"updateTime"`
	Formats     []Format `json:"formats"`
	Thumbnail   *File    `json:"thumbnail,omitempty"`
	License     string   `json:"license"`
	Visibility  string   `json:"visibility"`
	IsCurated   bool     `json:"isCurated"`
}

type Format struct {
	Root             File              `json:"root"`
	Resources        []File            `json:"resources"`
	FormatComplexity *FormatComplexity `json:"formatComplexity,omitempty"`
	FormatType       string            `json:"formatType"`
}

type FormatComplexity struct {
	TriangleCount string `json:"triangleCount"`
	LodHint       int    `json:"lodHint"`
}

// Download is one file to fetch, named by its path relative to the format root.
type Download struct {
	Name string
	URL  string
}

type File struct {
	RelativePath string `json:"relativePath"`
	URL          string `json:"url"`
	ContentType  string `json:"contentType"`
}

// ID returns the bare asset id from the "assets/<id>" resource name.
func (a *Asset) ID() string {
	return strings.TrimPrefix(a.Name, "assets/")
}

// Format returns the first format of the given type, compared case-insensitively.
func (a *Asset) Format(formatType string) (*Format, error) {
	for i := range a.Formats {
		if strings.EqualFold(a.Formats[i].FormatType, formatType) {
			return &a.Formats[i], nil
		}
	}
	available := make([]string, 0, len(a.Formats))
	for _, f := range a.Formats {
		available = append(available, f.FormatType)
	}
	return nil, fmt.Errorf("asset %s has no %s format (available: %s)", a.Name, formatType, strings.Join(available, ", "))
}

// Files lists the root file followed by its resources.
func (f *Format) Files() []File {
	files := make([]File, 0, 1+len(f.Resources))
	files = append(files, f.Root)
	return append(files, f.Resources...)
}
