package jobs

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	KindAsset = "asset"
	KindFiles = "files"
)

// File is one named URL of a files job.
type File struct {
	Name string `yaml:"name,omitempty"`
	Link string `yaml:"link"`
}

// Job is one batch: a Poly asset to resolve, or a fixed list of files.
type Job struct {
	ID         string
	Kind       string
	Link       string // asset reference for asset jobs
	Format     string
	OutputPath string
	Files      []File
}

func NewAssetJob(link, format, outputPath string) Job {
	return Job{
		ID:         uuid.NewString(),
		Kind:       KindAsset,
		Link:       link,
		Format:     format,
		OutputPath: outputPath,
	}
}

// NewFilesJob names unnamed files after their URL. Names that repeat get a
// "-(n)" suffix so every file of the job lands at its own path.
func NewFilesJob(files []File, outputPath string) Job {
	taken := make(map[string]bool, len(files))
	for i := range files {
		if files[i].Name == "" {
			files[i].Name = NameFromURL(files[i].Link)
		}
		name := uniqueName(files[i].Name, taken)
		if name != files[i].Name {
			log.Warn().Str("op", "jobs/files").Msgf("Duplicate file name %s for %s, saving as %s", files[i].Name, files[i].Link, name)
			files[i].Name = name
		}
		taken[name] = true
	}
	return Job{
		ID:         uuid.NewString(),
		Kind:       KindFiles,
		Files:      files,
		OutputPath: outputPath,
	}
}

// Label is a short human-readable name for status output.
func (j Job) Label() string {
	switch {
	case j.Kind == KindAsset:
		return j.Link
	case len(j.Files) == 1:
		return j.Files[0].Name
	default:
		return fmt.Sprintf("%d files", len(j.Files))
	}
}

func uniqueName(name string, taken map[string]bool) string {
	if !taken[name] {
		return name
	}
	ext := path.Ext(name)
	stem := name[:len(name)-len(ext)]
	for index := 1; ; index++ {
		candidate := fmt.Sprintf("%s-(%d)%s", stem, index, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}

// NameFromURL picks the last path segment of a URL as a file name.
func NameFromURL(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return "download"
	}
	name := path.Base(u.Path)
	if name == "/" || name == "." || name == "" {
		return "download"
	}
	return name
}

// ParseFileArg reads "name=url" or a bare url.
func ParseFileArg(arg string) File {
	if i := strings.Index(arg, "="); i > 0 && !strings.Contains(arg[:i], "/") {
		return File{Name: arg[:i], Link: arg[i+1:]}
	}
	return File{Name: NameFromURL(arg), Link: arg}
}

type BatchEntry struct {
	OutputPath string `yaml:"op,omitempty"`
	Link       string `yaml:"link,omitempty"`
	Format     string `yaml:"format,omitempty"`
	Items      []File `yaml:"items,omitempty"`
}

type BatchFile map[string][]BatchEntry

// LoadBatchFile reads a YAML file mapping job kinds to entries.
func LoadBatchFile(p string) ([]Job, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %w", err)
	}
	var batchFile BatchFile
	if err := yaml.Unmarshal(data, &batchFile); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %w", err)
	}
	return BuildJobs(batchFile), nil
}

func BuildJobs(batchFile BatchFile) []Job {
	var jobs []Job
	jobTypes := make([]string, 0, len(batchFile))
	for jobType := range batchFile {
		jobTypes = append(jobTypes, jobType)
	}
	sort.Strings(jobTypes)
	for _, jobType := range jobTypes {
		entries := batchFile[jobType]
		kind := NormalizeKind(jobType)
		if kind == "" {
			log.Warn().Str("op", "jobs/batch").Msgf("Unknown job type '%s', skipping", jobType)
			continue
		}
		for _, entry := range entries {
			switch kind {
			case KindAsset:
				if entry.Link == "" {
					log.Warn().Str("op", "jobs/batch").Msgf("Empty link found in %s section, skipping", jobType)
					continue
				}
				jobs = append(jobs, NewAssetJob(entry.Link, entry.Format, entry.OutputPath))
			case KindFiles:
				files := append([]File(nil), entry.Items...)
				if entry.Link != "" {
					files = append(files, File{Link: entry.Link})
				}
				if len(files) == 0 {
					log.Warn().Str("op", "jobs/batch").Msgf("Entry without files found in %s section, skipping", jobType)
					continue
				}
				jobs = append(jobs, NewFilesJob(files, entry.OutputPath))
			}
		}
	}
	return jobs
}

func NormalizeKind(jobType string) string {
	typeMap := map[string]string{
		"asset":  KindAsset,
		"assets": KindAsset,
		"poly":   KindAsset,
		"model":  KindAsset,
		"files":  KindFiles,
		"file":   KindFiles,
		"http":   KindFiles,
		"https":  KindFiles,
		"urls":   KindFiles,
	}
	return typeMap[strings.ToLower(strings.TrimSpace(jobType))]
}
