package bake

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ErrOutputConflict marks a source whose output name is claimed by another source.
var ErrOutputConflict = errors.New("output name conflict")

// SourceKind selects the baker for a discovered file.
type SourceKind int

const (
	SourceTexture SourceKind = iota
	SourceScene
)

func (k SourceKind) String() string {
	if k == SourceScene {
		return "scene"
	}
	return "texture"
}

// Job is one source file to bake.
type Job struct {
	Path string // path on disk
	Rel  string // slash-separated path relative to the source root
	Kind SourceKind
	// Name overrides the output stem when sibling sources share one.
	Name string
	// Conflict is set when no unique output stem could be found.
	Conflict error
}

// OutputDir returns the mirrored directory for the job under exportRoot.
func (j Job) OutputDir(exportRoot string) string {
	return filepath.Join(exportRoot, filepath.FromSlash(pathDir(j.Rel)))
}

// Stem returns the output stem: the file name without its extension, or the full file
// name when a sibling source has the same stem.
func (j Job) Stem() string {
	if j.Name != "" {
		return j.Name
	}
	base := filepath.Base(j.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// outputKey identifies the outputs a job writes. Keys are case-folded for
// case-insensitive filesystems.
func (j Job) outputKey() string {
	return fmt.Sprintf("%s/%s/%d", strings.ToLower(pathDir(j.Rel)), strings.ToLower(j.Stem()), j.Kind)
}

// assignOutputNames keeps the source extension in the stem of jobs that would
// otherwise write the same files, such as rock.png and rock.tga. Jobs still clashing
// after that get a Conflict error.
func assignOutputNames(jobs []Job) {
	groups := make(map[string][]int)
	for i := range jobs {
		k := jobs[i].outputKey()
		groups[k] = append(groups[k], i)
	}
	for _, idx := range groups {
		if len(idx) < 2 {
			continue
		}
		for _, i := range idx {
			jobs[i].Name = filepath.Base(jobs[i].Path)
		}
	}

	owner := make(map[string]string)
	for i := range jobs {
		k := jobs[i].outputKey()
		if prev, ok := owner[k]; ok {
			jobs[i].Conflict = fmt.Errorf("%w: %s and %s both write %s", ErrOutputConflict, prev, jobs[i].Rel, jobs[i].Stem())
			continue
		}
		owner[k] = jobs[i].Rel
	}
}

func pathDir(rel string) string {
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return "."
}

// Classify reports which baker handles path, if any.
func Classify(path string, textureExts, sceneExts []string) (SourceKind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return 0, false
	}
	for _, e := range sceneExts {
		if strings.ToLower(e) == ext {
			return SourceScene, true
		}
	}
	for _, e := range textureExts {
		if strings.ToLower(e) == ext {
			return SourceTexture, true
		}
	}
	return 0, false
}

// Discover walks root recursively and returns the bakeable files in path order.
// Hidden directories and the skip directory (usually the export root) are not entered.
func Discover(root, skip string, textureExts, sceneExts []string) ([]Job, error) {
	absSkip := ""
	if skip != "" {
		if abs, err := filepath.Abs(skip); err == nil {
			absSkip = abs
		}
	}

	var jobs []Job
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if absSkip != "" && path != root {
				if abs, err := filepath.Abs(path); err == nil && abs == absSkip {
					return filepath.SkipDir
				}
			}
			return nil
		}
		kind, ok := Classify(path, textureExts, sceneExts)
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		jobs = append(jobs, Job{Path: path, Rel: filepath.ToSlash(rel), Kind: kind})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering sources in %s: %w", root, err)
	}

	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Rel < jobs[k].Rel })
	assignOutputNames(jobs)
	return jobs, nil
}
