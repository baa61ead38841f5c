package resolver

import (
	"fmt"
	"strings"
)

// Filesystem is the resolver's only collaborator. Exists reports whether a
// path references an existing file. Errors are reserved for failures of the
// check itself (permissions, broken mounts), never for plain non-existence.
type Filesystem interface {
	Exists(path string) (bool, error)
}

// Resolution is the outcome of a baseline path lookup. Found reports whether
// any candidate exists on disk; a miss is a normal outcome, not an error.
type Resolution struct {

	// Path of the first existing candidate, relative to the
	// filesystem root. Empty when Found is false.
	Path string

	// Via names the transform that produced the matching candidate,
	// or "primary" when the logical path itself exists.
	Via string

	Found bool
}

// Transform derives one candidate physical path from a logical path. Apply
// returns its input unchanged when the pattern it looks for is absent; such
// no-op candidates are still existence-checked so the chain stays
// order-stable.
type Transform struct {
	Name  string
	Apply func(path string) string
}

// DefaultTransforms is the fallback chain for baseline screenshots whose
// stored path predates one of the historical directory-layout changes.
// Order matters: the first existing candidate wins, and every transform
// applies to the original logical path, not to the previous candidate.
func DefaultTransforms() []Transform {
	return []Transform{
		{Name: "snapshots_prefix", Apply: prefixSnapshots},
		{Name: "baseline_subdir", Apply: replaceFirst("/baseline_", "/baseline/baseline_")},
		{Name: "strip_baseline_dir", Apply: replaceFirst("/baseline/", "/")},
		{Name: "home_png", Apply: replaceSuffix("baseline.png", "home.png")},
		{Name: "homepage_png", Apply: replaceSuffix("baseline.png", "homepage.png")},
		{Name: "home_jpg", Apply: replaceSuffix("baseline.jpg", "home.jpg")},
		{Name: "homepage_jpg", Apply: replaceSuffix("baseline.jpg", "homepage.jpg")},
	}
}

// BaselineResolver maps a possibly stale logical baseline path to an
// existing file by trying a fixed, ordered list of candidate transforms.
// It holds no state between calls and is safe for concurrent use.
type BaselineResolver struct {
	fs         Filesystem
	transforms []Transform
}

func New(fs Filesystem) *BaselineResolver {
	return NewWithTransforms(fs, DefaultTransforms())
}

func NewWithTransforms(fs Filesystem, transforms []Transform) *BaselineResolver {
	return &BaselineResolver{
		fs:         fs,
		transforms: transforms,
	}
}

// Resolve checks the logical path itself first, then each transform's
// candidate, and returns the first one that exists. The resolver never
// creates, moves, or deletes files and never logs; deciding what a miss
// means is the caller's concern.
func (r *BaselineResolver) Resolve(logicalPath string) (Resolution, error) {
	type candidate struct {
		via  string
		path string
	}

	candidates := make([]candidate, 0, len(r.transforms)+1)
	candidates = append(candidates, candidate{via: "primary", path: logicalPath})
	for _, t := range r.transforms {
		candidates = append(candidates, candidate{
			via:  t.Name,
			path: t.Apply(logicalPath),
		})
	}

	for _, c := range candidates {
		ok, err := r.fs.Exists(c.path)
		if err != nil {
			return Resolution{}, fmt.Errorf(
				"failed to check baseline candidate %s: %w",
				c.path,
				err,
			)
		}

		if ok {
			return Resolution{Path: c.path, Via: c.via, Found: true}, nil
		}
	}

	return Resolution{}, nil
}

func prefixSnapshots(path string) string {
	if strings.HasPrefix(path, "snapshots/") {
		return path
	}

	return "snapshots/" + path
}

func replaceFirst(old, new string) func(string) string {
	return func(path string) string {
		return strings.Replace(path, old, new, 1)
	}
}

func replaceSuffix(old, new string) func(string) string {
	return func(path string) string {
		if !strings.HasSuffix(path, old) {
			return path
		}

		return strings.TrimSuffix(path, old) + new
	}
}
