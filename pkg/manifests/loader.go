// Package manifests discovers manifest files on disk and decodes them.
package manifests

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/homestead/pkg/actions"
	"github.com/openfroyo/homestead/pkg/engine"
)

// FilesDir is the per-manifest directory holding file sources. It is never
// searched for manifests.
const FilesDir = "files"

// document is the on-disk form of a manifest.
type document struct {
	Name      string            `yaml:"name"`
	Depends   []string          `yaml:"depends" validate:"dive,required"`
	Variables map[string]string `yaml:"variables" validate:"dive,keys,required,endkeys"`
	Actions   actions.List      `yaml:"actions"`
}

// Loader loads manifests from files and directories.
type Loader struct {
	logger   zerolog.Logger
	validate *validator.Validate

	// ignore lists base names that are never loaded as manifests.
	ignore map[string]bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithIgnore skips files with the given base names, such as the
// configuration file living beside the manifests.
func WithIgnore(names ...string) Option {
	return func(l *Loader) {
		for _, n := range names {
			l.ignore[n] = true
		}
	}
}

// NewLoader creates a manifest loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		logger:   zerolog.Nop(),
		validate: validator.New(),
		ignore:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads every manifest under paths. Each path is a manifest file or a
// directory searched recursively for *.yaml and *.yml files, skipping
// hidden entries and files directories. Manifest names must be unique
// across all paths.
func (l *Loader) Load(ctx context.Context, paths []string) ([]*engine.Manifest, error) {
	manifests := make([]*engine.Manifest, 0)
	seen := make(map[string]string)

	for _, p := range paths {
		root, err := homedir.Expand(p)
		if err != nil {
			return nil, engine.NewError(engine.KindInvalidManifest, fmt.Sprintf("invalid manifest location %s", p), err)
		}

		files, err := l.discover(ctx, root)
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			m, err := l.LoadFile(f.path, f.name)
			if err != nil {
				return nil, err
			}
			if prev, dup := seen[m.Name]; dup {
				return nil, engine.NewError(engine.KindInvalidManifest,
					fmt.Sprintf("duplicate manifest name %q (%s and %s)", m.Name, prev, m.Path), nil).
					WithManifest(m.Name)
			}
			seen[m.Name] = m.Path
			manifests = append(manifests, m)
		}
	}

	l.logger.Debug().Int("manifests", len(manifests)).Strs("paths", paths).Msg("Loaded manifests")
	return manifests, nil
}

type manifestFile struct {
	path string
	name string
}

// discover lists the manifest files under root with their derived names.
func (l *Loader) discover(ctx context.Context, root string) ([]manifestFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, engine.NewError(engine.KindInvalidManifest, fmt.Sprintf("cannot read manifest location %s", root), err)
	}
	if !info.IsDir() {
		return []manifestFile{{path: root, name: DeriveName(filepath.Base(root))}}, nil
	}

	var files []manifestFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == FilesDir && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !isManifestFile(d.Name()) || l.ignore[d.Name()] {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, manifestFile{path: path, name: DeriveName(rel)})
		return nil
	})
	if err != nil {
		var engErr *engine.EngineError
		if errors.As(err, &engErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, engine.NewError(engine.KindInvalidManifest, fmt.Sprintf("failed to search %s", root), err)
	}
	return files, nil
}

// LoadFile decodes one manifest. name is used unless the document declares
// its own.
func (l *Loader) LoadFile(path, name string) (*engine.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewError(engine.KindInvalidManifest, fmt.Sprintf("failed to read %s", path), err).WithManifest(name)
	}
	return l.Parse(data, path, name)
}

// Parse decodes a manifest document. Unknown keys are rejected, both at
// the document level and inside actions.
func (l *Loader) Parse(data []byte, path, name string) (*engine.Manifest, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		var engErr *engine.EngineError
		if errors.As(err, &engErr) {
			return nil, engErr.WithManifest(name)
		}
		return nil, engine.NewError(engine.KindInvalidManifest, fmt.Sprintf("failed to parse %s", path), err).WithManifest(name)
	}

	if doc.Name != "" {
		name = doc.Name
	}
	if name == "" {
		return nil, engine.NewError(engine.KindInvalidManifest, fmt.Sprintf("manifest %s has no name", path), nil)
	}
	if err := l.validate.Struct(&doc); err != nil {
		return nil, engine.NewError(engine.KindInvalidManifest, fmt.Sprintf("invalid manifest %s", path), err).WithManifest(name)
	}

	return &engine.Manifest{
		Name:      name,
		Path:      path,
		Depends:   doc.Depends,
		Variables: doc.Variables,
		Actions:   doc.Actions,
	}, nil
}

// DeriveName turns a manifest path relative to its root into a manifest
// name: the extension is dropped and separators become dots, so
// "dev/git.yaml" is named "dev.git".
func DeriveName(rel string) string {
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
}

func isManifestFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Load loads the manifests under paths with a Loader built from opts.
func Load(ctx context.Context, paths []string, opts ...Option) ([]*engine.Manifest, error) {
	return NewLoader(opts...).Load(ctx, paths)
}
