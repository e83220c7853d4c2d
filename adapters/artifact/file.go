// Package artifact persists generated model artifacts and the bootstrap
// manifest, either as YAML files in a directory or as rows through gorm.
package artifact

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/artpar/ondemand/core/schema"
	"github.com/artpar/ondemand/ports"
)

// File names inside a model's artifact directory.
const (
	ModelFile    = "model.yaml"
	APIFile      = "api.yaml"
	ManifestFile = "manifest.txt"
)

// FileStore keeps each artifact pair in <dir>/<name>/.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes model.yaml and api.yaml and returns their paths.
func (s *FileStore) Save(ctx context.Context, a ports.Artifact) ([]string, error) {
	key, err := artifactKey(a.Key())
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.dir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	// api.yaml first so that a watcher reacting to model.yaml sees both.
	apiPath := filepath.Join(dir, APIFile)
	if err := writeYAML(apiPath, a.API); err != nil {
		return nil, err
	}

	modelPath := filepath.Join(dir, ModelFile)
	if err := writeYAML(modelPath, a.Model); err != nil {
		return []string{apiPath}, err
	}

	return []string{modelPath, apiPath}, nil
}

// Load reads the artifact stored for name.
func (s *FileStore) Load(ctx context.Context, name string) (ports.Artifact, error) {
	key, err := artifactKey(name)
	if err != nil {
		return ports.Artifact{}, err
	}

	var a ports.Artifact
	modelPath := filepath.Join(s.dir, key, ModelFile)
	if err := readYAML(modelPath, &a.Model); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ports.Artifact{}, fmt.Errorf("%w: %s", ports.ErrArtifactNotFound, modelPath)
		}
		return ports.Artifact{}, err
	}

	// The endpoint listing is regenerated on mount, so a missing api.yaml is tolerated.
	apiPath := filepath.Join(s.dir, key, APIFile)
	if err := readYAML(apiPath, &a.API); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ports.Artifact{}, err
	}

	return a, nil
}

// Names lists directories that contain a model.yaml.
func (s *FileStore) Names(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifact dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, e.Name(), ModelFile)); err == nil {
			names = append(names, strings.ToLower(e.Name()))
		}
	}
	sort.Strings(names)
	return names, nil
}

// FileManifest is a line-oriented list of model names.
type FileManifest struct {
	mu   sync.Mutex
	path string
}

// NewFileManifest creates a manifest at path. The file is created on first append.
func NewFileManifest(path string) *FileManifest {
	return &FileManifest{path: path}
}

// Path returns the manifest file path.
func (m *FileManifest) Path() string {
	return m.path
}

// Append adds a name on its own line.
func (m *FileManifest) Append(ctx context.Context, name string) error {
	key, err := artifactKey(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}

	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	if _, err := fmt.Fprintln(f, key); err != nil {
		f.Close()
		return fmt.Errorf("append manifest: %w", err)
	}
	return f.Close()
}

// Names returns manifest entries in file order. Blank lines and lines
// starting with # are skipped. A missing file is an empty manifest.
func (m *FileManifest) Names(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := os.Open(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return names, nil
}

// artifactKey lower-cases a model name and rejects anything that is not a
// valid model name, so keys never escape the artifact directory.
func artifactKey(name string) (string, error) {
	if err := schema.ValidateName(name); err != nil {
		return "", fmt.Errorf("artifact key: %w", err)
	}
	return strings.ToLower(name), nil
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
