package plugins

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/efebarandurmaz/codegraph/internal/syntax"
)

// SourceFile represents a single input file to be parsed. Path is relative
// to the build root and uses forward slashes.
type SourceFile struct {
	Path    string
	Content []byte
}

// SourcePlugin turns source files into the syntax representation the
// graph core consumes.
type SourcePlugin interface {
	// Language returns the source language identifier (e.g. "python").
	Language() string
	// Parse converts source files, one syntax.File per input file.
	Parse(ctx context.Context, files []SourceFile) ([]*syntax.File, error)
}

// FileExtensionsProvider is an optional interface for source plugins to declare
// which file extensions they can parse (e.g. []string{".py"}).
//
// When not implemented, every file under the root is handed to the plugin.
type FileExtensionsProvider interface {
	FileExtensions() []string
}

// skipDirs are never walked.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".codegraph":   true,
	"__pycache__":  true,
	"node_modules": true,
	".venv":        true,
	"venv":         true,
}

// LoadSourceFiles reads the files src can parse from path, which may be a
// single file or a directory. Results are sorted by path.
func LoadSourceFiles(path string, src SourcePlugin) ([]SourceFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []SourceFile{{Path: filepath.ToSlash(filepath.Base(path)), Content: data}}, nil
	}

	allowed := extensionSet(src)
	var files []SourceFile
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(allowed) > 0 && !allowed[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		files = append(files, SourceFile{Path: filepath.ToSlash(rel), Content: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func extensionSet(src SourcePlugin) map[string]bool {
	fep, ok := src.(FileExtensionsProvider)
	if !ok {
		return nil
	}
	out := make(map[string]bool)
	for _, ext := range fep.FileExtensions() {
		ext = strings.TrimSpace(strings.ToLower(ext))
		if ext == "" {
			continue
		}
		if ext[0] != '.' {
			ext = "." + ext
		}
		out[ext] = true
	}
	return out
}

// ContentID is the snapshot id of a file version.
func ContentID(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:12])
}
