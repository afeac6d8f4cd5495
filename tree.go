package secstore

import (
	"encoding/json"
	"os"
	"path"
	"strings"
	"time"

	"github.com/secstore/secstore/internal/errors"
)

// tree is the metadata tree of a store. It is kept in memory and persisted
// as a single sealed object on the backend.
type tree struct {
	Root *node `json:"root"`
}

func newTree() *tree {
	return &tree{
		Root: &node{
			Name:    "/",
			Type:    NodeTypeDir,
			Mode:    0700,
			ModTime: time.Now(),
		},
	}
}

// splitPath cleans p and splits it into its elements. The root path yields an
// empty slice.
func splitPath(p string) []string {
	p = path.Clean("/" + p)
	if p == "/" {
		return nil
	}

	return strings.Split(p[1:], "/")
}

// cleanPath returns the canonical absolute form of p.
func cleanPath(p string) string {
	return path.Clean("/" + p)
}

// lookup returns the node for the given path.
func (t *tree) lookup(p string) (*node, error) {
	n := t.Root
	for _, elem := range splitPath(p) {
		if !n.isDir() {
			return nil, errors.Wrapf(ErrNotDir, "lookup %v", p)
		}

		child, _ := n.find(elem)
		if child == nil {
			return nil, errors.Wrapf(ErrNotExist, "lookup %v", p)
		}

		n = child
	}

	return n, nil
}

// lookupDir returns the directory node for the given path.
func (t *tree) lookupDir(p string) (*node, error) {
	n, err := t.lookup(p)
	if err != nil {
		return nil, err
	}

	if !n.isDir() {
		return nil, errors.Wrapf(ErrNotDir, "lookup %v", p)
	}

	return n, nil
}

// lookupParent resolves the parent directory of p and returns it together
// with the base name of p. The root path has no parent.
func (t *tree) lookupParent(p string) (*node, string, error) {
	p = cleanPath(p)
	if p == "/" {
		return nil, "", errors.Wrap(ErrIsDir, "lookupParent /")
	}

	dir, err := t.lookupDir(path.Dir(p))
	if err != nil {
		return nil, "", err
	}

	return dir, path.Base(p), nil
}

// mkdir creates a single directory below parent.
func (t *tree) mkdir(parent *node, name string, mode os.FileMode) (*node, error) {
	n := &node{
		Name:    name,
		Type:    NodeTypeDir,
		Mode:    mode & os.ModePerm,
		ModTime: time.Now(),
	}

	if err := parent.insert(n); err != nil {
		return nil, err
	}

	parent.ModTime = n.ModTime
	return n, nil
}

// createFile creates an empty file node below parent.
func (t *tree) createFile(parent *node, name string, mode os.FileMode) (*node, error) {
	n := &node{
		Name:    name,
		Type:    NodeTypeFile,
		Mode:    mode & os.ModePerm,
		ModTime: time.Now(),
		ID:      NewID(),
	}

	if err := parent.insert(n); err != nil {
		return nil, err
	}

	parent.ModTime = n.ModTime
	return n, nil
}

func (t *tree) marshal() ([]byte, error) {
	buf, err := json.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "Marshal")
	}

	return buf, nil
}

func unmarshalTree(buf []byte) (*tree, error) {
	t := &tree{}
	if err := json.Unmarshal(buf, t); err != nil {
		return nil, errors.Wrap(err, "Unmarshal")
	}

	if t.Root == nil || !t.Root.isDir() {
		return nil, errors.New("tree has no root directory")
	}

	return t, nil
}
