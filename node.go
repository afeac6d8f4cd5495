package secstore

import (
	"io/fs"
	"os"
	"sort"
	"time"
)

// NodeType is the type of an entry in the store.
type NodeType string

const (
	// NodeTypeFile marks a regular file.
	NodeTypeFile NodeType = "file"
	// NodeTypeDir marks a directory.
	NodeTypeDir NodeType = "dir"
)

// node is an entry in the metadata tree. For directories, Nodes holds the
// children sorted by name. For files, ID names the encrypted content blocks
// in the backend.
type node struct {
	Name    string      `json:"name"`
	Type    NodeType    `json:"type"`
	Mode    os.FileMode `json:"mode"`
	ModTime time.Time   `json:"mtime"`
	Size    int64       `json:"size,omitempty"`
	ID      ID          `json:"id"`
	Nodes   []*node     `json:"nodes,omitempty"`
}

func (n *node) isDir() bool {
	return n.Type == NodeTypeDir
}

// find returns the child with the given name and its index, or nil and the
// index at which it would be inserted.
func (n *node) find(name string) (*node, int) {
	i := sort.Search(len(n.Nodes), func(i int) bool {
		return n.Nodes[i].Name >= name
	})

	if i < len(n.Nodes) && n.Nodes[i].Name == name {
		return n.Nodes[i], i
	}

	return nil, i
}

// insert adds the child to n, keeping the children sorted by name.
func (n *node) insert(child *node) error {
	existing, i := n.find(child.Name)
	if existing != nil {
		return ErrExist
	}

	n.Nodes = append(n.Nodes, nil)
	copy(n.Nodes[i+1:], n.Nodes[i:])
	n.Nodes[i] = child

	return nil
}

// remove deletes the child with the given name from n.
func (n *node) remove(name string) error {
	child, i := n.find(name)
	if child == nil {
		return ErrNotExist
	}

	n.Nodes = append(n.Nodes[:i], n.Nodes[i+1:]...)
	return nil
}

func (n *node) fileInfo() FileInfo {
	return FileInfo{
		name:    n.Name,
		size:    n.Size,
		mode:    n.Mode,
		modTime: n.ModTime,
		isDir:   n.isDir(),
	}
}

func (n *node) dirEntry() DirEntry {
	return DirEntry{
		Name:    n.Name,
		Type:    n.Type,
		Size:    n.Size,
		Mode:    n.Mode,
		ModTime: n.ModTime,
	}
}

// FileInfo describes a file or directory in the store, in the manner of
// os.Stat.
type FileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

// statically ensure that FileInfo satisfies fs.FileInfo.
var _ fs.FileInfo = FileInfo{}

// Name returns the base name of the file.
func (fi FileInfo) Name() string { return fi.name }

// Size returns the length in bytes of the file content.
func (fi FileInfo) Size() int64 { return fi.size }

// Mode returns the file mode bits.
func (fi FileInfo) Mode() os.FileMode {
	if fi.isDir {
		return fi.mode | os.ModeDir
	}
	return fi.mode
}

// ModTime returns the last modification time.
func (fi FileInfo) ModTime() time.Time { return fi.modTime }

// IsDir reports whether the entry describes a directory.
func (fi FileInfo) IsDir() bool { return fi.isDir }

// Sys returns nil.
func (fi FileInfo) Sys() interface{} { return nil }

// DirEntry is a single entry returned from Dir.Read.
type DirEntry struct {
	Name    string
	Type    NodeType
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
}

// IsDir reports whether the entry describes a directory.
func (e DirEntry) IsDir() bool {
	return e.Type == NodeTypeDir
}
