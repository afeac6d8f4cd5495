package secstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/secstore/secstore/internal/backend"
	"github.com/secstore/secstore/internal/blockcache"
	"github.com/secstore/secstore/internal/crypto"
	"github.com/secstore/secstore/internal/debug"
	"github.com/secstore/secstore/internal/errors"
)

// DefaultCacheSize is the default amount of memory used to cache decrypted
// blocks.
const DefaultCacheSize = 32 << 20

// Options bundles the settings for creating or opening a store.
type Options struct {
	// BlockSize is the plaintext block size for new stores, DefaultBlockSize
	// if zero. Ignored by Open.
	BlockSize int

	// Compression enables zstd compression for new stores. Ignored by Open.
	Compression bool

	// CacheSize bounds the decrypted block cache in bytes, DefaultCacheSize
	// if zero. A negative value disables the cache.
	CacheSize int
}

// Store is an open secure store. All content and metadata is encrypted
// before it is handed to the backend.
type Store struct {
	be      backend.Backend
	cfg     Config
	key     *crypto.Key
	keyName string

	// mu guards the metadata tree and the closed flag.
	mu     sync.Mutex
	tree   *tree
	closed bool

	// open tracks the shared state of open files, keyed by content ID.
	open *xsync.MapOf[ID, *openFile]

	blocks *blockcache.Cache

	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// openFile is the state shared by all handles on the same file.
type openFile struct {
	// mu guards Size and ModTime of the node.
	mu   sync.Mutex
	node *node
	refs int
}

func newStore(be backend.Backend, opts Options) (*Store, error) {
	cacheSize := opts.CacheSize
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}

	zenc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "zstd.NewWriter")
	}

	zdec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "zstd.NewReader")
	}

	return &Store{
		be:     be,
		open:   xsync.NewMapOf[ID, *openFile](),
		blocks: blockcache.New(cacheSize),
		zenc:   zenc,
		zdec:   zdec,
	}, nil
}

// Init creates a new, empty store on the backend, protected by password.
func Init(ctx context.Context, be backend.Backend, password string, opts Options) (*Store, error) {
	// refuse to overwrite an existing store
	_, err := be.Stat(ctx, backend.Handle{Type: backend.ConfigFile})
	if err == nil {
		return nil, errors.Fatal("store already initialized")
	}

	s, err := newStore(be, opts)
	if err != nil {
		return nil, err
	}

	key, err := createMasterKey(ctx, be, password)
	if err != nil {
		return nil, err
	}
	s.key = key.master
	s.keyName = key.Name()

	cfg, err := createConfig(opts.BlockSize, opts.Compression)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg

	debug.Log("created new store with id %v", cfg.ID)

	if err := s.saveJSON(ctx, backend.Handle{Type: backend.ConfigFile}, cfg); err != nil {
		return nil, err
	}

	s.tree = newTree()
	if err := s.saveTree(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Open opens an existing store on the backend with the given password.
func Open(ctx context.Context, be backend.Backend, password string, opts Options) (*Store, error) {
	s, err := newStore(be, opts)
	if err != nil {
		return nil, err
	}

	key, err := SearchKey(ctx, be, password, 0)
	if err != nil {
		return nil, err
	}
	s.key = key.master
	s.keyName = key.Name()

	var cfg Config
	if err := s.loadJSON(ctx, backend.Handle{Type: backend.ConfigFile}, &cfg); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.valid(); err != nil {
		return nil, err
	}
	s.cfg = cfg

	buf, err := s.loadSealed(ctx, backend.Handle{Type: backend.TreeFile, Name: "root"})
	if err != nil {
		return nil, errors.Wrap(err, "load tree")
	}

	s.tree, err = unmarshalTree(buf)
	if err != nil {
		return nil, err
	}

	debug.Log("opened store %v with key %v", cfg.ID, key.Name())

	return s, nil
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// Close marks the store as closed. All file and directory handles become
// invalid, the caller must have closed them before to commit pending writes.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Wrap(ErrClosed, "Close")
	}

	s.closed = true
	return nil
}

// seal encrypts (and optionally compresses) the plaintext for storing it on
// the backend.
func (s *Store) seal(plaintext []byte) []byte {
	// a one byte prefix marks whether the payload is compressed, so that
	// compression can be toggled without rewriting the store
	payload := make([]byte, 1, 1+len(plaintext))
	payload[0] = 0

	if s.cfg.Compression {
		compressed := s.zenc.EncodeAll(plaintext, nil)
		if len(compressed) < len(plaintext) {
			payload[0] = 1
			payload = append(payload, compressed...)
		}
	}

	if payload[0] == 0 {
		payload = append(payload, plaintext...)
	}

	nonce := crypto.NewRandomNonce()
	ciphertext := make([]byte, 0, len(nonce)+len(payload)+s.key.Overhead())
	ciphertext = append(ciphertext, nonce...)
	return s.key.Seal(ciphertext, nonce, payload, nil)
}

// openSealed decrypts and decompresses data produced by seal.
func (s *Store) openSealed(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < s.key.NonceSize()+s.key.Overhead()+1 {
		return nil, errors.New("sealed object is too short")
	}

	nonce, ct := ciphertext[:s.key.NonceSize()], ciphertext[s.key.NonceSize():]
	payload, err := s.key.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, err
	}

	switch payload[0] {
	case 0:
		return payload[1:], nil
	case 1:
		return s.zdec.DecodeAll(payload[1:], nil)
	default:
		return nil, errors.Errorf("unknown object encoding %d", payload[0])
	}
}

func (s *Store) saveSealed(ctx context.Context, h backend.Handle, plaintext []byte) error {
	buf := s.seal(plaintext)
	return s.be.Save(ctx, h, backend.NewByteReader(buf, s.be.Hasher()))
}

func (s *Store) loadSealed(ctx context.Context, h backend.Handle) ([]byte, error) {
	buf, err := backend.LoadAll(ctx, nil, s.be, h)
	if err != nil {
		return nil, err
	}

	return s.openSealed(buf)
}

func (s *Store) saveJSON(ctx context.Context, h backend.Handle, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "Marshal")
	}

	return s.saveSealed(ctx, h, buf)
}

func (s *Store) loadJSON(ctx context.Context, h backend.Handle, v interface{}) error {
	buf, err := s.loadSealed(ctx, h)
	if err != nil {
		return err
	}

	return errors.Wrap(json.Unmarshal(buf, v), "Unmarshal")
}

// saveTreeLocked persists the metadata tree. The caller must hold s.mu.
func (s *Store) saveTreeLocked(ctx context.Context) error {
	buf, err := s.tree.marshal()
	if err != nil {
		return err
	}

	return s.saveSealed(ctx, backend.Handle{Type: backend.TreeFile, Name: "root"}, buf)
}

func (s *Store) saveTree(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveTreeLocked(ctx)
}

// blockName returns the backend object name for block idx of the file with
// the given content ID.
func blockName(id ID, idx int64) string {
	return fmt.Sprintf("%s.%08d", id, idx)
}

// blockCount returns the number of blocks a file of the given size occupies.
func (s *Store) blockCount(size int64) int64 {
	bs := int64(s.cfg.BlockSize)
	return (size + bs - 1) / bs
}

// removeBlocks removes the blocks [from, to) of the file with the given
// content ID from backend and cache. Missing blocks (holes) are ignored.
func (s *Store) removeBlocks(ctx context.Context, id ID, from, to int64) error {
	for idx := from; idx < to; idx++ {
		name := blockName(id, idx)
		s.blocks.Remove(name)

		err := s.be.Remove(ctx, backend.Handle{Type: backend.DataFile, Name: name})
		if err != nil && !s.be.IsNotExist(err) {
			return err
		}
	}

	return nil
}

// acquire registers an open handle for the node. The caller must hold s.mu.
func (s *Store) acquire(n *node) *openFile {
	of, _ := s.open.LoadOrStore(n.ID, &openFile{node: n})
	of.refs++
	return of
}

// release drops an open handle reference. The caller must hold s.mu.
func (s *Store) release(of *openFile) {
	of.refs--
	if of.refs == 0 {
		s.open.Delete(of.node.ID)
	}
}

// isOpen reports whether the file with the given content ID has open handles.
func (s *Store) isOpen(id ID) bool {
	_, ok := s.open.Load(id)
	return ok
}

// Stat returns information about the file or directory at path.
func (s *Store) Stat(p string) (FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return FileInfo{}, errors.Wrap(ErrClosed, "Stat")
	}

	n, err := s.tree.lookup(p)
	if err != nil {
		return FileInfo{}, err
	}

	return n.fileInfo(), nil
}

// Mkdir creates a directory at path. The parent directory must exist.
func (s *Store) Mkdir(ctx context.Context, p string, mode os.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Wrap(ErrClosed, "Mkdir")
	}

	parent, base, err := s.tree.lookupParent(p)
	if err != nil {
		return err
	}

	if _, err := s.tree.mkdir(parent, base, mode); err != nil {
		return errors.Wrapf(err, "mkdir %v", p)
	}

	return s.saveTreeLocked(ctx)
}

// MkdirAll creates a directory at path, along with any necessary parents.
func (s *Store) MkdirAll(ctx context.Context, p string, mode os.FileMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Wrap(ErrClosed, "MkdirAll")
	}

	if _, err := s.mkdirAllLocked(p, mode); err != nil {
		return err
	}

	return s.saveTreeLocked(ctx)
}

func (s *Store) mkdirAllLocked(p string, mode os.FileMode) (*node, error) {
	n := s.tree.Root
	for _, elem := range splitPath(p) {
		child, _ := n.find(elem)
		if child == nil {
			var err error
			child, err = s.tree.mkdir(n, elem, mode)
			if err != nil {
				return nil, err
			}
		} else if !child.isDir() {
			return nil, errors.Wrapf(ErrNotDir, "mkdir %v", p)
		}

		n = child
	}

	return n, nil
}

// Remove removes the file or empty directory at path. Open files cannot be
// removed.
func (s *Store) Remove(ctx context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Wrap(ErrClosed, "Remove")
	}

	parent, base, err := s.tree.lookupParent(p)
	if err != nil {
		return err
	}

	n, _ := parent.find(base)
	if n == nil {
		return errors.Wrapf(ErrNotExist, "remove %v", p)
	}

	if n.isDir() {
		if len(n.Nodes) > 0 {
			return errors.Wrapf(ErrNotEmpty, "remove %v", p)
		}
	} else {
		if s.isOpen(n.ID) {
			return errors.Wrapf(ErrBusy, "remove %v", p)
		}

		if err := s.removeBlocks(ctx, n.ID, 0, s.blockCount(n.Size)); err != nil {
			return err
		}
	}

	if err := parent.remove(base); err != nil {
		return err
	}
	parent.ModTime = time.Now()

	return s.saveTreeLocked(ctx)
}

// RemoveAll removes the path and, if it is a directory, everything below it.
// It fails without removing anything if an open file is affected.
func (s *Store) RemoveAll(ctx context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Wrap(ErrClosed, "RemoveAll")
	}

	parent, base, err := s.tree.lookupParent(p)
	if err != nil {
		if errors.Is(err, ErrNotExist) {
			return nil
		}
		return err
	}

	n, _ := parent.find(base)
	if n == nil {
		return nil
	}

	if err := s.checkNoneOpen(n); err != nil {
		return errors.Wrapf(err, "remove %v", p)
	}

	if err := s.removeNodeBlocks(ctx, n); err != nil {
		return err
	}

	if err := parent.remove(base); err != nil {
		return err
	}
	parent.ModTime = time.Now()

	return s.saveTreeLocked(ctx)
}

func (s *Store) checkNoneOpen(n *node) error {
	if !n.isDir() {
		if s.isOpen(n.ID) {
			return ErrBusy
		}
		return nil
	}

	for _, child := range n.Nodes {
		if err := s.checkNoneOpen(child); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) removeNodeBlocks(ctx context.Context, n *node) error {
	if !n.isDir() {
		return s.removeBlocks(ctx, n.ID, 0, s.blockCount(n.Size))
	}

	for _, child := range n.Nodes {
		if err := s.removeNodeBlocks(ctx, child); err != nil {
			return err
		}
	}

	return nil
}

// Rename moves the file or directory at oldpath to newpath. An existing file
// at newpath is replaced unless it is open, replacing a non-empty directory
// is refused. Moving a directory below itself returns ErrInvalid.
func (s *Store) Rename(ctx context.Context, oldpath, newpath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Wrap(ErrClosed, "Rename")
	}

	oldparent, oldbase, err := s.tree.lookupParent(oldpath)
	if err != nil {
		return err
	}

	n, _ := oldparent.find(oldbase)
	if n == nil {
		return errors.Wrapf(ErrNotExist, "rename %v", oldpath)
	}

	// a directory must not be moved below itself, that would disconnect the
	// whole subtree from the root
	if strings.HasPrefix(cleanPath(newpath), cleanPath(oldpath)+"/") {
		return errors.Wrapf(ErrInvalid, "rename %v to %v", oldpath, newpath)
	}

	newparent, newbase, err := s.tree.lookupParent(newpath)
	if err != nil {
		return err
	}

	if target, _ := newparent.find(newbase); target != nil {
		if target == n {
			return nil
		}

		if target.isDir() != n.isDir() {
			if target.isDir() {
				return errors.Wrapf(ErrIsDir, "rename to %v", newpath)
			}
			return errors.Wrapf(ErrNotDir, "rename to %v", newpath)
		}

		if target.isDir() {
			if len(target.Nodes) > 0 {
				return errors.Wrapf(ErrNotEmpty, "rename to %v", newpath)
			}
		} else {
			if s.isOpen(target.ID) {
				return errors.Wrapf(ErrBusy, "rename to %v", newpath)
			}

			if err := s.removeBlocks(ctx, target.ID, 0, s.blockCount(target.Size)); err != nil {
				return err
			}
		}

		if err := newparent.remove(newbase); err != nil {
			return err
		}
	}

	if err := oldparent.remove(oldbase); err != nil {
		return err
	}

	n.Name = newbase
	if err := newparent.insert(n); err != nil {
		return err
	}

	now := time.Now()
	oldparent.ModTime = now
	newparent.ModTime = now

	return s.saveTreeLocked(ctx)
}

// Truncate changes the size of the file at path. If the file is extended,
// the new area reads as zero bytes.
func (s *Store) Truncate(ctx context.Context, p string, size int64) error {
	f, err := s.OpenFile(ctx, p, "r+")
	if err != nil {
		return err
	}

	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// TempName returns a path below /tmp inside the store that does not exist
// yet. The /tmp directory is created if necessary.
func (s *Store) TempName(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", errors.Wrap(ErrClosed, "TempName")
	}

	tmp, err := s.mkdirAllLocked("/tmp", 0700)
	if err != nil {
		return "", err
	}

	if err := s.saveTreeLocked(ctx); err != nil {
		return "", err
	}

	for {
		id := NewID()
		name := "tmp-" + hex.EncodeToString(id[:4])
		if n, _ := tmp.find(name); n == nil {
			return path.Join("/tmp", name), nil
		}
	}
}
