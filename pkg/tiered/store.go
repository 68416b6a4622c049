package tiered

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/shardkv/pkg/types"
)

// maxFileSize bounds how large a single offload file grows before the
// store rotates to a new one. Rotation keeps any one file's fsck/replay
// cost bounded, the same reasoning pkg/journal's ring buffer and
// pkg/snapshot's chunking apply to their own files.
const maxFileSize = 64 << 20

// Store offloads PrimeValue payloads a shard no longer wants to keep
// resident to disk, returning a types.TieredRef the caller stores in
// place of the payload. A Store belongs to exactly one engine shard;
// nothing here is safe for concurrent use from two shards; that mirrors
// pkg/engine's single-owning-goroutine-per-shard invariant.
type Store struct {
	mu sync.Mutex

	dir     string
	shardID uint32
	gcm     cipher.AEAD // nil when payloads are stored unsealed

	curFileID uint32
	curFile   *os.File
	curOffset int64

	readFiles map[uint32]*os.File
}

// New opens (creating if necessary) the offload directory for shardID. If
// key is non-nil it must be 32 bytes (AES-256) and every payload is sealed
// with AES-GCM before being written; pass nil to store payloads in the
// clear.
func New(dir string, shardID uint32, key []byte) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create tiered dir: %w", err)
	}

	var gcm cipher.AEAD
	if key != nil {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("tiered cipher: %w", err)
		}
		gcm, err = cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("tiered gcm: %w", err)
		}
	}

	s := &Store{
		dir:       dir,
		shardID:   shardID,
		gcm:       gcm,
		readFiles: make(map[uint32]*os.File),
	}
	if err := s.openCurrent(0); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) fileName(fileID uint32) string {
	return filepath.Join(s.dir, fmt.Sprintf("shard-%d-%d.tiered", s.shardID, fileID))
}

func (s *Store) openCurrent(fileID uint32) error {
	f, err := os.OpenFile(s.fileName(fileID), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open tiered file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat tiered file: %w", err)
	}
	s.curFileID = fileID
	s.curFile = f
	s.curOffset = info.Size()
	return nil
}

// Put appends payload (sealed, if the store was opened with a key) to the
// current offload file, rotating to a new file first if the write would
// exceed maxFileSize. The returned TieredRef is the only information
// needed to retrieve it later via Get.
func (s *Store) Put(payload []byte) (types.TieredRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := payload
	if s.gcm != nil {
		nonce := make([]byte, s.gcm.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return types.TieredRef{}, fmt.Errorf("tiered nonce: %w", err)
		}
		record = s.gcm.Seal(nonce, nonce, payload, nil)
	}

	if s.curOffset+int64(len(record)) > maxFileSize && s.curOffset > 0 {
		if err := s.rotate(); err != nil {
			return types.TieredRef{}, err
		}
	}

	n, err := s.curFile.Write(record)
	if err != nil {
		return types.TieredRef{}, fmt.Errorf("write tiered payload: %w", err)
	}

	ref := types.TieredRef{
		FileID: s.curFileID,
		Offset: s.curOffset,
		Length: int64(n),
	}
	s.curOffset += int64(n)
	return ref, nil
}

func (s *Store) rotate() error {
	if err := s.curFile.Sync(); err != nil {
		return fmt.Errorf("sync tiered file before rotate: %w", err)
	}
	if err := s.curFile.Close(); err != nil {
		return fmt.Errorf("close tiered file before rotate: %w", err)
	}
	return s.openCurrent(s.curFileID + 1)
}

// Get reads back the payload referenced by ref, unsealing it if the store
// was opened with a key.
func (s *Store) Get(ref types.TieredRef) ([]byte, error) {
	s.mu.Lock()
	f, err := s.readerFor(ref.FileID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, ref.Length)
	if _, err := f.ReadAt(buf, ref.Offset); err != nil {
		return nil, fmt.Errorf("read tiered payload: %w", err)
	}

	if s.gcm == nil {
		return buf, nil
	}

	nonceSize := s.gcm.NonceSize()
	if len(buf) < nonceSize {
		return nil, fmt.Errorf("tiered payload shorter than nonce")
	}
	nonce, ciphertext := buf[:nonceSize], buf[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("unseal tiered payload: %w", err)
	}
	return plaintext, nil
}

// readerFor returns a read-only handle for fileID, opening and caching it
// on first use. Must be called with s.mu held.
func (s *Store) readerFor(fileID uint32) (*os.File, error) {
	if fileID == s.curFileID {
		return s.curFile, nil
	}
	if f, ok := s.readFiles[fileID]; ok {
		return f, nil
	}
	f, err := os.Open(s.fileName(fileID))
	if err != nil {
		return nil, fmt.Errorf("open tiered file %d: %w", fileID, err)
	}
	s.readFiles[fileID] = f
	return f, nil
}

// Close releases every open file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if err := s.curFile.Close(); err != nil {
		firstErr = err
	}
	for _, f := range s.readFiles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
