// Package cas keeps the files of a checked project by content.
//
// Blobs live at <root>/blobs/sha256/<first2>/<sha256>. Every blob also gets a
// BLAKE3 pointer at <root>/blobs/blake3/<first2>/<blake3>.json so a blob can
// be found by either digest. Manifests tie a check run to the blobs it read
// and produced.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/usfmcheck/core/errors"
)

// osRename is swapped in tests to exercise rename failures.
var osRename = os.Rename

var hexDigest = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Blob identifies stored content.
type Blob struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
	Size   int64  `json:"size"`
}

type blake3Pointer struct {
	SHA256 string `json:"sha256"`
}

// Store is a content-addressed directory.
type Store struct {
	root string
}

// Open creates the store layout under root if needed.
func Open(root string) (*Store, error) {
	for _, dir := range []string{
		filepath.Join(root, "blobs", "sha256"),
		filepath.Join(root, "blobs", "blake3"),
		filepath.Join(root, "manifests"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.NewIO("mkdir", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Put stores data. Storing the same content twice writes nothing new.
func (s *Store) Put(data []byte) (Blob, error) {
	b := Blob{SHA256: Hash(data), BLAKE3: Blake3Hash(data), Size: int64(len(data))}

	p := s.blobPath(b.SHA256)
	if _, err := os.Stat(p); os.IsNotExist(err) {
		if err := writeAtomic(p, data); err != nil {
			return Blob{}, err
		}
	}

	ptr := s.pointerPath(b.BLAKE3)
	if _, err := os.Stat(ptr); os.IsNotExist(err) {
		raw, err := json.Marshal(blake3Pointer{SHA256: b.SHA256})
		if err != nil {
			return Blob{}, errors.Wrap(err, "marshal blake3 pointer")
		}
		if err := writeAtomic(ptr, raw); err != nil {
			return Blob{}, err
		}
	}
	return b, nil
}

// Get returns the blob with the given SHA-256 digest and verifies its content.
func (s *Store) Get(sha string) ([]byte, error) {
	if !hexDigest.MatchString(sha) {
		return nil, errors.NewValidation("sha256", "not a hex digest: "+sha)
	}
	p := s.blobPath(sha)
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFound("blob", sha)
	}
	if err != nil {
		return nil, errors.NewIO("read", p, err)
	}
	if got := Hash(data); got != sha {
		return nil, &errors.InternalError{Component: "cas", Message: "blob " + sha + " has digest " + got, Err: errors.ErrInternal}
	}
	return data, nil
}

// Has reports whether a blob is stored.
func (s *Store) Has(sha string) bool {
	if !hexDigest.MatchString(sha) {
		return false
	}
	_, err := os.Stat(s.blobPath(sha))
	return err == nil
}

// Resolve maps a BLAKE3 digest to the SHA-256 digest of the same blob.
func (s *Store) Resolve(b3 string) (string, error) {
	if !hexDigest.MatchString(b3) {
		return "", errors.NewValidation("blake3", "not a hex digest: "+b3)
	}
	p := s.pointerPath(b3)
	raw, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return "", errors.NewNotFound("blob", b3)
	}
	if err != nil {
		return "", errors.NewIO("read", p, err)
	}
	var ptr blake3Pointer
	if err := json.Unmarshal(raw, &ptr); err != nil {
		return "", errors.NewParse("json", p, err.Error())
	}
	return ptr.SHA256, nil
}

// GetByBlake3 returns a blob by its BLAKE3 digest.
func (s *Store) GetByBlake3(b3 string) ([]byte, error) {
	sha, err := s.Resolve(b3)
	if err != nil {
		return nil, err
	}
	return s.Get(sha)
}

func (s *Store) blobPath(sha string) string {
	return filepath.Join(s.root, "blobs", "sha256", sha[:2], sha)
}

func (s *Store) pointerPath(b3 string) string {
	return filepath.Join(s.root, "blobs", "blake3", b3[:2], b3+".json")
}

// writeAtomic writes through a temp file in the target directory.
func writeAtomic(p string, data []byte) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIO("mkdir", dir, err)
	}
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.NewIO("create", dir, err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.NewIO("write", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.NewIO("close", tmp, err)
	}
	if err := osRename(tmp, p); err != nil {
		os.Remove(tmp)
		return errors.NewIO("rename", p, err)
	}
	return nil
}

// Hash returns the hex SHA-256 digest of data.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Blake3Hash returns the hex BLAKE3-256 digest of data.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
