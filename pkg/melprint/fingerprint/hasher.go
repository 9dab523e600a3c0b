package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/OneOfOne/xxhash"

	"github.com/himanishpuri/melprint/pkg/models"
)

const (
	HashSHA256 = "sha256"
	HashXX     = "xxhash"
)

// Hasher maps the composite key (anchorBin, targetBin, deltaFrames) to a
// fixed-width token. Equal keys always produce equal tokens.
//
// With the default 10 hex characters (40 bits) and a key universe of about
// 128*128*1000 = 1.6e7 distinct keys, the expected number of colliding key
// pairs is n^2/2^41 ~= 120, i.e. a per-token false hit rate near 1e-5.
type Hasher interface {
	Hash(anchorBin, targetBin, deltaFrames int) models.Token
	Name() string
}

// NewHasher returns the named hasher truncating digests to length hex characters.
func NewHasher(name string, length int) (Hasher, error) {
	switch name {
	case "", HashSHA256:
		if length <= 0 || length > sha256.Size*2 {
			return nil, &ConfigError{Field: "token_length", Reason: fmt.Sprintf("must be in 1..%d for sha256", sha256.Size*2)}
		}
		return SHA256Hasher{Length: length}, nil
	case HashXX:
		if length <= 0 || length > 16 {
			return nil, &ConfigError{Field: "token_length", Reason: "must be in 1..16 for xxhash"}
		}
		return XXHasher{Length: length}, nil
	default:
		return nil, &ConfigError{Field: "hash", Reason: fmt.Sprintf("unknown algorithm %q", name)}
	}
}

// compositeKey renders the key as "f1-f2-dt".
func compositeKey(anchorBin, targetBin, deltaFrames int) []byte {
	key := make([]byte, 0, 24)
	key = strconv.AppendInt(key, int64(anchorBin), 10)
	key = append(key, '-')
	key = strconv.AppendInt(key, int64(targetBin), 10)
	key = append(key, '-')
	key = strconv.AppendInt(key, int64(deltaFrames), 10)
	return key
}

// SHA256Hasher keeps the first Length hex characters of the SHA-256 digest.
type SHA256Hasher struct {
	Length int
}

func (h SHA256Hasher) Hash(anchorBin, targetBin, deltaFrames int) models.Token {
	sum := sha256.Sum256(compositeKey(anchorBin, targetBin, deltaFrames))
	return models.Token(hex.EncodeToString(sum[:])[:h.Length])
}

func (h SHA256Hasher) Name() string { return HashSHA256 }

// XXHasher keeps the first Length hex characters of the 64-bit xxhash.
type XXHasher struct {
	Length int
}

func (h XXHasher) Hash(anchorBin, targetBin, deltaFrames int) models.Token {
	sum := xxhash.Checksum64(compositeKey(anchorBin, targetBin, deltaFrames))
	return models.Token(fmt.Sprintf("%016x", sum)[:h.Length])
}

func (h XXHasher) Name() string { return HashXX }
