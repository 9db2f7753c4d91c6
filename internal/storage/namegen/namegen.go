// Package namegen allocates short random object keys and creates their
// backing files exclusively, so choosing a name and claiming it on disk is a
// single step.
package namegen

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/spf13/afero"
)

// DefaultPool omits characters that are easily confused when read back,
// such as 0/O, 1/l/I, 2/Z and 5/S.
const DefaultPool = "abcdefghkmnoprstwxzABCDEFGHJKLMNPQRTWXY34689"

const (
	DefaultKeyLength   = 6
	DefaultMaxAttempts = 16
	// MaxKeyLength bounds both allocated keys and keys accepted by Valid.
	MaxKeyLength = 64
)

// ErrExhausted is returned when every attempt hit an existing name.
var ErrExhausted = errors.New("namegen: no free name within attempt budget")

var collisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ssfile",
	Name:      "allocator_collisions_total",
	Help:      "Candidate object keys discarded because the name already existed.",
})

// Config controls an Allocator. Zero values fall back to the defaults.
type Config struct {
	Dir         string
	Pool        string
	KeyLength   int
	MaxAttempts int
	// FileMode for newly created object files.
	FileMode os.FileMode
	// Source overrides the random source; mainly for tests.
	Source rand.Source
}

// Allocator is safe for concurrent use. Its pool and key length never change
// after construction.
type Allocator struct {
	fs          afero.Fs
	dir         string
	pool        string
	keyLength   int
	maxAttempts int
	mode        os.FileMode

	mu  sync.Mutex
	rnd *rand.Rand
}

// New validates cfg and returns an Allocator creating files on fsys.
func New(fsys afero.Fs, cfg Config) (*Allocator, error) {
	if fsys == nil {
		return nil, fmt.Errorf("namegen: nil filesystem")
	}
	if cfg.Pool == "" {
		cfg.Pool = DefaultPool
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = DefaultKeyLength
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o644
	}
	if cfg.KeyLength < 0 || cfg.KeyLength > MaxKeyLength {
		return nil, fmt.Errorf("namegen: key length must be in 1..%d, got %d", MaxKeyLength, cfg.KeyLength)
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("namegen: max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if err := ValidatePool(cfg.Pool); err != nil {
		return nil, err
	}

	src := cfg.Source
	if src == nil {
		var seed [32]byte
		if _, err := crand.Read(seed[:]); err != nil {
			return nil, fmt.Errorf("namegen: seed: %w", err)
		}
		src = rand.NewChaCha8(seed)
	}

	return &Allocator{
		fs:          fsys,
		dir:         cfg.Dir,
		pool:        cfg.Pool,
		keyLength:   cfg.KeyLength,
		maxAttempts: cfg.MaxAttempts,
		mode:        cfg.FileMode,
		rnd:         rand.New(src),
	}, nil
}

// ValidatePool rejects pools that could produce unsafe file names.
func ValidatePool(pool string) error {
	if pool == "" {
		return fmt.Errorf("namegen: empty character pool")
	}
	seen := make(map[rune]struct{}, len(pool))
	for _, r := range pool {
		if r > 0x7f || !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("namegen: pool character %q is not ASCII alphanumeric", r)
		}
		if _, dup := seen[r]; dup {
			return fmt.Errorf("namegen: pool character %q repeated", r)
		}
		seen[r] = struct{}{}
	}
	return nil
}

// Valid reports whether key is safe to use as a file name under a: non-empty,
// at most MaxKeyLength bytes, and drawn only from the pool. The length is not
// tied to the current key length, so objects stored before a key length change
// stay reachable.
func (a *Allocator) Valid(key string) bool {
	if key == "" || len(key) > MaxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if strings.IndexByte(a.pool, key[i]) < 0 {
			return false
		}
	}
	return true
}

// Path returns where the object named key lives.
func (a *Allocator) Path(key string) string {
	return filepath.Join(a.dir, key)
}

// Allocate draws candidate keys until one can be created exclusively and
// returns it with the open, empty file. The caller owns the file.
func (a *Allocator) Allocate() (string, afero.File, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		key := a.draw()

		f, err := a.fs.OpenFile(a.Path(key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, a.mode)
		if err == nil {
			return key, f, nil
		}
		if errors.Is(err, fs.ErrExist) {
			collisionsTotal.Inc()
			continue
		}
		return "", nil, fmt.Errorf("create %s: %w", key, err)
	}
	return "", nil, fmt.Errorf("%w (%d attempts, key length %d)", ErrExhausted, a.maxAttempts, a.keyLength)
}

func (a *Allocator) draw() string {
	b := make([]byte, a.keyLength)

	a.mu.Lock()
	for i := range b {
		b[i] = a.pool[a.rnd.IntN(len(a.pool))]
	}
	a.mu.Unlock()

	return string(b)
}
