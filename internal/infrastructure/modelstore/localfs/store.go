package localfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
	"github.com/kirillkom/sentiment-retrainer/internal/ml"
)

const (
	modelFile      = "model.json"
	vectorizerFile = "vectorizer.json"
	metadataFile   = "metadata.json"
	lockFile       = ".alloc.lock"
	stagingPrefix  = ".tmp-"
	lockRetryDelay = 50 * time.Millisecond
)

// Store keeps model versions as v<N> directories under root.
// Allocation is serialized in-process by mu and across processes by a file lock.
type Store struct {
	root   string
	mu     sync.Mutex
	lock   *flock.Flock
	now    func() time.Time
	logger *slog.Logger
}

func New(root string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if root == "" {
		root = "./data/models"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	return &Store{
		root:   root,
		lock:   flock.New(filepath.Join(root, lockFile)),
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}, nil
}

// Path returns the directory of a version.
func (s *Store) Path(version string) string {
	return filepath.Join(s.root, version)
}

func (s *Store) ListVersions(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read models dir: %w", err)
	}
	type numbered struct {
		name string
		n    int
	}
	found := make([]numbered, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, ok := parseVersion(e.Name())
		if !ok {
			continue
		}
		found = append(found, numbered{name: e.Name(), n: n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	out := make([]string, len(found))
	for i, v := range found {
		out[i] = v.name
	}
	return out, nil
}

// parseVersion accepts only canonical names: v1, v12, never v01 or v+1.
func parseVersion(name string) (int, bool) {
	digits, ok := strings.CutPrefix(name, "v")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 || strconv.Itoa(n) != digits {
		return 0, false
	}
	return n, true
}

// SaveNewVersion writes the bundle into a staging directory and publishes it
// as v<max+1> with a single rename.
func (s *Store) SaveNewVersion(
	ctx context.Context,
	artifact ml.Classifier,
	vectorizer *ml.TFIDFVectorizer,
	meta domain.VersionMetadata,
) (string, error) {
	if artifact == nil || vectorizer == nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "save model version", errors.New("artifact and vectorizer are required"))
	}
	model, err := ml.EncodeClassifier(artifact)
	if err != nil {
		return "", err
	}
	vec, err := json.Marshal(vectorizer)
	if err != nil {
		return "", fmt.Errorf("encode vectorizer: %w", err)
	}

	staging, err := os.MkdirTemp(s.root, stagingPrefix)
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	published := false
	defer func() {
		if !published {
			_ = os.RemoveAll(staging)
		}
	}()

	if err := writeFileSync(filepath.Join(staging, modelFile), model); err != nil {
		return "", err
	}
	if err := writeFileSync(filepath.Join(staging, vectorizerFile), vec); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", fmt.Errorf("acquire version lock: %w", err)
	}
	if !locked {
		return "", domain.WrapError(domain.ErrTemporary, "acquire version lock", errors.New("lock busy"))
	}
	defer func() { _ = s.lock.Unlock() }()

	versions, err := s.ListVersions(ctx)
	if err != nil {
		return "", err
	}
	next := 1
	if len(versions) > 0 {
		last, _ := parseVersion(versions[len(versions)-1])
		next = last + 1
	}
	version := fmt.Sprintf("v%d", next)

	meta.Version = version
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	rawMeta, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeFileSync(filepath.Join(staging, metadataFile), rawMeta); err != nil {
		return "", err
	}

	if err := os.Rename(staging, s.Path(version)); err != nil {
		return "", fmt.Errorf("publish %s: %w", version, err)
	}
	published = true
	return version, nil
}

// Load returns the given version, or the newest one when version is empty.
func (s *Store) Load(ctx context.Context, version string) (*domain.ModelVersion, error) {
	if version == "" {
		versions, err := s.ListVersions(ctx)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, domain.WrapError(domain.ErrModelNotFound, "load model", errors.New("no versions in store"))
		}
		version = versions[len(versions)-1]
	}
	if _, ok := parseVersion(version); !ok {
		return nil, domain.WrapError(domain.ErrModelNotFound, "load model", fmt.Errorf("invalid version %q", version))
	}

	dir := s.Path(version)
	rawModel, err := os.ReadFile(filepath.Join(dir, modelFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrModelNotFound, "load model", fmt.Errorf("version %s", version))
		}
		return nil, fmt.Errorf("read %s artifact: %w", version, err)
	}
	artifact, err := ml.DecodeClassifier(rawModel)
	if err != nil {
		return nil, domain.WrapError(domain.ErrModelCorrupt, "load model", fmt.Errorf("%s artifact: %w", version, err))
	}

	rawVec, err := os.ReadFile(filepath.Join(dir, vectorizerFile))
	if err != nil {
		return nil, domain.WrapError(domain.ErrModelCorrupt, "load model", fmt.Errorf("%s vectorizer: %w", version, err))
	}
	var vectorizer ml.TFIDFVectorizer
	if err := json.Unmarshal(rawVec, &vectorizer); err != nil || !vectorizer.Fitted() {
		if err == nil {
			err = errors.New("vectorizer is not fitted")
		}
		return nil, domain.WrapError(domain.ErrModelCorrupt, "load model", fmt.Errorf("%s vectorizer: %w", version, err))
	}
	if err := ml.CheckCompatible(artifact, &vectorizer); err != nil {
		return nil, domain.WrapError(domain.ErrModelCorrupt, "load model", fmt.Errorf("%s: %w", version, err))
	}

	meta := domain.VersionMetadata{Version: version}
	rawMeta, err := os.ReadFile(filepath.Join(dir, metadataFile))
	switch {
	case err == nil:
		if err := json.Unmarshal(rawMeta, &meta); err != nil {
			s.logger.Warn("model_metadata_invalid", "version", version, "error", err)
		}
		meta.Version = version
	case !errors.Is(err, fs.ErrNotExist):
		s.logger.Warn("model_metadata_unreadable", "version", version, "error", err)
	}

	return &domain.ModelVersion{
		VersionID:   version,
		BaseVersion: meta.BaseVersion,
		Artifact:    artifact,
		Vectorizer:  &vectorizer,
		Metadata:    meta,
	}, nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	return nil
}
