package fs

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/taskgate/taskgate/service/store"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

const recordExt = ".md"

// Service implements the record store over an abstract file system. Each
// partition maps to a directory under baseURL; a record's partition
// membership is its directory, so a rename-based Move yields exactly-once
// visibility for both the file scheme and the mem scheme used in tests.
type Service struct {
	baseURL string
	fs      afs.Service
	mu      sync.Mutex
}

var _ store.Service = (*Service)(nil)

// New creates a filesystem-backed record store rooted at baseURL and ensures
// every engine partition exists.
func New(fs afs.Service, baseURL string) (*Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	baseURL = url.Normalize(baseURL, file.Scheme)
	ret := &Service{baseURL: baseURL, fs: fs}
	ctx := context.Background()
	for _, partition := range store.Partitions {
		partitionURL := url.Join(baseURL, partition)
		if exists, _ := fs.Exists(ctx, partitionURL); !exists {
			if err := fs.Create(ctx, partitionURL, file.DefaultDirOsMode, true); err != nil {
				return nil, fmt.Errorf("failed to create partition %s: %w", partition, err)
			}
		}
	}
	return ret, nil
}

// Create persists a new record under the given partition and name. A
// same-named record already present fails with ErrConflict; callers generate
// collision-resistant names.
func (s *Service) Create(ctx context.Context, partition, name string, record *store.Record) (store.Ref, error) {
	ref := store.Ref{Partition: partition, Name: name}
	data, err := record.Encode()
	if err != nil {
		return store.Ref{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recordURL := s.recordURL(ref)
	if exists, _ := s.fs.Exists(ctx, recordURL); exists {
		return store.Ref{}, fmt.Errorf("%w: %s already in %s", store.ErrConflict, name, partition)
	}
	if err := s.fs.Upload(ctx, recordURL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return store.Ref{}, fmt.Errorf("failed to create record %s: %w", recordURL, err)
	}
	return ref, nil
}

// Move relocates a record to another partition, keeping its name. The
// underlying rename makes the record visible in exactly one partition at any
// observable instant.
func (s *Service) Move(ctx context.Context, ref store.Ref, toPartition string) (store.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sourceURL := s.recordURL(ref)
	destRef := store.Ref{Partition: toPartition, Name: ref.Name}
	destURL := s.recordURL(destRef)

	if exists, _ := s.fs.Exists(ctx, sourceURL); !exists {
		return store.Ref{}, fmt.Errorf("%w: %s/%s", store.ErrSourceUnavailable, ref.Partition, ref.Name)
	}
	if exists, _ := s.fs.Exists(ctx, destURL); exists {
		return store.Ref{}, fmt.Errorf("%w: %s already in %s", store.ErrConflict, ref.Name, toPartition)
	}
	if err := s.fs.Move(ctx, sourceURL, destURL); err != nil {
		return store.Ref{}, fmt.Errorf("failed to move record %s to %s: %w", sourceURL, toPartition, err)
	}
	return destRef, nil
}

// List enumerates the records currently present in a partition, ordered by
// name. With the timestamped naming scheme this is arrival order.
func (s *Service) List(ctx context.Context, partition string) ([]store.Ref, error) {
	objects, err := s.fs.List(ctx, url.Join(s.baseURL, partition))
	if err != nil {
		return nil, fmt.Errorf("failed to list partition %s: %w", partition, err)
	}
	var refs []store.Ref
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), recordExt) {
			continue
		}
		refs = append(refs, store.Ref{
			Partition: partition,
			Name:      strings.TrimSuffix(object.Name(), recordExt),
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// Read loads and decodes a record.
func (s *Service) Read(ctx context.Context, ref store.Ref) (*store.Record, error) {
	recordURL := s.recordURL(ref)
	if exists, _ := s.fs.Exists(ctx, recordURL); !exists {
		return nil, fmt.Errorf("%w: %s/%s", store.ErrSourceUnavailable, ref.Partition, ref.Name)
	}
	data, err := s.fs.DownloadWithURL(ctx, recordURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrSourceUnavailable, recordURL, err)
	}
	return store.Decode(data)
}

// Update overwrites a record in place, same partition.
func (s *Service) Update(ctx context.Context, ref store.Ref, record *store.Record) error {
	data, err := record.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recordURL := s.recordURL(ref)
	if exists, _ := s.fs.Exists(ctx, recordURL); !exists {
		return fmt.Errorf("%w: %s/%s", store.ErrSourceUnavailable, ref.Partition, ref.Name)
	}
	if err := s.fs.Upload(ctx, recordURL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to update record %s: %w", recordURL, err)
	}
	return nil
}

func (s *Service) recordURL(ref store.Ref) string {
	return url.Join(s.baseURL, ref.Partition, ref.Name+recordExt)
}
