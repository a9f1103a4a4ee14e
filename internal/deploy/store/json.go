package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/compose-network/fuse-deployer/internal/infra/filesystem"
	"github.com/compose-network/fuse-deployer/internal/infra/filesystem/json"
)

// JSONStore keeps one <chainId>.json file per chain under dir.
type JSONStore struct {
	dir    string
	reader filesystem.Reader
	writer filesystem.Writer
	mu     sync.Mutex
}

func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{
		dir:    dir,
		reader: json.NewReader(),
		writer: json.NewWriter(),
	}
}

func (s *JSONStore) Get(_ context.Context, chainID int64, name string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(chainID)
	if err != nil {
		return Record{}, err
	}

	record, ok := records[name]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s on chain %d", ErrNotFound, name, chainID)
	}
	return record, nil
}

func (s *JSONStore) Put(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(record.ChainID)
	if err != nil {
		return err
	}

	records[record.Name] = record
	if err := s.writer.WriteJSON(s.path(record.ChainID), records); err != nil {
		return fmt.Errorf("failed to save deployment record %s: %w", record.Name, err)
	}

	return nil
}

func (s *JSONStore) List(_ context.Context, chainID int64) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(chainID)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(records))
	for _, record := range records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) load(chainID int64) (map[string]Record, error) {
	records := make(map[string]Record)
	if err := s.reader.ReadJSON(s.path(chainID), &records); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]Record), nil
		}
		return nil, fmt.Errorf("failed to load deployment records for chain %d: %w", chainID, err)
	}
	return records, nil
}

func (s *JSONStore) path(chainID int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(chainID, 10)+".json")
}
