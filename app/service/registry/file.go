package registry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"
)

var _ Store = (*FileStore)(nil)

type snapshot struct {
	spreadsheets []*Spreadsheet
	users        []*User
}

// FileStore keeps all records in one JSON lines file that is rewritten on
// every mutation.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry file: %w", err)
	}
	defer file.Close()

	return &FileStore{
		path: path,
	}, nil
}

func (s *FileStore) load() (*snapshot, error) {
	file, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry file: %w", err)
	}
	defer file.Close()

	snap := &snapshot{}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item jsonLineItem
		if err = json.Unmarshal([]byte(line), &item); err != nil {
			return nil, fmt.Errorf("failed to parse JSON line: %w", err)
		}

		if item.Spreadsheet != nil {
			snap.spreadsheets = append(snap.spreadsheets, item.Spreadsheet)
		}
		if item.User != nil {
			snap.users = append(snap.users, item.User)
		}
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading registry file: %w", err)
	}

	return snap, nil
}

func (s *FileStore) save(snap *snapshot) (err error) {
	tmpPath := s.path + ".tmp"
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create/open registry file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	items := make([]jsonLineItem, 0, len(snap.spreadsheets)+len(snap.users))
	for _, sheet := range snap.spreadsheets {
		items = append(items, jsonLineItem{Spreadsheet: sheet})
	}
	for _, user := range snap.users {
		items = append(items, jsonLineItem{User: user})
	}

	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if _, err = writer.WriteString(string(data) + "\n"); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	if err = writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("failed to close registry file: %w", err)
	}

	if err = os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace registry file: %w", err)
	}

	return nil
}

func (s *FileStore) UpsertSpreadsheet(_ context.Context, sheet *Spreadsheet) (*Spreadsheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	idx := pie.FindFirstUsing(snap.spreadsheets, func(item *Spreadsheet) bool {
		return item.UserID == sheet.UserID && item.SpreadsheetID == sheet.SpreadsheetID
	})

	var result Spreadsheet
	if idx >= 0 {
		snap.spreadsheets[idx].Name = sheet.Name
		result = *snap.spreadsheets[idx]
	} else {
		result = *sheet
		if result.ID == "" {
			result.ID = uuid.NewString()
		}
		stored := result
		snap.spreadsheets = append(snap.spreadsheets, &stored)
	}

	if err = s.save(snap); err != nil {
		return nil, err
	}

	return &result, nil
}

func (s *FileStore) FindSpreadsheet(_ context.Context, userID, spreadsheetID string) (*Spreadsheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	idx := pie.FindFirstUsing(snap.spreadsheets, func(item *Spreadsheet) bool {
		return item.UserID == userID && item.SpreadsheetID == spreadsheetID
	})
	if idx < 0 {
		return nil, ErrNotFound
	}

	return snap.spreadsheets[idx], nil
}

func (s *FileStore) ListSpreadsheets(_ context.Context, userID string) ([]*Spreadsheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	result := pie.Filter(snap.spreadsheets, func(item *Spreadsheet) bool {
		return item.UserID == userID
	})
	slices.SortStableFunc(result, func(a, b *Spreadsheet) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return result, nil
}

func (s *FileStore) UpdateSchemaSummary(_ context.Context, spreadsheetID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return err
	}

	updated := 0
	for _, item := range snap.spreadsheets {
		if item.SpreadsheetID == spreadsheetID {
			item.SchemaSummary = summary
			updated++
		}
	}

	if updated == 0 {
		return ErrNotFound
	}

	return s.save(snap)
}

func (s *FileStore) PutUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return err
	}

	stored := *user

	idx := pie.FindFirstUsing(snap.users, func(item *User) bool {
		return item.ID == user.ID
	})
	if idx >= 0 {
		snap.users[idx] = &stored
	} else {
		snap.users = append(snap.users, &stored)
	}

	return s.save(snap)
}

func (s *FileStore) GetUser(_ context.Context, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, err := s.load()
	if err != nil {
		return nil, err
	}

	idx := pie.FindFirstUsing(snap.users, func(item *User) bool {
		return item.ID == userID
	})
	if idx < 0 {
		return nil, ErrNotFound
	}

	return snap.users[idx], nil
}

func (s *FileStore) Close() error {
	return nil
}
