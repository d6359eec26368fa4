package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/filevault/internal/domain/model"
)

// MemoryFileStore — потокобезопасная in-memory реализация FileRecordStore.
// Записи копируются на входе и выходе, внешние изменения не влияют на хранилище.
// Не персистентна: содержимое теряется при рестарте.
type MemoryFileStore struct {
	mu    sync.RWMutex
	files map[string]*model.FileRecord // id → запись
	keys  map[string]string            // storage_key → id
	now   func() time.Time
}

// NewMemoryFileStore создаёт пустое хранилище записей.
func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{
		files: make(map[string]*model.FileRecord),
		keys:  make(map[string]string),
		now:   time.Now,
	}
}

// Create сохраняет копию записи. Ключи хранения не переиспользуются:
// занятый ключ даёт ErrConflict даже для удалённой записи.
func (s *MemoryFileStore) Create(_ context.Context, f *model.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[f.ID]; ok {
		return fmt.Errorf("%w: id %q", ErrConflict, f.ID)
	}
	if _, ok := s.keys[f.StorageKey]; ok {
		return fmt.Errorf("%w: storage_key %q", ErrConflict, f.StorageKey)
	}

	now := s.now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	f.Revision = 0
	if f.Tags == nil {
		f.Tags = []string{}
	}

	s.files[f.ID] = f.Clone()
	s.keys[f.StorageKey] = f.ID
	return nil
}

// GetByID возвращает копию записи или ErrNotFound.
func (s *MemoryFileStore) GetByID(_ context.Context, id string) (*model.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return f.Clone(), nil
}

// List возвращает страницу записей владельца, отсортированную
// по created_at DESC, id DESC, и общее число совпадений.
func (s *MemoryFileStore) List(_ context.Context, params ListParams) ([]*model.FileRecord, int, error) {
	params = params.Normalize()
	query := strings.ToLower(params.Query)

	s.mu.RLock()
	matched := make([]*model.FileRecord, 0)
	for _, f := range s.files {
		if f.OwnerID != params.OwnerID || !params.State.Matches(f.State) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(f.Name), query) {
			continue
		}
		if params.Tag != "" && !f.HasTag(params.Tag) {
			continue
		}
		matched = append(matched, f.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := params.Offset()
	if start >= total {
		return []*model.FileRecord{}, total, nil
	}
	end := start + params.PageSize
	if end > total {
		end = total
	}

	return matched[start:end], total, nil
}

// Update перезаписывает изменяемые поля записи.
func (s *MemoryFileStore) Update(_ context.Context, f *model.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.files[f.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Revision != f.Revision {
		return fmt.Errorf("%w: файл %s", ErrStale, f.ID)
	}

	f.UpdatedAt = s.now().UTC()
	f.Revision++
	upd := f.Clone()

	stored.Name = upd.Name
	stored.Tags = upd.Tags
	stored.IsPublic = upd.IsPublic
	stored.State = upd.State
	stored.DeletedAt = upd.DeletedAt
	stored.UpdatedAt = upd.UpdatedAt
	stored.Revision = upd.Revision
	return nil
}

// MemoryUserStore — in-memory реализация UserStore.
type MemoryUserStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*model.User
	byEmail map[string]int64
}

// NewMemoryUserStore создаёт пустое хранилище пользователей.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[int64]*model.User),
		byEmail: make(map[string]int64),
	}
}

func (s *MemoryUserStore) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.Email]; ok {
		return fmt.Errorf("%w: email %q", ErrConflict, u.Email)
	}

	s.nextID++
	u.ID = s.nextID
	u.CreatedAt = time.Now().UTC()

	c := *u
	s.byID[u.ID] = &c
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *MemoryUserStore) Provision(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[u.ID]; ok {
		return nil
	}
	if _, ok := s.byEmail[u.Email]; ok {
		return fmt.Errorf("%w: email %q", ErrConflict, u.Email)
	}

	u.CreatedAt = time.Now().UTC()
	c := *u
	c.PasswordHash = ""
	s.byID[u.ID] = &c
	s.byEmail[u.Email] = u.ID
	if u.ID > s.nextID {
		s.nextID = u.ID
	}
	return nil
}

func (s *MemoryUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s.byID[id]
	return &c, nil
}

func (s *MemoryUserStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

// Проверка на этапе компиляции
var (
	_ FileRecordStore = (*MemoryFileStore)(nil)
	_ UserStore       = (*MemoryUserStore)(nil)
)
