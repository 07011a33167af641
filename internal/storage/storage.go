package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"galleria/internal/models"
	"galleria/internal/policy"
)

const (
	passwordHashSaltLength = 16
	passwordHashKeyLength  = 32
	passwordHashIterations = 120000
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// NotFoundError reports that a record of some kind does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

type dataset struct {
	Users      map[string]models.User     `json:"users"`
	Roles      map[string]models.Role     `json:"roles"`
	Themes     map[string]models.Theme    `json:"themes"`
	Categories map[string]models.Category `json:"categories"`
	Contents   map[string]models.Content  `json:"contents"`
}

// Storage is the JSON-file repository. All reads and writes go through a
// single RWMutex; mutations build a cloned dataset, persist it atomically,
// and only then swap it in, so a failed persist never leaves partial state
// in memory.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

func newDataset() dataset {
	return dataset{
		Users:      make(map[string]models.User),
		Roles:      make(map[string]models.Role),
		Themes:     make(map[string]models.Theme),
		Categories: make(map[string]models.Category),
		Contents:   make(map[string]models.Content),
	}
}

func (s *Storage) ensureDatasetInitializedLocked() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Roles == nil {
		s.data.Roles = make(map[string]models.Role)
	}
	if s.data.Themes == nil {
		s.data.Themes = make(map[string]models.Theme)
	}
	if s.data.Categories == nil {
		s.data.Categories = make(map[string]models.Category)
	}
	if s.data.Contents == nil {
		s.data.Contents = make(map[string]models.Content)
	}
}

func NewStorage(path string) (*Storage, error) {
	store := &Storage{filePath: path}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	s.ensureDatasetInitializedLocked()

	return nil
}

func (s *Storage) persist() error {
	return s.persistDataset(s.data)
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneDataset(src dataset) dataset {
	clone := dataset{}

	if src.Users != nil {
		clone.Users = make(map[string]models.User, len(src.Users))
		for id, user := range src.Users {
			cloned := user
			if user.Roles != nil {
				cloned.Roles = append([]string(nil), user.Roles...)
			}
			clone.Users[id] = cloned
		}
	}

	if src.Roles != nil {
		clone.Roles = make(map[string]models.Role, len(src.Roles))
		for id, role := range src.Roles {
			clone.Roles[id] = role
		}
	}

	if src.Themes != nil {
		clone.Themes = make(map[string]models.Theme, len(src.Themes))
		for id, theme := range src.Themes {
			clone.Themes[id] = theme
		}
	}

	if src.Categories != nil {
		clone.Categories = make(map[string]models.Category, len(src.Categories))
		for id, category := range src.Categories {
			clone.Categories[id] = category
		}
	}

	if src.Contents != nil {
		clone.Contents = make(map[string]models.Content, len(src.Contents))
		for id, content := range src.Contents {
			clone.Contents[id] = content
		}
	}

	return clone
}

func normalizeRoles(input []string) []string {
	if len(input) == 0 {
		return nil
	}
	roles := make([]string, 0, len(input))
	seen := make(map[string]struct{})
	for _, role := range input {
		trimmed := strings.TrimSpace(role)
		if trimmed == "" {
			continue
		}
		normalized := strings.ToLower(trimmed)
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		roles = append(roles, normalized)
	}
	if len(roles) == 0 {
		return nil
	}
	sort.Strings(roles)
	return roles
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, passwordHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(password), salt, passwordHashIterations, passwordHashKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", passwordHashIterations, encodedSalt, encodedKey), nil
}

func verifyPassword(encodedHash, candidate string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return fmt.Errorf("verify password: invalid hash format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return fmt.Errorf("verify password: unsupported hash identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return fmt.Errorf("verify password: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify password: decode salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("verify password: decode hash: %w", err)
	}
	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if len(derived) != len(storedKey) || subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// CreateUserParams captures the attributes that can be set when creating a user.
type CreateUserParams struct {
	Username string
	Email    string
	Password string
	Roles    []string
}

func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalizedEmail := strings.TrimSpace(strings.ToLower(params.Email))
	if normalizedEmail == "" {
		return models.User{}, errors.New("email is required")
	}
	for _, user := range s.data.Users {
		if user.Email == normalizedEmail {
			return models.User{}, fmt.Errorf("email %s already in use", params.Email)
		}
	}

	username := strings.TrimSpace(params.Username)
	if username == "" {
		return models.User{}, errors.New("username is required")
	}
	for _, user := range s.data.Users {
		if strings.EqualFold(user.Username, username) {
			return models.User{}, fmt.Errorf("username %s already in use", username)
		}
	}

	if params.Password == "" {
		return models.User{}, errors.New("password is required")
	}
	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	roles := normalizeRoles(params.Roles)
	for _, role := range roles {
		if !s.roleExistsLocked(role) {
			return models.User{}, fmt.Errorf("unknown role %q", role)
		}
	}
	if len(roles) == 0 {
		roles = []string{"reader"}
	}

	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}

	now := time.Now().UTC()
	user := models.User{
		ID:           id,
		Username:     username,
		Email:        normalizedEmail,
		Roles:        roles,
		PasswordHash: hashed,
		CreatedAt:    now,
	}

	s.data.Users[id] = user
	if err := s.persist(); err != nil {
		delete(s.data.Users, id)
		return models.User{}, err
	}

	return user, nil
}

func (s *Storage) ListUsers() []models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]models.User, 0, len(s.data.Users))
	for _, user := range s.data.Users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users
}

func (s *Storage) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.data.Users[id]
	return user, ok
}

func (s *Storage) FindUserByEmail(email string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	normalized := strings.TrimSpace(strings.ToLower(email))
	for _, user := range s.data.Users {
		if user.Email == normalized {
			return user, true
		}
	}
	return models.User{}, false
}

func (s *Storage) AuthenticateUser(email, password string) (models.User, error) {
	if password == "" {
		return models.User{}, errors.New("password is required")
	}
	user, ok := s.FindUserByEmail(email)
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	return user, nil
}

// UserUpdate represents the fields that can be modified for an existing user.
type UserUpdate struct {
	Username *string
	Email    *string
	Password *string
	Roles    *[]string
}

func (s *Storage) UpdateUser(id string, update UserUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	user, ok := updatedData.Users[id]
	if !ok {
		return models.User{}, &NotFoundError{Kind: "user", ID: id}
	}

	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if username == "" {
			return models.User{}, errors.New("username cannot be empty")
		}
		for existingID, existing := range updatedData.Users {
			if existingID == user.ID {
				continue
			}
			if strings.EqualFold(existing.Username, username) {
				return models.User{}, fmt.Errorf("username %s already in use", username)
			}
		}
		user.Username = username
	}

	if update.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*update.Email))
		if email == "" {
			return models.User{}, errors.New("email cannot be empty")
		}
		for existingID, existing := range updatedData.Users {
			if existingID == user.ID {
				continue
			}
			if existing.Email == email {
				return models.User{}, fmt.Errorf("email %s already in use", email)
			}
		}
		user.Email = email
	}

	if update.Password != nil {
		if *update.Password == "" {
			return models.User{}, errors.New("password cannot be empty")
		}
		hashed, err := hashPassword(*update.Password)
		if err != nil {
			return models.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hashed
	}

	if update.Roles != nil {
		roles := normalizeRoles(*update.Roles)
		for _, role := range roles {
			if !roleExistsIn(updatedData.Roles, role) {
				return models.User{}, fmt.Errorf("unknown role %q", role)
			}
		}
		user.Roles = roles
	}

	updatedData.Users[id] = user
	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}

	s.data = updatedData

	return user, nil
}

func (s *Storage) DeleteUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	if _, ok := updatedData.Users[id]; !ok {
		return &NotFoundError{Kind: "user", ID: id}
	}

	delete(updatedData.Users, id)

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}

	s.data = updatedData

	return nil
}

func (s *Storage) roleExistsLocked(name string) bool {
	return roleExistsIn(s.data.Roles, name)
}

func roleExistsIn(roles map[string]models.Role, name string) bool {
	for _, role := range roles {
		if strings.EqualFold(role.Name, name) {
			return true
		}
	}
	return false
}

func (s *Storage) ListRoles() []models.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := make([]models.Role, 0, len(s.data.Roles))
	for _, role := range s.data.Roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles
}

// EnsureRoles seeds the closed role set. It is idempotent: names already
// present are left untouched, so repeated startups never create duplicates.
func (s *Storage) EnsureRoles(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)
	changed := false
	now := time.Now().UTC()

	for _, name := range names {
		trimmed := strings.ToLower(strings.TrimSpace(name))
		if trimmed == "" || roleExistsIn(updatedData.Roles, trimmed) {
			continue
		}
		id, err := generateID()
		if err != nil {
			return err
		}
		updatedData.Roles[id] = models.Role{ID: id, Name: trimmed, CreatedAt: now}
		changed = true
	}

	if !changed {
		return nil
	}
	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData
	return nil
}

// EnsureAdminUser creates the bootstrap administrator account when no user
// with that email exists yet. Re-running it against a seeded store is a
// no-op.
func (s *Storage) EnsureAdminUser(username, email, password string) (models.User, bool, error) {
	if existing, ok := s.FindUserByEmail(email); ok {
		return existing, false, nil
	}
	user, err := s.CreateUser(CreateUserParams{
		Username: username,
		Email:    email,
		Password: password,
		Roles:    []string{"admin"},
	})
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

// themeNameOwner reports which theme currently holds a normalized name.
func themeNameOwner(themes map[string]models.Theme) policy.NameOwner {
	return func(normalized string) (string, bool) {
		for id, theme := range themes {
			if policy.NormalizeName(theme.Name) == normalized {
				return id, true
			}
		}
		return "", false
	}
}

func categoryNameOwner(categories map[string]models.Category) policy.NameOwner {
	return func(normalized string) (string, bool) {
		for id, category := range categories {
			if policy.NormalizeName(category.Name) == normalized {
				return id, true
			}
		}
		return "", false
	}
}
