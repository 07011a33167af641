package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"galleria/internal/models"
	"galleria/internal/policy"
)

const postgresOperationTimeout = 5 * time.Second

// postgresRepository is the pgx-backed Repository. The schema is applied at
// construction time, so a fresh database is usable without a separate
// migration step.
type postgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// logQueryError surfaces failures that the lookup-shaped methods swallow
// into empty results. pgx.ErrNoRows is the normal miss and stays quiet.
func (r *postgresRepository) logQueryError(op string, err error) {
	if err == nil || errors.Is(err, pgx.ErrNoRows) {
		return
	}
	r.logger.Warn("postgres query failed", "op", op, "error", err)
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		roles TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS themes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		allow_images BOOLEAN NOT NULL DEFAULT FALSE,
		allow_videos BOOLEAN NOT NULL DEFAULT FALSE,
		allow_texts BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		allows_images BOOLEAN NOT NULL DEFAULT FALSE,
		allows_videos BOOLEAN NOT NULL DEFAULT FALSE,
		allows_texts BOOLEAN NOT NULL DEFAULT FALSE,
		cover_image_url TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS contents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content_type TEXT NOT NULL,
		image TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		theme_id TEXT NOT NULL REFERENCES themes(id),
		category_id TEXT NOT NULL REFERENCES categories(id),
		user_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// NewPostgresRepository opens a Postgres-backed repository and ensures the
// schema exists.
func NewPostgresRepository(cfg PostgresConfig) (Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	repo := &postgresRepository{pool: pool, logger: logger}
	if err := repo.ensureSchema(); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

func (r *postgresRepository) ensureSchema() error {
	ctx, cancel := operationContext()
	defer cancel()
	for _, stmt := range postgresSchema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (r *postgresRepository) Close() {
	r.pool.Close()
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func operationContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), postgresOperationTimeout)
}

func (r *postgresRepository) CreateUser(params CreateUserParams) (models.User, error) {
	normalizedEmail := strings.TrimSpace(strings.ToLower(params.Email))
	if normalizedEmail == "" {
		return models.User{}, errors.New("email is required")
	}
	username := strings.TrimSpace(params.Username)
	if username == "" {
		return models.User{}, errors.New("username is required")
	}
	if params.Password == "" {
		return models.User{}, errors.New("password is required")
	}
	hashed, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	roles := normalizeRoles(params.Roles)
	if len(roles) == 0 {
		roles = []string{"reader"}
	}
	id, err := generateID()
	if err != nil {
		return models.User{}, err
	}

	ctx, cancel := operationContext()
	defer cancel()

	if _, taken := r.FindUserByEmail(normalizedEmail); taken {
		return models.User{}, fmt.Errorf("email %s already in use", params.Email)
	}

	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, roles, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, username, normalizedEmail, hashed, roles, now)
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return models.User{ID: id, Username: username, Email: normalizedEmail, Roles: roles, PasswordHash: hashed, CreatedAt: now}, nil
}

func (r *postgresRepository) AuthenticateUser(email, password string) (models.User, error) {
	if password == "" {
		return models.User{}, errors.New("password is required")
	}
	user, ok := r.FindUserByEmail(email)
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

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Roles, &user.CreatedAt)
	return user, err
}

const userColumns = `id, username, email, password_hash, roles, created_at`

func (r *postgresRepository) ListUsers() []models.User {
	ctx, cancel := operationContext()
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		r.logQueryError("list users", err)
		return nil
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			r.logQueryError("list users", err)
			return nil
		}
		users = append(users, user)
	}
	return users
}

func (r *postgresRepository) GetUser(id string) (models.User, bool) {
	ctx, cancel := operationContext()
	defer cancel()

	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		r.logQueryError("get user", err)
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) FindUserByEmail(email string) (models.User, bool) {
	ctx, cancel := operationContext()
	defer cancel()

	normalized := strings.TrimSpace(strings.ToLower(email))
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, normalized))
	if err != nil {
		r.logQueryError("find user by email", err)
		return models.User{}, false
	}
	return user, true
}

func (r *postgresRepository) UpdateUser(id string, update UserUpdate) (models.User, error) {
	user, ok := r.GetUser(id)
	if !ok {
		return models.User{}, &NotFoundError{Kind: "user", ID: id}
	}

	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if username == "" {
			return models.User{}, errors.New("username cannot be empty")
		}
		user.Username = username
	}
	if update.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*update.Email))
		if email == "" {
			return models.User{}, errors.New("email cannot be empty")
		}
		if existing, taken := r.FindUserByEmail(email); taken && existing.ID != id {
			return models.User{}, fmt.Errorf("email %s already in use", email)
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
		user.Roles = normalizeRoles(*update.Roles)
	}

	ctx, cancel := operationContext()
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`UPDATE users SET username = $2, email = $3, password_hash = $4, roles = $5 WHERE id = $1`,
		id, user.Username, user.Email, user.PasswordHash, user.Roles)
	if err != nil {
		return models.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) DeleteUser(id string) error {
	ctx, cancel := operationContext()
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "user", ID: id}
	}
	return nil
}

func (r *postgresRepository) ListRoles() []models.Role {
	ctx, cancel := operationContext()
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM roles ORDER BY name`)
	if err != nil {
		r.logQueryError("list roles", err)
		return nil
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt); err != nil {
			r.logQueryError("list roles", err)
			return nil
		}
		roles = append(roles, role)
	}
	return roles
}

func (r *postgresRepository) EnsureRoles(names []string) error {
	ctx, cancel := operationContext()
	defer cancel()

	now := time.Now().UTC()
	for _, name := range names {
		trimmed := strings.ToLower(strings.TrimSpace(name))
		if trimmed == "" {
			continue
		}
		id, err := generateID()
		if err != nil {
			return err
		}
		// ON CONFLICT keeps re-seeding idempotent.
		_, err = r.pool.Exec(ctx,
			`INSERT INTO roles (id, name, created_at) VALUES ($1, $2, $3)
			 ON CONFLICT (name) DO NOTHING`,
			id, trimmed, now)
		if err != nil {
			return fmt.Errorf("seed role %s: %w", trimmed, err)
		}
	}
	return nil
}

func (r *postgresRepository) EnsureAdminUser(username, email, password string) (models.User, bool, error) {
	if existing, ok := r.FindUserByEmail(email); ok {
		return existing, false, nil
	}
	user, err := r.CreateUser(CreateUserParams{
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

func (r *postgresRepository) themeNameOwner() policy.NameOwner {
	return func(normalized string) (string, bool) {
		for _, theme := range r.ListThemes() {
			if policy.NormalizeName(theme.Name) == normalized {
				return theme.ID, true
			}
		}
		return "", false
	}
}

func (r *postgresRepository) categoryNameOwner() policy.NameOwner {
	return func(normalized string) (string, bool) {
		for _, category := range r.ListCategories() {
			if policy.NormalizeName(category.Name) == normalized {
				return category.ID, true
			}
		}
		return "", false
	}
}

func (r *postgresRepository) CreateTheme(params CreateThemeParams) (models.Theme, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Theme{}, errors.New("name is required")
	}
	if err := policy.CheckUniqueName("theme", name, "", r.themeNameOwner()); err != nil {
		return models.Theme{}, err
	}
	id, err := generateID()
	if err != nil {
		return models.Theme{}, err
	}

	ctx, cancel := operationContext()
	defer cancel()

	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO themes (id, name, allow_images, allow_videos, allow_texts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		id, name, params.Permissions.Images, params.Permissions.Videos, params.Permissions.Texts, now)
	if err != nil {
		return models.Theme{}, fmt.Errorf("insert theme: %w", err)
	}
	return models.Theme{ID: id, Name: name, Permissions: params.Permissions, CreatedAt: now, UpdatedAt: now}, nil
}

const themeColumns = `id, name, allow_images, allow_videos, allow_texts, created_at, updated_at`

func scanTheme(row pgx.Row) (models.Theme, error) {
	var theme models.Theme
	err := row.Scan(&theme.ID, &theme.Name,
		&theme.Permissions.Images, &theme.Permissions.Videos, &theme.Permissions.Texts,
		&theme.CreatedAt, &theme.UpdatedAt)
	return theme, err
}

func (r *postgresRepository) ListThemes() []models.Theme {
	ctx, cancel := operationContext()
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+themeColumns+` FROM themes ORDER BY created_at`)
	if err != nil {
		r.logQueryError("list themes", err)
		return nil
	}
	defer rows.Close()

	var themes []models.Theme
	for rows.Next() {
		theme, err := scanTheme(rows)
		if err != nil {
			r.logQueryError("list themes", err)
			return nil
		}
		themes = append(themes, theme)
	}
	return themes
}

func (r *postgresRepository) GetTheme(id string) (models.Theme, bool) {
	ctx, cancel := operationContext()
	defer cancel()

	theme, err := scanTheme(r.pool.QueryRow(ctx, `SELECT `+themeColumns+` FROM themes WHERE id = $1`, id))
	if err != nil {
		r.logQueryError("get theme", err)
		return models.Theme{}, false
	}
	return theme, true
}

func (r *postgresRepository) UpdateTheme(id string, update ThemeUpdate) (models.Theme, error) {
	theme, ok := r.GetTheme(id)
	if !ok {
		return models.Theme{}, &NotFoundError{Kind: "theme", ID: id}
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Theme{}, errors.New("name cannot be empty")
		}
		if err := policy.CheckUniqueName("theme", name, id, r.themeNameOwner()); err != nil {
			return models.Theme{}, err
		}
		theme.Name = name
	}
	if update.Permissions != nil {
		theme.Permissions = *update.Permissions
	}
	theme.UpdatedAt = time.Now().UTC()

	ctx, cancel := operationContext()
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`UPDATE themes SET name = $2, allow_images = $3, allow_videos = $4, allow_texts = $5, updated_at = $6 WHERE id = $1`,
		id, theme.Name, theme.Permissions.Images, theme.Permissions.Videos, theme.Permissions.Texts, theme.UpdatedAt)
	if err != nil {
		return models.Theme{}, fmt.Errorf("update theme: %w", err)
	}
	return theme, nil
}

func (r *postgresRepository) DeleteTheme(id string) error {
	ctx, cancel := operationContext()
	defer cancel()

	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contents WHERE theme_id = $1`, id).Scan(&count); err != nil {
		return fmt.Errorf("count theme contents: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("theme %s still has content; delete its content first", id)
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM themes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete theme: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "theme", ID: id}
	}
	return nil
}

func (r *postgresRepository) CreateCategory(params CreateCategoryParams) (models.Category, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.Category{}, errors.New("name is required")
	}
	if strings.TrimSpace(params.CoverImageURL) == "" {
		return models.Category{}, errors.New("cover image is required")
	}
	if err := policy.CheckUniqueName("category", name, "", r.categoryNameOwner()); err != nil {
		return models.Category{}, err
	}
	id, err := generateID()
	if err != nil {
		return models.Category{}, err
	}

	ctx, cancel := operationContext()
	defer cancel()

	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO categories (id, name, allows_images, allows_videos, allows_texts, cover_image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		id, name, params.AllowsImages, params.AllowsVideos, params.AllowsTexts, params.CoverImageURL, now)
	if err != nil {
		return models.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return models.Category{
		ID: id, Name: name,
		AllowsImages: params.AllowsImages, AllowsVideos: params.AllowsVideos, AllowsTexts: params.AllowsTexts,
		CoverImageURL: params.CoverImageURL,
		CreatedAt:     now, UpdatedAt: now,
	}, nil
}

const categoryColumns = `id, name, allows_images, allows_videos, allows_texts, cover_image_url, created_at, updated_at`

func scanCategory(row pgx.Row) (models.Category, error) {
	var category models.Category
	err := row.Scan(&category.ID, &category.Name,
		&category.AllowsImages, &category.AllowsVideos, &category.AllowsTexts,
		&category.CoverImageURL, &category.CreatedAt, &category.UpdatedAt)
	return category, err
}

func (r *postgresRepository) ListCategories() []models.Category {
	ctx, cancel := operationContext()
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY created_at`)
	if err != nil {
		r.logQueryError("list categories", err)
		return nil
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			r.logQueryError("list categories", err)
			return nil
		}
		categories = append(categories, category)
	}
	return categories
}

func (r *postgresRepository) GetCategory(id string) (models.Category, bool) {
	ctx, cancel := operationContext()
	defer cancel()

	category, err := scanCategory(r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if err != nil {
		r.logQueryError("get category", err)
		return models.Category{}, false
	}
	return category, true
}

func (r *postgresRepository) UpdateCategory(id string, update CategoryUpdate) (models.Category, error) {
	category, ok := r.GetCategory(id)
	if !ok {
		return models.Category{}, &NotFoundError{Kind: "category", ID: id}
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Category{}, errors.New("name cannot be empty")
		}
		if err := policy.CheckUniqueName("category", name, id, r.categoryNameOwner()); err != nil {
			return models.Category{}, err
		}
		category.Name = name
	}
	if update.AllowsImages != nil {
		category.AllowsImages = *update.AllowsImages
	}
	if update.AllowsVideos != nil {
		category.AllowsVideos = *update.AllowsVideos
	}
	if update.AllowsTexts != nil {
		category.AllowsTexts = *update.AllowsTexts
	}
	if update.CoverImageURL != nil {
		if strings.TrimSpace(*update.CoverImageURL) == "" {
			return models.Category{}, errors.New("cover image cannot be empty")
		}
		category.CoverImageURL = *update.CoverImageURL
	}
	category.UpdatedAt = time.Now().UTC()

	ctx, cancel := operationContext()
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`UPDATE categories SET name = $2, allows_images = $3, allows_videos = $4, allows_texts = $5, cover_image_url = $6, updated_at = $7 WHERE id = $1`,
		id, category.Name, category.AllowsImages, category.AllowsVideos, category.AllowsTexts, category.CoverImageURL, category.UpdatedAt)
	if err != nil {
		return models.Category{}, fmt.Errorf("update category: %w", err)
	}
	return category, nil
}

func (r *postgresRepository) DeleteCategory(id string) error {
	ctx, cancel := operationContext()
	defer cancel()

	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contents WHERE category_id = $1`, id).Scan(&count); err != nil {
		return fmt.Errorf("count category contents: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("category %s still has content; delete its content first", id)
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "category", ID: id}
	}
	return nil
}

func (r *postgresRepository) CreateContent(params CreateContentParams) (models.Content, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Content{}, errors.New("title is required")
	}
	if _, ok := r.GetTheme(params.ThemeID); !ok {
		return models.Content{}, &NotFoundError{Kind: "theme", ID: params.ThemeID}
	}
	if _, ok := r.GetCategory(params.CategoryID); !ok {
		return models.Content{}, &NotFoundError{Kind: "category", ID: params.CategoryID}
	}
	id, err := generateID()
	if err != nil {
		return models.Content{}, err
	}

	ctx, cancel := operationContext()
	defer cancel()

	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO contents (id, title, content_type, image, url, body, theme_id, category_id, user_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		id, title, string(params.Type), params.Image, params.URL, params.Text,
		params.ThemeID, params.CategoryID, params.UserID, now)
	if err != nil {
		return models.Content{}, fmt.Errorf("insert content: %w", err)
	}
	return models.Content{
		ID: id, Title: title, Type: params.Type,
		Image: params.Image, URL: params.URL, Text: params.Text,
		ThemeID: params.ThemeID, CategoryID: params.CategoryID, UserID: params.UserID,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

const contentColumns = `id, title, content_type, image, url, body, theme_id, category_id, user_id, created_at, updated_at`

func scanContent(row pgx.Row) (models.Content, error) {
	var content models.Content
	var contentType string
	err := row.Scan(&content.ID, &content.Title, &contentType,
		&content.Image, &content.URL, &content.Text,
		&content.ThemeID, &content.CategoryID, &content.UserID,
		&content.CreatedAt, &content.UpdatedAt)
	content.Type = models.ContentType(contentType)
	return content, err
}

func (r *postgresRepository) ListContents(themeID, categoryID string) []models.Content {
	ctx, cancel := operationContext()
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT `+contentColumns+` FROM contents
		 WHERE ($1 = '' OR theme_id = $1) AND ($2 = '' OR category_id = $2)
		 ORDER BY created_at`,
		themeID, categoryID)
	if err != nil {
		r.logQueryError("list contents", err)
		return nil
	}
	defer rows.Close()

	var contents []models.Content
	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			r.logQueryError("list contents", err)
			return nil
		}
		contents = append(contents, content)
	}
	return contents
}

func (r *postgresRepository) GetContent(id string) (models.Content, bool) {
	ctx, cancel := operationContext()
	defer cancel()

	content, err := scanContent(r.pool.QueryRow(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = $1`, id))
	if err != nil {
		r.logQueryError("get content", err)
		return models.Content{}, false
	}
	return content, true
}

func (r *postgresRepository) UpdateContent(id string, update ContentUpdate) (models.Content, error) {
	content, ok := r.GetContent(id)
	if !ok {
		return models.Content{}, &NotFoundError{Kind: "content", ID: id}
	}

	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return models.Content{}, errors.New("title cannot be empty")
		}
		content.Title = title
	}
	if update.Type != nil {
		content.Type = *update.Type
	}
	if update.Image != nil {
		content.Image = *update.Image
	}
	if update.URL != nil {
		content.URL = *update.URL
	}
	if update.Text != nil {
		content.Text = *update.Text
	}
	if update.ThemeID != nil {
		if _, ok := r.GetTheme(*update.ThemeID); !ok {
			return models.Content{}, &NotFoundError{Kind: "theme", ID: *update.ThemeID}
		}
		content.ThemeID = *update.ThemeID
	}
	if update.CategoryID != nil {
		if _, ok := r.GetCategory(*update.CategoryID); !ok {
			return models.Content{}, &NotFoundError{Kind: "category", ID: *update.CategoryID}
		}
		content.CategoryID = *update.CategoryID
	}
	content.UpdatedAt = time.Now().UTC()

	ctx, cancel := operationContext()
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`UPDATE contents SET title = $2, content_type = $3, image = $4, url = $5, body = $6, theme_id = $7, category_id = $8, updated_at = $9 WHERE id = $1`,
		id, content.Title, string(content.Type), content.Image, content.URL, content.Text,
		content.ThemeID, content.CategoryID, content.UpdatedAt)
	if err != nil {
		return models.Content{}, fmt.Errorf("update content: %w", err)
	}
	return content, nil
}

func (r *postgresRepository) DeleteContent(id string) error {
	ctx, cancel := operationContext()
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM contents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Kind: "content", ID: id}
	}
	return nil
}

func (r *postgresRepository) ReferencedFiles() map[string]struct{} {
	ctx, cancel := operationContext()
	defer cancel()

	refs := make(map[string]struct{})
	rows, err := r.pool.Query(ctx,
		`SELECT cover_image_url FROM categories
		 UNION
		 SELECT image FROM contents WHERE content_type = 'image' AND image <> ''`)
	if err != nil {
		r.logQueryError("referenced files", err)
		return refs
	}
	defer rows.Close()

	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			r.logQueryError("referenced files", err)
			continue
		}
		if ref != "" {
			refs[ref] = struct{}{}
		}
	}
	return refs
}
