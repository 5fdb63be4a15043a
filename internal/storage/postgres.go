package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/finley/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// PostgresStorage is the relational backend. Messages are kept as a JSONB
// column; profile sets are text arrays.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	storage, err := OpenPostgres(config.DSN(), logger)
	if err != nil {
		return nil, err
	}
	storage.logger.Info("Connected to PostgreSQL",
		zap.String("host", config.Host),
		zap.String("database", config.DBName))
	return storage, nil
}

// OpenPostgres connects with a raw lib/pq connection string and applies
// the schema.
func OpenPostgres(dsn string, logger *zap.Logger) (*PostgresStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}
	if err := storage.initializeSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err = s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

const sessionColumns = `conversation_id, user_id, owner_device, messages, summary,
	message_count, token_total, compressed, archived, created_at, updated_at, profile`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.ConversationSession, error) {
	var (
		session  models.ConversationSession
		messages []byte
		profile  []byte
	)
	err := row.Scan(
		&session.ConversationID,
		&session.UserID,
		&session.OwnerDevice,
		&messages,
		&session.Summary,
		&session.Metadata.MessageCount,
		&session.Metadata.TokenTotal,
		&session.Metadata.Compressed,
		&session.Archived,
		&session.Metadata.CreatedAt,
		&session.Metadata.UpdatedAt,
		&profile,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(messages, &session.Messages); err != nil {
		return nil, fmt.Errorf("error decoding messages: %w", err)
	}
	if len(profile) > 0 {
		session.Profile = &models.UserProfile{}
		if err := json.Unmarshal(profile, session.Profile); err != nil {
			return nil, fmt.Errorf("error decoding profile snapshot: %w", err)
		}
	}
	return &session, nil
}

func (s *PostgresStorage) Load(ctx context.Context, userID, conversationID string) (*models.ConversationSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM conversations
		WHERE user_id = $1 AND conversation_id = $2`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, userID, conversationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to load session", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil, fmt.Errorf("error loading session: %w", err)
	}
	return session, nil
}

func (s *PostgresStorage) Save(ctx context.Context, session *models.ConversationSession) error {
	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("error encoding messages: %w", err)
	}
	var profile any
	if session.Profile != nil {
		encoded, err := json.Marshal(session.Profile)
		if err != nil {
			return fmt.Errorf("error encoding profile snapshot: %w", err)
		}
		profile = encoded
	}

	query := `
		INSERT INTO conversations (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (conversation_id) DO UPDATE SET
			owner_device = EXCLUDED.owner_device,
			messages = EXCLUDED.messages,
			summary = EXCLUDED.summary,
			message_count = EXCLUDED.message_count,
			token_total = EXCLUDED.token_total,
			compressed = EXCLUDED.compressed,
			archived = EXCLUDED.archived,
			updated_at = EXCLUDED.updated_at,
			profile = EXCLUDED.profile`

	_, err = s.db.ExecContext(ctx, query,
		session.ConversationID,
		session.UserID,
		session.OwnerDevice,
		messages,
		session.Summary,
		session.Metadata.MessageCount,
		session.Metadata.TokenTotal,
		session.Metadata.Compressed,
		session.Archived,
		session.Metadata.CreatedAt,
		session.Metadata.UpdatedAt,
		profile,
	)
	if err != nil {
		s.logger.Error("Failed to save session", zap.String("conversation_id", session.ConversationID), zap.Error(err))
		return fmt.Errorf("error saving session: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListForUser(ctx context.Context, userID string) ([]*models.ConversationSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*models.ConversationSession{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func (s *PostgresStorage) ListDevices(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT DISTINCT owner_device
		FROM conversations
		WHERE user_id = $1 AND NOT archived AND owner_device <> ''
		ORDER BY owner_device`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying devices: %w", err)
	}
	defer rows.Close()

	devices := []string{}
	for rows.Next() {
		var device string
		if err := rows.Scan(&device); err != nil {
			return nil, fmt.Errorf("error scanning device: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

func (s *PostgresStorage) LoadDeviceSession(ctx context.Context, userID, deviceID string) (*models.ConversationSession, error) {
	query := `SELECT ` + sessionColumns + `
		FROM conversations
		WHERE user_id = $1 AND owner_device = $2 AND NOT archived
		ORDER BY updated_at DESC
		LIMIT 1`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, userID, deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading device session: %w", err)
	}
	return session, nil
}

func (s *PostgresStorage) LoadProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	query := `
		SELECT user_id, age, experience_level, risk_tolerance, goals, interests,
			portfolio_value, budget, tone_adjustments, updated_at
		FROM profiles
		WHERE user_id = $1`

	var profile models.UserProfile
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.Age,
		&profile.ExperienceLevel,
		&profile.RiskTolerance,
		pq.Array(&profile.Goals),
		pq.Array(&profile.Interests),
		&profile.PortfolioValue,
		&profile.Budget,
		pq.Array(&profile.ToneAdjustments),
		&profile.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading profile: %w", err)
	}
	return &profile, nil
}

func (s *PostgresStorage) SaveProfile(ctx context.Context, profile *models.UserProfile) error {
	query := `
		INSERT INTO profiles (user_id, age, experience_level, risk_tolerance, goals, interests,
			portfolio_value, budget, tone_adjustments, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			age = EXCLUDED.age,
			experience_level = EXCLUDED.experience_level,
			risk_tolerance = EXCLUDED.risk_tolerance,
			goals = EXCLUDED.goals,
			interests = EXCLUDED.interests,
			portfolio_value = EXCLUDED.portfolio_value,
			budget = EXCLUDED.budget,
			tone_adjustments = EXCLUDED.tone_adjustments,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		profile.UserID,
		profile.Age,
		profile.ExperienceLevel,
		profile.RiskTolerance,
		pq.Array(nonNil(profile.Goals)),
		pq.Array(nonNil(profile.Interests)),
		profile.PortfolioValue,
		profile.Budget,
		pq.Array(nonNil(profile.ToneAdjustments)),
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error saving profile: %w", err)
	}
	return nil
}

func (s *PostgresStorage) LoadSyncRecord(ctx context.Context, userID string) (*models.DeviceSyncRecord, error) {
	query := `SELECT device_id, last_sync_time, device_count FROM device_sync WHERE user_id = $1`

	var record models.DeviceSyncRecord
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&record.DeviceID, &record.LastSyncTime, &record.DeviceCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading sync record: %w", err)
	}
	return &record, nil
}

func (s *PostgresStorage) SaveSyncRecord(ctx context.Context, userID string, record *models.DeviceSyncRecord) error {
	query := `
		INSERT INTO device_sync (user_id, device_id, last_sync_time, device_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			device_id = EXCLUDED.device_id,
			last_sync_time = EXCLUDED.last_sync_time,
			device_count = EXCLUDED.device_count`

	if _, err := s.db.ExecContext(ctx, query, userID, record.DeviceID, record.LastSyncTime, record.DeviceCount); err != nil {
		return fmt.Errorf("error saving sync record: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
