package persist

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrUnsupportedDialect indicates that no GORM dialector is available for the scheme.
	ErrUnsupportedDialect = errors.New("auth_store.unsupported_dialect")

	errEmptyDatabaseURL    = errors.New("auth_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("auth_store.sqlite.empty_path")
	errSQLiteInvalidURL    = errors.New("auth_store.sqlite.invalid_url")
	errUnsupportedNoScheme = errors.New("auth_store.unsupported_no_scheme")
)

// DatabaseStore persists auth records using GORM.
type DatabaseStore struct {
	db          *gorm.DB
	ttl         time.Duration
	clock       Clock
	driverLabel string
}

// Driver exposes the selected database driver label.
func (store *DatabaseStore) Driver() string {
	return store.driverLabel
}

type authRecord struct {
	Subject          string `gorm:"column:subject;primaryKey"`
	Token            string `gorm:"column:token;not null"`
	Role             string `gorm:"column:role;not null;default:''"`
	ProfileJSON      string `gorm:"column:profile_json;not null;default:''"`
	ExternalProvider bool   `gorm:"column:external_provider;not null;default:false"`
	ProviderEmail    string `gorm:"column:provider_email;not null;default:''"`
	SavedAtUnix      int64  `gorm:"column:saved_at_unix;not null"`
}

func (authRecord) TableName() string {
	return "auth_records"
}

// NewDatabaseStore constructs a GORM-backed store, selecting the driver from
// the database URL scheme (postgres:// or sqlite://).
func NewDatabaseStore(ctx context.Context, databaseURL string, ttl time.Duration, clock Clock) (*DatabaseStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("auth_store.open: %w", errEmptyDatabaseURL)
	}
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("auth_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&authRecord{}); migrateErr != nil {
		return nil, fmt.Errorf("auth_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseStore{
		db:          gormDB,
		ttl:         ttl,
		clock:       clock,
		driverLabel: driverLabel,
	}, nil
}

// Save upserts the record for its subject.
func (store *DatabaseStore) Save(ctx context.Context, record Record) error {
	if record.Subject == "" {
		return fmt.Errorf("auth_store.save.%s: %w", store.driverLabel, ErrEmptySubject)
	}
	row := authRecord{
		Subject:          record.Subject,
		Token:            record.Token,
		Role:             record.Role,
		ProfileJSON:      record.ProfileJSON,
		ExternalProvider: record.ExternalProvider,
		ProviderEmail:    record.ProviderEmail,
		SavedAtUnix:      store.clock.Now().Unix(),
	}
	if err := store.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("auth_store.save.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Load returns the record for the subject, purging it when expired.
func (store *DatabaseStore) Load(ctx context.Context, subject string) (Record, error) {
	if subject == "" {
		return Record{}, fmt.Errorf("auth_store.load.%s: %w", store.driverLabel, ErrEmptySubject)
	}
	var row authRecord
	err := store.db.WithContext(ctx).Where("subject = ?", subject).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, fmt.Errorf("auth_store.load.%s: %w", store.driverLabel, ErrRecordNotFound)
		}
		return Record{}, fmt.Errorf("auth_store.load.%s: %w", store.driverLabel, err)
	}
	if store.clock.Now().After(time.Unix(row.SavedAtUnix, 0).Add(store.ttl)) {
		if deleteErr := store.db.WithContext(ctx).Delete(&authRecord{}, "subject = ?", subject).Error; deleteErr != nil {
			return Record{}, fmt.Errorf("auth_store.load.%s: %w", store.driverLabel, deleteErr)
		}
		return Record{}, fmt.Errorf("auth_store.load.%s: %w", store.driverLabel, ErrRecordExpired)
	}
	return Record{
		Subject:          row.Subject,
		Token:            row.Token,
		Role:             row.Role,
		ProfileJSON:      row.ProfileJSON,
		ExternalProvider: row.ExternalProvider,
		ProviderEmail:    row.ProviderEmail,
		SavedAtUnix:      row.SavedAtUnix,
	}, nil
}

// Delete removes the record for the subject; absent records are not an error.
func (store *DatabaseStore) Delete(ctx context.Context, subject string) error {
	if subject == "" {
		return fmt.Errorf("auth_store.delete.%s: %w", store.driverLabel, ErrEmptySubject)
	}
	if err := store.db.WithContext(ctx).Delete(&authRecord{}, "subject = ?", subject).Error; err != nil {
		return fmt.Errorf("auth_store.delete.%s: %w", store.driverLabel, err)
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("auth_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("auth_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := buildSQLiteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("auth_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("auth_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedDialect)
	}
}

func buildSQLiteDSN(parsed *url.URL) (string, error) {
	if parsed == nil {
		return "", errSQLiteInvalidURL
	}
	var builder strings.Builder
	switch {
	case parsed.Opaque != "":
		builder.WriteString(parsed.Opaque)
	case parsed.Host != "":
		builder.WriteString(parsed.Host)
		if parsed.Path != "" {
			if !strings.HasPrefix(parsed.Path, "/") {
				builder.WriteString("/")
			}
			builder.WriteString(parsed.Path)
		}
	default:
		builder.WriteString(parsed.Path)
	}
	if builder.Len() == 0 {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		builder.WriteString("?")
		builder.WriteString(parsed.RawQuery)
	}
	return builder.String(), nil
}
