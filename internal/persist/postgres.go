package persist

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// PostgresOption defines connection options for the postgres-backed store.
type PostgresOption struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

func (opt PostgresOption) dsn() string {
	if opt.ConnString != "" {
		return opt.ConnString
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()

	return u.String()
}

// signalRow is the table layout; the full record envelope travels in the
// jsonb payload so the row stays portable with the file format.
type signalRow struct {
	Key       string `gorm:"primaryKey;size:255"`
	Status    string `gorm:"size:16"`
	Payload   []byte `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Priority  uint64 `gorm:"index"`
}

func (signalRow) TableName() string { return "signal_records" }

// PostgresStore keeps signal records in a postgres table, one row per key.
// Row upserts are transactional, which gives the same all-or-nothing write
// guarantee as the file store's rename discipline.
type PostgresStore struct {
	db       *gorm.DB
	priority atomic.Uint64
}

// NewPostgresStore connects, migrates the table and seeds the priority
// counter from the highest priority already stored.
func NewPostgresStore(opt PostgresOption) (*PostgresStore, error) {
	config := opt.Config
	if config == nil {
		config = &gorm.Config{}
	}
	db, err := gorm.Open(postgres.Open(opt.dsn()), config)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&signalRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate signal records")
	}

	s := &PostgresStore{db: db}
	var max uint64
	if err := db.Model(&signalRow{}).Select("COALESCE(MAX(priority), 0)").Scan(&max).Error; err != nil {
		return nil, errors.Wrap(err, "seed priority")
	}
	s.priority.Store(max)
	return s, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) Read(ctx context.Context, key string) (Record, error) {
	var row signalRow
	if err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, errors.Wrapf(err, "read record %s", key)
	}

	var rec Record
	if err := json.Unmarshal(row.Payload, &rec); err != nil {
		s.quarantine(ctx, key, err)
		return Record{}, errors.Wrap(ErrCorrupt, err.Error())
	}
	if err := rec.Validate(); err != nil {
		s.quarantine(ctx, key, err)
		return Record{}, err
	}
	return rec, nil
}

// quarantine renames the row key aside so the bad payload stays inspectable.
func (s *PostgresStore) quarantine(ctx context.Context, key string, cause error) {
	aside := fmt.Sprintf("%s%s%d", key, quarantineMarker, time.Now().UTC().UnixNano())
	if err := s.db.WithContext(ctx).Model(&signalRow{}).Where("key = ?", key).
		Update("key", aside).Error; err != nil {
		logs.Errorf("quarantine record %s, err: %+v", key, err)
		return
	}
	logs.Warnf("quarantined corrupt record %s -> %s, cause: %+v", key, aside, cause)
}

func (s *PostgresStore) Write(ctx context.Context, key string, rec Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Priority = s.priority.Add(1)

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "marshal record %s", key)
	}
	row := signalRow{
		Key:       key,
		Status:    string(rec.Status),
		Payload:   payload,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Priority:  rec.Priority,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "payload", "updated_at", "priority"}),
	}).Create(&row).Error; err != nil {
		return errors.Wrapf(err, "write record %s", key)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&signalRow{}).
		Where("key = ?", key).Count(&count).Error; err != nil {
		return false, errors.Wrapf(err, "stat record %s", key)
	}
	return count > 0, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&signalRow{}, "key = ?", key).Error; err != nil {
		return errors.Wrapf(err, "delete record %s", key)
	}
	return nil
}

func (s *PostgresStore) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := s.db.WithContext(ctx).Model(&signalRow{}).
		Where("key NOT LIKE ?", "%"+quarantineMarker+"%").
		Order("priority").Pluck("key", &keys).Error; err != nil {
		return nil, errors.Wrap(err, "list record keys")
	}
	return keys, nil
}
