// Package store is the durable local state store for the companion agent.
// Values are JSON blobs keyed by well-known names, kept in an encrypted
// sqlite file so contact details never sit on disk in the clear.
package store

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	sqliteEncrypt "github.com/Daskott/gorm-sqlite-cipher"
	"github.com/google/uuid"
	"github.com/shieldx/companion/agent/logger"
	"github.com/shieldx/companion/utils"
	"golang.org/x/crypto/scrypt"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const DB_NAME = "companion.db"

// Well-known record keys. The backend is the system of record for most of
// what lives under them, these are the device's working copies.
const (
	KeyDeviceID          = "device_id"
	KeyAccessToken       = "access_token"
	KeyRefreshToken      = "refresh_token"
	KeyEmergencyContacts = "emergency_contacts"
	KeyPhoneList         = "emergency_phone_list"
	KeyJourneyID         = "current_journey_id"
	KeyJourneySession    = "journey_session"
	KeyTracking          = "is_tracking"
	KeySavedAddresses    = "saved_addresses"
	KeyPushToken         = "push_token"
)

var logg = logger.NewLogger()

// Record is a single key/value row. Values are serialized JSON.
type Record struct {
	Key       string `gorm:"primarykey"`
	Value     string `gorm:"not null"`
	UpdatedAt time.Time
}

type Store struct {
	db       *gorm.DB
	filePath string
}

// Open opens(or creates) the state db under rootDir, keyed with passPhrase.
func Open(passPhrase, rootDir string) (*Store, error) {
	dbDir := filepath.Join(rootDir, "db")
	if err := utils.CreateDirIfNotExist(dbDir); err != nil {
		return nil, err
	}

	filePath := filepath.Join(dbDir, DB_NAME)
	dsn := fmt.Sprintf(
		"file:%v?_pragma_key=%s&_pragma_cipher_page_size=4096&_journal_mode=WAL",
		filePath,
		passPhrase,
	)

	return open(dsn, filePath)
}

// OpenInMemory opens a throwaway store, used by tests. Each call gets its
// own database, nothing is shared between stores.
func OpenInMemory() (*Store, error) {
	dsn := fmt.Sprintf("file:%v?mode=memory&cache=shared", uuid.NewString())
	return open(dsn, "")
}

func open(dsn, filePath string) (*Store, error) {
	db, err := gorm.Open(sqliteEncrypt.Open(dsn), &gorm.Config{
		Logger: gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				LogLevel:                  gormLogger.Silent,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %v", err)
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, err
	}

	return &Store{db: db, filePath: filePath}, nil
}

// Get unmarshals the value under key into out. It returns false when the key
// is absent. A record that no longer parses is treated as absent and cleared,
// corruption self-heals instead of surfacing.
func (s *Store) Get(key string, out interface{}) (bool, error) {
	record := Record{}

	err := s.db.First(&record, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal([]byte(record.Value), out); err != nil {
		logg.Warnf("clearing corrupted record %q: %v", key, err)
		s.Remove(key)
		return false, nil
	}

	return true, nil
}

// GetString is Get for plain string values.
func (s *Store) GetString(key string) (string, bool) {
	var value string
	found, err := s.Get(key, &value)
	if err != nil {
		logg.Errorf("reading %q: %v", key, err)
		return "", false
	}

	return value, found
}

func (s *Store) Set(key string, value interface{}) error {
	asJSON, err := json.Marshal(value)
	if err != nil {
		return err
	}

	record := Record{Key: key, Value: string(asJSON), UpdatedAt: time.Now()}
	return s.db.Save(&record).Error
}

func (s *Store) Remove(key string) error {
	return s.db.Delete(&Record{}, "key = ?", key).Error
}

func (s *Store) RemoveMany(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return s.db.Delete(&Record{}, "key IN ?", keys).Error
}

// FilePath is the on-disk location of the state db, empty for in-memory
// stores. Used by the backup job.
func (s *Store) FilePath() string {
	return s.filePath
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// DerivePassPhrase stretches the configured device secret into the sqlite
// cipher passphrase.
func DerivePassPhrase(secret string) (string, error) {
	key, err := scrypt.Key([]byte(secret), []byte("companion-state"), 1<<15, 8, 1, 32)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(key), nil
}
