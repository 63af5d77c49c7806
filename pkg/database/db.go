package database

import (
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RoleRecord represents the roles table
type RoleRecord struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description"`
	Capacity    int       `gorm:"not null;default:1" json:"capacity"`
	Position    int       `gorm:"not null;default:0" json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (RoleRecord) TableName() string { return "roles" }

// PreferenceRecord represents the preferences table, one row per participant
type PreferenceRecord struct {
	UserID      string    `gorm:"primaryKey" json:"user_id"`
	UserName    string    `json:"user_name"`
	Preferences []string  `gorm:"serializer:json;type:text" json:"preferences"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (PreferenceRecord) TableName() string { return "preferences" }

// AssignmentRecord represents the assignments table
type AssignmentRecord struct {
	Key            string    `gorm:"primaryKey;column:assignment_key" json:"key"`
	UserID         string    `gorm:"index;not null" json:"user_id"`
	UserName       string    `json:"user_name"`
	RoleID         string    `gorm:"index;not null" json:"role_id"`
	RoleName       string    `json:"role_name"`
	PreferenceRank int       `json:"preference_rank"`
	Cost           float64   `json:"cost"`
	Relaxed        bool      `json:"relaxed"`
	RunID          string    `gorm:"index" json:"run_id"`
	Timestamp      time.Time `json:"timestamp"`
}

func (AssignmentRecord) TableName() string { return "assignments" }

// AllocationStatus is the single-row publish flag
type AllocationStatus struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Completed bool      `gorm:"not null;default:false" json:"completed"`
	UpdatedAt time.Time `json:"timestamp"`
}

// AllocationRun records the outcome of one allocation run
type AllocationRun struct {
	ID                 string    `gorm:"primaryKey" json:"id"`
	Seed               int64     `json:"seed"`
	Trials             int       `json:"trials"`
	BestTrial          int       `json:"best_trial"`
	Participants       int       `json:"participants"`
	TotalSlots         int       `json:"total_slots"`
	Assigned           int       `json:"assigned"`
	RelaxedCount       int       `json:"relaxed_count"`
	Shortfall          bool      `gorm:"not null;default:false" json:"shortfall"`
	SatisfactionScore  float64   `json:"satisfaction_score"`
	MaxDissatisfaction float64   `json:"max_participant_dissatisfaction"`
	UnassignedRoleIDs  []string  `gorm:"serializer:json;type:text" json:"unassigned_role_ids"`
	RequestedBy        string    `json:"requested_by"`
	CreatedAt          time.Time `json:"created_at"`
}

// ParticipantKey represents the participant_keys table
type ParticipantKey struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Key       string     `gorm:"column:api_key;unique;not null" json:"-"`
	UserID    string     `gorm:"uniqueIndex;not null" json:"user_id"`
	Preview   string     `json:"key_preview"`
	Revoked   bool       `gorm:"not null;default:false" json:"revoked"`
	CreatedAt time.Time  `json:"created_at"`
	LastUsed  *time.Time `json:"last_used"`
}

// MasterUser represents the master_users table
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Options selects and configures the database backend
type Options struct {
	DatabaseURL string // postgres DSN; sqlite is used when empty
	Driver      string // "pgx" (default) or "pq"
	DataPath    string // sqlite file path
	Debug       bool
}

// Open connects to postgres when a DSN is configured, otherwise to a sqlite
// file, and migrates the schema.
func Open(opts Options) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if opts.Debug {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	if opts.DatabaseURL != "" {
		pgCfg := postgres.Config{
			DSN:                  opts.DatabaseURL,
			PreferSimpleProtocol: true,
		}
		if opts.Driver == "pq" {
			pgCfg.DriverName = "postgres"
		}
		dialector = postgres.New(pgCfg)
		cfg.PrepareStmt = false
	} else {
		path := opts.DataPath
		if path == "" {
			path = "allocator.db"
		}
		dialector = sqlite.Open(path)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table the service uses
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&RoleRecord{},
		&PreferenceRecord{},
		&AssignmentRecord{},
		&AllocationStatus{},
		&AllocationRun{},
		&ParticipantKey{},
		&MasterUser{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
