package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/herdwatch/internal/domain/model"
)

// entityRow is the gorm model for tracked entities.
type entityRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Lat       *float64
	Lon       *float64
	Battery   *int
	Status    string `gorm:"not null;default:UNKNOWN"`
	LastFixAt *time.Time
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (entityRow) TableName() string { return "entities" }

type fenceRow struct {
	Name      string    `gorm:"primaryKey"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (fenceRow) TableName() string { return "geofences" }

type vertexRow struct {
	Fence string  `gorm:"primaryKey"`
	Seq   int     `gorm:"primaryKey"`
	Lat   float64 `gorm:"not null"`
	Lon   float64 `gorm:"not null"`
}

func (vertexRow) TableName() string { return "geofence_vertices" }

// OpenPostgres connects with gorm and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.WithContext(ctx).AutoMigrate(&entityRow{}, &fenceRow{}, &vertexRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return db, nil
}

// PostgresEntityStore stores entities with gorm.
type PostgresEntityStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPostgresEntityStore wraps an open gorm handle.
func NewPostgresEntityStore(db *gorm.DB) *PostgresEntityStore {
	return &PostgresEntityStore{db: db, now: time.Now}
}

func (s *PostgresEntityStore) Create(ctx context.Context, e model.TrackedEntity) error {
	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	row := toEntityRow(e)

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("insert entity %s: %w", e.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresEntityStore) Get(ctx context.Context, id string) (model.TrackedEntity, error) {
	var row entityRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TrackedEntity{}, entityNotFound(id)
	}
	if err != nil {
		return model.TrackedEntity{}, fmt.Errorf("select entity %s: %w", id, err)
	}
	return row.toModel()
}

func (s *PostgresEntityStore) List(ctx context.Context) ([]model.TrackedEntity, error) {
	var rows []entityRow
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	out := make([]model.TrackedEntity, 0, len(rows))
	for _, r := range rows {
		e, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *PostgresEntityStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&entityRow{})
	if res.Error != nil {
		return fmt.Errorf("delete entity %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return entityNotFound(id)
	}
	return nil
}

func (s *PostgresEntityStore) UpdateState(ctx context.Context, id string, u model.StateUpdate) error {
	updates := map[string]any{
		"status":     u.Status.String(),
		"updated_at": s.now(),
	}
	if u.Position != nil {
		updates["lat"] = u.Position.Lat
		updates["lon"] = u.Position.Lon
	}
	if u.Battery != nil {
		updates["battery"] = *u.Battery
	}
	if !u.LastFixAt.IsZero() {
		updates["last_fix_at"] = u.LastFixAt
	}

	res := s.db.WithContext(ctx).Model(&entityRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update entity %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return entityNotFound(id)
	}
	return nil
}

func toEntityRow(e model.TrackedEntity) entityRow {
	row := entityRow{
		ID:        e.ID,
		Name:      e.Name,
		Battery:   e.Battery,
		Status:    e.Status.String(),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.Position != nil {
		lat, lon := e.Position.Lat, e.Position.Lon
		row.Lat, row.Lon = &lat, &lon
	}
	if !e.LastFixAt.IsZero() {
		t := e.LastFixAt
		row.LastFixAt = &t
	}
	return row
}

func (r entityRow) toModel() (model.TrackedEntity, error) {
	st, err := model.ParseStatus(r.Status)
	if err != nil {
		return model.TrackedEntity{}, err
	}
	e := model.TrackedEntity{
		ID:        r.ID,
		Name:      r.Name,
		Status:    st,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Lat != nil && r.Lon != nil {
		e.Position = &model.Point{Lat: *r.Lat, Lon: *r.Lon}
	}
	if r.Battery != nil {
		b := *r.Battery
		e.Battery = &b
	}
	if r.LastFixAt != nil {
		e.LastFixAt = *r.LastFixAt
	}
	return e, nil
}

// PostgresFenceStore stores geofences with gorm.
type PostgresFenceStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPostgresFenceStore wraps an open gorm handle.
func NewPostgresFenceStore(db *gorm.DB) *PostgresFenceStore {
	return &PostgresFenceStore{db: db, now: time.Now}
}

func (s *PostgresFenceStore) Get(ctx context.Context, name string) (model.Geofence, error) {
	var g model.Geofence
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row fenceRow
		if err := tx.Where("name = ?", name).First(&row).Error; err != nil {
			return err
		}
		var vs []vertexRow
		if err := tx.Where("fence = ?", name).Order("seq").Find(&vs).Error; err != nil {
			return err
		}
		g = model.Geofence{Name: row.Name, UpdatedAt: row.UpdatedAt, Vertices: make([]model.Point, 0, len(vs))}
		for _, v := range vs {
			g.Vertices = append(g.Vertices, model.Point{Lat: v.Lat, Lon: v.Lon})
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Geofence{}, fenceNotFound(name)
	}
	if err != nil {
		return model.Geofence{}, fmt.Errorf("select geofence %s: %w", name, err)
	}
	return g, nil
}

// Replace swaps the vertex list inside db.Transaction.
func (s *PostgresFenceStore) Replace(ctx context.Context, name string, vertices []model.Point) (model.Geofence, error) {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := fenceRow{Name: name, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert geofence: %w", err)
		}
		if err := tx.Where("fence = ?", name).Delete(&vertexRow{}).Error; err != nil {
			return fmt.Errorf("clear vertices: %w", err)
		}
		if len(vertices) == 0 {
			return nil
		}
		rows := make([]vertexRow, len(vertices))
		for i, v := range vertices {
			rows[i] = vertexRow{Fence: name, Seq: i, Lat: v.Lat, Lon: v.Lon}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert vertices: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Geofence{}, fmt.Errorf("replace geofence %s: %w", name, err)
	}
	return model.Geofence{Name: name, Vertices: append([]model.Point(nil), vertices...), UpdatedAt: now}, nil
}

func (s *PostgresFenceStore) Delete(ctx context.Context, name string) error {
	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("name = ?", name).Delete(&fenceRow{})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return tx.Where("fence = ?", name).Delete(&vertexRow{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete geofence %s: %w", name, err)
	}
	if affected == 0 {
		return fenceNotFound(name)
	}
	return nil
}

func (s *PostgresFenceStore) List(ctx context.Context) ([]model.Geofence, error) {
	var rows []fenceRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list geofences: %w", err)
	}
	out := make([]model.Geofence, 0, len(rows))
	for _, r := range rows {
		g, err := s.Get(ctx, r.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}
