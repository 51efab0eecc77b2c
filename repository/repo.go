package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"narration-pipeline/entities"
)

type AudioRepository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	GetDB(ctx context.Context) *gorm.DB
	Migrate() error

	CreateAudioFile(ctx context.Context, file *entities.AudioFile) error
	FindAudioFileById(ctx context.Context, id uuid.UUID) (*entities.AudioFile, error)
	FindAudioFileForUpdate(ctx context.Context, id uuid.UUID) (*entities.AudioFile, error)
	ListAudioFiles(ctx context.Context) ([]*entities.AudioFile, error)
	UpdateAudioFile(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteAudioFile(ctx context.Context, id uuid.UUID) error

	CreateSegments(ctx context.Context, segments []*entities.AudioSegment) error
	ListSegmentsByFile(ctx context.Context, audioFileId uuid.UUID) ([]*entities.AudioSegment, error)
	FindSegmentById(ctx context.Context, id uuid.UUID) (*entities.AudioSegment, error)
	SaveSegment(ctx context.Context, segment *entities.AudioSegment) error
	UpdateSegmentFilePath(ctx context.Context, id uuid.UUID, version int, filePath string) (bool, error)
	DeleteSegment(ctx context.Context, id uuid.UUID) error
	DeleteSegmentsByFile(ctx context.Context, audioFileId uuid.UUID) error
	CountSegments(ctx context.Context, audioFileId uuid.UUID) (int64, error)
	CountSegmentsPerFile(ctx context.Context) (map[uuid.UUID]int64, error)
	CountNonSilenceSegments(ctx context.Context, audioFileId uuid.UUID) (int64, error)

	FindTextUnitById(ctx context.Context, id uuid.UUID) (*entities.TextUnit, error)
	CreateMapping(ctx context.Context, mapping *entities.UnitSegmentMapping) error
	FindMappingById(ctx context.Context, id uuid.UUID) (*entities.UnitSegmentMapping, error)
	DeleteMapping(ctx context.Context, id uuid.UUID) error
	DeleteMappingsBySegmentIds(ctx context.Context, segmentIds []uuid.UUID) error
	FindPublishedMappings(ctx context.Context, textUnitId uuid.UUID) ([]*entities.UnitSegmentMapping, error)
	UnpublishMappingsForTextUnit(ctx context.Context, textUnitId uuid.UUID) error
	SetMappingPublished(ctx context.Context, id uuid.UUID) error
}

type repo struct {
	db *gorm.DB
}

type txKey struct{}

func NewRepo(db *sql.DB) AudioRepository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	return &repo{
		db: gormDB,
	}
}

// GetDB returns the transaction bound to ctx when one is open, so every
// repository call inside a Transaction callback shares it.
func (r *repo) GetDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.GetDB(ctx).Transaction(func(tx *gorm.DB) error {
		return callback(context.WithValue(ctx, txKey{}, tx))
	}, opts...)
}

func (r *repo) Migrate() error {
	return r.db.AutoMigrate(
		&entities.AudioFile{},
		&entities.AudioSegment{},
		&entities.UnitSegmentMapping{},
	)
}

func (r *repo) CreateAudioFile(ctx context.Context, file *entities.AudioFile) error {
	return r.GetDB(ctx).Create(file).Error
}

func (r *repo) FindAudioFileById(ctx context.Context, id uuid.UUID) (*entities.AudioFile, error) {
	file := &entities.AudioFile{}
	err := r.GetDB(ctx).First(file, "id = ?", id).Error
	if err != nil {
		return nil, err
	}

	return file, nil
}

// FindAudioFileForUpdate takes a row-level exclusive lock. Meaningful only
// inside a Transaction callback; the lock is held until the tx ends.
func (r *repo) FindAudioFileForUpdate(ctx context.Context, id uuid.UUID) (*entities.AudioFile, error) {
	file := &entities.AudioFile{}
	err := r.GetDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(file, "id = ?", id).Error
	if err != nil {
		return nil, err
	}

	return file, nil
}

func (r *repo) ListAudioFiles(ctx context.Context) ([]*entities.AudioFile, error) {
	var files []*entities.AudioFile
	err := r.GetDB(ctx).Order("created_at DESC").Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *repo) UpdateAudioFile(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.GetDB(ctx).Model(&entities.AudioFile{}).Where("id = ?", id).Updates(updates).Error
}

func (r *repo) DeleteAudioFile(ctx context.Context, id uuid.UUID) error {
	return r.GetDB(ctx).Delete(&entities.AudioFile{}, "id = ?", id).Error
}

func (r *repo) CreateSegments(ctx context.Context, segments []*entities.AudioSegment) error {
	if len(segments) == 0 {
		return nil
	}
	return r.GetDB(ctx).Create(segments).Error
}

func (r *repo) ListSegmentsByFile(ctx context.Context, audioFileId uuid.UUID) ([]*entities.AudioSegment, error) {
	var segments []*entities.AudioSegment
	err := r.GetDB(ctx).Where("audio_file_id = ?", audioFileId).Order("segment_index ASC").Find(&segments).Error
	if err != nil {
		return nil, err
	}
	return segments, nil
}

func (r *repo) FindSegmentById(ctx context.Context, id uuid.UUID) (*entities.AudioSegment, error) {
	segment := &entities.AudioSegment{}
	err := r.GetDB(ctx).First(segment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return segment, nil
}

func (r *repo) SaveSegment(ctx context.Context, segment *entities.AudioSegment) error {
	return r.GetDB(ctx).Save(segment).Error
}

// UpdateSegmentFilePath records a cut artifact for one segment, guarded by
// the version the artifact was cut from. A concurrent boundary edit bumps the
// version, the guard misses, and the stale artifact is reported back to the
// caller instead of clobbering the edited row.
func (r *repo) UpdateSegmentFilePath(ctx context.Context, id uuid.UUID, version int, filePath string) (bool, error) {
	tx := r.GetDB(ctx).Model(&entities.AudioSegment{}).
		Where("id = ? AND version = ?", id, version).
		Update("file_path", filePath)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *repo) DeleteSegment(ctx context.Context, id uuid.UUID) error {
	return r.GetDB(ctx).Delete(&entities.AudioSegment{}, "id = ?", id).Error
}

func (r *repo) DeleteSegmentsByFile(ctx context.Context, audioFileId uuid.UUID) error {
	return r.GetDB(ctx).Delete(&entities.AudioSegment{}, "audio_file_id = ?", audioFileId).Error
}

func (r *repo) CountSegments(ctx context.Context, audioFileId uuid.UUID) (int64, error) {
	var count int64
	err := r.GetDB(ctx).Model(&entities.AudioSegment{}).Where("audio_file_id = ?", audioFileId).Count(&count).Error
	return count, err
}

// CountSegmentsPerFile returns segment counts for every file in one grouped
// query; files without segments are simply absent from the map.
func (r *repo) CountSegmentsPerFile(ctx context.Context) (map[uuid.UUID]int64, error) {
	var rows []struct {
		AudioFileId uuid.UUID
		Total       int64
	}
	err := r.GetDB(ctx).Model(&entities.AudioSegment{}).
		Select("audio_file_id, count(*) as total").
		Group("audio_file_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		counts[row.AudioFileId] = row.Total
	}
	return counts, nil
}

func (r *repo) CountNonSilenceSegments(ctx context.Context, audioFileId uuid.UUID) (int64, error) {
	var count int64
	err := r.GetDB(ctx).Model(&entities.AudioSegment{}).
		Where("audio_file_id = ? AND is_silence = false", audioFileId).Count(&count).Error
	return count, err
}

func (r *repo) FindTextUnitById(ctx context.Context, id uuid.UUID) (*entities.TextUnit, error) {
	unit := &entities.TextUnit{}
	err := r.GetDB(ctx).First(unit, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return unit, nil
}

func (r *repo) CreateMapping(ctx context.Context, mapping *entities.UnitSegmentMapping) error {
	return r.GetDB(ctx).Create(mapping).Error
}

func (r *repo) FindMappingById(ctx context.Context, id uuid.UUID) (*entities.UnitSegmentMapping, error) {
	mapping := &entities.UnitSegmentMapping{}
	err := r.GetDB(ctx).First(mapping, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return mapping, nil
}

func (r *repo) DeleteMapping(ctx context.Context, id uuid.UUID) error {
	return r.GetDB(ctx).Delete(&entities.UnitSegmentMapping{}, "id = ?", id).Error
}

func (r *repo) DeleteMappingsBySegmentIds(ctx context.Context, segmentIds []uuid.UUID) error {
	if len(segmentIds) == 0 {
		return nil
	}
	return r.GetDB(ctx).Delete(&entities.UnitSegmentMapping{}, "audio_segment_id IN ?", segmentIds).Error
}

// FindPublishedMappings orders newest first so that resolution stays
// deterministic even when the single-published invariant has been violated.
func (r *repo) FindPublishedMappings(ctx context.Context, textUnitId uuid.UUID) ([]*entities.UnitSegmentMapping, error) {
	var mappings []*entities.UnitSegmentMapping
	err := r.GetDB(ctx).
		Where("text_unit_id = ? AND is_published = true", textUnitId).
		Order("created_at DESC").
		Find(&mappings).Error
	if err != nil {
		return nil, err
	}
	return mappings, nil
}

func (r *repo) UnpublishMappingsForTextUnit(ctx context.Context, textUnitId uuid.UUID) error {
	return r.GetDB(ctx).Model(&entities.UnitSegmentMapping{}).
		Where("text_unit_id = ? AND is_published = true", textUnitId).
		Update("is_published", false).Error
}

func (r *repo) SetMappingPublished(ctx context.Context, id uuid.UUID) error {
	return r.GetDB(ctx).Model(&entities.UnitSegmentMapping{}).
		Where("id = ?", id).
		Update("is_published", true).Error
}
