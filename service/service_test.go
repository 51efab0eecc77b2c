package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"narration-pipeline/config"
	"narration-pipeline/constant"
	"narration-pipeline/dto"
	"narration-pipeline/entities"
	"narration-pipeline/pkg/audit"
	"narration-pipeline/repository"
)

// fakeRepo is an in-memory AudioRepository for service tests. Transactions
// run the callback directly; rollback semantics are not emulated, which is
// fine for the paths under test.
type fakeRepo struct {
	mu       sync.Mutex
	files    map[uuid.UUID]*entities.AudioFile
	segments map[uuid.UUID]*entities.AudioSegment
	units    map[uuid.UUID]*entities.TextUnit
	mappings map[uuid.UUID]*entities.UnitSegmentMapping
	clock    time.Time
}

var _ repository.AudioRepository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		files:    make(map[uuid.UUID]*entities.AudioFile),
		segments: make(map[uuid.UUID]*entities.AudioSegment),
		units:    make(map[uuid.UUID]*entities.TextUnit),
		mappings: make(map[uuid.UUID]*entities.UnitSegmentMapping),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *fakeRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeRepo) Transaction(ctx context.Context, callback func(ctx context.Context) error, _ ...*sql.TxOptions) error {
	return callback(ctx)
}

func (r *fakeRepo) GetDB(_ context.Context) *gorm.DB { return nil }

func (r *fakeRepo) Migrate() error { return nil }

func (r *fakeRepo) CreateAudioFile(_ context.Context, file *entities.AudioFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	file.CreatedAt = r.tick()
	cp := *file
	r.files[file.ID] = &cp
	return nil
}

func (r *fakeRepo) FindAudioFileById(_ context.Context, id uuid.UUID) (*entities.AudioFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *file
	return &cp, nil
}

func (r *fakeRepo) FindAudioFileForUpdate(ctx context.Context, id uuid.UUID) (*entities.AudioFile, error) {
	return r.FindAudioFileById(ctx, id)
}

func (r *fakeRepo) ListAudioFiles(_ context.Context) ([]*entities.AudioFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.AudioFile
	for _, file := range r.files {
		cp := *file
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) UpdateAudioFile(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for key, value := range updates {
		switch key {
		case "status":
			file.Status = value.(constant.AudioStatus)
		case "error_message":
			if value == nil {
				file.ErrorMessage = nil
			} else {
				msg := value.(string)
				file.ErrorMessage = &msg
			}
		case "duration_ms":
			ms := value.(int64)
			file.DurationMs = &ms
		case "waveform_peaks":
			file.WaveformPeaks = value.(entities.Peaks)
		}
	}
	return nil
}

func (r *fakeRepo) DeleteAudioFile(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, id)
	return nil
}

func (r *fakeRepo) CreateSegments(_ context.Context, segments []*entities.AudioSegment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, seg := range segments {
		if seg.ID == uuid.Nil {
			seg.ID = uuid.New()
		}
		seg.CreatedAt = r.tick()
		cp := *seg
		r.segments[seg.ID] = &cp
	}
	return nil
}

func (r *fakeRepo) ListSegmentsByFile(_ context.Context, audioFileId uuid.UUID) ([]*entities.AudioSegment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.AudioSegment
	for _, seg := range r.segments {
		if seg.AudioFileId == audioFileId {
			cp := *seg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentIndex < out[j].SegmentIndex })
	return out, nil
}

func (r *fakeRepo) FindSegmentById(_ context.Context, id uuid.UUID) (*entities.AudioSegment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seg, ok := r.segments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *seg
	return &cp, nil
}

func (r *fakeRepo) SaveSegment(_ context.Context, segment *entities.AudioSegment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *segment
	r.segments[segment.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdateSegmentFilePath(_ context.Context, id uuid.UUID, version int, filePath string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seg, ok := r.segments[id]
	if !ok || seg.Version != version {
		return false, nil
	}
	seg.FilePath = &filePath
	return true, nil
}

func (r *fakeRepo) DeleteSegment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.segments, id)
	return nil
}

func (r *fakeRepo) DeleteSegmentsByFile(_ context.Context, audioFileId uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, seg := range r.segments {
		if seg.AudioFileId == audioFileId {
			delete(r.segments, id)
		}
	}
	return nil
}

func (r *fakeRepo) CountSegments(_ context.Context, audioFileId uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, seg := range r.segments {
		if seg.AudioFileId == audioFileId {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) CountSegmentsPerFile(_ context.Context) (map[uuid.UUID]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[uuid.UUID]int64)
	for _, seg := range r.segments {
		counts[seg.AudioFileId]++
	}
	return counts, nil
}

func (r *fakeRepo) CountNonSilenceSegments(_ context.Context, audioFileId uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, seg := range r.segments {
		if seg.AudioFileId == audioFileId && !seg.IsSilence {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) FindTextUnitById(_ context.Context, id uuid.UUID) (*entities.TextUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	unit, ok := r.units[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *unit
	return &cp, nil
}

func (r *fakeRepo) CreateMapping(_ context.Context, mapping *entities.UnitSegmentMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mapping.ID == uuid.Nil {
		mapping.ID = uuid.New()
	}
	mapping.CreatedAt = r.tick()
	cp := *mapping
	r.mappings[mapping.ID] = &cp
	return nil
}

func (r *fakeRepo) FindMappingById(_ context.Context, id uuid.UUID) (*entities.UnitSegmentMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mapping, ok := r.mappings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *mapping
	return &cp, nil
}

func (r *fakeRepo) DeleteMapping(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mappings, id)
	return nil
}

func (r *fakeRepo) DeleteMappingsBySegmentIds(_ context.Context, segmentIds []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, segId := range segmentIds {
		for id, mapping := range r.mappings {
			if mapping.AudioSegmentId == segId {
				delete(r.mappings, id)
			}
		}
	}
	return nil
}

func (r *fakeRepo) FindPublishedMappings(_ context.Context, textUnitId uuid.UUID) ([]*entities.UnitSegmentMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.UnitSegmentMapping
	for _, mapping := range r.mappings {
		if mapping.TextUnitId == textUnitId && mapping.IsPublished {
			cp := *mapping
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) UnpublishMappingsForTextUnit(_ context.Context, textUnitId uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mapping := range r.mappings {
		if mapping.TextUnitId == textUnitId {
			mapping.IsPublished = false
		}
	}
	return nil
}

func (r *fakeRepo) SetMappingPublished(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	mapping, ok := r.mappings[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	mapping.IsPublished = true
	return nil
}

// fakeStore records object paths instead of talking to minio.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string]bool
	putErr  error
}

var _ ObjectStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]bool)}
}

func (s *fakeStore) Put(_ context.Context, objectPath, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[objectPath] = true
	return nil
}

func (s *fakeStore) Fetch(_ context.Context, _, _ string) error { return nil }

func (s *fakeStore) Remove(_ context.Context, objectPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectPath)
	return nil
}

func (s *fakeStore) URL(objectPath string) string {
	return "http://media.test/" + objectPath
}

func (s *fakeStore) has(objectPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[objectPath]
}

// fakeSink collects audit entries.
type fakeSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *fakeSink) Record(_ context.Context, entry audit.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []dto.ProcessMessage
}

func (n *fakeNotifier) NotifyProcess(_ context.Context, message dto.ProcessMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.Server{Workers: 2},
		Upload: config.Upload{
			MaxSizeBytes:      10 << 20,
			AllowedExtensions: []string{"mp3"},
		},
		Pipeline: config.Pipeline{
			SilenceThresholdDb: -40,
			MinSilenceMs:       500,
			SilenceGapMs:       150,
			PeakBuckets:        800,
			FFmpegPath:         "ffmpeg",
			FFprobePath:        "ffprobe",
		},
	}
}
