package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"narration-pipeline/constant"
	"narration-pipeline/entities"
)

func newLibraryFixture() (LibraryService, *fakeRepo, *fakeStore, *fakeSink, *fakeNotifier) {
	repo := newFakeRepo()
	store := newFakeStore()
	sink := &fakeSink{}
	notifier := &fakeNotifier{}
	svc := NewLibraryService(repo, testConfig(), store, sink, notifier)
	return svc, repo, store, sink, notifier
}

func TestIngestStoresFileAndEnqueuesProcessing(t *testing.T) {
	svc, repo, store, sink, notifier := newLibraryFixture()
	actorId := uuid.New()

	out, err := svc.Ingest(context.Background(), IngestInput{
		ActorId:   actorId,
		BookId:    uuid.New(),
		Filename:  "Chapter 1.mp3",
		LocalPath: "/tmp/upload-spool",
		SizeBytes: 2048,
	})
	require.NoError(t, err)

	assert.Equal(t, "UPLOADED", out.Status)
	assert.Equal(t, "Chapter 1.mp3", out.OriginalFilename)
	assert.Nil(t, out.DurationMs)

	stored, err := repo.FindAudioFileById(context.Background(), out.ID)
	require.NoError(t, err)
	assert.Equal(t, constant.AudioStatusUploaded, stored.Status)
	assert.True(t, strings.HasPrefix(stored.FilePath, "uploads/"))
	assert.True(t, store.has(stored.FilePath))

	require.Len(t, notifier.messages, 1)
	assert.Equal(t, out.ID, notifier.messages[0].AudioFileId)
	assert.Equal(t, actorId, notifier.messages[0].ActorId)

	require.Len(t, sink.entries, 1)
	assert.Equal(t, constant.AuditActionUploadAudio, sink.entries[0].Action)
}

func TestIngestRejectsUnsupportedExtension(t *testing.T) {
	svc, repo, store, _, notifier := newLibraryFixture()

	_, err := svc.Ingest(context.Background(), IngestInput{
		BookId:    uuid.New(),
		Filename:  "session.wav",
		SizeBytes: 2048,
	})
	assert.ErrorIs(t, err, ErrValidation)

	// No row and no object may exist after a rejected upload.
	files, _ := repo.ListAudioFiles(context.Background())
	assert.Empty(t, files)
	assert.Empty(t, store.objects)
	assert.Empty(t, notifier.messages)
}

func TestIngestRejectsBadSizes(t *testing.T) {
	svc, _, _, _, _ := newLibraryFixture()

	_, err := svc.Ingest(context.Background(), IngestInput{Filename: "a.mp3", SizeBytes: 0})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Ingest(context.Background(), IngestInput{Filename: "a.mp3", SizeBytes: testConfig().Upload.MaxSizeBytes + 1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestListFilesIncludesSegmentCounts(t *testing.T) {
	svc, repo, _, _, _ := newLibraryFixture()

	segmented := seedAudioFile(repo, constant.AudioStatusSegmented)
	seedSegment(repo, segmented.ID, 0, 0, 4000, false, 1)
	seedSegment(repo, segmented.ID, 1, 4000, 10000, true, 1)
	fresh := seedAudioFile(repo, constant.AudioStatusUploaded)

	out, err := svc.ListFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)

	counts := make(map[uuid.UUID]int)
	for _, f := range out {
		counts[f.ID] = f.SegmentCount
	}
	assert.Equal(t, 2, counts[segmented.ID])
	assert.Equal(t, 0, counts[fresh.ID])
}

func TestGetFileIncludesSegmentCount(t *testing.T) {
	svc, repo, _, _, _ := newLibraryFixture()
	file := seedAudioFile(repo, constant.AudioStatusSegmented)
	seedSegment(repo, file.ID, 0, 0, 4000, false, 1)
	seedSegment(repo, file.ID, 1, 4000, 10000, true, 1)

	out, err := svc.GetFile(context.Background(), file.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, out.SegmentCount)

	_, err = svc.GetFile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteFileRemovesRowsAndObjects(t *testing.T) {
	svc, repo, store, sink, _ := newLibraryFixture()
	file := seedAudioFile(repo, constant.AudioStatusReady)
	require.NoError(t, store.Put(context.Background(), file.FilePath, ""))

	seg := seedSegment(repo, file.ID, 0, 0, 4000, false, 1)
	cutPath := segmentObjectPath(file.ID, 0, 1)
	seg.FilePath = &cutPath
	require.NoError(t, repo.SaveSegment(context.Background(), seg))
	require.NoError(t, store.Put(context.Background(), cutPath, ""))

	unit := &entities.TextUnit{ID: uuid.New(), BookId: file.BookId}
	repo.units[unit.ID] = unit
	mapping := &entities.UnitSegmentMapping{TextUnitId: unit.ID, AudioSegmentId: seg.ID}
	require.NoError(t, repo.CreateMapping(context.Background(), mapping))

	require.NoError(t, svc.DeleteFile(context.Background(), uuid.New(), file.ID))

	_, err := repo.FindAudioFileById(context.Background(), file.ID)
	assert.Error(t, err)
	_, err = repo.FindSegmentById(context.Background(), seg.ID)
	assert.Error(t, err)
	_, err = repo.FindMappingById(context.Background(), mapping.ID)
	assert.Error(t, err)

	assert.False(t, store.has(file.FilePath))
	assert.False(t, store.has(cutPath))

	require.NotEmpty(t, sink.entries)
	assert.Equal(t, constant.AuditActionDeleteAudio, sink.entries[len(sink.entries)-1].Action)
}

func TestDeleteFileUnknown(t *testing.T) {
	svc, _, _, _, _ := newLibraryFixture()
	err := svc.DeleteFile(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
