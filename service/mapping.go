package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"narration-pipeline/constant"
	"narration-pipeline/dto"
	"narration-pipeline/entities"
	"narration-pipeline/pkg/audit"
	"narration-pipeline/repository"
)

// MappingService associates audio segments with text units and enforces
// the single-published-mapping invariant at write time.
type MappingService interface {
	CreateMapping(ctx context.Context, actorId uuid.UUID, input dto.MappingCreate) (*dto.MappingOut, error)
	PublishMapping(ctx context.Context, actorId, mappingId uuid.UUID) (*dto.MappingOut, error)
	DeleteMapping(ctx context.Context, actorId, mappingId uuid.UUID) error
	ResolvePublished(ctx context.Context, textUnitId uuid.UUID) (*entities.AudioSegment, error)
}

type mappingService struct {
	repo repository.AudioRepository
	sink audit.Sink
}

func NewMappingService(repo repository.AudioRepository, sink audit.Sink) MappingService {
	return &mappingService{repo: repo, sink: sink}
}

func (s *mappingService) CreateMapping(ctx context.Context, actorId uuid.UUID, input dto.MappingCreate) (*dto.MappingOut, error) {
	if _, err := s.repo.FindTextUnitById(ctx, input.TextUnitId); err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("text unit %s", input.TextUnitId))
	}
	if _, err := s.repo.FindSegmentById(ctx, input.AudioSegmentId); err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("segment %s", input.AudioSegmentId))
	}

	mapping := &entities.UnitSegmentMapping{
		TextUnitId:     input.TextUnitId,
		AudioSegmentId: input.AudioSegmentId,
	}
	if err := s.repo.CreateMapping(ctx, mapping); err != nil {
		return nil, err
	}

	s.sink.Record(ctx, audit.Entry{
		ActorId:    actorId,
		Action:     constant.AuditActionCreateMapping,
		EntityType: "mapping",
		EntityId:   mapping.ID,
	})

	return mappingOut(mapping), nil
}

// PublishMapping makes one mapping the published one for its text unit.
// Last write wins: every other published mapping of the unit is cleared in
// the same transaction, so the invariant cannot be observed violated after
// a publish.
func (s *mappingService) PublishMapping(ctx context.Context, actorId, mappingId uuid.UUID) (*dto.MappingOut, error) {
	var mapping *entities.UnitSegmentMapping

	err := s.repo.Transaction(ctx, func(ctx context.Context) error {
		var err error
		mapping, err = s.repo.FindMappingById(ctx, mappingId)
		if err != nil {
			return wrapNotFound(err, fmt.Sprintf("mapping %s", mappingId))
		}

		if err := s.repo.UnpublishMappingsForTextUnit(ctx, mapping.TextUnitId); err != nil {
			return err
		}
		if err := s.repo.SetMappingPublished(ctx, mappingId); err != nil {
			return err
		}
		mapping.IsPublished = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sink.Record(ctx, audit.Entry{
		ActorId:    actorId,
		Action:     constant.AuditActionPublishMapping,
		EntityType: "mapping",
		EntityId:   mappingId,
	})

	return mappingOut(mapping), nil
}

func (s *mappingService) DeleteMapping(ctx context.Context, actorId, mappingId uuid.UUID) error {
	if _, err := s.repo.FindMappingById(ctx, mappingId); err != nil {
		return wrapNotFound(err, fmt.Sprintf("mapping %s", mappingId))
	}
	if err := s.repo.DeleteMapping(ctx, mappingId); err != nil {
		return err
	}

	s.sink.Record(ctx, audit.Entry{
		ActorId:    actorId,
		Action:     constant.AuditActionDeleteMapping,
		EntityType: "mapping",
		EntityId:   mappingId,
	})

	return nil
}

// ResolvePublished returns the segment behind the published mapping of a
// text unit. If writes somehow left several published rows, the most
// recently created one wins and the violation is logged; ordering is
// explicit, never an artifact of the query plan.
func (s *mappingService) ResolvePublished(ctx context.Context, textUnitId uuid.UUID) (*entities.AudioSegment, error) {
	mappings, err := s.repo.FindPublishedMappings(ctx, textUnitId)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return nil, fmt.Errorf("%w: no published mapping for text unit %s", ErrNotFound, textUnitId)
	}
	if len(mappings) > 1 {
		zerolog.Ctx(ctx).Warn().
			Str("text_unit_id", textUnitId.String()).
			Int("published_count", len(mappings)).
			Msg("multiple published mappings for one text unit")
	}

	segment, err := s.repo.FindSegmentById(ctx, mappings[0].AudioSegmentId)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("segment %s", mappings[0].AudioSegmentId))
	}
	return segment, nil
}

func mappingOut(mapping *entities.UnitSegmentMapping) *dto.MappingOut {
	return &dto.MappingOut{
		ID:             mapping.ID,
		TextUnitId:     mapping.TextUnitId,
		AudioSegmentId: mapping.AudioSegmentId,
		IsPublished:    mapping.IsPublished,
	}
}
