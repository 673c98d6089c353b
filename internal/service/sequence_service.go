// internal/service/sequence_service.go
package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/repository"
)

// SequenceService covers authoring: templates, sequences and enrollment.
type SequenceService struct {
	SequenceRepo   repository.SequenceRepositoryInterface
	SequenceWriter repository.SequenceWriter
	EnrollmentRepo repository.EnrollmentRepositoryInterface
	TemplateRepo   repository.TemplateRepositoryInterface
	LeadRepo       repository.LeadRepositoryInterface
	OutboundStats  repository.OutboundStatsReader
}

type CreateTemplateInput struct {
	Channel string  `json:"channel" validate:"required,oneof=whatsapp email"`
	Name    string  `json:"name" validate:"required,max=200"`
	Subject *string `json:"subject"`
	Body    string  `json:"body" validate:"required"`
}

type StepInput struct {
	OffsetDays int        `json:"offset_days" validate:"min=0"`
	Channel    string     `json:"channel" validate:"required,oneof=whatsapp email"`
	TemplateID *uuid.UUID `json:"template_id"`
}

type CreateSequenceInput struct {
	Name  string      `json:"name" validate:"required,max=200"`
	Steps []StepInput `json:"steps" validate:"required,min=1,dive"`
}

type EnrollInput struct {
	LeadID     uuid.UUID `json:"leadId" validate:"required"`
	SequenceID uuid.UUID `json:"sequenceId" validate:"required"`
}

type SequenceDetails struct {
	ID          uuid.UUID            `json:"id"`
	Name        string               `json:"name"`
	OrgID       uuid.UUID            `json:"org_id"`
	Steps       []model.SequenceStep `json:"steps"`
	Enrollments map[string]int       `json:"enrollments"`
	Messages    map[string]int       `json:"messages"`
}

func (s *SequenceService) CreateTemplate(ctx context.Context, orgID uuid.UUID, in CreateTemplateInput) (*model.MessageTemplate, error) {
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}
	t := &model.MessageTemplate{
		OrgID:   orgID,
		Channel: in.Channel,
		Name:    in.Name,
		Subject: in.Subject,
		Body:    in.Body,
	}
	if err := s.TemplateRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateSequence numbers steps 1..n in the order given, so step_order is
// contiguous by construction.
func (s *SequenceService) CreateSequence(ctx context.Context, orgID uuid.UUID, in CreateSequenceInput) (*model.Sequence, error) {
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}

	seq := &model.Sequence{OrgID: orgID, Name: in.Name}
	for i, st := range in.Steps {
		if st.TemplateID != nil {
			tmpl, err := s.TemplateRepo.GetByID(ctx, *st.TemplateID)
			if err != nil {
				return nil, err
			}
			if tmpl.OrgID != orgID {
				return nil, appErrors.NewTemplateNotFound(tmpl.ID)
			}
		}
		seq.Steps = append(seq.Steps, model.SequenceStep{
			StepOrder:  i + 1,
			OffsetDays: st.OffsetDays,
			Channel:    st.Channel,
			TemplateID: st.TemplateID,
		})
	}

	if err := s.SequenceWriter.CreateSequence(ctx, seq); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"sequence_id": seq.ID, "steps": len(seq.Steps)}).Info("Sequence created")
	return seq, nil
}

// Enroll binds a lead to a sequence. Enrolling twice is a no-op and reports
// created=false. Leads and sequences of other orgs read as not found.
func (s *SequenceService) Enroll(ctx context.Context, orgID uuid.UUID, in EnrollInput) (*model.Enrollment, bool, error) {
	if err := ValidateStruct(in); err != nil {
		return nil, false, err
	}
	lead, err := s.LeadRepo.GetByID(ctx, in.LeadID)
	if err != nil {
		return nil, false, err
	}
	if lead.OrgID != orgID {
		return nil, false, appErrors.NewLeadNotFound(lead.ID)
	}
	if _, err := s.sequenceInOrg(ctx, orgID, in.SequenceID); err != nil {
		return nil, false, err
	}
	return s.EnrollmentRepo.Enroll(ctx, in.LeadID, in.SequenceID)
}

func (s *SequenceService) GetEnrollment(ctx context.Context, orgID, id uuid.UUID) (*model.Enrollment, error) {
	e, err := s.EnrollmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.sequenceInOrg(ctx, orgID, e.SequenceID); err != nil {
		if appErrors.IsNotFound(err) {
			return nil, appErrors.NewEnrollmentNotFound(id)
		}
		return nil, err
	}
	return e, nil
}

func (s *SequenceService) GetSequenceDetailsWithStats(ctx context.Context, orgID, id uuid.UUID) (*SequenceDetails, error) {
	seq, err := s.sequenceInOrg(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.SequenceRepo.EnrollmentStats(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.OutboundStats.CountByStatusForSequence(ctx, id)
	if err != nil {
		return nil, err
	}

	return &SequenceDetails{
		ID:          seq.ID,
		Name:        seq.Name,
		OrgID:       seq.OrgID,
		Steps:       seq.Steps,
		Enrollments: enrollments,
		Messages:    messages,
	}, nil
}

func (s *SequenceService) sequenceInOrg(ctx context.Context, orgID, id uuid.UUID) (*model.Sequence, error) {
	seq, err := s.SequenceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if seq.OrgID != orgID {
		return nil, appErrors.NewSequenceNotFound(id)
	}
	return seq, nil
}
