package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"diagnostic-trainer/internal/cases"
)

// CaseSource supplies fixtures for new sessions.
type CaseSource interface {
	Demo(id string) (*cases.Fixture, error)
	Patient(ctx context.Context, id uuid.UUID) (*cases.Fixture, error)
	Summaries() []cases.Summary
}

// Debriefer receives every completed session, e.g. to report to an instructor.
type Debriefer interface {
	Deliver(ctx context.Context, d *Debrief) error
}

type Service interface {
	ListCases() []cases.Summary
	StartDemo(ctx context.Context, caseID string) (*Snapshot, error)
	StartPatient(ctx context.Context, patientID uuid.UUID) (*Snapshot, error)
	Get(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	Reveal(ctx context.Context, id uuid.UUID, category cases.Category, item string) (*Snapshot, Finding, error)
	Order(ctx context.Context, id uuid.UUID, test string) (*Snapshot, Finding, error)
	SetPhase(ctx context.Context, id uuid.UUID, phase Phase) (*Snapshot, error)
	Submit(ctx context.Context, id uuid.UUID, diagnosis string, confidence int) (*Snapshot, error)
	Debrief(ctx context.Context, id uuid.UUID) (*Debrief, error)
	Exit(ctx context.Context, id uuid.UUID) error
}

type Options struct {
	GradingDelay time.Duration
	Clock        func() time.Time
	Debriefer    Debriefer
	Logger       zerolog.Logger
}

type service struct {
	cases     CaseSource
	grader    DiagnosisGrader
	store     *Store
	delay     time.Duration
	now       func() time.Time
	debriefer Debriefer
	log       zerolog.Logger
}

func NewService(source CaseSource, grader DiagnosisGrader, store *Store, opts Options) Service {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &service{
		cases:     source,
		grader:    grader,
		store:     store,
		delay:     opts.GradingDelay,
		now:       opts.Clock,
		debriefer: opts.Debriefer,
		log:       opts.Logger.With().Str("module", "training").Logger(),
	}
}

func (s *service) ListCases() []cases.Summary {
	return s.cases.Summaries()
}

func (s *service) StartDemo(ctx context.Context, caseID string) (*Snapshot, error) {
	f, err := s.cases.Demo(caseID)
	if err != nil {
		return nil, err
	}
	return s.start(f), nil
}

func (s *service) StartPatient(ctx context.Context, patientID uuid.UUID) (*Snapshot, error) {
	f, err := s.cases.Patient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.start(f), nil
}

func (s *service) start(f *cases.Fixture) *Snapshot {
	now := s.now()
	sess := NewSession(f, now, s.delay)
	s.store.Save(sess)
	s.log.Info().
		Str("session_id", sess.ID().String()).
		Str("case_id", f.ID).
		Str("source", string(f.Source)).
		Msg("training session started")
	return sess.Snapshot(now)
}

func (s *service) session(id uuid.UUID) (*Session, error) {
	sess, ok := s.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(s.now()), nil
}

func (s *service) Reveal(ctx context.Context, id uuid.UUID, category cases.Category, item string) (*Snapshot, Finding, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, Finding{}, err
	}
	now := s.now()
	finding, err := sess.Reveal(now, category, item)
	if err != nil && !errors.Is(err, ErrAlreadyRequested) {
		return nil, Finding{}, err
	}
	s.store.Save(sess)
	return sess.Snapshot(now), finding, err
}

func (s *service) Order(ctx context.Context, id uuid.UUID, test string) (*Snapshot, Finding, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, Finding{}, err
	}
	now := s.now()
	finding, err := sess.Order(now, test)
	if err != nil && !errors.Is(err, ErrAlreadyRequested) {
		return nil, Finding{}, err
	}
	s.store.Save(sess)
	return sess.Snapshot(now), finding, err
}

func (s *service) SetPhase(ctx context.Context, id uuid.UUID, phase Phase) (*Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := sess.SetPhase(now, phase); err != nil {
		return nil, err
	}
	s.store.Save(sess)
	return sess.Snapshot(now), nil
}

func (s *service) Submit(ctx context.Context, id uuid.UUID, diagnosis string, confidence int) (*Snapshot, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := sess.Submit(ctx, now, diagnosis, confidence, s.grader); err != nil {
		if !isSoft(err) {
			s.log.Error().Err(err).Str("session_id", id.String()).Msg("diagnosis submission failed")
		}
		return nil, err
	}
	s.store.Save(sess)
	s.log.Info().
		Str("session_id", id.String()).
		Str("case_id", sess.Fixture().ID).
		Int("requests_made", sess.RequestsMade()).
		Int("final_score", sess.Score()).
		Msg("diagnosis submitted")

	if s.debriefer != nil {
		go s.deliver(sess)
	}
	return sess.Snapshot(now), nil
}

// isSoft reports errors that are the learner's to fix, not ours.
func isSoft(err error) bool {
	return errors.Is(err, ErrEmptyDiagnosis) ||
		errors.Is(err, ErrConfidenceOutOfRange) ||
		errors.Is(err, ErrSessionClosed)
}

// deliver hands the finished session to the debriefer in the background.
func (s *service) deliver(sess *Session) {
	ctx := context.Background()
	d, err := sess.FinalDebrief()
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sess.ID().String()).Msg("debrief unavailable")
		return
	}
	if err := s.debriefer.Deliver(ctx, d); err != nil {
		s.log.Error().Err(err).Str("session_id", sess.ID().String()).Msg("failed to deliver debrief")
		return
	}
	s.log.Info().Str("session_id", sess.ID().String()).Msg("debrief delivered")
}

func (s *service) Debrief(ctx context.Context, id uuid.UUID) (*Debrief, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return sess.Debrief(s.now())
}

// Exit discards the session whatever its state.
func (s *service) Exit(ctx context.Context, id uuid.UUID) error {
	if _, err := s.session(id); err != nil {
		return err
	}
	s.store.Delete(id)
	s.log.Info().Str("session_id", id.String()).Msg("training session closed")
	return nil
}
