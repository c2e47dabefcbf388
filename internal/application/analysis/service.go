package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/medimage-insight/internal/application"
	"github.com/bryanwahyu/medimage-insight/internal/domain/ai"
	domain "github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
	"github.com/bryanwahyu/medimage-insight/internal/domain/history"
	"github.com/bryanwahyu/medimage-insight/internal/logger"
	"github.com/bryanwahyu/medimage-insight/internal/metrics"
)

// State is a step of one analysis request.
type State string

const (
	StateReceived       State = "received"
	StateAuthenticating State = "authenticating"
	StateEncoding       State = "encoding"
	StateInvoking       State = "invoking"
	StateNormalizing    State = "normalizing"
	StatePersisting     State = "persisting"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

// Prompter builds the model request for a shape.
type Prompter interface {
	Build(shape domain.Shape, imageURL string) ai.Request
}

type Options struct {
	// PersistenceEnabled=false returns the bare result without touching the store.
	PersistenceEnabled bool
	// AuthRequired=false serves anonymous callers. Combined with
	// PersistenceEnabled it is rejected as a configuration error.
	AuthRequired bool
	DefaultShape domain.Shape
}

// DefaultOptions is the authenticated, persisted, structured pipeline.
func DefaultOptions() Options {
	return Options{PersistenceEnabled: true, AuthRequired: true, DefaultShape: domain.ShapeStructured}
}

// DemoOptions is the anonymous free-text variant that records nothing.
func DemoOptions() Options {
	return Options{PersistenceEnabled: false, AuthRequired: false, DefaultShape: domain.ShapeFreeText}
}

// Service runs the analysis pipeline. It holds no per-request state and is
// safe for concurrent use. Archive and Events are optional.
type Service struct {
	Auth    domain.AuthProvider
	Model   ai.Client
	Prompts Prompter
	Store   history.Repository
	Archive domain.ImageArchive
	Events  domain.EventPublisher
	Clock   application.Clock
	Options Options
}

type AnalyzeCommand struct {
	ImageBase64  string
	ImageType    string
	SessionToken string
	// Shape is optional; Options.DefaultShape applies when empty.
	Shape string
}

// Outcome holds the stored record, or only the result when persistence is off.
type Outcome struct {
	Record *history.Record
	Result *domain.Result
}

// Payload is what goes in the "result" field of the response.
func (o *Outcome) Payload() any {
	if o.Record != nil {
		return o.Record
	}
	return o.Result
}

type run struct {
	id    string
	state State
	log   *logrus.Entry
}

func (r *run) enter(s State) {
	r.log.WithFields(logrus.Fields{"from": r.state, "to": s}).Debug("analysis state")
	r.state = s
}

func (r *run) fail(err *domain.Error) *domain.Error {
	r.log.WithFields(logrus.Fields{
		"state": r.state,
		"kind":  err.Kind,
	}).WithError(err.Cause).Warn("analysis failed")
	r.state = StateFailed
	return err
}

// Analyze validates the input, authenticates the caller and only then talks
// to the model and the store. Every failure is a *domain.Error.
func (s *Service) Analyze(ctx context.Context, cmd AnalyzeCommand) (*Outcome, error) {
	r := &run{id: uuid.NewString(), state: StateReceived}
	r.log = logger.WithField("analysis_id", r.id)

	out, err := s.analyze(ctx, cmd, r)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(string(err.Kind)).Inc()
		return nil, err
	}
	metrics.AnalysesTotal.WithLabelValues("success").Inc()
	return out, nil
}

func (s *Service) analyze(ctx context.Context, cmd AnalyzeCommand, r *run) (*Outcome, *domain.Error) {
	if strings.TrimSpace(cmd.ImageBase64) == "" {
		return nil, r.fail(domain.Validation("imageBase64 is required"))
	}
	shape, err := domain.ParseShape(cmd.Shape, s.defaultShape())
	if err != nil {
		return nil, r.fail(domain.Validation(err.Error()))
	}

	r.enter(StateAuthenticating)
	identity, derr := s.authenticate(ctx, cmd.SessionToken)
	if derr != nil {
		return nil, r.fail(derr)
	}
	r.log = r.log.WithField("user_id", identity.UserID)
	if s.Options.PersistenceEnabled && !s.Options.AuthRequired {
		return nil, r.fail(domain.Configuration("anonymous access requires persistence to be disabled", nil))
	}
	if s.Options.PersistenceEnabled && s.Store == nil {
		return nil, r.fail(domain.Configuration("no history store configured", nil))
	}

	r.enter(StateEncoding)
	imageURL := domain.EncodeImage(cmd.ImageBase64, cmd.ImageType)

	r.enter(StateInvoking)
	started := time.Now()
	raw, err := s.Model.Complete(ctx, s.Prompts.Build(shape, imageURL))
	metrics.ModelDurationSeconds.WithLabelValues(string(shape)).Observe(time.Since(started).Seconds())
	if err != nil {
		if errors.Is(err, ai.ErrMissingCredential) {
			return nil, r.fail(domain.Configuration("model API key not configured", err))
		}
		return nil, r.fail(domain.ModelFailure(err))
	}

	r.enter(StateNormalizing)
	result, err := domain.Normalize(raw, s.now(), shape)
	if err != nil {
		return nil, r.fail(domain.Unparseable(err))
	}

	if !s.Options.PersistenceEnabled {
		r.enter(StateSucceeded)
		return &Outcome{Result: &result}, nil
	}

	r.enter(StatePersisting)
	rec, derr := s.persist(ctx, r, identity, cmd, result)
	if derr != nil {
		return nil, r.fail(derr)
	}
	s.publish(ctx, r, rec)

	r.enter(StateSucceeded)
	r.log.WithField("record_id", rec.ID).Info("analysis stored")
	return &Outcome{Record: rec}, nil
}

func (s *Service) authenticate(ctx context.Context, token string) (domain.Identity, *domain.Error) {
	if !s.Options.AuthRequired {
		return domain.Identity{UserID: "anonymous", Method: "none"}, nil
	}
	if s.Auth == nil {
		return domain.Identity{}, domain.Configuration("no auth provider configured", nil)
	}
	id, err := s.Auth.Authenticate(ctx, token)
	if err != nil {
		return domain.Identity{}, domain.Unauthenticated("no valid session", err)
	}
	return id, nil
}

// persist archives the image (when configured) and inserts the record. An
// archived object is removed again if the insert fails.
func (s *Service) persist(ctx context.Context, r *run, id domain.Identity, cmd AnalyzeCommand, result domain.Result) (*history.Record, *domain.Error) {
	var (
		imageURL   string
		archiveKey string
	)
	if s.Archive != nil {
		data, mimeType, err := domain.DecodeImage(cmd.ImageBase64, cmd.ImageType)
		if err != nil {
			r.log.WithError(err).Warn("image payload is not base64, skipping archive")
		} else {
			detected := mimetype.Detect(data)
			if mimeType == "" {
				mimeType = detected.String()
			}
			archiveKey = fmt.Sprintf("%s/%s%s", id.UserID, uuid.NewString(), detected.Extension())
			imageURL, err = s.Archive.Put(ctx, archiveKey, data, mimeType)
			if err != nil {
				return nil, domain.Persistence(fmt.Errorf("archive image: %w", err))
			}
		}
	}

	rec, err := s.Store.Insert(ctx, history.NewRecord{
		UserID:    id.UserID,
		ImageType: cmd.ImageType,
		ImageURL:  imageURL,
		Result:    result,
	})
	if err != nil {
		if archiveKey != "" {
			if rerr := s.Archive.Remove(context.WithoutCancel(ctx), archiveKey); rerr != nil {
				r.log.WithError(rerr).WithField("key", archiveKey).Warn("failed to remove archived image")
			}
		}
		return nil, domain.Persistence(err)
	}
	return rec, nil
}

// publish is best-effort: the record is already durable.
func (s *Service) publish(ctx context.Context, r *run, rec *history.Record) {
	if s.Events == nil {
		return
	}
	err := s.Events.PublishCompleted(ctx, domain.Completed{
		RecordID:  string(rec.ID),
		UserID:    rec.UserID,
		ImageType: rec.ImageType,
		Shape:     rec.Result.Shape,
		CreatedAt: rec.CreatedAt,
	})
	if err != nil {
		metrics.EventPublishErrorsTotal.Inc()
		r.log.WithError(err).Warn("failed to publish analysis.completed")
	}
}

// History returns the caller's records, newest first.
func (s *Service) History(ctx context.Context, token string, page, pageSize int) (*history.Page, error) {
	id, err := s.historyAuth(ctx, token)
	if err != nil {
		return nil, err
	}
	items, lerr := s.Store.ListByUser(ctx, id.UserID, page, pageSize)
	if lerr != nil {
		return nil, domain.Persistence(lerr)
	}
	if items == nil {
		items = []*history.Record{}
	}
	return &history.Page{Items: items, Page: page, PageSize: pageSize}, nil
}

// Record returns one of the caller's records or history.ErrNotFound.
func (s *Service) Record(ctx context.Context, token string, recordID string) (*history.Record, error) {
	id, err := s.historyAuth(ctx, token)
	if err != nil {
		return nil, err
	}
	rec, gerr := s.Store.Get(ctx, id.UserID, history.RecordID(recordID))
	if errors.Is(gerr, history.ErrNotFound) {
		return nil, gerr
	}
	if gerr != nil {
		return nil, domain.Persistence(gerr)
	}
	return rec, nil
}

func (s *Service) historyAuth(ctx context.Context, token string) (domain.Identity, error) {
	if s.Store == nil || s.Auth == nil {
		return domain.Identity{}, domain.Configuration("history is not enabled", nil)
	}
	id, err := s.Auth.Authenticate(ctx, token)
	if err != nil {
		return domain.Identity{}, domain.Unauthenticated("no valid session", err)
	}
	return id, nil
}

func (s *Service) defaultShape() domain.Shape {
	if s.Options.DefaultShape == "" {
		return domain.ShapeStructured
	}
	return s.Options.DefaultShape
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}
