package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/cache"
	"github.com/example/face-verify/internal/descriptor"
	"github.com/example/face-verify/internal/extractor"
	"github.com/example/face-verify/internal/imageprocessor"
	"github.com/example/face-verify/internal/logging"
	"github.com/example/face-verify/internal/metrics"
	"github.com/example/face-verify/internal/repository"
	"github.com/example/face-verify/internal/store"
)

const (
	operationEnroll = "enroll"
	operationVerify = "verify"

	outcomeEnrolled = "enrolled"
	outcomeMatch    = "match"
	outcomeNoMatch  = "no_match"

	// EnrollMessage is returned to the caller after a successful enrollment.
	EnrollMessage = "Face cropped and descriptor saved successfully."
)

// VerificationRepository defines the audit operations needed by the use case.
type VerificationRepository interface {
	SaveLog(ctx context.Context, log *repository.VerificationLog) error
	FindByRequestID(ctx context.Context, requestID string) (*repository.VerificationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// EnrollOutcome describes a successful enrollment.
type EnrollOutcome struct {
	RequestID  string
	Message    string
	Dimension  int
	EnrolledAt time.Time
}

// VerificationResult is the verdict of comparing a candidate to the reference.
// Match is Distance < Threshold and Similarity is 1 - Distance.
type VerificationResult struct {
	RequestID  string
	Match      bool
	Distance   float64
	Similarity float64
	Threshold  float64
	CheckedAt  time.Time
}

// Option customizes a VerificationUseCase.
type Option func(*VerificationUseCase)

// WithThreshold sets the match threshold.
func WithThreshold(threshold float64) Option {
	return func(uc *VerificationUseCase) { uc.threshold = threshold }
}

// WithDimension sets the required descriptor length; 0 accepts any length
// as long as both descriptors agree.
func WithDimension(dimension int) Option {
	return func(uc *VerificationUseCase) { uc.dimension = dimension }
}

// WithResultTTL sets how long verify results stay in the cache.
func WithResultTTL(ttl time.Duration) Option {
	return func(uc *VerificationUseCase) { uc.resultTTL = ttl }
}

// VerificationUseCase encapsulates the enroll and verify flows.
type VerificationUseCase struct {
	store     store.Store
	extractor extractor.Extractor
	repo      VerificationRepository
	cache     cache.Cache
	logger    *zap.Logger
	threshold float64
	dimension int
	resultTTL time.Duration
	now       func() time.Time
}

type cachedVerification struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id,omitempty"`
	Match     bool      `json:"match"`
	Distance  float64   `json:"distance"`
	Threshold float64   `json:"threshold"`
	CheckedAt time.Time `json:"checked_at"`
}

// NewVerificationUseCase constructs a new use case instance. repo and c may
// be nil, in which case audit logging and result lookup are disabled.
func NewVerificationUseCase(st store.Store, ext extractor.Extractor, repo VerificationRepository, c cache.Cache, logger *zap.Logger, opts ...Option) *VerificationUseCase {
	uc := &VerificationUseCase{
		store:     st,
		extractor: ext,
		repo:      repo,
		cache:     c,
		logger:    logger.Named("verification_usecase"),
		threshold: descriptor.DefaultThreshold,
		dimension: descriptor.DefaultDimension,
		resultTTL: 10 * time.Minute,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Threshold returns the configured match threshold.
func (uc *VerificationUseCase) Threshold() float64 {
	return uc.threshold
}

// Enroll extracts the top face from payload and makes it the reference,
// replacing any previous one.
func (uc *VerificationUseCase) Enroll(ctx context.Context, userID, payload string) (*EnrollOutcome, error) {
	requestID := uuid.NewString()
	start := uc.now()
	opLogger := logging.WithOperation(uc.logger, "usecase.enroll", requestID)

	outcome, face, err := uc.enroll(ctx, requestID, payload, opLogger)

	entry := &repository.VerificationLog{
		RequestID: requestID,
		UserID:    userID,
		Operation: operationEnroll,
		Outcome:   outcomeEnrolled,
	}
	if face != nil {
		entry.DescriptorLen = len(face.Descriptor)
	}
	uc.finish(ctx, entry, start, err, opLogger)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (uc *VerificationUseCase) enroll(ctx context.Context, requestID, payload string, opLogger *zap.Logger) (*EnrollOutcome, *extractor.Face, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, nil, newError(KindNoPayload, msgNoPayload, nil)
	}

	face, img, err := uc.extractTopFace(ctx, requestID, payload, msgNoFaceEnroll)
	if err != nil {
		return nil, face, err
	}

	if err := face.Descriptor.Validate(uc.dimension); err != nil {
		return nil, face, uc.descriptorError(requestID, err)
	}

	enrolledAt := uc.now().UTC()
	ref := &store.Reference{
		Descriptor: face.Descriptor,
		EnrolledAt: enrolledAt,
		Crop:       imageprocessor.Crop(img, face.Box.Rect()),
	}
	if err := uc.store.Save(ctx, ref); err != nil {
		wrapped := logging.NewOperationError("store.save", requestID, err)
		opLogger.Error("failed to persist reference descriptor", zap.Error(wrapped))
		return nil, face, newError(KindPersistence, msgPersistence, wrapped)
	}

	opLogger.Info("reference descriptor saved", zap.Int("descriptor_length", len(face.Descriptor)))
	return &EnrollOutcome{
		RequestID:  requestID,
		Message:    EnrollMessage,
		Dimension:  len(face.Descriptor),
		EnrolledAt: enrolledAt,
	}, face, nil
}

// Verify compares the top face in payload to the enrolled reference.
func (uc *VerificationUseCase) Verify(ctx context.Context, userID, payload string) (*VerificationResult, error) {
	requestID := uuid.NewString()
	start := uc.now()
	opLogger := logging.WithOperation(uc.logger, "usecase.verify", requestID)

	entry := &repository.VerificationLog{
		RequestID: requestID,
		UserID:    userID,
		Operation: operationVerify,
		Threshold: uc.threshold,
	}
	result, err := uc.verify(ctx, requestID, payload, entry, opLogger)
	if result != nil {
		entry.Match = result.Match
		entry.Distance = result.Distance
		entry.Outcome = outcomeNoMatch
		if result.Match {
			entry.Outcome = outcomeMatch
		}
		metrics.VerifyDistance.Observe(result.Distance)
	}
	uc.finish(ctx, entry, start, err, opLogger)
	if err != nil {
		return nil, err
	}

	uc.cacheResult(ctx, userID, result, opLogger)
	return result, nil
}

func (uc *VerificationUseCase) verify(ctx context.Context, requestID, payload string, entry *repository.VerificationLog, opLogger *zap.Logger) (*VerificationResult, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, newError(KindNoPayload, msgNoPayload, nil)
	}

	ref, err := uc.store.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(KindReferenceNotFound, msgReferenceNotFound, err)
	}
	if err != nil {
		wrapped := logging.NewOperationError("store.load", requestID, err)
		opLogger.Error("failed to load reference descriptor", zap.Error(wrapped))
		return nil, newError(KindInternal, msgInternal, wrapped)
	}
	entry.ReferenceLen = len(ref.Descriptor)

	face, _, err := uc.extractTopFace(ctx, requestID, payload, msgNoFaceVerify)
	if err != nil {
		return nil, err
	}
	entry.DescriptorLen = len(face.Descriptor)

	opLogger.Debug("comparing descriptors",
		zap.Int("reference_length", len(ref.Descriptor)),
		zap.Int("input_length", len(face.Descriptor)))

	if err := descriptor.CheckComparable(face.Descriptor, ref.Descriptor, uc.dimension); err != nil {
		return nil, uc.descriptorError(requestID, err)
	}
	for _, d := range []descriptor.Descriptor{face.Descriptor, ref.Descriptor} {
		if err := d.Validate(0); err != nil {
			return nil, uc.descriptorError(requestID, err)
		}
	}

	distance := descriptor.EuclideanDistance(ref.Descriptor, face.Descriptor)
	return &VerificationResult{
		RequestID:  requestID,
		Match:      distance < uc.threshold,
		Distance:   distance,
		Similarity: 1 - distance,
		Threshold:  uc.threshold,
		CheckedAt:  uc.now().UTC(),
	}, nil
}

// extractTopFace decodes the payload and runs the extractor on it. The
// returned face is non-nil whenever err is nil.
func (uc *VerificationUseCase) extractTopFace(ctx context.Context, requestID, payload, noFaceMessage string) (*extractor.Face, image.Image, error) {
	img, err := imageprocessor.Decode(payload)
	if err != nil {
		return nil, nil, newError(KindImageDecode, msgImageDecode, err)
	}

	face, err := uc.extractor.ExtractTopFace(ctx, img)
	if err != nil {
		wrapped := logging.NewOperationError("extractor.extract_top_face", requestID, err)
		logging.WithOperation(uc.logger, "usecase.extract", requestID).Error("face extraction failed", zap.Error(wrapped))
		return nil, nil, newError(KindInternal, msgInternal, wrapped)
	}
	if face == nil || len(face.Descriptor) == 0 {
		return nil, nil, newError(KindNoFaceDetected, noFaceMessage, nil)
	}
	return face, img, nil
}

func (uc *VerificationUseCase) descriptorError(requestID string, err error) error {
	var mismatch *descriptor.LengthMismatchError
	if errors.As(err, &mismatch) {
		e := newError(KindLengthMismatch, msgLengthMismatch, err)
		e.InputLength = mismatch.Input
		e.ReferenceLength = mismatch.Reference
		return e
	}
	return newError(KindInternal, msgInternal, logging.NewOperationError("descriptor.validate", requestID, err))
}

// finish records metrics and the audit log for a completed request.
func (uc *VerificationUseCase) finish(ctx context.Context, entry *repository.VerificationLog, start time.Time, err error, opLogger *zap.Logger) {
	elapsed := uc.now().Sub(start)
	if err != nil {
		entry.Outcome = string(KindOf(err))
		var e *Error
		if errors.As(err, &e) && e.Kind == KindLengthMismatch {
			entry.DescriptorLen, entry.ReferenceLen = e.InputLength, e.ReferenceLength
		}
		if KindOf(err).IsValidation() {
			opLogger.Info("request rejected", zap.String("reason", entry.Outcome))
		}
	}
	metrics.OperationsTotal.WithLabelValues(entry.Operation, entry.Outcome).Inc()
	metrics.OperationDurationSeconds.WithLabelValues(entry.Operation).Observe(elapsed.Seconds())

	if uc.repo == nil {
		return
	}
	entry.ProcessingMilli = elapsed.Milliseconds()
	entry.CreatedAt = uc.now().UTC()
	if err := uc.repo.SaveLog(context.WithoutCancel(ctx), entry); err != nil {
		metrics.BestEffortFailuresTotal.WithLabelValues("audit_log").Inc()
		opLogger.Warn("failed to persist verification log", zap.Error(logging.NewOperationError("repository.save_log", entry.RequestID, err)))
	}
}

func (uc *VerificationUseCase) cacheResult(ctx context.Context, userID string, result *VerificationResult, opLogger *zap.Logger) {
	if uc.cache == nil {
		return
	}
	serialized, err := json.Marshal(cachedVerification{
		RequestID: result.RequestID,
		UserID:    userID,
		Match:     result.Match,
		Distance:  result.Distance,
		Threshold: result.Threshold,
		CheckedAt: result.CheckedAt,
	})
	if err == nil {
		err = uc.cache.Set(context.WithoutCancel(ctx), resultCacheKey(result.RequestID), string(serialized), uc.resultTTL)
	}
	if err != nil {
		metrics.BestEffortFailuresTotal.WithLabelValues("result_cache").Inc()
		opLogger.Warn("failed to cache verification result", zap.Error(err))
	}
}

func resultCacheKey(requestID string) string {
	return fmt.Sprintf("verification:%s", requestID)
}

// GetResult retrieves a verify result from the cache or, failing that, from
// the audit log. Results recorded for another user are reported as not found.
func (uc *VerificationUseCase) GetResult(ctx context.Context, userID, requestID string) (*VerificationResult, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	if uc.cache != nil {
		cached, err := uc.cache.Get(ctx, resultCacheKey(requestID))
		switch {
		case err == nil:
			var payload cachedVerification
			if err := json.Unmarshal([]byte(cached), &payload); err != nil {
				opLogger.Warn("failed to decode cached result", zap.Error(err))
				break
			}
			if !sameUser(userID, payload.UserID) {
				return nil, ErrResultNotFound
			}
			return &VerificationResult{
				RequestID:  requestID,
				Match:      payload.Match,
				Distance:   payload.Distance,
				Similarity: 1 - payload.Distance,
				Threshold:  payload.Threshold,
				CheckedAt:  payload.CheckedAt,
			}, nil
		case !errors.Is(err, cache.ErrMiss):
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
	}

	if uc.repo == nil {
		return nil, ErrResultNotFound
	}
	log, err := uc.repo.FindByRequestID(ctx, requestID)
	if err != nil {
		opLogger.Debug("verification log lookup failed", zap.Error(err))
		return nil, ErrResultNotFound
	}
	if log.Operation != operationVerify || (log.Outcome != outcomeMatch && log.Outcome != outcomeNoMatch) || !sameUser(userID, log.UserID) {
		return nil, ErrResultNotFound
	}
	return &VerificationResult{
		RequestID:  log.RequestID,
		Match:      log.Match,
		Distance:   log.Distance,
		Similarity: 1 - log.Distance,
		Threshold:  log.Threshold,
		CheckedAt:  log.CreatedAt,
	}, nil
}

func sameUser(caller, owner string) bool {
	return caller == "" || owner == "" || caller == owner
}
