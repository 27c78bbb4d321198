package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/core/ports"
)

type ClassificationUseCase struct {
	preprocessor ports.ImagePreprocessor
	predictor    ports.Predictor
	now          func() time.Time
}

func NewClassificationUseCase(
	preprocessor ports.ImagePreprocessor,
	predictor ports.Predictor,
) *ClassificationUseCase {
	return &ClassificationUseCase{
		preprocessor: preprocessor,
		predictor:    predictor,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ClassificationUseCase) Start(ctx context.Context, req ports.StartClassification) (*domain.Workflow, error) {
	if !req.Mode.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "start classification", fmt.Errorf("unknown mode %q", req.Mode))
	}
	if len(req.Image) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidImage, "start classification", errors.New("empty upload"))
	}

	tensor, err := uc.preprocessor.Preprocess(req.Image)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidImage) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrInvalidImage, "preprocess image", err)
	}

	now := uc.now()
	wf := &domain.Workflow{
		ID:          uuid.NewString(),
		Mode:        req.Mode,
		State:       domain.StateAwaitingImage,
		PatientName: strings.TrimSpace(req.PatientName),
		Notes:       strings.TrimSpace(req.Notes),
		MimeType:    req.MimeType,
		Image:       req.Image,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	switch req.Mode {
	case domain.ModeMulticlass:
		res, err := uc.runStage(ctx, domain.VariantMulticlass, tensor)
		if err != nil {
			return nil, err
		}
		wf.Final = &res
		wf.State = domain.StateDone
	case domain.ModeStaged:
		res, err := uc.runStage(ctx, domain.VariantStage1, tensor)
		if err != nil {
			return nil, err
		}
		wf.Stage1 = &res
		if res.Label == domain.LabelPneumonia {
			wf.Tensor = tensor
			wf.State = domain.StateAwaitingConfirmation
		} else {
			wf.Final = &res
			wf.State = domain.StateDone
		}
	}

	return wf, nil
}

// Confirm runs stage 2 on the tensor retained from stage 1.
func (uc *ClassificationUseCase) Confirm(ctx context.Context, wf *domain.Workflow) error {
	if wf == nil {
		return domain.WrapError(domain.ErrPrecondition, "confirm stage 2", errors.New("no classification in progress"))
	}
	if !wf.AwaitingConfirmation() {
		return domain.WrapError(domain.ErrPrecondition, "confirm stage 2", fmt.Errorf("workflow is %s", wf.State))
	}
	if wf.Tensor == nil || wf.Stage1 == nil {
		return domain.WrapError(domain.ErrPrecondition, "confirm stage 2", errors.New("stage 1 tensor is missing"))
	}

	res, err := uc.runStage(ctx, domain.VariantStage2, wf.Tensor)
	wf.UpdatedAt = uc.now()
	if err != nil {
		wf.LastError = err.Error()
		return err
	}

	wf.Stage2 = &res
	wf.Final = &res
	wf.Tensor = nil
	wf.LastError = ""
	wf.State = domain.StateDone
	return nil
}

func (uc *ClassificationUseCase) runStage(ctx context.Context, variant domain.Variant, tensor *domain.Tensor) (domain.ClassificationResult, error) {
	start := time.Now()
	probs, err := uc.predictor.Predict(ctx, variant, tensor)
	if err != nil {
		if domain.IsKind(err, domain.ErrModelUnavailable) || domain.IsKind(err, domain.ErrPredictionFailed) {
			return domain.ClassificationResult{}, err
		}
		return domain.ClassificationResult{}, domain.WrapError(domain.ErrPredictionFailed, "predict "+string(variant), err)
	}

	res, err := domain.NewResult(variant, probs)
	if err != nil {
		return domain.ClassificationResult{}, domain.WrapError(domain.ErrPredictionFailed, "interpret "+string(variant), err)
	}

	slog.InfoContext(ctx, "classification_stage",
		"variant", string(variant),
		"label", string(res.Label),
		"confidence", res.Confidence,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return res, nil
}
