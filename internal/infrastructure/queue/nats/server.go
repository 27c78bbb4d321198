package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/pneumonia-classifier/internal/core/domain"
	"github.com/kirillkom/pneumonia-classifier/internal/core/ports"
)

type ServerObserver interface {
	StartPrediction()
	FinishPrediction(service, variant string, duration time.Duration, err error)
}

// Server answers prediction requests from a local predictor. Workers share a
// queue group so each request is handled once.
type Server struct {
	conn       *nats.Conn
	subject    string
	queueGroup string
	service    string
	predictor  ports.Predictor
	observer   ServerObserver
}

func NewServer(conn *nats.Conn, subject string, predictor ports.Predictor, observer ServerObserver, service string) *Server {
	return &Server{
		conn:       conn,
		subject:    subject,
		queueGroup: "pneumonia-workers",
		service:    service,
		predictor:  predictor,
		observer:   observer,
	}
}

func (s *Server) Serve(ctx context.Context) error {
	sub, err := s.conn.QueueSubscribe(s.subject+".*", s.queueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		reply := s.handle(ctx, msg)
		if err := msg.RespondMsg(reply); err != nil {
			slog.Error("nats_respond_failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := s.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	slog.Info("prediction_server_listening", "subject", s.subject+".*", "queue_group", s.queueGroup)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := s.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, msg *nats.Msg) *nats.Msg {
	start := time.Now()
	if s.observer != nil {
		s.observer.StartPrediction()
	}

	variant, tensor, err := decodeRequest(msg)
	if err == nil && !strings.HasSuffix(msg.Subject, "."+string(variant)) {
		err = fmt.Errorf("variant %s does not match subject %s", variant, msg.Subject)
	}
	if err != nil {
		err = domain.WrapError(domain.ErrInvalidInput, "decode prediction request", err)
	}

	var probs []float32
	if err == nil {
		probs, err = s.predictor.Predict(ctx, variant, tensor)
	}

	duration := time.Since(start)
	if s.observer != nil {
		s.observer.FinishPrediction(s.service, string(variant), duration, err)
	}
	if err != nil {
		slog.Warn("prediction_request_failed",
			"subject", msg.Subject,
			"variant", variant,
			"duration_ms", float64(duration.Microseconds())/1000.0,
			"error", err,
		)
	} else {
		slog.Info("prediction_request_done",
			"variant", variant,
			"duration_ms", float64(duration.Microseconds())/1000.0,
		)
	}
	return encodeReply(probs, err)
}
