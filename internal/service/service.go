package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-taskgen/internal/bus"
	"github.com/loqalabs/loqa-taskgen/internal/config"
	"github.com/loqalabs/loqa-taskgen/internal/eventstore"
	"github.com/loqalabs/loqa-taskgen/internal/protocol"
	"github.com/loqalabs/loqa-taskgen/internal/taskgen"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-taskgen/internal/service"

// Service answers task text requests arriving on the bus and in-process.
type Service struct {
	cfg       config.ServiceConfig
	bus       *bus.Client
	generator taskgen.Generator
	store     *eventstore.Store
	subs      []*nats.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
	ready     atomic.Bool
	logger    *slog.Logger

	tracer   trace.Tracer
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewService wires a generator to the bus. busClient and store may be nil,
// in which case only the in-process Describe and Checklist calls are served.
func NewService(parent context.Context, cfg config.ServiceConfig, busClient *bus.Client, generator taskgen.Generator, store *eventstore.Store, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:       cfg,
		bus:       busClient,
		generator: generator,
		store:     store,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With(slog.String("component", "taskgen-service")),
		tracer:    otel.Tracer(instrumentationName),
	}
	if err := s.initMetrics(); err != nil {
		s.logger.Warn("failed to initialize metrics", slogError(err))
	}
	return s
}

func (s *Service) initMetrics() error {
	meter := otel.Meter(instrumentationName)
	requests, err := meter.Int64Counter("taskgen.requests", metric.WithDescription("Generation requests by operation and outcome"))
	if err != nil {
		return err
	}
	latency, err := meter.Float64Histogram("taskgen.latency", metric.WithDescription("Simulated generation latency"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}
	s.requests = requests
	s.latency = latency
	return nil
}

func (s *Service) Start() error {
	if !s.cfg.Enabled || s.bus == nil {
		s.ready.Store(true)
		return nil
	}
	handlers := map[string]nats.MsgHandler{
		protocol.SubjectDescriptionRequest: s.handleDescription,
		protocol.SubjectChecklistRequest:   s.handleChecklist,
	}
	for subject, handler := range handlers {
		sub, err := s.subscribe(subject, handler)
		if err != nil {
			s.drain()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
		s.logger.Info("subscribed", slog.String("subject", subject), slog.String("queue", s.cfg.QueueGroup))
	}
	s.ready.Store(true)
	return nil
}

func (s *Service) subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	if s.cfg.QueueGroup != "" {
		return s.bus.Conn().QueueSubscribe(subject, s.cfg.QueueGroup, handler)
	}
	return s.bus.Conn().Subscribe(subject, handler)
}

func (s *Service) drain() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) Close() {
	s.ready.Store(false)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.drain()
	s.wg.Wait()
}

// track registers one in-flight bus request. It reports false once Close has
// begun; Drain keeps delivering pending messages after that.
func (s *Service) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// Healthy reports whether the service is started and, when it serves the
// bus, still connected.
func (s *Service) Healthy() bool {
	if !s.ready.Load() {
		return false
	}
	return s.bus == nil || s.bus.Healthy()
}

// Describe generates a task description. The returned response always carries
// a request ID; on error its Error field is set as well.
func (s *Service) Describe(ctx context.Context, req protocol.TaskDescriptionRequest) (protocol.TaskDescriptionResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	ctx, span := s.tracer.Start(ctx, "taskgen.describe", trace.WithAttributes(
		attribute.String("taskgen.request_id", req.RequestID),
		attribute.String("taskgen.trace_id", req.TraceID),
	))
	defer span.End()

	start := time.Now()
	desc, err := s.generator.GenerateTaskDescription(ctx, req.Title)
	elapsed := time.Since(start)
	s.observe(ctx, protocol.OperationDescription, elapsed, err)

	resp := protocol.TaskDescriptionResponse{
		RequestID: req.RequestID,
		LatencyMS: elapsed.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		resp.Error = err.Error()
		return resp, err
	}
	resp.UserStory = desc.UserStory
	resp.AcceptanceCriteria = desc.AcceptanceCriteria

	s.recordGeneration(ctx, protocol.GeneratedEvent{
		RequestID: req.RequestID,
		Operation: protocol.OperationDescription,
		Title:     req.Title,
		Items:     len(desc.AcceptanceCriteria),
		LatencyMS: resp.LatencyMS,
		Timestamp: resp.Timestamp,
	}, resp)
	return resp, nil
}

// Checklist generates a subtask checklist. Team in the response is the
// category the request resolved to.
func (s *Service) Checklist(ctx context.Context, req protocol.SubtaskChecklistRequest) (protocol.SubtaskChecklistResponse, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	team := taskgen.ResolveTeam(req.Team)
	ctx, span := s.tracer.Start(ctx, "taskgen.checklist", trace.WithAttributes(
		attribute.String("taskgen.request_id", req.RequestID),
		attribute.String("taskgen.team", team),
		attribute.String("taskgen.trace_id", req.TraceID),
	))
	defer span.End()

	start := time.Now()
	items, err := s.generator.GenerateSubtaskChecklist(ctx, req.Title, req.Team)
	elapsed := time.Since(start)
	s.observe(ctx, protocol.OperationChecklist, elapsed, err)

	resp := protocol.SubtaskChecklistResponse{
		RequestID: req.RequestID,
		Team:      team,
		LatencyMS: elapsed.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		resp.Error = err.Error()
		return resp, err
	}
	resp.Subtasks = items

	s.recordGeneration(ctx, protocol.GeneratedEvent{
		RequestID: req.RequestID,
		Operation: protocol.OperationChecklist,
		Title:     req.Title,
		Team:      team,
		Items:     len(items),
		LatencyMS: resp.LatencyMS,
		Timestamp: resp.Timestamp,
	}, resp)
	return resp, nil
}

// Recent lists stored generations, newest first.
func (s *Service) Recent(ctx context.Context, operation string, limit int) ([]eventstore.Record, error) {
	return s.store.ListRecent(ctx, operation, limit)
}

func (s *Service) observe(ctx context.Context, operation string, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if s.requests != nil {
		s.requests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		))
	}
	if s.latency != nil && err == nil {
		s.latency.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(attribute.String("operation", operation)))
	}
}

func (s *Service) recordGeneration(ctx context.Context, evt protocol.GeneratedEvent, result any) {
	if s.store != nil {
		payload, err := json.Marshal(result)
		if err != nil {
			s.logger.Warn("failed to marshal generation", slogError(err))
		} else if err := s.store.Append(ctx, eventstore.Record{
			RequestID: evt.RequestID,
			Operation: evt.Operation,
			Title:     evt.Title,
			Team:      evt.Team,
			Payload:   payload,
			LatencyMS: evt.LatencyMS,
			CreatedAt: evt.Timestamp,
		}); err != nil {
			s.logger.Warn("failed to record generation", slogError(err))
		}
	}
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Warn("failed to marshal generated event", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectGenerated, data); err != nil {
		s.logger.Warn("failed to publish generated event", slogError(err))
	}
}

func (s *Service) handleDescription(msg *nats.Msg) {
	var req protocol.TaskDescriptionRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode description request", slogError(err))
		s.respond(msg, protocol.TaskDescriptionResponse{Error: "invalid request: " + err.Error(), Timestamp: time.Now().UTC()})
		return
	}

	if !s.track() {
		s.logger.Debug("dropping request after close", slog.String("subject", msg.Subject))
		return
	}
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.RequestTimeout())
		defer cancel()

		resp, err := s.Describe(ctx, req)
		if err != nil {
			s.logger.Warn("description generation failed", slog.String("request_id", resp.RequestID), slogError(err))
		}
		s.respond(msg, resp)
	}()
}

func (s *Service) handleChecklist(msg *nats.Msg) {
	var req protocol.SubtaskChecklistRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode checklist request", slogError(err))
		s.respond(msg, protocol.SubtaskChecklistResponse{Error: "invalid request: " + err.Error(), Timestamp: time.Now().UTC()})
		return
	}

	if !s.track() {
		s.logger.Debug("dropping request after close", slog.String("subject", msg.Subject))
		return
	}
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.RequestTimeout())
		defer cancel()

		resp, err := s.Checklist(ctx, req)
		if err != nil {
			s.logger.Warn("checklist generation failed", slog.String("request_id", resp.RequestID), slogError(err))
		}
		s.respond(msg, resp)
	}()
}

func (s *Service) respond(msg *nats.Msg, payload any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply", slogError(err))
	}
}

// RequestTimeout bounds a single generation served over the bus or HTTP.
func (s *Service) RequestTimeout() time.Duration {
	if s.cfg.RequestTimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.cfg.RequestTimeoutMS) * time.Millisecond
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
