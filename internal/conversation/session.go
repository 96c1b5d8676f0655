package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduler/internal/scheduling"
)

// State is the conversation state of one user.
type State string

const (
	StateIdle                  State = "idle"
	StateSelectingSchedule     State = "selecting_schedule"
	StateRegisteringPatient    State = "registering_patient"
	StateCancellingAppointment State = "cancelling_appointment"
)

// Registration steps, in collection order.
const (
	StepName = iota + 1
	StepCPF
	StepEmail
	StepPhone
	StepBirthDate
)

// Cancellation steps.
const (
	StepFindPatient = iota + 1
	StepPickAppointment
)

// Session is the per-user conversation state. Exactly one payload matching
// State is set; idle sessions carry none.
type Session struct {
	State        State         `json:"state"`
	Step         int           `json:"step"`
	Selection    *Selection    `json:"selection,omitempty"`
	Registration *Registration `json:"registration,omitempty"`
	Cancellation *Cancellation `json:"cancellation,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Selection holds the numbered slots offered to the user.
type Selection struct {
	Slots []scheduling.AvailableSlot `json:"slots"`
}

// Registration collects patient data for the pinned slot.
type Registration struct {
	Slot      scheduling.AvailableSlot `json:"slot"`
	Name      string                   `json:"name,omitempty"`
	CPF       string                   `json:"cpf,omitempty"`
	Email     string                   `json:"email,omitempty"`
	Phone     string                   `json:"phone,omitempty"`
	BirthDate scheduling.Date          `json:"birth_date"`
}

// Assign stores the one field the given step collects and reports whether
// f carried it. Other fields in f are ignored, so a digit-only phone that
// also looks like a CPF cannot replace the CPF taken at an earlier step.
func (r *Registration) Assign(step int, f Fields) bool {
	switch step {
	case StepName:
		if f.Name == "" {
			return false
		}
		r.Name = f.Name
	case StepCPF:
		if f.CPF == "" {
			return false
		}
		r.CPF = f.CPF
	case StepEmail:
		if f.Email == "" {
			return false
		}
		r.Email = f.Email
	case StepPhone:
		if f.Phone == "" {
			return false
		}
		r.Phone = f.Phone
	case StepBirthDate:
		if f.BirthDate.IsZero() {
			return false
		}
		r.BirthDate = f.BirthDate
	default:
		return false
	}
	return true
}

// Complete reports whether every field needed for booking is present.
func (r Registration) Complete() bool {
	return r.Name != "" && r.CPF != "" && r.Email != "" && r.Phone != "" && !r.BirthDate.IsZero()
}

// PatientInput converts the collected fields for an upsert.
func (r Registration) PatientInput() scheduling.PatientInput {
	return scheduling.PatientInput{
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		CPF:       r.CPF,
		BirthDate: r.BirthDate,
	}
}

// Cancellation holds the appointments listed for cancellation.
type Cancellation struct {
	PatientID    int64                          `json:"patient_id"`
	PatientName  string                         `json:"patient_name"`
	Appointments []scheduling.AppointmentDetail `json:"appointments"`
}

// IdleSession returns the initial session.
func IdleSession() Session {
	return Session{State: StateIdle}
}

// SessionStore persists sessions by normalized user id. Get returns an idle
// session for unknown users.
type SessionStore interface {
	Get(ctx context.Context, userID string) (Session, error)
	Put(ctx context.Context, userID string, session Session) error
	Reset(ctx context.Context, userID string) error
}

// NormalizeUserID trims raw and collapses blank, "anonymous", "null" and
// "undefined" to fallback.
func NormalizeUserID(raw, fallback string) string {
	id := strings.TrimSpace(raw)
	switch strings.ToLower(id) {
	case "", "anonymous", "null", "undefined":
		return fallback
	}
	return id
}

// MemorySessionStore keeps sessions in process memory. Sessions idle longer
// than ttl are dropped on read; a zero ttl keeps them forever.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Get(ctx context.Context, userID string) (Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	if !ok {
		return IdleSession(), nil
	}
	if s.ttl > 0 && s.now().Sub(sess.UpdatedAt) > s.ttl {
		s.mu.Lock()
		delete(s.sessions, userID)
		s.mu.Unlock()
		return IdleSession(), nil
	}
	return sess, nil
}

func (s *MemorySessionStore) Put(ctx context.Context, userID string, session Session) error {
	session.UpdatedAt = s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[userID] = session
	return nil
}

func (s *MemorySessionStore) Reset(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// RedisSessionStore keeps sessions in Redis as JSON so they survive restarts
// and can be shared by several API processes.
type RedisSessionStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessionStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("clinic.internal.conversation.sessions"),
	}
}

// WithTracer swaps the tracer used for session spans.
func (s *RedisSessionStore) WithTracer(tracer trace.Tracer) *RedisSessionStore {
	if tracer != nil {
		s.tracer = tracer
	}
	return s
}

func sessionKey(userID string) string {
	return fmt.Sprintf("session:%s", userID)
}

func (s *RedisSessionStore) Get(ctx context.Context, userID string) (Session, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_session",
		trace.WithAttributes(attribute.String("clinic.user_id", userID)))
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return IdleSession(), nil
		}
		span.RecordError(err)
		return Session{}, fmt.Errorf("conversation: failed to load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return Session{}, fmt.Errorf("conversation: failed to decode session: %w", err)
	}
	return sess, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, userID string, session Session) error {
	ctx, span := s.tracer.Start(ctx, "conversation.save_session",
		trace.WithAttributes(attribute.String("clinic.session_state", string(session.State))))
	defer span.End()

	session.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(userID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Reset(ctx context.Context, userID string) error {
	ctx, span := s.tracer.Start(ctx, "conversation.reset_session",
		trace.WithAttributes(attribute.String("clinic.user_id", userID)))
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(userID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to reset session: %w", err)
	}
	return nil
}

// keyedMutex serializes turns per user id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
