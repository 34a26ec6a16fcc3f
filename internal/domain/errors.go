package domain

import (
	"errors"
	"fmt"
)

// Ошибки приложения
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи (нарушение уникальности)
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrTimeoutExceeded превышено время ожидания
	ErrTimeoutExceeded = errors.New("timeout exceeded")

	// ErrExternalServiceUnavailable внешний сервис недоступен
	ErrExternalServiceUnavailable = errors.New("external service unavailable")

	// ErrWebhookValidationFailed не удалось проверить подпись вебхука
	ErrWebhookValidationFailed = errors.New("webhook validation failed")

	// ErrMalformedEvent событие не удалось разобрать, повторная доставка не поможет
	ErrMalformedEvent = errors.New("malformed event")

	// ErrUnresolved событие не удалось сопоставить с аккаунтом
	ErrUnresolved = errors.New("unresolved correlation")

	// ErrUnsupportedEvent тип доменного события не обрабатывается движком
	ErrUnsupportedEvent = errors.New("unsupported event")
)

// Причины, по которым событие не сопоставлено с аккаунтом
const (
	ReasonUnknownExternalIdentity = "unknown external identity"
	ReasonMissingCorrelationKey   = "missing correlation key"
	ReasonNoMatchingSubscription  = "no matching subscription"
)

// UnresolvedError терминальная ошибка корреляции
type UnresolvedError struct {
	Reason string
	Key    string
}

// Error реализует интерфейс error
func (e *UnresolvedError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("unresolved: %s", e.Reason)
	}
	return fmt.Sprintf("unresolved: %s (key: %s)", e.Reason, e.Key)
}

// Is проверяет, является ли ошибка ошибкой корреляции
func (e *UnresolvedError) Is(target error) bool {
	return target == ErrUnresolved
}

// NewUnresolvedError создает новую ошибку корреляции
func NewUnresolvedError(reason, key string) *UnresolvedError {
	return &UnresolvedError{Reason: reason, Key: key}
}

// MalformedEventError событие провайдера с некорректными полями
type MalformedEventError struct {
	EventID     string
	EventType   string
	Field       string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *MalformedEventError) Error() string {
	msg := fmt.Sprintf("malformed %s event %s", e.EventType, e.EventID)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field: %s)", e.Field)
	}
	if e.OriginalErr != nil {
		msg += ": " + e.OriginalErr.Error()
	}
	return msg
}

// Unwrap возвращает оригинальную ошибку
func (e *MalformedEventError) Unwrap() error {
	return e.OriginalErr
}

// Is проверяет, является ли ошибка ошибкой разбора события
func (e *MalformedEventError) Is(target error) bool {
	return target == ErrMalformedEvent
}

// NewMalformedEventError создает новую ошибку разбора события
func NewMalformedEventError(eventID, eventType, field string, err error) *MalformedEventError {
	return &MalformedEventError{
		EventID:     eventID,
		EventType:   eventType,
		Field:       field,
		OriginalErr: err,
	}
}

// NotFoundError представляет ошибку "не найдено"
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// DuplicateError представляет ошибку дубликата
type DuplicateError struct {
	Entity string
	Field  string
	Value  string
}

// Error реализует интерфейс error
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s with %s '%s' already exists", e.Entity, e.Field, e.Value)
}

// Is проверяет, является ли ошибка ошибкой дубликата
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// NewDuplicateError создает новую ошибку дубликата
func NewDuplicateError(entity, field, value string) *DuplicateError {
	return &DuplicateError{
		Entity: entity,
		Field:  field,
		Value:  value,
	}
}

// ExternalServiceError представляет ошибку внешнего сервиса
type ExternalServiceError struct {
	Service     string
	Message     string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *ExternalServiceError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s service error: %s: %v", e.Service, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s service error: %s", e.Service, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// Is относит ошибку к недоступности внешнего сервиса
func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalServiceUnavailable
}

// NewExternalServiceError создает новую ошибку внешнего сервиса
func NewExternalServiceError(service, message string, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:     service,
		Message:     message,
		OriginalErr: err,
	}
}
