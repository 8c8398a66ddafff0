package service

import (
	"errors"
	"fmt"
)

// ErrorKind классифицирует ошибки размещения ссылок
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindConflict
	KindQuota
	KindExhaustion
	KindNotFound
)

var (
	// ErrValidation входные данные отклонены до обращения к хранилищу
	ErrValidation = errors.New("validation failed")
	// ErrShortcodeTaken код уже занят в пространстве имён
	ErrShortcodeTaken = errors.New("shortcode already taken")
	// ErrQuotaExceeded у владельца не осталось свободного лимита ссылок
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrExhausted не удалось подобрать свободный код за отведённое число попыток
	ErrExhausted = errors.New("shortcode space exhausted")
	// ErrNotFound ссылка не найдена или принадлежит другому владельцу
	ErrNotFound = errors.New("mapping not found")
)

// Сообщения для пользователя
const (
	ReasonURLRequired       = "url is required"
	ReasonURLInvalid        = "url must be an absolute http or https URL"
	ReasonSubdomainInvalid  = "subdomain must be a single label of lowercase letters, numbers and hyphens"
	ReasonSubdomainReserved = "subdomain is reserved"
	ReasonSubdomainOwner    = "subdomain links require an authenticated owner"
	ReasonExpiryPast        = "expires_at must be in the future"
	ReasonShortcodeTaken    = "shortcode is already taken"
	ReasonExhausted         = "could not allocate a unique shortcode, please try again"
	ReasonNotFound          = "link not found"
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindQuota:
		return "quota"
	case KindExhaustion:
		return "exhaustion"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindConflict:
		return ErrShortcodeTaken
	case KindQuota:
		return ErrQuotaExceeded
	case KindExhaustion:
		return ErrExhausted
	case KindNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// AllocationError описывает отказ в создании или изменении ссылки.
// Reason показывается пользователю без изменений.
type AllocationError struct {
	Kind   ErrorKind
	Reason string
}

func (e *AllocationError) Error() string {
	return e.Reason
}

// Is сопоставляет ошибку с сигнальной ошибкой её вида
func (e *AllocationError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newError(kind ErrorKind, reason string) *AllocationError {
	return &AllocationError{Kind: kind, Reason: reason}
}

func quotaError(quota int) *AllocationError {
	return newError(KindQuota, fmt.Sprintf("link limit of %d reached", quota))
}
