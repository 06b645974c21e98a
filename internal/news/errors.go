package news

import (
	"errors"
	"fmt"
)

// Классы ошибок коллабораторов. Проверяются через errors.Is.
var (
	// ErrTransient - сеть, таймаут, 5xx. Повторяется в следующем цикле.
	ErrTransient = errors.New("transient collaborator error")
	// ErrMalformedResponse - ответ нарушает контракт коллаборатора.
	ErrMalformedResponse = errors.New("malformed collaborator response")
	// ErrCorruptState - хранилище леджера не читается.
	ErrCorruptState = errors.New("corrupt ledger state")
)

type classified struct {
	class error
	err   error
}

func (e *classified) Error() string {
	return fmt.Sprintf("%v: %v", e.class, e.err)
}

func (e *classified) Unwrap() []error {
	return []error{e.class, e.err}
}

// Transient помечает err как временную ошибку коллаборатора.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return &classified{class: ErrTransient, err: err}
}

// Malformed создаёт ошибку нарушения формата ответа.
func Malformed(format string, args ...any) error {
	return &classified{class: ErrMalformedResponse, err: fmt.Errorf(format, args...)}
}

// CorruptState помечает err как повреждение леджера.
func CorruptState(err error) error {
	return &classified{class: ErrCorruptState, err: err}
}

// Kind возвращает короткое имя класса ошибки для логов.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrTransient):
		return "transport"
	case errors.Is(err, ErrCorruptState):
		return "corrupt_state"
	default:
		return "unknown"
	}
}
