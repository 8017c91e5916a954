// Пакет lifecycle — конечный автомат статусов отчёта.
//
// Жизненный цикл однонаправленный:
//
//	submitted → in_review → closed{approved|rejected}
//
// Переход submitted → closed допустим напрямую (администратор может
// закрыть отчёт, не беря его в работу). Из closed переходов нет.
// Автомат не хранит состояние: текущий статус читается из БД,
// пакет только проверяет допустимость перехода перед записью.
package lifecycle

import (
	"fmt"

	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
)

// Operation — операция над отчётом, меняющая статус.
type Operation string

const (
	OpStartReview Operation = "start_review"
	OpApprove     Operation = "approve"
	OpReject      Operation = "reject"
)

// Коды ошибок перехода.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAlreadyClosed     = "ALREADY_CLOSED"
)

// validTransitions — матрица допустимых переходов.
var validTransitions = map[model.Status]map[model.Status]bool{
	model.StatusSubmitted: {model.StatusInReview: true, model.StatusClosed: true},
	model.StatusInReview:  {model.StatusClosed: true},
	model.StatusClosed:    {}, // Конечный статус
}

// allowedOperations — операции, допустимые в каждом статусе.
// start_review на in_review допустим: условный UPDATE просто не изменит строку.
var allowedOperations = map[model.Status]map[Operation]bool{
	model.StatusSubmitted: {OpStartReview: true, OpApprove: true, OpReject: true},
	model.StatusInReview:  {OpStartReview: true, OpApprove: true, OpReject: true},
	model.StatusClosed:    {},
}

// targetStatus — статус, в который переводит операция.
var targetStatus = map[Operation]model.Status{
	OpStartReview: model.StatusInReview,
	OpApprove:     model.StatusClosed,
	OpReject:      model.StatusClosed,
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION, ALREADY_CLOSED)
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CanTransition проверяет, допустим ли переход from → to.
func CanTransition(from, to model.Status) bool {
	return validTransitions[from][to]
}

// CanPerform проверяет, допустима ли операция в статусе current.
func CanPerform(current model.Status, op Operation) bool {
	return allowedOperations[current][op]
}

// Check проверяет операцию над отчётом в статусе current.
// Для закрытого отчёта возвращает ALREADY_CLOSED.
func Check(current model.Status, op Operation) error {
	if !IsValid(current) {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("недопустимый текущий статус: %q", current),
		}
	}
	if IsTerminal(current) {
		return &TransitionError{
			Code:    CodeAlreadyClosed,
			Message: "отчёт уже закрыт",
		}
	}
	if !CanPerform(current, op) {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("операция %s недопустима в статусе %s", op, current),
		}
	}
	target, ok := targetStatus[op]
	if !ok {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("неизвестная операция: %q", op),
		}
	}
	if target != current && !CanTransition(current, target) {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("переход %s → %s недопустим", current, target),
		}
	}
	return nil
}

// IsTerminal сообщает, является ли статус конечным.
func IsTerminal(s model.Status) bool {
	return s == model.StatusClosed
}

// IsValid проверяет, является ли статус допустимым.
func IsValid(s model.Status) bool {
	switch s {
	case model.StatusSubmitted, model.StatusInReview, model.StatusClosed:
		return true
	default:
		return false
	}
}

// ParseStatus преобразует строку в model.Status.
func ParseStatus(s string) (model.Status, error) {
	st := model.Status(s)
	if !IsValid(st) {
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: submitted, in_review, closed", s)
	}
	return st, nil
}
