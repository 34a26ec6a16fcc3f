package domain

import "fmt"

// OutcomeKind терминальный результат обработки события
type OutcomeKind string

const (
	OutcomeApplied OutcomeKind = "applied"
	OutcomeNoOp    OutcomeKind = "noop"
	OutcomeIgnored OutcomeKind = "ignored"
	OutcomeFailed  OutcomeKind = "failed"
)

// Outcome результат сверки события с состоянием аккаунта
type Outcome struct {
	Kind      OutcomeKind
	Retryable bool
	Reason    string
	State     EntitlementState
	Err       error
}

// Applied мутация выполнена
func Applied(state EntitlementState, reason string) Outcome {
	return Outcome{Kind: OutcomeApplied, State: state, Reason: reason}
}

// NoOp событие уже учтено или не применимо к текущему состоянию
func NoOp(state EntitlementState, reason string) Outcome {
	return Outcome{Kind: OutcomeNoOp, State: state, Reason: reason}
}

// Ignored неподдерживаемый тип события
func Ignored(reason string) Outcome {
	return Outcome{Kind: OutcomeIgnored, Reason: reason}
}

// Failed ошибка. retryable=true означает, что провайдер должен повторить доставку.
func Failed(err error, retryable bool) Outcome {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return Outcome{Kind: OutcomeFailed, Retryable: retryable, Reason: reason, Err: err}
}

// Acknowledge нужно ли подтверждать получение (HTTP 200)
func (o Outcome) Acknowledge() bool {
	return o.Kind != OutcomeFailed || !o.Retryable
}

// Label метка для метрик и журнала
func (o Outcome) Label() string {
	if o.Kind == OutcomeFailed {
		if o.Retryable {
			return "failed_retryable"
		}
		return "failed_permanent"
	}
	return string(o.Kind)
}

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Label()
	}
	return fmt.Sprintf("%s: %s", o.Label(), o.Reason)
}
