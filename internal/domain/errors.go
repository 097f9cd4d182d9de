package domain

import "errors"

// ErrorKind groups market errors so transports can react per category.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindAuthorization
	KindState
	KindArithmetic
	KindEconomic
	KindDeadline
	KindInput
	KindNotFound
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindArithmetic:
		return "arithmetic"
	case KindEconomic:
		return "economic"
	case KindDeadline:
		return "deadline"
	case KindInput:
		return "input"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a named market condition. The sentinels below are compared with
// errors.Is; wrap them with fmt.Errorf("...: %w", ErrX) to add context.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidAdmin   = newError(KindAuthorization, "InvalidAdmin", "invalid admin")
	ErrInvalidCreator = newError(KindAuthorization, "InvalidCreator", "invalid creator")

	ErrNotPreparing      = newError(KindState, "NotPreparing", "not preparing status")
	ErrMarketNotActive   = newError(KindState, "MarketNotActive", "market is not active")
	ErrMarketNotResolved = newError(KindState, "MarketNotResolved", "market not resolved yet")

	ErrArithmetic = newError(KindArithmetic, "ArithmeticError", "arithmetic error")

	ErrNotWinningToken     = newError(KindEconomic, "NotWinningToken", "not the winning token")
	ErrNoWinningTokens     = newError(KindEconomic, "NoWinningTokens", "no winning tokens to claim")
	ErrInsufficientFunds   = newError(KindEconomic, "InsufficientFunds", "insufficient funds")
	ErrInvalidTokenAccount = newError(KindEconomic, "InvalidTokenAccount", "invalid token account")
	ErrInvalidFundAmount   = newError(KindEconomic, "InvalidFundAmount", "invalid fund amount")

	ErrBettingDeadlineExceeded = newError(KindDeadline, "BettingDeadlineExceeded",
		"betting deadline exceeded - bets must be placed at least 48 hours before resolution")

	ErrInvalidMarket = newError(KindInput, "InvalidMarket", "invalid market")
	ErrInvalidInput  = newError(KindInput, "InvalidInput", "invalid input")
	ErrNotFound      = newError(KindNotFound, "NotFound", "not found")
	ErrLockHeld      = newError(KindConflict, "LockHeld", "market is busy")
)

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain, or "Internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "Internal"
}
