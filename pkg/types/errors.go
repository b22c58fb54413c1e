package types

import (
	"errors"
)

// Kind classifies registry errors by how a caller is expected to react to
// them.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound indicates an unknown upkeep id, request hash or keeper.
	KindNotFound
	// KindNotActive indicates an operation on a cancelled or expired upkeep.
	KindNotActive
	// KindUnauthorized indicates the caller lacks the owner, admin, payee,
	// registrar or keeper role required by the operation.
	KindUnauthorized
	// KindOutOfRange covers gas limits, data sizes and array lengths.
	KindOutOfRange
	// KindInsufficientFunds is a pre-flight affordability failure.
	KindInsufficientFunds
	KindDuplicateEntry
	// KindStateConflict covers cancel-after-cancel, repeated turns and
	// re-entrant calls.
	KindStateConflict
	// KindTargetFailure means the target job reverted or declined. It is
	// only surfaced from simulated checks; performs record it as data.
	KindTargetFailure
	// KindExternalTransferFailure means the funding ledger rejected a
	// transfer. The triggering operation is fully rolled back.
	KindExternalTransferFailure
	KindPaused
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindNotActive:
		return "NotActive"
	case KindUnauthorized:
		return "Unauthorized"
	case KindOutOfRange:
		return "OutOfRange"
	case KindInsufficientFunds:
		return "InsufficientFunds"
	case KindDuplicateEntry:
		return "DuplicateEntry"
	case KindStateConflict:
		return "StateConflict"
	case KindTargetFailure:
		return "TargetFailure"
	case KindExternalTransferFailure:
		return "ExternalTransferFailure"
	case KindPaused:
		return "Paused"
	case KindInvalidInput:
		return "InvalidInput"
	default:
		return "Unknown"
	}
}

// Error is a named registry error. Sentinels of this type are compared with
// errors.Is and are usually wrapped with additional context.
type Error struct {
	Kind Kind
	Name string
}

func (e *Error) Error() string {
	return e.Name
}

func newError(kind Kind, name string) *Error {
	return &Error{Kind: kind, Name: name}
}

// KindOf returns the kind of the first *Error found in the chain of err.
func KindOf(err error) Kind {
	var rErr *Error
	if errors.As(err, &rErr) {
		return rErr.Kind
	}

	return KindUnknown
}

var (
	ErrUpkeepNotFound                 = newError(KindNotFound, "UpkeepNotFound")
	ErrRequestNotFound                = newError(KindNotFound, "RequestNotFound")
	ErrNotAContract                   = newError(KindNotFound, "NotAContract")
	ErrUpkeepNotActive                = newError(KindNotActive, "UpkeepNotActive")
	ErrUpkeepNotCanceled              = newError(KindNotActive, "UpkeepNotCanceled")
	ErrOnlyUnpausedUpkeep             = newError(KindNotActive, "OnlyUnpausedUpkeep")
	ErrOnlyPausedUpkeep               = newError(KindStateConflict, "OnlyPausedUpkeep")
	ErrOnlyCallableByOwner            = newError(KindUnauthorized, "OnlyCallableByOwner")
	ErrOnlyCallableByAdmin            = newError(KindUnauthorized, "OnlyCallableByAdmin")
	ErrOnlyCallableByOwnerOrAdmin     = newError(KindUnauthorized, "OnlyCallableByOwnerOrAdmin")
	ErrOnlyCallableByOwnerOrRegistrar = newError(KindUnauthorized, "OnlyCallableByOwnerOrRegistrar")
	ErrOnlyCallableByPayee            = newError(KindUnauthorized, "OnlyCallableByPayee")
	ErrOnlyCallableByProposedPayee    = newError(KindUnauthorized, "OnlyCallableByProposedPayee")
	ErrOnlyCallableByProposedAdmin    = newError(KindUnauthorized, "OnlyCallableByProposedAdmin")
	ErrOnlyCallableByProposedOwner    = newError(KindUnauthorized, "OnlyCallableByProposedOwner")
	ErrOnlyCallableByLINKToken        = newError(KindUnauthorized, "OnlyCallableByLINKToken")
	ErrOnlyAdminOrOwner               = newError(KindUnauthorized, "OnlyAdminOrOwner")
	ErrOnlyActiveKeepers              = newError(KindUnauthorized, "OnlyActiveKeepers")
	ErrMigrationNotPermitted          = newError(KindUnauthorized, "MigrationNotPermitted")
	ErrGasLimitOutsideRange           = newError(KindOutOfRange, "GasLimitOutsideRange")
	ErrCheckDataExceedsLimit          = newError(KindOutOfRange, "CheckDataExceedsLimit")
	ErrParameterLengthError           = newError(KindOutOfRange, "ParameterLengthError")
	ErrArrayHasNoEntries              = newError(KindOutOfRange, "ArrayHasNoEntries")
	ErrPaymentGreaterThanAllLINK      = newError(KindOutOfRange, "PaymentGreaterThanAllLINK")
	ErrInsufficientFunds              = newError(KindInsufficientFunds, "InsufficientFunds")
	ErrInsufficientPayment            = newError(KindInsufficientFunds, "InsufficientPayment")
	ErrDuplicateEntry                 = newError(KindDuplicateEntry, "DuplicateEntry")
	ErrCannotCancel                   = newError(KindStateConflict, "CannotCancel")
	ErrKeepersMustTakeTurns           = newError(KindStateConflict, "KeepersMustTakeTurns")
	ErrReentrantCall                  = newError(KindStateConflict, "ReentrantCall")
	ErrValueNotChanged                = newError(KindStateConflict, "ValueNotChanged")
	ErrUpkeepNotNeeded                = newError(KindTargetFailure, "UpkeepNotNeeded")
	ErrTargetCheckReverted            = newError(KindTargetFailure, "TargetCheckReverted")
	ErrTransferFailed                 = newError(KindExternalTransferFailure, "LinkTransferFailed")
	ErrRegistryPaused                 = newError(KindPaused, "RegistryPaused")
	ErrInvalidPayee                   = newError(KindInvalidInput, "InvalidPayee")
	ErrInvalidRecipient               = newError(KindInvalidInput, "InvalidRecipient")
	ErrInvalidDataLength              = newError(KindInvalidInput, "InvalidDataLength")
	ErrInvalidUnitPrice               = newError(KindInvalidInput, "InvalidUnitPrice")
	ErrTranscoderNotSet               = newError(KindInvalidInput, "TranscoderNotSet")
	ErrAmountMismatch                 = newError(KindInvalidInput, "AmountMismatch")
	ErrSenderMismatch                 = newError(KindInvalidInput, "SenderMismatch")
	ErrHashMismatch                   = newError(KindInvalidInput, "HashMismatch")
	ErrFunctionNotPermitted           = newError(KindInvalidInput, "FunctionNotPermitted")
	ErrRegistrationRequestFailed      = newError(KindInvalidInput, "RegistrationRequestFailed")
	ErrInvalidConfig                  = newError(KindInvalidInput, "InvalidConfig")
)
