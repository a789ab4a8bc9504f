package farm

import (
	"errors"
	"strings"
)

var (
	ErrFarmNotFound      = errors.New("farm not found")
	ErrStakeNotFound     = errors.New("no stake found")
	ErrTokenMismatch     = errors.New("token mismatch")
	ErrFarmEnded         = errors.New("farm is ended, staking not allowed")
	ErrLockupNotExpired  = errors.New("lockup period not expired")
	ErrInsufficientStake = errors.New("insufficient staked balance")
	ErrTransferNotFound  = errors.New("transfer not found")
	ErrNothingOwed       = errors.New("nothing owed")
	ErrInsufficientFunds = errors.New("not enough storage to withdraw")
	ErrInvalidInput      = errors.New("invalid input")
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// InsufficientStorageError is returned by the admission check. Need is the
// shortfall the caller has to deposit before retrying.
type InsufficientStorageError struct {
	Need Amount
}

func (e *InsufficientStorageError) Error() string {
	return "insufficient storage. Need " + e.Need.String() + " more"
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInsufficientStorage reports whether err is an admission failure.
func IsInsufficientStorage(err error) bool {
	var se *InsufficientStorageError
	return errors.As(err, &se)
}

func validateAccount(field, account string) error {
	if account == "" {
		return &ValidationError{Field: field, Message: "account is required"}
	}
	if strings.ContainsRune(account, '/') {
		return &ValidationError{Field: field, Message: "account must not contain '/'"}
	}
	return nil
}

func validateToken(field, token string) error {
	if token == "" {
		return &ValidationError{Field: field, Message: "token is required"}
	}
	if strings.ContainsRune(token, '/') {
		return &ValidationError{Field: field, Message: "token must not contain '/'"}
	}
	return nil
}
