package handler

const (
	errInternalServer          = "Internal server error"
	errScheduledActionNotFound = "Scheduled action not found"
	errInvalidState            = "Scheduled action has already run or is running"
	errValidation              = "Validation failed"
	errUnauthorized            = "Unauthorized"
)
