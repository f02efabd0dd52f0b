/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body size exceeded the server limit.
	ErrRequestEntityTooLarge = 1005

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1006
)

// 2xxx: Zone and Node Business Logic Errors
const (
	// ErrZoneNotFound indicates that the requested zone does not exist.
	ErrZoneNotFound = 2101

	// ErrZoneAccessDenied indicates that the zone secret verification failed.
	ErrZoneAccessDenied = 2102

	// ErrZoneNameRequired indicates that a zone was submitted without a name.
	ErrZoneNameRequired = 2103

	// ErrNodeTypeInvalid indicates that a node was submitted with a type outside the allowed set.
	ErrNodeTypeInvalid = 2201

	// ErrMessageContentTooLong indicates that a chat message exceeded the maximum length limit.
	ErrMessageContentTooLong = 2301

	// ErrThumbnailTypeInvalid indicates an unsupported thumbnail file type.
	ErrThumbnailTypeInvalid = 2401

	// ErrFileSizeTooLarge indicates that an uploaded file exceeded the size limit.
	ErrFileSizeTooLarge = 2402
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrInvalidUsername indicates a username failing format validation.
	ErrInvalidUsername = 3001

	// ErrInvalidPassword indicates a password failing length validation.
	ErrInvalidPassword = 3002

	// ErrUserAlreadyExists indicates a signup attempt with a taken username.
	ErrUserAlreadyExists = 3003

	// ErrInvalidCredentials indicates a failed username/password verification.
	ErrInvalidCredentials = 3004

	// ErrUserNotFound indicates that the requested user account does not exist.
	ErrUserNotFound = 3005

	// ErrOldPasswordInvalid indicates that the current password supplied on a password change is wrong.
	ErrOldPasswordInvalid = 3006

	// ErrAlreadyLoggedIn indicates an authenticated client calling signup/login again.
	ErrAlreadyLoggedIn = 3007

	// ErrUnauthorized indicates a missing or invalid identity token.
	ErrUnauthorized = 3008
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrFileStorageFailed indicates a storage backend failure while handling a file.
	ErrFileStorageFailed = 5001
)
