package roster

import (
	"context"
	"errors"
	"strings"
)

// # Record Error Codes
//
// Every errored outcome carries a code that operators can quote when
// reviewing a run log or change report:
//
//	REC001 - Unclassified: roster/persisted combination outside the case table
//	         Action: Review the person manually; usually an inactive roster
//	         entry for someone never registered
//	REC002 - Internal: the reconciler panicked on this record
//	         Action: Check the application logs for the stack
//	DB001  - Duplicate key: the person was inserted concurrently
//	         Action: Re-run; the record will be classified as maintained
//	DB003  - Foreign key: referenced role or person does not exist
//	         Action: Verify the roles table is seeded
//	DB004  - Connection refused: database unreachable mid-run
//	DB005  - Connection reset: database connection was interrupted
//	DB006  - Timeout: the record's transaction exceeded its timeout
//	DB007  - Deadlock: conflicting concurrent updates
//	DB008  - Check constraint: a value was rejected by the schema
//	ERR000 - Unknown: check the logs for the original error
//
// Typed errors are matched first; the rest are matched case-insensitively
// by substring, first match wins.

// ErrorCode is a support reference with the action an operator should take.
type ErrorCode struct {
	Code   string
	Action string
}

type errorPattern struct {
	pattern string
	code    ErrorCode
}

var (
	codeUnclassified = ErrorCode{"REC001", "Revisar manualmente: combinacion fuera de la tabla de casos"}
	codeInternal     = ErrorCode{"REC002", "Revisar los logs de la aplicacion"}
	codeTimeout      = ErrorCode{"DB006", "Reintentar; revisar carga de la base de datos"}
	codeUnknown      = ErrorCode{"ERR000", "Revisar los logs de la aplicacion"}
)

// errorPatterns is ordered specific before general.
var errorPatterns = []errorPattern{
	{"duplicate key", ErrorCode{"DB001", "Reintentar; el registro se clasificara como mantenido"}},
	{"violates unique", ErrorCode{"DB001", "Reintentar; el registro se clasificara como mantenido"}},
	{"foreign key", ErrorCode{"DB003", "Verificar que la tabla de roles este poblada"}},
	{"connection refused", ErrorCode{"DB004", "Verificar conectividad con la base de datos"}},
	{"connection reset", ErrorCode{"DB005", "Reintentar la ejecucion"}},
	{"timeout", codeTimeout},
	{"timed out", codeTimeout},
	{"deadlock", ErrorCode{"DB007", "Reintentar la ejecucion"}},
	{"check constraint", ErrorCode{"DB008", "Revisar los valores del registro"}},
	{"internal error", codeInternal},
}

// ClassifyError maps a record-level error to its support code.
// A nil error yields the zero ErrorCode.
func ClassifyError(err error) ErrorCode {
	if err == nil {
		return ErrorCode{}
	}

	var unclassified *UnclassifiedError
	switch {
	case errors.As(err, &unclassified):
		return codeUnclassified
	case errors.Is(err, context.DeadlineExceeded):
		return codeTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(msg, ep.pattern) {
			return ep.code
		}
	}
	return codeUnknown
}
