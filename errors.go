package marginalia

import (
	"errors"

	"github.com/helixml/marginalia/application/service"
	"github.com/helixml/marginalia/domain/annotation"
	"github.com/helixml/marginalia/internal/database"
)

// Exported errors for library consumers.
var (
	// ErrNoDatabase indicates no database was configured.
	ErrNoDatabase = errors.New("marginalia: no database configured")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = service.ErrClientClosed

	// ErrNotFound indicates a requested highlight does not exist.
	ErrNotFound = database.ErrNotFound

	// ErrInvalidCFI indicates a highlight identifier is not a fragment identifier.
	ErrInvalidCFI = annotation.ErrInvalidCFI
)
