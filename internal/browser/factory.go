package browser

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/interfaces"
	"github.com/ternarybob/peto/internal/models"
)

// New constructs the adapter for the requested backend. The returned
// adapter is not yet initialized.
func New(opts models.BrowserOptions, logger arbor.ILogger) (interfaces.BrowserAdapter, error) {
	switch opts.Backend {
	case models.BackendChromedp, "":
		return NewChromedpAdapter(opts, logger), nil
	case models.BackendDevtoolsMCP:
		return NewDevtoolsAdapter(opts, logger), nil
	default:
		return nil, fmt.Errorf("unknown browser backend: %s", opts.Backend)
	}
}
