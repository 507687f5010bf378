package sync

import (
	gosync "sync"

	"github.com/rs/zerolog"
)

// SyncContext holds the configuration shared by every component of one
// connector instance (one Mailjet account bound to one hub webservice).
// It is immutable after construction, except for Config.Catalog which is
// refreshed by MailjetConnector.Connect and must be read through Catalog.
type SyncContext struct {
	Config         Config
	WebserviceID   string
	RecordRequests bool
	Logger         zerolog.Logger

	catalogMu gosync.RWMutex
}

// ComponentLogger returns a child logger tagged with the component name and webservice.
func (s *SyncContext) ComponentLogger(component string) zerolog.Logger {
	return s.Logger.With().
		Str("component", component).
		Str("webservice_id", s.WebserviceID).
		Logger()
}

// Catalog returns the current list and attribute catalog.
func (s *SyncContext) Catalog() Catalog {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return s.Config.Catalog
}

func (s *SyncContext) SetCatalog(catalog Catalog) {
	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()
	s.Config.Catalog = catalog
}
