package repositories

import "gorm.io/gorm"

// Repositories groups every repository over the write and read-only pools
type Repositories struct {
	Events     EventRepository
	Lookups    LookupRepository
	Demands    DemandRepository
	Responses  ResponseRepository
	Tokens     TokenRepository
	Views      ViewRepository
	Search     SearchRepository
	Engagement EngagementRepository
	Media      MediaRepository
	Payments   PaymentRepository
}

// New creates all repositories
func New(db, readOnlyDB *gorm.DB) *Repositories {
	return &Repositories{
		Events:     NewEventRepository(db, readOnlyDB),
		Lookups:    NewLookupRepository(readOnlyDB),
		Demands:    NewDemandRepository(db),
		Responses:  NewResponseRepository(db),
		Tokens:     NewTokenRepository(db),
		Views:      NewViewRepository(db),
		Search:     NewSearchRepository(readOnlyDB),
		Engagement: NewEngagementRepository(db, readOnlyDB),
		Media:      NewMediaRepository(db),
		Payments:   NewPaymentRepository(db, readOnlyDB),
	}
}
