package service

import (
	"github.com/billforge/billforge/internal/cache"
	"github.com/billforge/billforge/internal/config"
	"github.com/billforge/billforge/internal/domain/billingcycle"
	"github.com/billforge/billforge/internal/domain/bucket"
	"github.com/billforge/billforge/internal/domain/contractline"
	"github.com/billforge/billforge/internal/domain/invoice"
	"github.com/billforge/billforge/internal/domain/taxrate"
	"github.com/billforge/billforge/internal/domain/usage"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/postgres"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Cache  cache.Cache

	// Repositories
	ContractLineRepo  contractline.Repository
	ServiceConfigRepo contractline.ServiceConfigurationRepository
	AssignmentRepo    contractline.AssignmentRepository
	BillingCycleRepo  billingcycle.Repository
	BucketLedgerRepo  bucket.Repository
	InvoiceRepo       invoice.Repository
	UsageRepo         usage.Repository
	TaxRateRepo       taxrate.Repository
	TaxRateProvider   taxrate.Provider
}
