package repository

import (
	"github.com/billforge/billforge/internal/cache"
	"github.com/billforge/billforge/internal/domain/billingcycle"
	"github.com/billforge/billforge/internal/domain/bucket"
	"github.com/billforge/billforge/internal/domain/contractline"
	"github.com/billforge/billforge/internal/domain/invoice"
	"github.com/billforge/billforge/internal/domain/taxrate"
	"github.com/billforge/billforge/internal/domain/usage"
	"github.com/billforge/billforge/internal/logger"
	pgclient "github.com/billforge/billforge/internal/postgres"
	pgrepo "github.com/billforge/billforge/internal/repository/postgres"
)

// Repositories bundles all persistence interfaces for wiring
type Repositories struct {
	ContractLineRepo         contractline.Repository
	ServiceConfigurationRepo contractline.ServiceConfigurationRepository
	AssignmentRepo           contractline.AssignmentRepository
	BillingCycleRepo         billingcycle.Repository
	BucketLedgerRepo         bucket.Repository
	InvoiceRepo              invoice.Repository
	UsageRepo                usage.Repository
	TaxRateRepo              taxrate.Repository
	TaxRateProvider          taxrate.Provider
}

// NewRepositories wires the postgres implementations
func NewRepositories(client pgclient.IClient, logger *logger.Logger, c cache.Cache) Repositories {
	return Repositories{
		ContractLineRepo:         pgrepo.NewContractLineRepository(client, logger),
		ServiceConfigurationRepo: pgrepo.NewServiceConfigurationRepository(client, logger),
		AssignmentRepo:           pgrepo.NewAssignmentRepository(client, logger),
		BillingCycleRepo:         pgrepo.NewBillingCycleRepository(client, logger),
		BucketLedgerRepo:         pgrepo.NewBucketLedgerRepository(client, logger),
		InvoiceRepo:              pgrepo.NewInvoiceRepository(client, logger),
		UsageRepo:                pgrepo.NewUsageRepository(client, logger),
		TaxRateRepo:              pgrepo.NewTaxRateRepository(client, logger, c),
		TaxRateProvider:          pgrepo.NewTaxRateProvider(client, logger, c),
	}
}
