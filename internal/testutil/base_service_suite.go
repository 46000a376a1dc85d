package testutil

import (
	"context"
	"time"

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
	"github.com/billforge/billforge/internal/types"
	"github.com/billforge/billforge/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
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

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx    context.Context
	stores Stores
	db     postgres.IClient
	logger *logger.Logger
	config *config.Configuration
	cache  cache.Cache
	now    time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	validator.NewValidator()

	cfg := &config.Configuration{
		Logging: config.LoggingConfig{
			Level: types.LogLevelInfo,
		},
	}
	var err error
	s.config = cfg
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}

	cache.Initialize(s.logger)
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = SetupContext()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.db = NewMockPostgresClient(s.logger)
	s.cache = cache.NewInMemoryCache()

	taxRateStore := NewInMemoryTaxRateStore(s.cache)
	s.stores = Stores{
		ContractLineRepo:  NewInMemoryContractLineStore(),
		ServiceConfigRepo: NewInMemoryServiceConfigurationStore(),
		AssignmentRepo:    NewInMemoryAssignmentStore(),
		BillingCycleRepo:  NewInMemoryBillingCycleStore(),
		BucketLedgerRepo:  NewInMemoryBucketLedgerStore(),
		InvoiceRepo:       NewInMemoryInvoiceStore(),
		UsageRepo:         NewInMemoryUsageStore(),
		TaxRateRepo:       taxRateStore,
		TaxRateProvider:   taxRateStore,
	}
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.ContractLineRepo.(*InMemoryContractLineStore).Clear()
	s.stores.ServiceConfigRepo.(*InMemoryServiceConfigurationStore).Clear()
	s.stores.AssignmentRepo.(*InMemoryAssignmentStore).Clear()
	s.stores.BillingCycleRepo.(*InMemoryBillingCycleStore).Clear()
	s.stores.BucketLedgerRepo.(*InMemoryBucketLedgerStore).Clear()
	s.stores.InvoiceRepo.(*InMemoryInvoiceStore).Clear()
	s.stores.UsageRepo.(*InMemoryUsageStore).Clear()
	s.stores.TaxRateRepo.(*InMemoryTaxRateStore).Clear()
	s.cache.Flush(s.ctx)
}

// ClearStores resets every store mid-test
func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetStores returns the in-memory repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetDB returns the mock postgres client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetCache returns the test cache
func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

// GetNow returns the test start time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now
}
