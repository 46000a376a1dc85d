package postgres

import (
	"context"
	"database/sql"

	"github.com/billforge/billforge/internal/domain/invoice"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/postgres"
	"github.com/billforge/billforge/internal/types"
)

type invoiceRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

// NewInvoiceRepository creates a postgres backed invoice repository
func NewInvoiceRepository(client postgres.IClient, logger *logger.Logger) invoice.Repository {
	return &invoiceRepository{client: client, logger: logger}
}

func (r *invoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	return r.client.WithTx(ctx, func(ctx context.Context) error {
		_, err := r.client.Querier(ctx).NamedExecContext(ctx, `
			INSERT INTO invoices (
				id, client_id, invoice_number, invoice_status, currency, tax_region,
				total_amount, credit_applied, period_start, period_end,
				finalized_at, delivered_at, description, version,
				tenant_id, status, created_at, updated_at, created_by, updated_by
			) VALUES (
				:id, :client_id, :invoice_number, :invoice_status, :currency, :tax_region,
				:total_amount, :credit_applied, :period_start, :period_end,
				:finalized_at, :delivered_at, :description, :version,
				:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
			)`, inv)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return ierr.WithError(err).
					WithHintf("An invoice with number %s already exists", inv.InvoiceNumber).
					Mark(ierr.ErrAlreadyExists)
			}
			return ierr.WithError(err).
				WithHint("Failed to create invoice").
				Mark(ierr.ErrDatabase)
		}

		for _, item := range inv.Items {
			if err := r.insertItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *invoiceRepository) insertItem(ctx context.Context, item *invoice.InvoiceItem) error {
	_, err := r.client.Querier(ctx).NamedExecContext(ctx, `
		INSERT INTO invoice_items (
			id, invoice_id, service_id, description, quantity, unit_rate, currency,
			source, is_discount, discount_type, discount_percentage, applies_to_item_id,
			is_taxable, is_removed, total_price, tax_amount, net_amount,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :invoice_id, :service_id, :description, :quantity, :unit_rate, :currency,
			:source, :is_discount, :discount_type, :discount_percentage, :applies_to_item_id,
			:is_taxable, :is_removed, :total_price, :tax_amount, :net_amount,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`, item)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create invoice line item").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *invoiceRepository) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := r.client.Querier(ctx).GetContext(ctx, &inv, `
		SELECT * FROM invoices
		WHERE id = $1 AND tenant_id = $2 AND status != $3`,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("invoice not found").
				WithHintf("Invoice with ID %s was not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get invoice").
			Mark(ierr.ErrDatabase)
	}

	err = r.client.Querier(ctx).SelectContext(ctx, &inv.Items, `
		SELECT * FROM invoice_items
		WHERE invoice_id = $1 AND tenant_id = $2 AND status != $3
		ORDER BY created_at`,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to load invoice line items").
			Mark(ierr.ErrDatabase)
	}

	return &inv, nil
}

// Update rewrites the invoice header and line items atomically. The
// header write carries an optimistic version check so the aggregate is
// the last writer for the invoice within the transaction.
func (r *invoiceRepository) Update(ctx context.Context, inv *invoice.Invoice) error {
	return r.client.WithTx(ctx, func(ctx context.Context) error {
		inv.Touch(ctx)
		result, err := r.client.Querier(ctx).ExecContext(ctx, `
			UPDATE invoices SET
				invoice_status = $1, total_amount = $2, credit_applied = $3,
				finalized_at = $4, delivered_at = $5, description = $6,
				version = version + 1, updated_at = $7, updated_by = $8
			WHERE id = $9 AND tenant_id = $10 AND version = $11`,
			inv.InvoiceStatus, inv.TotalAmount, inv.CreditApplied,
			inv.FinalizedAt, inv.DeliveredAt, inv.Description,
			inv.UpdatedAt, inv.UpdatedBy,
			inv.ID, types.GetTenantID(ctx), inv.Version)
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to update invoice").
				Mark(ierr.ErrDatabase)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return ierr.WithError(err).
				WithHint("Failed to read update result").
				Mark(ierr.ErrDatabase)
		}
		if rows == 0 {
			return ierr.NewError("invoice version conflict").
				WithHint("The invoice was modified concurrently, retry the operation").
				Mark(ierr.ErrVersionConflict)
		}
		inv.Version++

		for _, item := range inv.Items {
			item.Touch(ctx)
			res, err := r.client.Querier(ctx).NamedExecContext(ctx, `
				UPDATE invoice_items SET
					description = :description, quantity = :quantity, unit_rate = :unit_rate,
					is_discount = :is_discount, discount_type = :discount_type,
					discount_percentage = :discount_percentage, applies_to_item_id = :applies_to_item_id,
					is_taxable = :is_taxable, is_removed = :is_removed,
					total_price = :total_price, tax_amount = :tax_amount, net_amount = :net_amount,
					status = :status, updated_at = :updated_at, updated_by = :updated_by
				WHERE id = :id AND tenant_id = :tenant_id`, item)
			if err != nil {
				return ierr.WithError(err).
					WithHint("Failed to update invoice line item").
					Mark(ierr.ErrDatabase)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return ierr.WithError(err).
					WithHint("Failed to read update result").
					Mark(ierr.ErrDatabase)
			}
			if affected == 0 {
				if err := r.insertItem(ctx, item); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (r *invoiceRepository) ListByClient(ctx context.Context, clientID string) ([]*invoice.Invoice, error) {
	var invoices []*invoice.Invoice
	err := r.client.Querier(ctx).SelectContext(ctx, &invoices, `
		SELECT * FROM invoices
		WHERE client_id = $1 AND tenant_id = $2 AND status != $3
		ORDER BY created_at DESC`,
		clientID, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list invoices").
			Mark(ierr.ErrDatabase)
	}
	return invoices, nil
}
