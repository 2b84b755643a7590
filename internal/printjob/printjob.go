// Package printjob materializes immutable print jobs from order snapshots
// and owns the cross-cycle job queue.
package printjob

import (
	"log"
	"strings"

	"odelivery/terminal/internal/domain"
	"odelivery/terminal/internal/receipt"
)

// Materialize builds one job per snapshot. A snapshot that fails to render
// is skipped with a warning so the rest of the batch still goes through.
func Materialize(orders []domain.OrderSnapshot, style domain.StyleConfig) []domain.PrintJob {
	jobs := make([]domain.PrintJob, 0, len(orders))
	for _, order := range orders {
		job, err := materializeOne(order, style)
		if err != nil {
			log.Printf("[printjob] WARN: skipping order %q: %v", order.ID, err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func materializeOne(order domain.OrderSnapshot, style domain.StyleConfig) (domain.PrintJob, error) {
	doc, err := receipt.Render(order, style, order.Tenant)
	if err != nil {
		return domain.PrintJob{}, err
	}

	copies := style.Copies
	if copies < 1 {
		copies = 1
	}

	label, _ := receipt.PaymentLabel(order)
	return domain.PrintJob{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          domain.JobStatusPending,
		BackendStatus:   order.Status,
		Content:         doc,
		CustomerDisplay: customerDisplay(order),
		AddressDisplay:  addressDisplay(order),
		PaymentDisplay:  label,
		Total:           order.Total,
		Copies:          copies,
		CreatedAt:       order.CreatedAt,
	}, nil
}

func customerDisplay(order domain.OrderSnapshot) string {
	if order.Customer == nil || order.Customer.Name == "" {
		return "Cliente não identificado"
	}
	return order.Customer.Name
}

func addressDisplay(order domain.OrderSnapshot) string {
	if order.Address == nil {
		if order.Mode == domain.OrderModeTable && order.TableNumber != "" {
			return "Mesa " + order.TableNumber
		}
		return "Retirada no balcão"
	}
	parts := make([]string, 0, 3)
	street := order.Address.Street
	if order.Address.Number != "" {
		street += ", " + order.Address.Number
	}
	if street != "" {
		parts = append(parts, street)
	}
	if order.Address.Neighborhood != "" {
		parts = append(parts, order.Address.Neighborhood)
	}
	return strings.Join(parts, " - ")
}
