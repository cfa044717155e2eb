package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/services"
	"github.com/ersonp/kin-core/internal/infrastructure/parsers"
)

// ImportHandler handles importing relationship declarations from files.
type ImportHandler struct {
	service *services.ImportService
	refresh *Refresher
}

// NewImportHandler creates a new import handler.
func NewImportHandler(service *services.ImportService, refresh *Refresher) *ImportHandler {
	return &ImportHandler{
		service: service,
		refresh: refresh,
	}
}

// ImportOptions controls import behavior.
type ImportOptions struct {
	Format string // "json", "csv", or "auto"
	DryRun bool   // Validate without saving
}

// ImportResult contains the result of an import operation.
type ImportResult struct {
	Imported int
	Skipped  int
	Derived  int
	Persons  int
	Errors   []services.ImportError
	Warnings []entities.Warning
}

// Handle imports declarations from a file.
func (h *ImportHandler) Handle(ctx context.Context, filePath string, opts ImportOptions) (*ImportResult, error) {
	// Get parser
	var parser parsers.Parser
	if opts.Format == "" || opts.Format == "auto" {
		parser = parsers.ForFile(filePath)
	} else {
		parser = parsers.ForFormat(opts.Format)
	}

	if parser == nil {
		return nil, fmt.Errorf("unsupported format for file: %s", filePath)
	}

	// Open file
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	// Parse declarations
	raws, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parsing file: %w", err)
	}

	if len(raws) == 0 {
		return &ImportResult{}, nil
	}

	serviceResult, err := h.service.Import(ctx, raws, services.ImportOptions{DryRun: opts.DryRun})
	if err != nil {
		return nil, err
	}

	// Accepted imports already enqueued their jobs when a queue is configured.
	if !opts.DryRun && !h.refresh.Queued() {
		h.refresh.Refresh(ctx, serviceResult.Touched...)
	}

	return &ImportResult{
		Imported: serviceResult.Imported,
		Skipped:  serviceResult.Skipped,
		Derived:  serviceResult.Derived,
		Persons:  serviceResult.Persons,
		Errors:   serviceResult.Errors,
		Warnings: serviceResult.Warnings,
	}, nil
}
