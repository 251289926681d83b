package engine

import (
	"context"

	"github.com/Veraticus/radsort/internal/model"
	"github.com/Veraticus/radsort/internal/relocate"
	"github.com/Veraticus/radsort/internal/resolver"
)

// Resolver defines the contract for finding a report's patient folder.
type Resolver interface {
	Resolve(ctx context.Context, report *model.ReportFile) resolver.Result
}

// Relocator defines the contract for placing a report into a folder.
type Relocator interface {
	Relocate(src string, folder model.PatientFolder, mode relocate.Mode) relocate.Result
}
