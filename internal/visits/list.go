package visits

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldops-backend/internal/authz"
	"github.com/angelmondragon/fieldops-backend/pkg/db/models"
	"github.com/angelmondragon/fieldops-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldops-backend/pkg/errors"
	"github.com/angelmondragon/fieldops-backend/pkg/pagination"
)

func (s *service) ListToday(ctx context.Context, actor authz.Actor, repID *uuid.UUID) ([]VisitDTO, error) {
	target, err := s.listScope(actor, repID)
	if err != nil {
		return nil, err
	}
	start := startOfDay(s.now())
	end := start.AddDate(0, 0, 1)

	rows, err := s.visits.List(ctx, ListFilter{
		CompanyID:        actor.CompanyID,
		RepresentativeID: target,
		From:             &start,
		To:               &end,
		Limit:            pagination.MaxLimit,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list visits")
	}
	if len(rows) > pagination.MaxLimit {
		rows = rows[:pagination.MaxLimit]
	}
	out := make([]VisitDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) ListHistory(ctx context.Context, actor authz.Actor, filter HistoryFilter) (pagination.Page[VisitDTO], error) {
	target, err := s.listScope(actor, filter.RepresentativeID)
	if err != nil {
		return pagination.Page[VisitDTO]{}, err
	}
	cursor, err := pagination.ParseCursor(filter.Page.Cursor)
	if err != nil {
		return pagination.Page[VisitDTO]{}, err
	}

	query := ListFilter{
		CompanyID:        actor.CompanyID,
		RepresentativeID: target,
		Cursor:           cursor,
		Limit:            filter.Page.Limit,
	}
	if filter.StartDate != nil {
		from := startOfDay(*filter.StartDate)
		query.From = &from
	}
	if filter.EndDate != nil {
		to := startOfDay(*filter.EndDate).AddDate(0, 0, 1)
		query.To = &to
	}
	if query.From != nil && query.To != nil && !query.To.After(*query.From) {
		return pagination.Page[VisitDTO]{}, pkgerrors.New(pkgerrors.CodeValidation, "end_date must not precede start_date")
	}

	rows, err := s.visits.List(ctx, query)
	if err != nil {
		return pagination.Page[VisitDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list visits")
	}
	page := pagination.Build(rows, filter.Page.Limit, func(v models.Visit) pagination.Cursor {
		return pagination.Cursor{At: v.CheckInTime, ID: v.ID}
	})
	out := pagination.Page[VisitDTO]{Items: make([]VisitDTO, 0, len(page.Items)), NextCursor: page.NextCursor}
	for i := range page.Items {
		out.Items = append(out.Items, FromModel(&page.Items[i]))
	}
	return out, nil
}

// MaxExportRows caps one export. Larger ranges must be split by date.
const MaxExportRows = 5000

// ExportHistory walks every history page for filter. The cursor in
// filter.Page is ignored.
func (s *service) ExportHistory(ctx context.Context, actor authz.Actor, filter HistoryFilter) ([]VisitDTO, error) {
	filter.Page = pagination.Params{Limit: pagination.MaxLimit}
	var out []VisitDTO
	for {
		page, err := s.ListHistory(ctx, actor, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if len(out) > MaxExportRows {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "export is limited to 5000 visits, narrow the date range").
				WithDetails(map[string]any{"max_rows": MaxExportRows})
		}
		if page.NextCursor == "" {
			return out, nil
		}
		filter.Page.Cursor = page.NextCursor
	}
}

// listScope pins sales reps to their own visits. Management may narrow to
// one representative or see the whole company.
func (s *service) listScope(actor authz.Actor, repID *uuid.UUID) (*uuid.UUID, error) {
	if actor.Role == enums.RoleSalesRep && repID == nil {
		self := actor.UserID
		repID = &self
	}
	scope := authz.Scope{CompanyID: actor.CompanyID}
	if repID != nil {
		scope.RepresentativeID = *repID
	}
	if err := authz.Require(actor, authz.CapViewVisits, scope); err != nil {
		return nil, err
	}
	return repID, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
