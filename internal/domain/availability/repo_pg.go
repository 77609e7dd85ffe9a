package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/healthfirst/availability/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// isConflict reports unique and exclusion constraint violations.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23P01")
}

// =========== Window Repository ===========

type windowRepoPG struct{ pool *pgxpool.Pool }

func NewWindowRepoPG(pool *pgxpool.Pool) WindowRepository { return &windowRepoPG{pool: pool} }

const windowCols = `id, provider_id, start_time, end_time, timezone, recurrence_type,
	recurrence_days, recurrence_end_date, slot_duration_minutes, price::float8, currency,
	location, appointment_type, special_requirements, status, notes, created_at, updated_at`

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var days []int16
	err := row.Scan(&w.ID, &w.ProviderID, &w.StartTime, &w.EndTime, &w.Timezone, &w.RecurrenceType,
		&days, &w.RecurrenceEndDate, &w.SlotDurationMinutes, &w.Price, &w.Currency,
		&w.Location, &w.AppointmentType, &w.SpecialRequirements, &w.Status, &w.Notes, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	for _, d := range days {
		w.RecurrenceDays = append(w.RecurrenceDays, time.Weekday(d))
	}
	w.StartTime = w.StartTime.UTC()
	w.EndTime = w.EndTime.UTC()
	if w.RecurrenceEndDate != nil {
		t := w.RecurrenceEndDate.UTC()
		w.RecurrenceEndDate = &t
	}
	return &w, nil
}

func (r *windowRepoPG) list(ctx context.Context, op, query string, args ...interface{}) ([]*Window, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()
	var items []*Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		items = append(items, w)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return items, nil
}

func (r *windowRepoPG) Create(ctx context.Context, w *Window) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	days := make([]int16, len(w.RecurrenceDays))
	for i, d := range w.RecurrenceDays {
		days[i] = int16(d)
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO availability_window (id, provider_id, start_time, end_time, timezone,
			recurrence_type, recurrence_days, recurrence_end_date, slot_duration_minutes, price,
			currency, location, appointment_type, special_requirements, status, notes,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		w.ID, w.ProviderID, w.StartTime, w.EndTime, w.Timezone,
		w.RecurrenceType, days, w.RecurrenceEndDate, w.SlotDurationMinutes, w.Price,
		w.Currency, w.Location, w.AppointmentType, w.SpecialRequirements, w.Status, w.Notes,
		w.CreatedAt, w.UpdatedAt)
	if isConflict(err) {
		return ErrOverlappingAvailability
	}
	if err != nil {
		return storageErr("insert window", err)
	}
	return nil
}

func (r *windowRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Window, error) {
	w, err := scanWindow(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+windowCols+` FROM availability_window WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWindowNotFound
	}
	if err != nil {
		return nil, storageErr("get window", err)
	}
	return w, nil
}

func (r *windowRepoPG) ListByProviderAndStatus(ctx context.Context, providerID uuid.UUID, status WindowStatus) ([]*Window, error) {
	return r.list(ctx, "list windows", `SELECT `+windowCols+` FROM availability_window
		WHERE provider_id = $1 AND status = $2
		ORDER BY created_at ASC, id ASC`, providerID, status)
}

func (r *windowRepoPG) FindOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*Window, error) {
	exclude := uuid.Nil
	if excludeID != nil {
		exclude = *excludeID
	}
	return r.list(ctx, "find overlapping windows", `SELECT `+windowCols+` FROM availability_window
		WHERE provider_id = $1 AND id <> $2 AND status = 'ACTIVE'
		  AND ((start_time < $4 AND end_time > $3)
		    OR (recurrence_type <> 'NONE' AND recurrence_end_date >= $3))
		ORDER BY created_at ASC, id ASC`, providerID, exclude, start, end)
}

func (r *windowRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status WindowStatus) error {
	tag, err := conn(ctx, r.pool).Exec(ctx,
		`UPDATE availability_window SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return storageErr("update window status", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

func (r *windowRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM availability_window WHERE id = $1`, id)
	if err != nil {
		return storageErr("delete window", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

// =========== Slot Repository ===========

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

var slotColumns = []string{"id", "window_id", "provider_id", "start_time", "end_time", "timezone",
	"status", "price", "currency", "location", "appointment_type", "special_requirements",
	"patient_id", "booking_notes", "created_at", "updated_at"}

const slotCols = `id, window_id, provider_id, start_time, end_time, timezone, status,
	price::float8, currency, location, appointment_type, special_requirements,
	patient_id, booking_notes, created_at, updated_at`

func scanSlot(row pgx.Row) (Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.WindowID, &s.ProviderID, &s.StartTime, &s.EndTime, &s.Timezone, &s.Status,
		&s.Price, &s.Currency, &s.Location, &s.AppointmentType, &s.SpecialRequirements,
		&s.PatientID, &s.BookingNotes, &s.CreatedAt, &s.UpdatedAt)
	s.StartTime = s.StartTime.UTC()
	s.EndTime = s.EndTime.UTC()
	return s, err
}

func (r *slotRepoPG) list(ctx context.Context, op, query string, args ...interface{}) ([]Slot, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()
	var items []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return items, nil
}

// CreateBatch streams all slots with COPY.
func (r *slotRepoPG) CreateBatch(ctx context.Context, slots []Slot) error {
	if len(slots) == 0 {
		return nil
	}
	_, err := conn(ctx, r.pool).CopyFrom(ctx, pgx.Identifier{"appointment_slot"}, slotColumns,
		pgx.CopyFromSlice(len(slots), func(i int) ([]interface{}, error) {
			s := &slots[i]
			return []interface{}{s.ID, s.WindowID, s.ProviderID, s.StartTime, s.EndTime, s.Timezone,
				string(s.Status), s.Price, s.Currency, s.Location, s.AppointmentType, s.SpecialRequirements,
				s.PatientID, s.BookingNotes, s.CreatedAt, s.UpdatedAt}, nil
		}))
	if err != nil {
		return storageErr("insert slots", err)
	}
	return nil
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := scanSlot(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+slotCols+` FROM appointment_slot WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, storageErr("get slot", err)
	}
	return &s, nil
}

func (r *slotRepoPG) ListByWindow(ctx context.Context, windowID uuid.UUID) ([]Slot, error) {
	return r.list(ctx, "list window slots", `SELECT `+slotCols+` FROM appointment_slot
		WHERE window_id = $1 ORDER BY start_time ASC, id ASC`, windowID)
}

func (r *slotRepoPG) ListByProvider(ctx context.Context, providerID uuid.UUID, status *SlotStatus) ([]Slot, error) {
	if status == nil {
		return r.list(ctx, "list provider slots", `SELECT `+slotCols+` FROM appointment_slot
			WHERE provider_id = $1 ORDER BY start_time ASC, id ASC`, providerID)
	}
	return r.list(ctx, "list provider slots", `SELECT `+slotCols+` FROM appointment_slot
		WHERE provider_id = $1 AND status = $2 ORDER BY start_time ASC, id ASC`, providerID, *status)
}

func (r *slotRepoPG) Search(ctx context.Context, f SlotFilter) ([]Slot, error) {
	query := `SELECT ` + slotCols + ` FROM appointment_slot
		WHERE status = 'AVAILABLE' AND start_time >= $1 AND start_time <= $2`
	args := []interface{}{f.From, f.To}
	idx := 3

	if f.Location != nil {
		query += fmt.Sprintf(` AND location ILIKE '%%' || $%d || '%%'`, idx)
		args = append(args, escapeLike(*f.Location))
		idx++
	}
	if f.AppointmentType != nil {
		query += fmt.Sprintf(` AND appointment_type = $%d`, idx)
		args = append(args, *f.AppointmentType)
		idx++
	}
	if f.ProviderID != nil {
		query += fmt.Sprintf(` AND provider_id = $%d`, idx)
		args = append(args, *f.ProviderID)
		idx++
	}
	if f.MaxPrice != nil {
		query += fmt.Sprintf(` AND price <= $%d`, idx)
		args = append(args, *f.MaxPrice)
		idx++
	}
	if f.SlotDurationMinutes != nil {
		query += fmt.Sprintf(` AND end_time - start_time = make_interval(mins => $%d)`, idx)
		args = append(args, *f.SlotDurationMinutes)
	}
	query += ` ORDER BY start_time ASC, id ASC`

	return r.list(ctx, "search slots", query, args...)
}

func (r *slotRepoPG) CountBookedByWindow(ctx context.Context, windowID uuid.UUID) (int, error) {
	var n int
	err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment_slot WHERE window_id = $1 AND status = 'BOOKED'`, windowID).Scan(&n)
	if err != nil {
		return 0, storageErr("count booked slots", err)
	}
	return n, nil
}

func (r *slotRepoPG) DeleteByWindow(ctx context.Context, windowID uuid.UUID) (int64, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointment_slot WHERE window_id = $1`, windowID)
	if err != nil {
		return 0, storageErr("delete window slots", err)
	}
	return tag.RowsAffected(), nil
}

func (r *slotRepoPG) UpdateUnlessBooked(ctx context.Context, s *Slot) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE appointment_slot SET start_time=$2, end_time=$3, status=$4, price=$5, currency=$6,
			location=$7, appointment_type=$8, special_requirements=$9, patient_id=$10,
			booking_notes=$11, updated_at=$12
		WHERE id = $1 AND status <> 'BOOKED'`,
		s.ID, s.StartTime, s.EndTime, s.Status, s.Price, s.Currency,
		s.Location, s.AppointmentType, s.SpecialRequirements, s.PatientID,
		s.BookingNotes, s.UpdatedAt)
	if err != nil {
		return false, storageErr("update slot", err)
	}
	return tag.RowsAffected() == 1, nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
