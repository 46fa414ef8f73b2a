package ride

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rx3lixir/ridepool/internal/conversation"
	"github.com/rx3lixir/ridepool/internal/storage/postgres"
)

type PostgresStore struct {
	db          postgres.DBTX
	lockTimeout time.Duration
}

func NewPostgresStore(db postgres.DBTX, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

const rideColumns = `
	id, owner_id, origin, destination, total_fare, vehicle_type,
	total_passengers, total_accepted, ride_time, note, status,
	participants, preferences, conversation_id, created_at, updated_at
`

func scanRide(row pgx.Row) (*Ride, error) {
	r := &Ride{}
	err := row.Scan(
		&r.ID,
		&r.OwnerID,
		&r.Origin,
		&r.Destination,
		&r.TotalFare,
		&r.VehicleType,
		&r.TotalPassengers,
		&r.TotalAccepted,
		&r.RideTime,
		&r.Note,
		&r.Status,
		&r.Participants,
		&r.Preferences,
		&r.ConversationID,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.Participants == nil {
		r.Participants = []uuid.UUID{}
	}
	if r.Preferences == nil {
		r.Preferences = []Preference{}
	}
	return r, nil
}

func collectRides(rows pgx.Rows) ([]*Ride, error) {
	defer rows.Close()

	rides := []*Ride{}
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ride: %w", err)
		}
		rides = append(rides, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rides: %w", err)
	}
	return rides, nil
}

// Create inserts a new ride request
func (s *PostgresStore) Create(ctx context.Context, r *Ride) error {
	r.ID = uuid.New()
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Participants == nil {
		r.Participants = []uuid.UUID{}
	}
	if r.Preferences == nil {
		r.Preferences = []Preference{}
	}

	query := `INSERT INTO ride_requests (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := s.db.Exec(ctx, query,
		r.ID, r.OwnerID, r.Origin, r.Destination, r.TotalFare, r.VehicleType,
		r.TotalPassengers, r.TotalAccepted, r.RideTime, r.Note, r.Status,
		r.Participants, r.Preferences, r.ConversationID, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		return postgres.Classify(fmt.Errorf("failed to create ride: %w", err))
	}

	return nil
}

// GetByID retrieves a ride without locking it
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Ride, error) {
	return getRide(ctx, s.db, id, false)
}

func getRide(ctx context.Context, db postgres.DBTX, id uuid.UUID, forUpdate bool) (*Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM ride_requests WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	r, err := scanRide(db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRideNotFound
		}
		return nil, postgres.Classify(fmt.Errorf("failed to get ride: %w", err))
	}
	return r, nil
}

// List runs a resolved filter
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Ride, error) {
	query, args := buildListQuery(f)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rides: %w", err)
	}
	return collectRides(rows)
}

// buildListQuery mirrors Filter.Match in SQL
func buildListQuery(f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	like := func(v string) string {
		return arg("%" + escapeLike(v) + "%")
	}

	switch f.Status {
	case "", StatusAll:
		where = append(where, "status <> 'cancelled'")
	default:
		where = append(where, "status = "+arg(string(f.Status)))
	}

	if f.VisibleTo != uuid.Nil {
		p := arg(f.VisibleTo)
		where = append(where, fmt.Sprintf("(owner_id = %s OR status = 'pending' OR %s = ANY(participants))", p, p))
	}
	if !f.From.IsZero() {
		where = append(where, "ride_time >= "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "ride_time <= "+arg(f.To))
	}
	if f.Search != "" {
		p := like(f.Search)
		where = append(where, fmt.Sprintf(
			"(origin ILIKE %[1]s OR destination ILIKE %[1]s OR note ILIKE %[1]s OR vehicle_type ILIKE %[1]s)", p))
	}
	if f.Location != "" {
		p := like(f.Location)
		where = append(where, fmt.Sprintf("(origin ILIKE %[1]s OR destination ILIKE %[1]s)", p))
	}
	if f.Origin != "" {
		where = append(where, "origin ILIKE "+like(f.Origin))
	}
	if f.Destination != "" {
		where = append(where, "destination ILIKE "+like(f.Destination))
	}
	if f.VehicleType != "" {
		where = append(where, "vehicle_type = "+arg(string(f.VehicleType)))
	}
	if f.MinFare > 0 {
		where = append(where, "total_fare >= "+arg(f.MinFare))
	}
	if f.MaxFare > 0 {
		where = append(where, "total_fare <= "+arg(f.MaxFare))
	}
	if f.MinPassengers > 0 {
		where = append(where, "total_passengers >= "+arg(f.MinPassengers))
	}

	if f.Gender != "" || f.AgeRange != "" || f.Institution != "" {
		var pref []string
		if f.Gender != "" {
			pref = append(pref, "p->>'gender' = "+arg(string(f.Gender)))
		}
		if f.AgeRange != "" {
			pref = append(pref, "p->>'age_range' = "+arg(f.AgeRange))
		}
		if f.Institution != "" {
			pref = append(pref, "p->>'institution' ILIKE "+like(f.Institution))
		}
		where = append(where, "EXISTS (SELECT 1 FROM jsonb_array_elements(preferences) p WHERE "+
			strings.Join(pref, " AND ")+")")
	}

	// Text keys compare bytewise so both stores agree on ordering
	var order []string
	for _, k := range f.SortBy {
		switch k {
		case SortGender:
			order = append(order, `COALESCE(preferences->0->>'gender', '') COLLATE "C" ASC`)
		case SortAge:
			order = append(order, `COALESCE(preferences->0->>'age_range', '') COLLATE "C" ASC`)
		case SortFare:
			order = append(order, "total_fare ASC")
		case SortOrigin:
			order = append(order, `origin COLLATE "C" ASC`)
		case SortDestination:
			order = append(order, `destination COLLATE "C" ASC`)
		case SortRideTime:
			order = append(order, "ride_time ASC")
		}
	}
	if len(order) == 0 {
		order = append(order, "ride_time ASC")
	}
	order = append(order, `id::text COLLATE "C" ASC`)

	query := `SELECT ` + rideColumns + ` FROM ride_requests WHERE ` +
		strings.Join(where, " AND ") +
		` ORDER BY ` + strings.Join(order, ", ")

	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	return query, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListCreatedBy returns the owner's rides, newest first
func (s *PostgresStore) ListCreatedBy(ctx context.Context, ownerID uuid.UUID) ([]*Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM ride_requests
		WHERE owner_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list created rides: %w", err)
	}
	return collectRides(rows)
}

// ListJoinedBy returns rides the user is seated on, soonest first
func (s *PostgresStore) ListJoinedBy(ctx context.Context, userID uuid.UUID) ([]*Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM ride_requests
		WHERE $1 = ANY(participants)
		ORDER BY ride_time ASC`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list joined rides: %w", err)
	}
	return collectRides(rows)
}

// WithinTx opens a transaction with a bounded lock wait and hands fn a unit
// of work bound to it
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	return postgres.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := postgres.SetLockTimeout(ctx, tx, s.lockTimeout); err != nil {
			return postgres.Classify(err)
		}
		return fn(ctx, &pgUnitOfWork{tx: tx})
	})
}

type pgUnitOfWork struct {
	tx pgx.Tx
}

func (u *pgUnitOfWork) LockRide(ctx context.Context, id uuid.UUID) (*Ride, error) {
	return getRide(ctx, u.tx, id, true)
}

func (u *pgUnitOfWork) SaveRide(ctx context.Context, r *Ride) error {
	query := `
		UPDATE ride_requests SET
			total_accepted = $2,
			status = $3,
			participants = $4,
			conversation_id = $5,
			updated_at = $6
		WHERE id = $1
	`

	tag, err := u.tx.Exec(ctx, query,
		r.ID, r.TotalAccepted, r.Status, r.Participants, r.ConversationID, r.UpdatedAt)
	if err != nil {
		return postgres.Classify(fmt.Errorf("failed to update ride: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrRideNotFound
	}
	return nil
}

func (u *pgUnitOfWork) DeleteRide(ctx context.Context, id uuid.UUID) error {
	tag, err := u.tx.Exec(ctx, `DELETE FROM ride_requests WHERE id = $1`, id)
	if err != nil {
		return postgres.Classify(fmt.Errorf("failed to delete ride: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrRideNotFound
	}
	return nil
}

func (u *pgUnitOfWork) Conversations() conversation.Store {
	return conversation.NewPostgresStore(u.tx)
}
