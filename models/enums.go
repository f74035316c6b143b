package models

// Collection is the closed set of synced collections. Every outbox entry and
// conflict row names one of these; the remote resource path and the allowed
// operations are derived here instead of from free-form strings.
type Collection string

const (
	CollectionProducts       Collection = "products"
	CollectionInvoices       Collection = "invoices"
	CollectionStockMoves     Collection = "stock_moves"
	CollectionReservations   Collection = "reservations"
	CollectionJournalEntries Collection = "journal_entries"
	// CollectionPosSales bundles a whole offline sale (invoice + lines + raw
	// input) into one entry for atomic replay on the server.
	CollectionPosSales Collection = "pos_sales"
)

// ResourcePath maps a collection to its remote REST resource.
func (c Collection) ResourcePath() string {
	switch c {
	case CollectionProducts:
		return "products"
	case CollectionInvoices:
		return "invoices"
	case CollectionStockMoves:
		return "stock-moves"
	case CollectionReservations:
		return "reservations"
	case CollectionJournalEntries:
		return "journal-entries"
	case CollectionPosSales:
		return "pos/sales"
	}
	return ""
}

func (c Collection) Valid() bool {
	return c.ResourcePath() != ""
}

// Operation is the mutation kind carried by an outbox entry.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// AllowsOperation rejects nonsense pairs up front (the ledger collections are
// append-only; a bundled POS sale can only ever be created).
func (c Collection) AllowsOperation(op Operation) bool {
	switch c {
	case CollectionStockMoves, CollectionJournalEntries, CollectionPosSales:
		return op == OperationCreate
	case CollectionProducts, CollectionInvoices, CollectionReservations:
		return op == OperationCreate || op == OperationUpdate || op == OperationDelete
	}
	return false
}

// Outbox entry statuses.
type OutboxEntryStatus string

const (
	OutboxStatusPending  OutboxEntryStatus = "pending"
	OutboxStatusSynced   OutboxEntryStatus = "synced"
	OutboxStatusConflict OutboxEntryStatus = "conflict"
	OutboxStatusFailed   OutboxEntryStatus = "failed"
)

// Reservation lifecycle. fulfilled, cancelled and expired are terminal.
type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "active"
	ReservationStatusFulfilled ReservationStatus = "fulfilled"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusExpired   ReservationStatus = "expired"
)

func (s ReservationStatus) Terminal() bool {
	return s == ReservationStatusFulfilled || s == ReservationStatusCancelled || s == ReservationStatusExpired
}

// Stock move direction.
type MoveType string

const (
	MoveTypeIn  MoveType = "in"
	MoveTypeOut MoveType = "out"
)

// Conflict classification.
type ConflictSeverity string

const (
	ConflictSeverityLow      ConflictSeverity = "LOW"
	ConflictSeverityMedium   ConflictSeverity = "MEDIUM"
	ConflictSeverityHigh     ConflictSeverity = "HIGH"
	ConflictSeverityCritical ConflictSeverity = "CRITICAL"
)

type ConflictStatus string

const (
	ConflictStatusPending  ConflictStatus = "pending"
	ConflictStatusResolved ConflictStatus = "resolved"
)

type ResolutionAction string

const (
	ResolutionUseLocal  ResolutionAction = "use_local"
	ResolutionUseServer ResolutionAction = "use_server"
	ResolutionMerge     ResolutionAction = "merge"
)

type ConflictKind string

const (
	ConflictKindStock   ConflictKind = "STOCK_CONFLICT"
	ConflictKindVersion ConflictKind = "VERSION_CONFLICT"
)

// Invoice statuses on the offline path. POS sales are recorded as paid.
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusPaid  InvoiceStatus = "paid"
)
