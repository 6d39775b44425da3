package ports

// CheckpointStore persists named-stage progress so an interrupted run can
// resume without redoing completed work. One record exists per stage; each
// successful Save overwrites the previous record for that stage.
//
// Implementations must make Save atomic with respect to process crash: a
// reader must never observe a partially written record.
type CheckpointStore interface {
	// Save durably writes the payload as the record for the stage.
	// The payload must be JSON-serializable.
	Save(stage string, payload any) error

	// Load reads the stage's record into out, which must be a pointer.
	// It returns false when no record exists for the stage, an explicit
	// absent marker distinct from a record containing zero items.
	Load(stage string, out any) (bool, error)

	// Clear removes the stage's record. Clearing an absent stage is a
	// no-op.
	Clear(stage string) error
}
