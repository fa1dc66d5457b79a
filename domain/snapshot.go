package domain

// Snapshot is the full serializable board state, the unit of load/save.
type Snapshot struct {
	Tasks    []Task   `json:"tasks"`
	Statuses []Status `json:"statuses"`
}

// DefaultSnapshot is the bootstrap state used when no prior snapshot exists:
// three well-known columns, zero tasks.
func DefaultSnapshot() Snapshot {
	return Snapshot{Tasks: []Task{}, Statuses: DefaultStatuses()}
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{}
	if s.Tasks != nil {
		out.Tasks = make([]Task, len(s.Tasks))
		for i, t := range s.Tasks {
			out.Tasks[i] = t.Clone()
		}
	}
	if s.Statuses != nil {
		out.Statuses = make([]Status, len(s.Statuses))
		copy(out.Statuses, s.Statuses)
	}
	return out
}

// FallbackStatusID returns the id of the first status, the designated target
// for tasks orphaned by a column deletion. Empty when the board has no
// statuses yet.
func (s Snapshot) FallbackStatusID() string {
	if len(s.Statuses) == 0 {
		return ""
	}
	return s.Statuses[0].ID
}

// HasStatus reports whether the snapshot contains a status with the given id.
func (s Snapshot) HasStatus(id string) bool {
	for _, st := range s.Statuses {
		if st.ID == id {
			return true
		}
	}
	return false
}
