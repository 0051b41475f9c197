package marking

import "strings"

// ComputeStatistics counts marks by status. Only students on the roster are
// counted and Total is always the roster size.
func ComputeStatistics(entries []RosterEntry, marks map[int64]Record) Statistics {
	st := Statistics{Total: len(entries)}
	for _, e := range entries {
		rec, ok := marks[e.StudentID]
		if !ok {
			continue
		}
		switch rec.Status {
		case StatusPresent:
			st.Present++
		case StatusAbsent:
			st.Absent++
		case StatusLate:
			st.Late++
		case StatusExcused:
			st.Excused++
		}
	}
	return st
}

// FilterEntries matches term case-insensitively against first name, last name
// and admission number. An empty term returns entries unchanged.
func FilterEntries(entries []RosterEntry, term string) []RosterEntry {
	term = lower(strings.TrimSpace(term))
	if term == "" {
		return entries
	}
	out := make([]RosterEntry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(lower(e.FirstName), term) ||
			strings.Contains(lower(e.LastName), term) ||
			strings.Contains(lower(e.AdmissionNumber), term) {
			out = append(out, e)
		}
	}
	return out
}

func lower(s string) string { return strings.ToLower(s) }

// PriorMarks returns the marks carried by the roster itself, skipping
// students with no valid prior status.
func PriorMarks(entries []RosterEntry) map[int64]Record {
	marks := make(map[int64]Record)
	for _, e := range entries {
		if e.PriorStatus.Valid() {
			marks[e.StudentID] = Record{Status: e.PriorStatus, Remarks: e.PriorRemarks}
		}
	}
	return marks
}
