package events

// FilterByCode returns the records of t in which code appears in any of
// CodeFields. Comparison is exact and case-sensitive. The input is not modified
// and record order is preserved.
func FilterByCode(t Table, code string) Table {
	out := Table{Member: t.Member}
	for _, rec := range t.Records {
		if matches(rec, code) {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}

func matches(rec Record, code string) bool {
	for _, f := range CodeFields {
		i := int(f) - 1
		if i < len(rec.Columns) && rec.Columns[i] == code {
			return true
		}
	}
	return false
}
