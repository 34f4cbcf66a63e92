package events

// Record is one event row. ID holds column 0; Columns holds the remaining
// columns in their original order.
type Record struct {
	ID      string
	Columns []string
}

// Field returns the value at position f of the original layout, or "" when the
// row is too short to have it.
func (r Record) Field(f Field) string {
	if f == 0 {
		return r.ID
	}
	i := int(f) - 1
	if i < 0 || i >= len(r.Columns) {
		return ""
	}
	return r.Columns[i]
}

// Values returns the full row, identifier first.
func (r Record) Values() []string {
	values := make([]string, 0, len(r.Columns)+1)
	values = append(values, r.ID)
	return append(values, r.Columns...)
}

// Table is the parsed content of one archive member.
type Table struct {
	Member  string
	Records []Record
}

// Len returns the number of records.
func (t Table) Len() int {
	return len(t.Records)
}

// Concat joins tables row-wise, preserving table order and row order within each.
func Concat(member string, tables ...Table) Table {
	total := 0
	for _, t := range tables {
		total += len(t.Records)
	}
	records := make([]Record, 0, total)
	for _, t := range tables {
		records = append(records, t.Records...)
	}
	return Table{Member: member, Records: records}
}
