package attendance

// Summary counts records per status. Every status is present as a key.
type Summary map[Status]int

// Summarize tallies records by status.
func Summarize(records []Record) Summary {
	s := make(Summary, len(Statuses))
	for _, st := range Statuses {
		s[st] = 0
	}
	for _, r := range records {
		s[r.Status]++
	}
	return s
}

// Total returns the number of records counted.
func (s Summary) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}
