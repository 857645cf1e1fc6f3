package attendance

// Tally counts records per status.
type Tally struct {
	Attending int `json:"attending"`
	Absent    int `json:"absent"`
	Maybe     int `json:"maybe"`
}

func (t *Tally) add(s Status) {
	switch s {
	case Attending:
		t.Attending++
	case Absent:
		t.Absent++
	case Maybe:
		t.Maybe++
	}
}

// Sum returns the number of records in the tally.
func (t Tally) Sum() int {
	return t.Attending + t.Absent + t.Maybe
}

// Counts is the per-status breakdown of a match, overall and per side.
type Counts struct {
	Total Tally `json:"total"`
	Home  Tally `json:"home"`
	Away  Tally `json:"away"`
}

// Count partitions the list by side.
// A record is home when its team is homeTeamID, away when its team is awayTeamID or it has no team.
// Records of any other team only count in Total. Empty team ids mean "not decided" and match nothing.
func Count(list List, homeTeamID, awayTeamID string) Counts {
	var c Counts
	for _, rec := range list {
		c.Total.add(rec.Status)
		switch {
		case homeTeamID != "" && rec.TeamID == homeTeamID:
			c.Home.add(rec.Status)
		case rec.TeamID == "" || (awayTeamID != "" && rec.TeamID == awayTeamID):
			c.Away.add(rec.Status)
		}
	}
	return c
}
