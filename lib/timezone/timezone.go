package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Australia/Melbourne")
	if err != nil {
		panic(err)
	}
}

// the portals belong to Victorian schools and stamp their exports in local
// time, so date arithmetic has to happen there no matter where this
// process runs
func Now() time.Time {
	return time.Now().In(Location)
}

// Today returns midnight of the current day in school-local time.
func Today() time.Time {
	now := Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, Location)
}

// StartOfSchoolYear returns January 1st of the year t falls in, the earliest
// date any of the portals hold data for within a school year.
func StartOfSchoolYear(t time.Time) time.Time {
	return time.Date(t.In(Location).Year(), time.January, 1, 0, 0, 0, 0, Location)
}
