package processor

import "time"

// nowSeconds backs the NOW RPN operator: wall-clock epoch seconds at
// evaluation time, not the query window's timestamps.
func nowSeconds() int64 {
	return time.Now().Unix()
}

// localOffset backs the LTIME operator: the host's civil-calendar offset
// from UTC at the given epoch second, per the non-goal that excludes any
// timezone math beyond the host's own local zone.
func localOffset(epoch int64) (time.Time, int64) {
	t := time.Unix(epoch, 0)
	_, offset := t.Local().Zone()
	return t, int64(offset)
}
