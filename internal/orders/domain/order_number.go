package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OrderNumberDigits is the zero-padded width of the daily sequence.
const OrderNumberDigits = 4

// OrderNumberDayPrefix returns the part of an order number shared by every order of at's day.
func OrderNumberDayPrefix(prefix string, at time.Time) string {
	return prefix + at.Format("20060102")
}

// FormatOrderNumber renders <prefix><YYYYMMDD><seq>.
func FormatOrderNumber(prefix string, at time.Time, seq int) string {
	return fmt.Sprintf("%s%0*d", OrderNumberDayPrefix(prefix, at), OrderNumberDigits, seq)
}

// OrderNumberSequence extracts the daily sequence from number, given its day prefix.
func OrderNumberSequence(dayPrefix, number string) (int, bool) {
	suffix, ok := strings.CutPrefix(number, dayPrefix)
	if !ok || suffix == "" {
		return 0, false
	}
	seq, err := strconv.Atoi(suffix)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}
