package etc

import (
	"time"

	"github.com/nrednav/cuid2"
)

func NewFreshID() string {
	return cuid2.Generate()
}

// SessionStamp formats a time the way transcript files are named.
func SessionStamp(t time.Time) string {
	return t.Format("2006-01-02_15-04-05")
}
