// internal/game/gofish.go
//
// Go Fish kind definition.
// The session layer only needs the initial fields and a typed view of the
// stored record; card play lives outside this service.

package game

import (
	"fmt"
	"time"
)

// Go Fish specific record fields.
const (
	gofishUserEmail = "user_email"
	gofishStartTime = "start_time"
)

// GoFishState is the typed view of a Go Fish session record.
type GoFishState struct {
	ID        string `json:"id"`
	Host      string `json:"host"`
	UserEmail string `json:"user_email"`
	StartTime string `json:"start_time"` // RFC 3339, UTC
	State     State  `json:"state"`
}

// GoFish is the Definition registered for KindGoFish.
var GoFish = Definition[GoFishState]{
	Kind:    KindGoFish,
	Initial: goFishInitial,
	Decode:  decodeGoFish,
}

func goFishInitial(host string, now time.Time) Record {
	return Record{
		gofishUserEmail: host,
		gofishStartTime: now.UTC().Format("2006-01-02T15:04:05.000000Z"),
	}
}

func decodeGoFish(r Record) (GoFishState, error) {
	s := GoFishState{
		ID:        r[FieldID],
		Host:      r[FieldHost],
		UserEmail: r[gofishUserEmail],
		StartTime: r[gofishStartTime],
		State:     State(r[FieldState]),
	}
	if s.UserEmail == "" {
		s.UserEmail = s.Host
	}
	if s.UserEmail == "" || s.State == "" {
		return GoFishState{}, fmt.Errorf("decode gofish state: missing %s or %s", gofishUserEmail, FieldState)
	}
	return s, nil
}
