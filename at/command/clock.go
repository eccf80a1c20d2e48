package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/temoto/nbiot/at"
)

const clockLayout = "06/01/02,15:04:05"

// GetClock is AT+CCLK?, reply "yy/MM/dd,hh:mm:ss±zz" where zz is quarter hours.
type GetClock struct{}

func (GetClock) Encode(b []byte) ([]byte, error) { return at.Query(b, "+CCLK") }
func (GetClock) Decode(r []byte) (time.Time, error) {
	p := at.NewParser("+CCLK?", r)
	s := strings.Trim(p.Expect("+CCLK:").Raw(), `"`)
	if err := p.Finish(); err != nil {
		return time.Time{}, err
	}
	if len(s) < len(clockLayout) {
		return time.Time{}, at.NewDecodeError("+CCLK?", "short time", r)
	}
	loc := time.UTC
	if zone := s[len(clockLayout):]; zone != "" {
		q, err := strconv.Atoi(zone)
		if err != nil {
			return time.Time{}, at.NewDecodeError("+CCLK?", "invalid zone "+zone, r)
		}
		loc = time.FixedZone("", q*15*60)
	}
	t, err := time.ParseInLocation(clockLayout, s[:len(clockLayout)], loc)
	if err != nil {
		return time.Time{}, at.NewDecodeError("+CCLK?", err.Error(), r)
	}
	return t, nil
}

// StartNTP is AT+CSNTPSTART="server"[,"tz"].
type StartNTP struct {
	Server   string
	Timezone string
}

func (self StartNTP) Encode(b []byte) ([]byte, error) {
	if self.Server == "" {
		return nil, errNotValid("ntp server", `""`)
	}
	w := at.Set(b, "+CSNTPSTART").String(self.Server)
	if self.Timezone != "" {
		w.String(self.Timezone)
	}
	return w.Finish()
}
func (StartNTP) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CSNTPSTART", r) }

// StopNTP is AT+CSNTPSTOP.
type StopNTP struct{}

func (StopNTP) Encode(b []byte) ([]byte, error)   { return at.Exec(b, "+CSNTPSTOP") }
func (StopNTP) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CSNTPSTOP", r) }
