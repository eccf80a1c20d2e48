package command

import (
	"strings"

	"github.com/temoto/nbiot/at"
)

type PinStatus string

const (
	PinReady    PinStatus = "READY"
	PinSIM      PinStatus = "SIM PIN"
	PinSIMPUK   PinStatus = "SIM PUK"
	PinPhSIM    PinStatus = "PH_SIM PIN"
	PinPhSIMPUK PinStatus = "PH_SIM PUK"
	PinSIM2     PinStatus = "SIM PIN2"
	PinSIMPUK2  PinStatus = "SIM PUK2"
	PinPhNet    PinStatus = "PH-NET PIN"
	PinPhNetSub PinStatus = "PH-NETSUB PIN"
	PinPhSP     PinStatus = "PH-SP PIN"
	PinPhCorp   PinStatus = "PH-CORP PIN"
)

var knownPinStatus = []PinStatus{
	PinReady, PinSIM, PinSIMPUK, PinPhSIM, PinPhSIMPUK, PinSIM2, PinSIMPUK2,
	PinPhNet, PinPhNetSub, PinPhSP, PinPhCorp,
}

// GetPinStatus is AT+CPIN?.
type GetPinStatus struct{}

func (GetPinStatus) Encode(b []byte) ([]byte, error) { return at.Query(b, "+CPIN") }
func (GetPinStatus) Decode(r []byte) (PinStatus, error) {
	p := at.NewParser("+CPIN?", r)
	s := strings.Trim(p.Expect("+CPIN:").Raw(), `"`)
	if err := p.Finish(); err != nil {
		return "", err
	}
	for _, known := range knownPinStatus {
		if s == string(known) {
			return known, nil
		}
	}
	return "", at.NewDecodeError("+CPIN?", "unknown status "+s, r)
}

// EnterPin is AT+CPIN=<pin>.
type EnterPin struct{ PIN string }

func (self EnterPin) Encode(b []byte) ([]byte, error) {
	if self.PIN == "" {
		return nil, errNotValid("pin", `""`)
	}
	return at.Set(b, "+CPIN").String(self.PIN).Finish()
}
func (EnterPin) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CPIN", r) }
