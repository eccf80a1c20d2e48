package command

import (
	"strconv"

	"github.com/temoto/nbiot/at"
)

type Attach uint8

const (
	Detached Attach = 0
	Attached Attach = 1
)

func (self Attach) String() string {
	switch self {
	case Detached:
		return "detached"
	case Attached:
		return "attached"
	}
	return "attach(" + strconv.Itoa(int(self)) + ")"
}

// GetGPRSAttach is AT+CGATT?.
type GetGPRSAttach struct{}

func (GetGPRSAttach) Encode(b []byte) ([]byte, error) { return at.Query(b, "+CGATT") }
func (GetGPRSAttach) Decode(r []byte) (Attach, error) {
	p := at.NewParser("+CGATT?", r)
	v := p.Expect("+CGATT:").Int()
	if err := p.Finish(); err != nil {
		return 0, err
	}
	if v != int(Detached) && v != int(Attached) {
		return 0, at.NewDecodeError("+CGATT?", "unknown state "+strconv.Itoa(v), r)
	}
	return Attach(v), nil
}

// SetGPRSAttach is AT+CGATT=<0|1>.
type SetGPRSAttach struct{ State Attach }

func (self SetGPRSAttach) Encode(b []byte) ([]byte, error) {
	return at.Set(b, "+CGATT").Int(int(self.State)).Finish()
}
func (SetGPRSAttach) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CGATT", r) }

// SignalQuality fields per GSM 05.08 8.2.4, 99 means unknown.
type SignalQuality struct {
	RSSI int
	BER  int
}

const SignalUnknown = 99

// DBm converts RSSI to dBm, ok=false when unknown.
func (self SignalQuality) DBm() (int, bool) {
	if self.RSSI < 0 || self.RSSI > 31 {
		return 0, false
	}
	return -113 + 2*self.RSSI, true
}

// GetSignalQuality is AT+CSQ.
type GetSignalQuality struct{}

func (GetSignalQuality) Encode(b []byte) ([]byte, error) { return at.Exec(b, "+CSQ") }
func (GetSignalQuality) Decode(r []byte) (SignalQuality, error) {
	p := at.NewParser("+CSQ", r)
	p.Expect("+CSQ:")
	sq := SignalQuality{RSSI: p.Int(), BER: p.Int()}
	return sq, p.Finish()
}

type RegistrationStatus uint8

const (
	NotRegistered RegistrationStatus = iota
	RegisteredHome
	Searching
	RegistrationDenied
	RegistrationUnknown
	RegisteredRoaming
	RegisteredSMSHome
	RegisteredSMSRoaming
)

func (self RegistrationStatus) Registered() bool {
	switch self {
	case RegisteredHome, RegisteredRoaming, RegisteredSMSHome, RegisteredSMSRoaming:
		return true
	}
	return false
}

type Registration struct {
	// URC mode, 0 disabled.
	Mode   int
	Status RegistrationStatus
	// Location fields present only in URC mode 2+.
	TAC  string
	Cell string
}

// GetRegistration is AT+CREG? or AT+CGREG? when GPRS is true.
type GetRegistration struct{ GPRS bool }

func (self GetRegistration) name() string {
	if self.GPRS {
		return "+CGREG"
	}
	return "+CREG"
}

func (self GetRegistration) Encode(b []byte) ([]byte, error) { return at.Query(b, self.name()) }
func (self GetRegistration) Decode(r []byte) (Registration, error) {
	name := self.name()
	p := at.NewParser(name+"?", r)
	p.Expect(name + ":")
	reg := Registration{Mode: p.Int()}
	stat := p.Int()
	if p.More() {
		reg.TAC = p.String()
	}
	if p.More() {
		reg.Cell = p.String()
	}
	for p.More() {
		_ = p.String() // access technology, cause type, reject cause
	}
	if err := p.Finish(); err != nil {
		return reg, err
	}
	if stat < 0 || stat > int(RegisteredSMSRoaming) {
		return reg, at.NewDecodeError(name+"?", "unknown status "+strconv.Itoa(stat), r)
	}
	reg.Status = RegistrationStatus(stat)
	return reg, nil
}

type Operator struct {
	// 0 automatic, 1 manual
	Mode int
	// 0 long alphanumeric, 1 short, 2 numeric, -1 absent
	Format int
	Name   string
	Tech   int
}

// GetOperator is AT+COPS?.
type GetOperator struct{}

func (GetOperator) Encode(b []byte) ([]byte, error) { return at.Query(b, "+COPS") }
func (GetOperator) Decode(r []byte) (Operator, error) {
	p := at.NewParser("+COPS?", r)
	op := Operator{Mode: p.Expect("+COPS:").Int(), Format: -1, Tech: -1}
	if v, ok := p.OptInt(); ok {
		op.Format = v
	}
	if p.More() {
		op.Name = p.String()
	}
	if v, ok := p.OptInt(); ok {
		op.Tech = v
	}
	return op, p.Finish()
}

type PDPContext struct {
	CID          int
	BearerID     int
	APN          string
	LocalAddress string
	Gateway      string
	DNS          []string
}

// GetPDPContexts is AT+CGCONTRDP, empty reply means no active context.
type GetPDPContexts struct{}

func (GetPDPContexts) Encode(b []byte) ([]byte, error) { return at.Exec(b, "+CGCONTRDP") }
func (GetPDPContexts) Decode(r []byte) ([]PDPContext, error) {
	p := at.NewParser("+CGCONTRDP", r)
	var cs []PDPContext
	for p.Next("+CGCONTRDP:") {
		c := PDPContext{CID: p.Int(), BearerID: p.Int(), APN: p.String()}
		if p.More() {
			c.LocalAddress = p.String()
		}
		if p.More() {
			c.Gateway = p.String()
		}
		for i := 0; i < 2 && p.More(); i++ {
			if dns := p.String(); dns != "" {
				c.DNS = append(c.DNS, dns)
			}
		}
		for p.More() {
			_ = p.String() // MTU and rate control
		}
		cs = append(cs, c)
	}
	return cs, p.Err()
}

type PDPType string

const (
	PDPIP     PDPType = "IP"
	PDPIPv6   PDPType = "IPV6"
	PDPIPv4v6 PDPType = "IPV4V6"
	PDPNonIP  PDPType = "Non-IP"
)

// SetDefaultPDP is AT*MCGDEFCONT, settings used on next attach.
type SetDefaultPDP struct {
	Type     PDPType
	APN      string
	Username string
	Password string
}

func (self SetDefaultPDP) Encode(b []byte) ([]byte, error) {
	t := self.Type
	if t == "" {
		t = PDPIP
	}
	w := at.Set(b, "*MCGDEFCONT").String(string(t))
	if self.APN != "" || self.Username != "" || self.Password != "" {
		w.String(self.APN)
	}
	if self.Username != "" || self.Password != "" {
		w.String(self.Username).String(self.Password)
	}
	return w.Finish()
}
func (SetDefaultPDP) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("*MCGDEFCONT", r) }

type APN struct {
	Name     string
	Username string
	Password string
}

// SetAPN is AT+CSTT="apn","user","pass".
type SetAPN APN

func (self SetAPN) Encode(b []byte) ([]byte, error) {
	return at.Set(b, "+CSTT").String(self.Name).String(self.Username).String(self.Password).Finish()
}
func (SetAPN) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+CSTT", r) }

// GetAPN is AT+CSTT?.
type GetAPN struct{}

func (GetAPN) Encode(b []byte) ([]byte, error) { return at.Query(b, "+CSTT") }
func (GetAPN) Decode(r []byte) (APN, error) {
	p := at.NewParser("+CSTT?", r)
	p.Expect("+CSTT:")
	a := APN{Name: p.String()}
	if p.More() {
		a.Username = p.String()
	}
	if p.More() {
		a.Password = p.String()
	}
	return a, p.Finish()
}
