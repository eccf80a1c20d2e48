package command

import "github.com/temoto/nbiot/at"

type FlowMode uint8

const (
	FlowNone     FlowMode = 0
	FlowSoftware FlowMode = 1 // XON/XOFF
	FlowHardware FlowMode = 2 // RTS/CTS
)

// FlowControl directions: DCE by TE (data from module), DTE by module (data to module).
type FlowControl struct {
	DCE FlowMode
	DTE FlowMode
}

// SetFlowControl is AT+IFC=<dce>,<dte>.
type SetFlowControl FlowControl

func (self SetFlowControl) Encode(b []byte) ([]byte, error) {
	if self.DCE > FlowHardware || self.DTE > FlowHardware {
		return nil, errNotValid("flow control", FlowControl(self))
	}
	return at.Set(b, "+IFC").Int(int(self.DCE)).Int(int(self.DTE)).Finish()
}
func (SetFlowControl) Decode(r []byte) (at.Empty, error) { return at.DecodeEmpty("+IFC", r) }

// GetFlowControl is AT+IFC?.
type GetFlowControl struct{}

func (GetFlowControl) Encode(b []byte) ([]byte, error) { return at.Query(b, "+IFC") }
func (GetFlowControl) Decode(r []byte) (FlowControl, error) {
	p := at.NewParser("+IFC?", r)
	dce := p.Expect("+IFC:").Int()
	dte := p.Int()
	if err := p.Finish(); err != nil {
		return FlowControl{}, err
	}
	if dce < 0 || dce > int(FlowHardware) || dte < 0 || dte > int(FlowHardware) {
		return FlowControl{}, at.NewDecodeError("+IFC?", "unknown mode", r)
	}
	return FlowControl{DCE: FlowMode(dce), DTE: FlowMode(dte)}, nil
}
