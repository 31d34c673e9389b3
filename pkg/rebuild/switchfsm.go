package rebuild

// switchState: switch 规范化的两态机。
type switchState int

const (
	outsideSwitch switchState = iota
	insideSwitch
)

// switchMachine: 进入 switch 后，将 case/default/break 行重排为统一缩进；
// 遇到首个单独的 "}" 退出。
type switchMachine struct {
	state  switchState
	indent string
}

// step 处理一行；handled=true 表示该行已由状态机产出。
func (m *switchMachine) step(ln Line) (out string, handled bool) {
	switch m.state {
	case outsideSwitch:
		if ln.Sig.Has(SigSwitch) {
			m.state = insideSwitch
			return ln.Raw, true
		}
	case insideSwitch:
		switch {
		case ln.Sig.Has(SigSwitch):
			return ln.Raw, true
		case ln.Sig.Has(SigCaseLabel), ln.Sig.Has(SigBreak):
			return m.indent + ln.Left, true
		case ln.Sig.Has(SigCloseBrace):
			m.state = outsideSwitch
			return ln.Raw, true
		}
	}
	return "", false
}
