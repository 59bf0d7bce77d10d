package order

import "fmt"

// StateTransition 状态转换
type StateTransition struct {
	From Status
	To   Status
}

// StateMachine 订单状态机：只负责校验合法转换，状态本身由订单的执行协程持有。
type StateMachine struct {
	transitions map[StateTransition]bool
}

// NewStateMachine 创建新的状态机
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[StateTransition]bool),
	}
	sm.initializeTransitions()
	return sm
}

func (sm *StateMachine) initializeTransitions() {
	legalTransitions := []StateTransition{
		// 首次下单确认
		{StatusSubmitted, StatusOpen},

		// 挂单中：改价/改量、撤单、轮询结果
		{StatusOpen, StatusMoving},
		{StatusOpen, StatusCancelled},
		{StatusOpen, StatusFilled},
		{StatusOpen, StatusRejected},

		// 撤单-重挂过程中
		{StatusMoving, StatusOpen},
		{StatusMoving, StatusFilled}, // 撤单时已全部成交，或剩余量为零

		// 终态不能转换（FILLED, CANCELLED, REJECTED）
	}

	for _, t := range legalTransitions {
		sm.transitions[t] = true
	}
}

// ValidateTransition 验证状态转换是否合法
func (sm *StateMachine) ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if !sm.transitions[StateTransition{From: from, To: to}] {
		return fmt.Errorf("illegal state transition: %s -> %s", from, to)
	}
	return nil
}

var defaultMachine = NewStateMachine()
