package cabletest

import (
	"context"
	"fmt"

	"github.com/gbdevw/gocable/pkg/cable"
	"github.com/stretchr/testify/mock"
)

/*************************************************************************************************/
/* CHANNEL MOCK                                                                                  */
/*************************************************************************************************/

// Mock for cable.Channel. Actions are mocked through the Perform method: register expectations
// with On("Perform", ctx, sub, "<action>", data) after declaring the action with WithActions.
type ChannelMock struct {
	mock.Mock
	actions []string
}

// Declare the actions exposed by the mock and return the mock.
func (m *ChannelMock) WithActions(actions ...string) *ChannelMock {
	m.actions = append(m.actions, actions...)
	return m
}

// Mocked Subscribed method
func (m *ChannelMock) Subscribed(ctx context.Context, sub *cable.Subscription) error {
	// Call mocked method with provided args and return predefined return value if any
	args := m.Called(ctx, sub)
	return args.Error(0)
}

// Mocked Unsubscribed method
func (m *ChannelMock) Unsubscribed(ctx context.Context, sub *cable.Subscription) error {
	// Call mocked method with provided args and return predefined return value if any
	args := m.Called(ctx, sub)
	return args.Error(0)
}

// Mocked method called for every declared action
func (m *ChannelMock) Perform(ctx context.Context, sub *cable.Subscription, action string, data map[string]any) error {
	// Call mocked method with provided args and return predefined return value if any
	args := m.Called(ctx, sub, action, data)
	if args.Get(0) != nil {
		err, ok := args.Get(0).(error)
		if !ok {
			panic(fmt.Sprintf("mocked Perform returned value is not nil or an error. Got %T, %v", args.Get(0), args.Get(0)))
		}
		return err
	}
	return nil
}

// Return an ActionFunc bound to Perform for each declared action.
func (m *ChannelMock) Actions() map[string]cable.ActionFunc {
	actions := make(map[string]cable.ActionFunc, len(m.actions))
	for _, name := range m.actions {
		action := name
		actions[action] = func(ctx context.Context, sub *cable.Subscription, data map[string]any) error {
			return m.Perform(ctx, sub, action, data)
		}
	}
	return actions
}
