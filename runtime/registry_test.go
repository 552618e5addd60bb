package runtime

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"opschat/contract"
	"opschat/domain"
	"opschat/domain/event"
	"opschat/errors"
	"opschat/mocks"
)

func newTestRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newConn(ctrl *gomock.Controller, connID, userID string) *mocks.MockConn {
	c := mocks.NewMockConn(ctrl)
	c.EXPECT().ID().Return(connID).AnyTimes()
	c.EXPECT().Identity().Return(domain.Identity{UserID: userID, Role: domain.RoleUser}).AnyTimes()
	return c
}

func Test_Register_Reports_First_Connection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()

	laptop := newConn(ctrl, "conn-1", "carol")
	phone := newConn(ctrl, "conn-2", "carol")

	req.True(registry.Register(laptop))
	req.False(registry.Register(phone))
	req.True(registry.Online("carol"))
	req.Len(registry.ConnectionsFor("carol"), 2)
}

func Test_Unregister_Reports_Last_Connection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()

	laptop := newConn(ctrl, "conn-1", "carol")
	phone := newConn(ctrl, "conn-2", "carol")
	registry.Register(laptop)
	registry.Register(phone)

	req.False(registry.Unregister(laptop))
	req.True(registry.Online("carol"))
	req.True(registry.Unregister(phone))
	req.False(registry.Online("carol"))
	req.Nil(registry.ConnectionsFor("carol"))
}

func Test_Unregister_Unknown_User_Is_Harmless(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()

	stray := newConn(ctrl, "conn-9", "nobody")
	require.False(t, registry.Unregister(stray))
}

func Test_BroadcastExcept_Skips_Origin(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()

	origin := newConn(ctrl, "conn-1", "carol")
	other := newConn(ctrl, "conn-2", "bob")
	registry.Register(origin)
	registry.Register(other)

	frame := event.NewPresence("carol", true)
	other.EXPECT().Deliver(frame).Return(nil)

	registry.BroadcastExcept(origin, frame)
}

func Test_BroadcastExcept_Survives_Failed_Delivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := newTestRegistry()

	broken := newConn(ctrl, "conn-1", "carol")
	healthy := newConn(ctrl, "conn-2", "bob")
	registry.Register(broken)
	registry.Register(healthy)

	frame := event.NewPresence("dave", false)
	broken.EXPECT().Deliver(frame).Return(errors.ErrConnClosed)
	healthy.EXPECT().Deliver(frame).Return(nil)

	registry.BroadcastExcept(nil, frame)
}

var _ contract.IRegistry = (*Registry)(nil)
