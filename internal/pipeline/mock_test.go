package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dealcast/dealcast/pkg/telegram"
)

// --- Telegram Mock ---

type mockTelegramClient struct {
	mock.Mock
}

func (m *mockTelegramClient) SendMessage(ctx context.Context, msg telegram.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockTelegramClient) SendPhoto(ctx context.Context, photo telegram.Photo) error {
	args := m.Called(ctx, photo)
	return args.Error(0)
}

func (m *mockTelegramClient) GetMe(ctx context.Context) (*telegram.BotInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*telegram.BotInfo), args.Error(1)
}
