package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evenia/backend/internal/models"
)

type failing struct{ calls int }

func (f *failing) Publish(context.Context, Message) error {
	f.calls++
	return errors.New("broker down")
}
func (f *failing) Close() error { return nil }

func TestLoggedSwallowsErrors(t *testing.T) {
	f := &failing{}
	p := NewLogged(f, nil)
	err := p.Publish(context.Background(), Message{Topic: TopicRegistrationAttended})
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
}

func TestLoggedNilIsNop(t *testing.T) {
	p := NewLogged(nil, nil)
	require.NoError(t, p.Publish(context.Background(), Message{}))
	require.NoError(t, p.Close())
}

func TestNewMessage(t *testing.T) {
	reg := &models.Registration{
		ID:      uuid.New(),
		EventID: uuid.New(),
		UserID:  uuid.New(),
		Status:  models.StatusAttended,
	}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	msg := NewMessage(TopicRegistrationAttended, reg, at)

	body, err := msg.body()
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "registration.attended", got["topic"])
	assert.Equal(t, reg.ID.String(), got["registration_id"])
	assert.Equal(t, "attended", got["status"])
	assert.Equal(t, "2026-03-01T09:00:00Z", got["at"])
}
