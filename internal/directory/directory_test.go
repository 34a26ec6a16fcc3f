package directory

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUserFetcher struct {
	mock.Mock
}

func (m *mockUserFetcher) User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*discordgo.User), args.Error(1)
}

func restError(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
}

func TestDiscordDirectory_LookupByExternalID(t *testing.T) {
	ctx := context.Background()
	fetcher := new(mockUserFetcher)
	dir := &DiscordDirectory{session: fetcher, log: logger.NewNop()}

	fetcher.On("User", "42").Return(&discordgo.User{ID: "42", Username: "alice"}, nil)
	fetcher.On("User", "404").Return(nil, restError(http.StatusNotFound))
	fetcher.On("User", "not-a-snowflake").Return(nil, restError(http.StatusBadRequest))
	fetcher.On("User", "500").Return(nil, restError(http.StatusBadGateway))

	profile, err := dir.LookupByExternalID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, domain.Profile{ExternalID: "42", Username: "alice"}, profile)

	_, err = dir.LookupByExternalID(ctx, "404")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = dir.LookupByExternalID(ctx, "not-a-snowflake")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = dir.LookupByExternalID(ctx, "500")
	assert.ErrorIs(t, err, domain.ErrExternalServiceUnavailable)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	fetcher.AssertExpectations(t)
}

func TestStaticDirectory(t *testing.T) {
	dir := NewStaticDirectory("42", "43")

	profile, err := dir.LookupByExternalID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", profile.ExternalID)

	_, err = dir.LookupByExternalID(context.Background(), "44")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

type countingDirectory struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	known map[string]bool
}

func (d *countingDirectory) LookupByExternalID(ctx context.Context, id string) (domain.Profile, error) {
	d.calls.Add(1)
	time.Sleep(d.delay)
	if d.err != nil {
		return domain.Profile{}, d.err
	}
	if !d.known[id] {
		return domain.Profile{}, domain.NewNotFoundError("user", id)
	}
	return domain.Profile{ExternalID: id}, nil
}

func TestCachedDirectory_CachesHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	inner := &countingDirectory{known: map[string]bool{"42": true}}
	dir := NewCachedDirectory(inner, time.Minute, logger.NewNop())

	for i := 0; i < 3; i++ {
		profile, err := dir.LookupByExternalID(ctx, "42")
		require.NoError(t, err)
		assert.Equal(t, "42", profile.ExternalID)

		_, err = dir.LookupByExternalID(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedDirectory_DoesNotCacheFailures(t *testing.T) {
	ctx := context.Background()
	inner := &countingDirectory{err: errors.New("discord is down")}
	dir := NewCachedDirectory(inner, time.Minute, logger.NewNop())

	_, err := dir.LookupByExternalID(ctx, "42")
	assert.Error(t, err)
	_, err = dir.LookupByExternalID(ctx, "42")
	assert.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedDirectory_CollapsesConcurrentLookups(t *testing.T) {
	ctx := context.Background()
	inner := &countingDirectory{delay: 50 * time.Millisecond, known: map[string]bool{"42": true}}
	dir := NewCachedDirectory(inner, time.Minute, logger.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := dir.LookupByExternalID(ctx, "42")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, inner.calls.Load(), int32(2))
}
