package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiocloud/mailverify"
	"github.com/studiocloud/mailverify/internal/config"
	"github.com/studiocloud/mailverify/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	return cfg
}

func TestNew_Defaults(t *testing.T) {
	svc, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	require.NotNil(t, svc.Validator)
	require.NotNil(t, svc.Runner)
	assert.Equal(t, 25, svc.Runner.Options().BatchSize)
	assert.Equal(t, 4, svc.Runner.Options().GroupSize)
	assert.Equal(t, 100*time.Millisecond, svc.Runner.Options().GroupPause)
	assert.Nil(t, svc.redis)

	res, err := svc.Validator.Validate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Email is required", res.Reason)
}

func TestNew_Redis(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://localhost:6379/2"

	svc, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, svc.redis)
	assert.Equal(t, 2, svc.redis.Options().DB)
	assert.NoError(t, svc.Close())
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.URL = "mysql://nope"

	_, err := New(cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "parse redis url")
}

func TestNew_InvalidSMTP(t *testing.T) {
	cfg := testConfig(t)
	cfg.SMTP.Timeout = -time.Second

	_, err := New(cfg, zerolog.Nop())
	assert.ErrorIs(t, err, mailverify.ErrInvalidSMTPOptions)
}

type recordingProber struct {
	profile *types.ProviderProfile
}

func (r *recordingProber) Probe(_ context.Context, t types.ProbeTarget) types.ProbeResult {
	r.profile = t.Profile
	return types.ProbeResult{Success: true, MailboxExists: true}
}

type fixedResolver struct{}

func (fixedResolver) Resolve(_ context.Context, domain string) types.ResolvedDomain {
	return types.ResolvedDomain{Domain: domain, MXHosts: []string{"mx." + domain}, DNSResolvable: true}
}

func TestNew_ConfiguredProvidersFirst(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers = []types.ProviderProfile{{Key: "override", Domains: []string{"hotmail.com"}}}

	svc, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	p := &recordingProber{}
	v := svc.Validator.WithResolver(fixedResolver{}).WithProber(p)

	_, err = v.Validate(context.Background(), "a@hotmail.com")
	require.NoError(t, err)
	require.NotNil(t, p.profile)
	assert.Equal(t, "override", p.profile.Key)

	_, err = v.Validate(context.Background(), "a@live.com")
	require.NoError(t, err)
	require.NotNil(t, p.profile)
	assert.Equal(t, "outlook", p.profile.Key)
}
